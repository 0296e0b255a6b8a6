// Command console is a terminal admin console: it keeps a live view of every
// chat room and reads operator commands from stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-livechat/internal/config"
	"github.com/npezzotti/go-livechat/internal/console"
	"github.com/npezzotti/go-livechat/internal/socket"
	"github.com/npezzotti/go-livechat/internal/types"
)

const usage = `commands:
  rooms                 list rooms
  focus <room>          view a room (empty to clear)
  take <room>           claim a room
  release <room>        hand a room back to the queue
  close <room>          end a chat
  say <room> <text>     send a message
  sweep                 evict expired closed rooms now
  quit`

func main() {
	logger := log.New(os.Stderr, "[console] ", log.LstdFlags)

	if err := config.LoadEnv(); err != nil {
		logger.Fatal("env: ", err)
	}

	serverURL := flag.String("url", config.Getenv("LIVECHAT_WS_URL", "ws://localhost:8000/ws/agent"), "agent websocket endpoint")
	token := flag.String("token", config.Getenv("LIVECHAT_TOKEN", ""), "agent token, see cmd/token")
	agentId := flag.String("agent-id", config.Getenv("LIVECHAT_AGENT_ID", ""), "agent id")
	agentName := flag.String("agent-name", config.Getenv("LIVECHAT_AGENT_NAME", ""), "agent display name")
	retention := flag.Duration("retention", config.GetenvDuration("LIVECHAT_RETENTION", console.DefaultRetentionWindow), "how long closed rooms stay listed")
	flag.Parse()

	if *agentId == "" {
		logger.Fatal("agent id is required")
	}

	agent := types.Agent{Id: *agentId, Name: *agentName}
	sess := console.NewSession(agent, socket.NewClient(*serverURL, *token, logger), logger,
		console.WithRetention(*retention, console.DefaultSweepInterval))
	go sess.Run()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sess.Connect(ctx); err != nil {
		logger.Fatal("connect: ", err)
	}

	go watch(ctx, sess, os.Stdout)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println(usage)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if quit := run(sess, line, os.Stdout); quit {
				break loop
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Shutdown(shutdownCtx); err != nil {
		logger.Println("shutdown:", err)
	}
}

// watch prints a line for every signal worth the operator's attention.
func watch(ctx context.Context, sess *console.Session, w io.Writer) {
	connected := false
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-sess.Updates():
			if v.Connected != connected {
				connected = v.Connected
				fmt.Fprintf(w, "* connected: %v (%d open rooms)\n", connected, v.Counts.Open)
			}
			if v.Signal == nil {
				continue
			}
			if v.Signal.NewMessage {
				fmt.Fprintf(w, "* new message in %s\n", v.Signal.RoomId)
			}
			for _, id := range v.Signal.Removed {
				fmt.Fprintf(w, "* room %s removed\n", id)
			}
		}
	}
}

// run executes one command line and reports whether the console should exit.
func run(sess *console.Session, line string, w io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	var err error
	switch fields[0] {
	case "quit", "exit":
		return true
	case "rooms":
		var v console.View
		if v, err = sess.View(); err == nil {
			printRooms(w, v)
		}
	case "focus":
		if err = sess.Focus(arg(1)); err == nil {
			var v console.View
			if v, err = sess.View(); err == nil {
				printMessages(w, v)
			}
		}
	case "take":
		err = sess.Claim(arg(1))
	case "release":
		err = sess.Release(arg(1))
	case "close":
		err = sess.Close(arg(1))
	case "say":
		var text string
		if len(fields) > 2 {
			text = strings.Join(fields[2:], " ")
		}
		err = sess.SendMessage(arg(1), text)
	case "sweep":
		var removed []string
		if removed, err = sess.Sweep(); err == nil {
			fmt.Fprintf(w, "evicted %d rooms\n", len(removed))
		}
	default:
		fmt.Fprintln(w, usage)
	}

	if err != nil {
		fmt.Fprintln(w, "error:", err)
	}
	return errors.Is(err, console.ErrSessionClosed)
}

func printRooms(w io.Writer, v console.View) {
	fmt.Fprintf(w, "%d open, connected: %v\n", v.Counts.Open, v.Connected)
	for _, r := range v.Rooms {
		marker := " "
		if r.Unread > 0 {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-12s %-8s %-10s %s\n", marker, r.Id, r.Status, r.AssignedAgent, r.Preview)
	}
}

func printMessages(w io.Writer, v console.View) {
	for _, m := range v.Messages {
		fmt.Fprintf(w, "[%s] %s: %s\n", m.Timestamp.Format(time.TimeOnly), m.Sender, m.Text)
	}
}
