// Package socket provides a self-reconnecting websocket client carrying
// protocol envelopes. Reconnection with capped exponential backoff lives
// here so callers only observe connect and disconnect notifications.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-livechat/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	DefaultMinReconnectWait = 500 * time.Millisecond
	DefaultMaxReconnectWait = 30 * time.Second
)

var (
	ErrNotConnected   = errors.New("socket not connected")
	ErrSendQueueFull  = errors.New("send queue full")
	errConnectionDone = errors.New("connection closed")
)

// Handler receives connection lifecycle notifications and inbound events.
// All calls are made from the client's reader goroutine, in order.
type Handler interface {
	OnConnect()
	OnDisconnect(err error)
	OnEvent(env *protocol.Envelope)
}

type Client struct {
	url     string
	token   string
	dialer  *websocket.Dialer
	log     *log.Logger
	minWait time.Duration
	maxWait time.Duration

	mu   sync.Mutex
	send chan []byte
}

func NewClient(rawURL, token string, logger *log.Logger) *Client {
	return &Client{
		url:     rawURL,
		token:   token,
		dialer:  websocket.DefaultDialer,
		log:     logger,
		minWait: DefaultMinReconnectWait,
		maxWait: DefaultMaxReconnectWait,
	}
}

// SetReconnectWait overrides the backoff bounds used between dial attempts.
func (c *Client) SetReconnectWait(lo, hi time.Duration) {
	c.minWait, c.maxWait = lo, hi
}

// Run keeps a connection open until ctx is cancelled, redialing after every
// failure. It always returns a non-nil error, ctx.Err() on cancellation.
func (c *Client) Run(ctx context.Context, hs protocol.Handshake, h Handler) error {
	wait := c.minWait
	for {
		connected, err := c.runOnce(ctx, hs, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if connected {
			wait = c.minWait
		}
		c.log.Printf("connection to %s lost (%v), retrying in %v", c.url, err, wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		wait = min(wait*2, c.maxWait)
	}
}

// Emit queues env for the current connection without blocking.
func (c *Client) Emit(env *protocol.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", env.Event, err)
	}

	c.mu.Lock()
	send := c.send
	c.mu.Unlock()

	if send == nil {
		return ErrNotConnected
	}

	select {
	case send <- b:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *Client) setSend(send chan []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send = send
}

func (c *Client) dialURL(hs protocol.Handshake) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	q := u.Query()
	for k, v := range hs.Query() {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// runOnce dials, serves a single connection until it drops and reports
// whether the dial succeeded.
func (c *Client) runOnce(ctx context.Context, hs protocol.Handshake, h Handler) (bool, error) {
	target, err := c.dialURL(hs)
	if err != nil {
		return false, err
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	send := make(chan []byte, 256)
	stop := make(chan struct{})
	writeDone := make(chan struct{})

	c.setSend(send)
	go func() {
		defer close(writeDone)
		c.write(conn, send, stop)
	}()

	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-stop:
		}
	}()

	h.OnConnect()
	err = c.read(conn, h)

	c.setSend(nil)
	close(stop)
	<-writeDone
	conn.Close()

	h.OnDisconnect(err)
	return true, err
}

func (c *Client) read(conn *websocket.Conn, h Handler) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errConnectionDone
			}
			return fmt.Errorf("read: %w", err)
		}

		env, err := protocol.ParseEnvelope(raw)
		if err != nil {
			c.log.Printf("dropping frame: %v", err)
			continue
		}

		h.OnEvent(env)
	}
}

func (c *Client) write(conn *websocket.Conn, send <-chan []byte, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Printf("write message: %v", err)
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-stop:
			return
		}
	}
}
