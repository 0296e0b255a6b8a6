package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/go-livechat/internal/api"
	"github.com/npezzotti/go-livechat/internal/config"
	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/npezzotti/go-livechat/internal/server"
	"github.com/npezzotti/go-livechat/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

// loadConfig reads the server settings from args, falling back to the
// LIVECHAT_* environment. There is no built-in signing key.
func loadConfig(args []string) (*config.Config, error) {
	var (
		addr           string
		dsn            string
		signingKey     string
		retention      time.Duration
		sweepInterval  time.Duration
		allowedOrigins stringSliceFlag
	)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	allowedOrigins = config.GetenvList("LIVECHAT_ALLOWED_ORIGINS")

	fs.StringVar(&addr, "addr", config.Getenv("LIVECHAT_ADDR", "localhost:8000"), "server address")
	fs.StringVar(&dsn, "dsn", config.Getenv("LIVECHAT_DSN", ""), "database connection string; empty disables the transcript archive")
	fs.StringVar(&signingKey, "signing-key", config.Getenv("LIVECHAT_SIGNING_KEY", ""), "base64 encoded signing key (required)")
	fs.DurationVar(&retention, "retention", config.GetenvDuration("LIVECHAT_RETENTION", server.DefaultRetentionWindow), "how long closed rooms are kept")
	fs.DurationVar(&sweepInterval, "sweep-interval", config.GetenvDuration("LIVECHAT_SWEEP_INTERVAL", server.DefaultSweepInterval), "how often closed rooms are evicted")
	fs.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return config.NewConfig(addr, dsn, signingKey, allowedOrigins, retention, sweepInterval)
}

func main() {
	logger := log.New(os.Stderr, "[livechat] ", log.LstdFlags)

	if err := config.LoadEnv(); err != nil {
		logger.Fatal("env: ", err)
	}

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		logger.Fatal("config: ", err)
	}

	var repo database.TranscriptRepository
	if cfg.DatabaseDSN != "" {
		dbConn, err := database.NewPgTranscriptRepository(cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("db open: ", err)
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Println("db close:", err)
			}
		}()

		if err := dbConn.Migrate(); err != nil {
			logger.Fatal("db migrate: ", err)
		}
		repo = dbConn
	} else {
		logger.Println("no database configured, transcripts will not be archived")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, repo, statsUpdater,
		server.WithRetention(cfg.RetentionWindow, cfg.SweepInterval))
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	srv := api.NewLiveChatApp(mux, logger, chatServer, repo, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
