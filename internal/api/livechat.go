package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-livechat/internal/config"
	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/npezzotti/go-livechat/internal/server"
)

type LiveChatApp struct {
	log            *log.Logger
	db             database.TranscriptRepository
	mux            *http.Server
	cs             *server.ChatServer
	signingKey     []byte
	allowedOrigins []string
}

// NewLiveChatApp wires the HTTP routes onto mux. db may be nil when the
// transcript archive is disabled.
func NewLiveChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.TranscriptRepository, cfg *config.Config) *LiveChatApp {
	s := &LiveChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /ws/customer", s.serveCustomerWs)
	mux.HandleFunc("GET /ws/agent", s.authMiddleware(s.serveAgentWs))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.getRooms))
	mux.HandleFunc("GET /api/transcripts/{roomId}", s.authMiddleware(s.getTranscript))
	mux.HandleFunc("GET /api/customers/{customerId}/transcripts", s.authMiddleware(s.listCustomerTranscripts))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *LiveChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *LiveChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
