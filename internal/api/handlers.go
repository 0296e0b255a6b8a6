package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-livechat/internal/protocol"
	"github.com/npezzotti/go-livechat/internal/server"
)

const (
	defaultTranscriptLimit = 20
	maxTranscriptLimit     = 100
)

func (s *LiveChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *LiveChatApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *LiveChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			s.log.Printf("health check: %v", err)
			s.writeError(w, NewInternalServerError(err))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *LiveChatApp) getRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.cs.Rooms(r.Context())
	if err != nil {
		s.writeError(w, NewServiceUnavailableError(err))
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *LiveChatApp) getTranscript(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, NewServiceUnavailableError(errors.New("transcript archive disabled")))
		return
	}

	t, err := s.db.GetTranscript(r.PathValue("roomId"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, http.StatusOK, t)
}

func (s *LiveChatApp) listCustomerTranscripts(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, NewServiceUnavailableError(errors.New("transcript archive disabled")))
		return
	}

	limit := defaultTranscriptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, NewBadRequestError())
			return
		}
		limit = min(n, maxTranscriptLimit)
	}

	ts, err := s.db.ListTranscriptsByCustomer(r.PathValue("customerId"), limit)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, ts)
}

func (s *LiveChatApp) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
}

// serveAgentWs upgrades an admin console. The handshake in the query must
// name the same agent as the token.
func (s *LiveChatApp) serveAgentWs(w http.ResponseWriter, r *http.Request) {
	agent, ok := AgentFromContext(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	hs, err := protocol.ParseHandshake(r.URL.Query())
	if err != nil {
		s.log.Printf("agent handshake: %v", err)
		s.writeError(w, NewBadRequestError())
		return
	}
	if !hs.IsAdmin || hs.AgentId != agent.Id {
		s.log.Printf("agent handshake for %q does not match token for %q", hs.AgentId, agent.Id)
		s.writeError(w, NewForbiddenError())
		return
	}
	if hs.AgentName != "" {
		agent.Name = hs.AgentName
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	s.register(server.NewAgentClient(agent, conn, s.cs, s.log), conn)
}

// serveCustomerWs upgrades a customer widget. Widgets without an id get a
// fresh anonymous one.
func (s *LiveChatApp) serveCustomerWs(w http.ResponseWriter, r *http.Request) {
	customerId := r.URL.Query().Get("customerId")
	if customerId == "" {
		customerId = uuid.NewString()
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	s.register(server.NewCustomerClient(customerId, conn, s.cs, s.log), conn)
}

func (s *LiveChatApp) register(c *server.Client, conn *websocket.Conn) {
	if err := s.cs.Register(c); err != nil {
		s.log.Printf("register %s: %v", c, err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}

	go c.Write()
	go c.Read()
}
