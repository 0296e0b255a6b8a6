package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-livechat/internal/protocol"
	"github.com/npezzotti/go-livechat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	connected    chan struct{}
	disconnected chan error
	events       chan *protocol.Envelope
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		connected:    make(chan struct{}, 10),
		disconnected: make(chan error, 10),
		events:       make(chan *protocol.Envelope, 10),
	}
}

func (h *recordingHandler) OnConnect()                     { h.connected <- struct{}{} }
func (h *recordingHandler) OnDisconnect(err error)         { h.disconnected <- err }
func (h *recordingHandler) OnEvent(env *protocol.Envelope) { h.events <- env }

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

var testHandshake = protocol.Handshake{IsAdmin: true, AgentId: "agent-1", AgentName: "Alice"}

func TestClient_Run(t *testing.T) {
	upgrader := websocket.Upgrader{}
	queries := make(chan url.Values, 1)
	auth := make(chan string, 1)
	received := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		auth <- r.Header.Get("Authorization")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"chat_rooms","data":[]}`))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- msg

		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewClient(wsURL(srv, "/ws/agent?tenant=acme"), "secret-token", testutil.TestLogger(t))
	h := newRecordingHandler()

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx, testHandshake, h) }()

	waitFor(t, h.connected, "connect")

	q := waitFor(t, queries, "handshake query")
	assert.Equal(t, "true", q.Get("isAdmin"))
	assert.Equal(t, "agent-1", q.Get("agentId"))
	assert.Equal(t, "Alice", q.Get("agentName"))
	assert.Equal(t, "acme", q.Get("tenant"), "expected existing query to be kept")
	assert.Equal(t, "Bearer secret-token", waitFor(t, auth, "authorization header"))

	env := waitFor(t, h.events, "inbound event")
	assert.Equal(t, protocol.EventChatRooms, env.Event, "expected malformed frame to be skipped")

	out, err := protocol.NewEnvelope(protocol.EventGetActiveRooms, struct{}{})
	require.NoError(t, err)
	require.NoError(t, c.Emit(out))
	assert.JSONEq(t, `{"event":"get_active_rooms","data":{}}`, string(waitFor(t, received, "emitted frame")))

	cancel()
	assert.ErrorIs(t, waitFor(t, runErr, "run to return"), context.Canceled)
	waitFor(t, h.disconnected, "disconnect")

	assert.ErrorIs(t, c.Emit(out), ErrNotConnected)
}

func TestClient_Reconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var accepted atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted.Add(1)
		// drop every connection straight away
		conn.Close()
	}))
	defer srv.Close()

	c := NewClient(wsURL(srv, "/ws/agent"), "", testutil.TestLogger(t))
	c.SetReconnectWait(time.Millisecond, 5*time.Millisecond)
	h := newRecordingHandler()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, testHandshake, h)

	for i := range 3 {
		waitFor(t, h.connected, "connect")
		err := waitFor(t, h.disconnected, "disconnect")
		assert.Error(t, err, "attempt %d", i)
	}

	assert.GreaterOrEqual(t, accepted.Load(), int32(3))
}

func TestClient_RunDialFailure(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws/agent", "", testutil.TestLogger(t))
	c.SetReconnectWait(time.Millisecond, time.Millisecond)
	h := newRecordingHandler()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Run(ctx, testHandshake, h)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.connected, "expected no connect notification")
}

func TestClient_EmitNotConnected(t *testing.T) {
	c := NewClient("ws://localhost/ws/agent", "", testutil.TestLogger(t))
	env, err := protocol.NewEnvelope(protocol.EventCloseChat, protocol.RoomRequest{RoomId: "r1"})
	require.NoError(t, err)

	assert.ErrorIs(t, c.Emit(env), ErrNotConnected)
}

func TestClient_DialURL(t *testing.T) {
	c := NewClient("ws://localhost:8000/ws/agent?agentId=stale", "", testutil.TestLogger(t))

	raw, err := c.dialURL(testHandshake)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/ws/agent", u.Path)
	assert.Equal(t, "agent-1", u.Query().Get("agentId"), "expected handshake to override query")

	c = NewClient("://bad", "", testutil.TestLogger(t))
	_, err = c.dialURL(testHandshake)
	assert.Error(t, err)
}
