package console

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/npezzotti/go-livechat/internal/protocol"
	"github.com/npezzotti/go-livechat/internal/types"
)

var ErrSessionClosed = errors.New("session closed")

// sessionEvent is one unit of work for the session loop. apply runs on the
// loop goroutine and is the only place the store is mutated.
type sessionEvent interface {
	apply(s *Session)
}

type Option func(*Session)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithRetention(window, interval time.Duration) Option {
	return func(s *Session) {
		s.retention = window
		s.sweepInterval = interval
	}
}

// Session is one agent's console: it owns the connection, the room store
// and the focused room, and serializes every change through a single event
// queue drained by Run.
type Session struct {
	agent         types.Agent
	log           *log.Logger
	conn          *ConnectionManager
	assign        *AssignmentController
	sweeper       *Sweeper
	store         *RoomStore
	focus         string
	connected     bool
	retention     time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	events        chan sessionEvent
	updates       chan View
	stop          chan struct{}
	done          chan struct{}
}

func NewSession(agent types.Agent, transport Transport, logger *log.Logger, opts ...Option) *Session {
	s := &Session{
		agent:         agent,
		log:           logger,
		store:         NewRoomStore(),
		retention:     DefaultRetentionWindow,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		events:        make(chan sessionEvent, 256),
		updates:       make(chan View, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.conn = NewConnectionManager(agent, transport, logger, s.enqueue)
	s.assign = NewAssignmentController(agent, s.conn)
	s.sweeper = NewSweeper(logger, s.sweepInterval, s.enqueueSweep)

	return s
}

func (s *Session) Agent() types.Agent {
	return s.agent
}

// Run drains the event queue until Shutdown is called.
func (s *Session) Run() {
	go s.sweeper.Start()
	defer func() {
		s.sweeper.Stop()
		close(s.done)
	}()

	for {
		select {
		case ev := <-s.events:
			ev.apply(s)
		case <-s.stop:
			s.log.Printf("session for agent %q stopped", s.agent.Id)
			return
		}
	}
}

func (s *Session) Connect(ctx context.Context) error {
	return s.conn.Connect(ctx)
}

// Shutdown stops the loop and disconnects. Intents still queued are
// dropped.
func (s *Session) Shutdown(ctx context.Context) error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}

	if err := s.conn.Disconnect(ctx); err != nil {
		return fmt.Errorf("session shutdown: %w", err)
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session shutdown: %w", ctx.Err())
	}
}

// Updates delivers the latest view after every change. Only the most
// recent view is kept when the reader falls behind.
func (s *Session) Updates() <-chan View {
	return s.updates
}

// enqueue blocks until the loop accepts ev so inbound events are never
// dropped or reordered.
func (s *Session) enqueue(ev sessionEvent) {
	select {
	case s.events <- ev:
	case <-s.stop:
	}
}

// enqueueSweep skips the tick when the queue is full; eviction is only
// delayed until the next one.
func (s *Session) enqueueSweep() {
	select {
	case s.events <- sweepEvent{}:
	default:
		s.log.Println("event queue full, skipping retention sweep")
	}
}

func (s *Session) project(sig *Signal) View {
	v := Project(s.store.Snapshot(), s.agent, s.focus, s.connected)
	v.Signal = sig
	return v
}

func (s *Session) publish(sig *Signal) {
	v := s.project(sig)
	select {
	case s.updates <- v:
		return
	default:
	}

	// replace the stale view
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- v:
	default:
	}
}

func (s *Session) clearFocusIfRemoved(ids []string) {
	if s.focus != "" && slices.Contains(ids, s.focus) {
		s.focus = ""
	}
}

type inboundEvent struct {
	env *protocol.Envelope
}

func (e inboundEvent) apply(s *Session) {
	sig, err := Reconcile(s.store, e.env, s.focus, s.now())
	if err != nil {
		s.log.Printf("reconcile %q: %v", e.env.Event, err)
	}

	s.clearFocusIfRemoved(sig.Removed)
	s.publish(&sig)
}

type connEvent struct {
	connected bool
}

func (e connEvent) apply(s *Session) {
	s.connected = e.connected
	s.publish(nil)
}

type sweepEvent struct{}

func (sweepEvent) apply(s *Session) {
	s.sweep()
}

func (s *Session) sweep() []string {
	removed := Sweep(s.store, s.now(), s.retention)
	if len(removed) == 0 {
		return nil
	}

	s.log.Printf("evicted %d closed rooms: %v", len(removed), removed)
	s.clearFocusIfRemoved(removed)
	s.publish(&Signal{Removed: removed})
	return removed
}

// intentEvent runs an operator action on the loop and reports its outcome.
// Successful actions publish a fresh view unless they are read-only.
type intentEvent struct {
	fn       func(s *Session) error
	result   chan error
	readOnly bool
}

func (e intentEvent) apply(s *Session) {
	err := e.fn(s)
	if err == nil && !e.readOnly {
		s.publish(nil)
	}
	e.result <- err
}

func (s *Session) do(fn func(s *Session) error) error {
	return s.submit(intentEvent{fn: fn, result: make(chan error, 1)})
}

func (s *Session) query(fn func(s *Session) error) error {
	return s.submit(intentEvent{fn: fn, result: make(chan error, 1), readOnly: true})
}

func (s *Session) submit(ev intentEvent) error {
	select {
	case s.events <- ev:
	case <-s.stop:
		return ErrSessionClosed
	}

	select {
	case err := <-ev.result:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// Claim binds the room to this agent, showing it as active immediately.
func (s *Session) Claim(roomId string) error {
	return s.do(func(s *Session) error {
		return s.assign.Claim(s.store, roomId, s.now())
	})
}

func (s *Session) Release(roomId string) error {
	return s.do(func(s *Session) error {
		return s.assign.Release(s.store, roomId)
	})
}

// Close requests the end of the conversation and drops focus from the room
// right away; the room turns closed once the server confirms.
func (s *Session) Close(roomId string) error {
	return s.do(func(s *Session) error {
		if err := s.assign.Close(s.store, roomId); err != nil {
			return err
		}
		if s.focus == roomId {
			s.focus = ""
		}
		return nil
	})
}

func (s *Session) SendMessage(roomId, text string) error {
	return s.do(func(s *Session) error {
		return s.assign.SendMessage(s.store, roomId, text)
	})
}

// Focus selects the room the operator is viewing. An empty id clears it.
func (s *Session) Focus(roomId string) error {
	return s.do(func(s *Session) error {
		if roomId != "" {
			if _, ok := s.store.Get(roomId); !ok {
				return fmt.Errorf("focus %q: %w", roomId, ErrRoomNotFound)
			}
		}
		s.focus = roomId
		return nil
	})
}

// Sweep runs the retention rule immediately and returns the evicted ids.
func (s *Session) Sweep() ([]string, error) {
	var removed []string
	err := s.query(func(s *Session) error {
		removed = s.sweep()
		return nil
	})
	return removed, err
}

// View returns the current projection of the store.
func (s *Session) View() (View, error) {
	var v View
	err := s.query(func(s *Session) error {
		v = s.project(nil)
		return nil
	})
	return v, err
}
