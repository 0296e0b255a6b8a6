package console

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/npezzotti/go-livechat/internal/protocol"
	"github.com/npezzotti/go-livechat/internal/socket"
	"github.com/npezzotti/go-livechat/internal/types"
)

var ErrNotConnected = errors.New("not connected to chat server")

// Transport is a persistent, self-reconnecting message channel.
type Transport interface {
	// Run dials and keeps the channel up until ctx is cancelled, invoking h
	// on every connect, disconnect and inbound event.
	Run(ctx context.Context, hs protocol.Handshake, h socket.Handler) error
	Emit(env *protocol.Envelope) error
}

// ConnectionManager owns the single channel between one agent identity and
// the chat server. It holds no room state; inbound events are handed to
// deliver in arrival order.
type ConnectionManager struct {
	identity  types.Agent
	transport Transport
	log       *log.Logger
	deliver   func(sessionEvent)
	connected atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewConnectionManager(identity types.Agent, transport Transport, logger *log.Logger, deliver func(sessionEvent)) *ConnectionManager {
	return &ConnectionManager{
		identity:  identity,
		transport: transport,
		log:       logger,
		deliver:   deliver,
	}
}

// Connect starts the channel. Calling it while already running is a no-op.
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.done != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	cm.cancel = cancel
	cm.done = done

	hs := protocol.Handshake{
		IsAdmin:   true,
		AgentId:   cm.identity.Id,
		AgentName: cm.identity.Name,
	}

	go func() {
		defer close(done)
		if err := cm.transport.Run(ctx, hs, cm); err != nil && !errors.Is(err, context.Canceled) {
			cm.log.Printf("transport stopped: %v", err)
		}
	}()

	return nil
}

// Disconnect stops the channel and waits for the transport to exit or ctx
// to expire.
func (cm *ConnectionManager) Disconnect(ctx context.Context) error {
	cm.mu.Lock()
	cancel, done := cm.cancel, cm.done
	cm.cancel, cm.done = nil, nil
	cm.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	cm.connected.Store(false)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("transport did not stop: %w", ctx.Err())
	}
}

func (cm *ConnectionManager) Connected() bool {
	return cm.connected.Load()
}

// Send emits an outbound intent. Delivery is not confirmed; any outcome
// arrives later as an inbound event.
func (cm *ConnectionManager) Send(event string, payload any) error {
	if !cm.Connected() {
		return ErrNotConnected
	}

	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	return cm.transport.Emit(env)
}

// OnConnect runs on every successful (re)connection and always requests a
// full resync, so the console converges to server state after a gap.
func (cm *ConnectionManager) OnConnect() {
	cm.log.Printf("connected as agent %q", cm.identity.Id)
	cm.connected.Store(true)
	cm.deliver(connEvent{connected: true})

	if err := cm.Send(protocol.EventGetActiveRooms, struct{}{}); err != nil {
		cm.log.Printf("request room sync: %v", err)
	}
}

func (cm *ConnectionManager) OnDisconnect(err error) {
	cm.log.Printf("disconnected: %v", err)
	cm.connected.Store(false)
	cm.deliver(connEvent{connected: false})
}

func (cm *ConnectionManager) OnEvent(env *protocol.Envelope) {
	cm.deliver(inboundEvent{env: env})
}
