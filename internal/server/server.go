package server

import (
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/npezzotti/go-livechat/internal/protocol"
	"github.com/npezzotti/go-livechat/internal/stats"
	"github.com/npezzotti/go-livechat/internal/types"
	"github.com/teris-io/shortid"
)

const (
	DefaultRetentionWindow = 5 * time.Minute
	DefaultSweepInterval   = 60 * time.Second
)

var ErrServerStopped = errors.New("chat server stopped")

type stopReq struct {
	done chan struct{}
}

type Option func(*ChatServer)

func WithRetention(window, interval time.Duration) Option {
	return func(cs *ChatServer) {
		if window > 0 {
			cs.retention = window
		}
		if interval > 0 {
			cs.sweepInterval = interval
		}
	}
}

// WithClock replaces Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(cs *ChatServer) { cs.now = now }
}

// ChatServer owns every room and connection. All state is touched only by
// the Run goroutine; clients talk to it over channels.
type ChatServer struct {
	log            *log.Logger
	db             database.TranscriptRepository
	stats          stats.StatsProvider
	agents         map[*Client]struct{}
	customers      map[string]map[*Client]struct{}
	rooms          map[string]*Room
	registerChan   chan *Client
	deRegisterChan chan *Client
	clientMsgChan  chan *ClientMessage
	snapshotChan   chan chan []types.ChatRoom
	stop           chan stopReq
	done           chan struct{}
	retention      time.Duration
	sweepInterval  time.Duration
	now            func() time.Time
	newRoomId      func() (string, error)
	archiveWg      sync.WaitGroup
}

// NewChatServer creates a chat server. db may be nil, in which case closed
// chats are not archived.
func NewChatServer(logger *log.Logger, db database.TranscriptRepository, su stats.StatsProvider, opts ...Option) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          su,
		agents:         make(map[*Client]struct{}),
		customers:      make(map[string]map[*Client]struct{}),
		rooms:          make(map[string]*Room),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		clientMsgChan:  make(chan *ClientMessage, 256),
		snapshotChan:   make(chan chan []types.ChatRoom),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
		retention:      DefaultRetentionWindow,
		sweepInterval:  DefaultSweepInterval,
		now:            Now,
		newRoomId:      shortid.Generate,
	}

	for _, opt := range opts {
		opt(cs)
	}

	su.RegisterMetric("NumActiveAgents")
	su.RegisterMetric("NumActiveCustomers")
	su.RegisterMetric("NumOpenRooms")
	su.RegisterMetric("NumMessages")

	return cs, nil
}

func (cs *ChatServer) Run() {
	ticker := time.NewTicker(cs.sweepInterval)
	defer ticker.Stop()

	cs.log.Printf("chat server started (retention: %v, sweep interval: %v)", cs.retention, cs.sweepInterval)
	for {
		select {
		case c := <-cs.registerChan:
			cs.addClient(c)
		case c := <-cs.deRegisterChan:
			cs.removeClient(c)
		case msg := <-cs.clientMsgChan:
			cs.handleMessage(msg)
		case reply := <-cs.snapshotChan:
			reply <- cs.snapshot()
		case <-ticker.C:
			cs.sweep(cs.now())
		case req := <-cs.stop:
			cs.log.Println("disconnecting clients")
			for c := range cs.agents {
				c.stopClient()
			}
			for _, set := range cs.customers {
				for c := range set {
					c.stopClient()
				}
			}

			cs.archiveWg.Wait()
			close(cs.done)
			close(req.done)
			return
		}
	}
}

// Register hands a newly upgraded connection to the server.
func (cs *ChatServer) Register(c *Client) error {
	select {
	case cs.registerChan <- c:
		return nil
	case <-cs.done:
		return ErrServerStopped
	}
}

func (cs *ChatServer) deregister(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

// Rooms returns a copy of every room the server currently holds.
func (cs *ChatServer) Rooms(ctx context.Context) ([]types.ChatRoom, error) {
	reply := make(chan []types.ChatRoom, 1)
	select {
	case cs.snapshotChan <- reply:
	case <-cs.done:
		return nil, ErrServerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case rooms := <-reply:
		return rooms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.log.Printf("adding connection from %s", c)

	if c.role == RoleAgent {
		cs.agents[c] = struct{}{}
		cs.stats.Incr("NumActiveAgents")
		return
	}

	set, ok := cs.customers[c.customerId]
	if !ok {
		set = make(map[*Client]struct{})
		cs.customers[c.customerId] = set
	}
	set[c] = struct{}{}
	cs.stats.Incr("NumActiveCustomers")

	r := cs.openRoomFor(c.customerId)
	if r == nil {
		var err error
		if r, err = cs.createRoom(c.customerId, types.StatusInactive); err != nil {
			cs.log.Printf("create room for %s: %v", c, err)
			c.queueMessage(ErrServiceUnavailable())
			return
		}
	}

	c.queueMessage(r.joined())
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.log.Printf("removing connection from %s", c)

	if c.role == RoleAgent {
		if _, ok := cs.agents[c]; ok {
			delete(cs.agents, c)
			cs.stats.Decr("NumActiveAgents")
		}
		return
	}

	set := cs.customers[c.customerId]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	cs.stats.Decr("NumActiveCustomers")
	if len(set) > 0 {
		return
	}
	delete(cs.customers, c.customerId)

	// a placeholder nobody wrote in has nothing to keep
	if r := cs.openRoomFor(c.customerId); r != nil && r.Status == types.StatusInactive {
		cs.closeRoom(r, protocol.EventChatEnded, "Customer left")
	}
}

// toAgents queues env on every connected agent.
func (cs *ChatServer) toAgents(env *protocol.Envelope) {
	for c := range cs.agents {
		c.queueMessage(env)
	}
}

// toCustomer queues env on every connection of customerId.
func (cs *ChatServer) toCustomer(customerId string, env *protocol.Envelope) {
	for c := range cs.customers[customerId] {
		c.queueMessage(env)
	}
}

func (cs *ChatServer) openRoomFor(customerId string) *Room {
	for _, r := range cs.rooms {
		if r.CustomerId == customerId && r.Status != types.StatusClosed {
			return r
		}
	}
	return nil
}

func (cs *ChatServer) createRoom(customerId string, status types.RoomStatus) (*Room, error) {
	id, err := cs.newRoomId()
	if err != nil {
		return nil, err
	}

	r := &Room{ChatRoom: *types.NewChatRoom(id, customerId, cs.now())}
	r.Status = status
	cs.rooms[id] = r
	cs.stats.Incr("NumOpenRooms")
	cs.log.Printf("created room %q (%s) for customer %q", id, status, customerId)

	return r, nil
}

// closeRoom ends the conversation, tells both sides and archives the
// history. Agents receive agentEvent, the customer always chat_ended.
func (cs *ChatServer) closeRoom(r *Room, agentEvent, notice string) {
	if _, err := r.SetStatus(types.StatusClosed, cs.now()); err != nil {
		cs.log.Printf("close room: %v", err)
		return
	}
	cs.stats.Decr("NumOpenRooms")
	cs.log.Printf("closed room %q: %s", r.Id, notice)

	ended := protocol.ChatEnded{RoomId: r.Id, Message: notice}
	cs.toAgents(envelope(agentEvent, ended))
	cs.toCustomer(r.CustomerId, envelope(protocol.EventChatEnded, ended))

	cs.archive(r)
}

func (cs *ChatServer) archive(r *Room) {
	if cs.db == nil || !r.HasCustomerMessage {
		return
	}

	t := database.NewTranscript(r.Clone(), r.AssignedAgent, r.LastActivity)
	cs.archiveWg.Add(1)
	go func() {
		defer cs.archiveWg.Done()
		if err := cs.db.SaveTranscript(t); err != nil {
			cs.log.Printf("archive room %q: %v", t.RoomId, err)
		}
	}()
}

func (cs *ChatServer) sweep(now time.Time) {
	var removed []string
	for id, r := range cs.rooms {
		if r.Expired(now, cs.retention) {
			delete(cs.rooms, id)
			removed = append(removed, id)
		}
	}

	if len(removed) > 0 {
		cs.log.Printf("evicted %d closed rooms: %v", len(removed), removed)
	}
}

// snapshot returns every room ordered by creation time.
func (cs *ChatServer) snapshot() []types.ChatRoom {
	rooms := make([]types.ChatRoom, 0, len(cs.rooms))
	for _, r := range cs.rooms {
		rooms = append(rooms, r.Clone())
	}

	slices.SortFunc(rooms, func(a, b types.ChatRoom) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Id, b.Id)
	})

	return rooms
}
