package console

import (
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-livechat/internal/protocol"
	"github.com/npezzotti/go-livechat/internal/types"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrServerRejected = errors.New("server rejected request")
)

// Signal carries side information about a reconciled event that the UI may
// act on. It never influences the store mutation itself.
type Signal struct {
	RoomId string
	// NewMessage is set when a customer message arrived for a room the
	// operator is not currently viewing.
	NewMessage bool
	// Removed lists rooms dropped from the store by the event.
	Removed []string
}

// Reconcile applies a single inbound event to the store. focus is the id of
// the room the operator is viewing and is only used to compute the Signal.
// Events naming an unknown room create it first rather than being dropped.
func Reconcile(store *RoomStore, env *protocol.Envelope, focus string, now time.Time) (Signal, error) {
	switch env.Event {
	case protocol.EventChatRooms:
		return reconcileChatRooms(store, env, now)
	case protocol.EventNewCustomer:
		return reconcileNewCustomer(store, env, now)
	case protocol.EventCustomerMessage:
		return reconcileCustomerMessage(store, env, focus, now)
	case protocol.EventChatMessage:
		return reconcileChatMessage(store, env, focus, now)
	case protocol.EventRoomAssigned:
		return reconcileRoomAssigned(store, env, now)
	case protocol.EventRoomUnassigned:
		return reconcileRoomUnassigned(store, env, now)
	case protocol.EventChatEnded, protocol.EventChatClosed:
		return reconcileChatEnded(store, env, now)
	case protocol.EventCustomerStartedNewChat:
		return reconcileNewChat(store, env, now)
	case protocol.EventError:
		var e protocol.Error
		if err := env.Decode(&e); err != nil {
			return Signal{}, err
		}
		return Signal{RoomId: e.RoomId}, fmt.Errorf("%w: %s", ErrServerRejected, e.Message)
	default:
		return Signal{}, fmt.Errorf("%q: %w", env.Event, ErrUnknownEvent)
	}
}

func missingRoomId(event string) error {
	return fmt.Errorf("%q: missing roomId: %w", event, protocol.ErrMalformedEvent)
}

func reconcileChatRooms(store *RoomStore, env *protocol.Envelope, now time.Time) (Signal, error) {
	var rooms []types.ChatRoom
	if err := env.Decode(&rooms); err != nil {
		return Signal{}, err
	}

	seen := make(map[string]struct{}, len(rooms))
	for _, in := range rooms {
		if in.Id == "" {
			continue
		}
		seen[in.Id] = struct{}{}

		if cur, ok := store.Get(in.Id); ok && cur.Status == types.StatusClosed && in.Status != types.StatusClosed {
			// closed rooms are never resurrected under the same id
			continue
		}

		store.Put(normalizeRoom(in, store, now))
	}

	var sig Signal
	for _, r := range store.Snapshot() {
		if _, ok := seen[r.Id]; ok || r.Status == types.StatusClosed {
			continue
		}

		store.Remove(r.Id)
		sig.Removed = append(sig.Removed, r.Id)
	}

	return sig, nil
}

// normalizeRoom rebuilds a room received from a sync so it satisfies the
// store's invariants: valid status, de-duplicated history and a LastActivity
// that does not go backwards relative to what the store already holds.
func normalizeRoom(in types.ChatRoom, store *RoomStore, now time.Time) *types.ChatRoom {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	r := types.NewChatRoom(in.Id, in.CustomerId, createdAt)
	r.AssignedAgent = in.AssignedAgent
	r.HasCustomerMessage = in.HasCustomerMessage
	for _, m := range in.Messages {
		r.AppendMessage(m, createdAt)
	}

	r.Touch(in.LastActivity)

	cur, known := store.Get(in.Id)
	if known {
		r.Touch(cur.LastActivity)
		r.HasCustomerMessage = r.HasCustomerMessage || cur.HasCustomerMessage
	}

	to := in.Status
	if !to.Valid() {
		to = types.StatusInactive
	}
	// a room with a customer message is past inactive
	if to == types.StatusInactive && r.HasCustomerMessage {
		to = types.StatusWaiting
	}

	if !known {
		r.Status = to
	} else {
		r.Status = cur.Status
		if !syncStatus(r, to) {
			r.AssignedAgent = cur.AssignedAgent
		}
	}
	if r.Status != types.StatusActive {
		r.AssignedAgent = ""
	}

	return r
}

// syncStatus moves r to the status reported by a sync along legal edges,
// stepping through waiting when needed. A move with no legal path leaves r
// as it was and reports false.
func syncStatus(r *types.ChatRoom, to types.RoomStatus) bool {
	if types.CanTransition(r.Status, to) {
		r.Status = to
		return true
	}
	if types.CanTransition(r.Status, types.StatusWaiting) && types.CanTransition(types.StatusWaiting, to) {
		r.Status = to
		return true
	}
	return false
}

func reconcileNewCustomer(store *RoomStore, env *protocol.Envelope, now time.Time) (Signal, error) {
	var nc protocol.NewCustomer
	if err := env.Decode(&nc); err != nil {
		return Signal{}, err
	}
	if nc.RoomId == "" {
		return Signal{}, missingRoomId(env.Event)
	}

	createdAt := nc.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	r, created := store.Ensure(nc.RoomId, createdAt)
	if r.CustomerId == "" {
		r.CustomerId = nc.CustomerId
	}
	if created {
		return Signal{RoomId: r.Id}, nil
	}

	r.Touch(now)
	if r.Status == types.StatusInactive {
		if _, err := r.SetStatus(types.StatusWaiting, now); err != nil {
			return Signal{RoomId: r.Id}, err
		}
	}

	return Signal{RoomId: r.Id}, nil
}

// recordMessage appends msg to its room and applies the customer rule:
// the first customer message wakes an inactive room.
func recordMessage(r *types.ChatRoom, msg types.Message, focus string, now time.Time) (Signal, error) {
	sig := Signal{RoomId: r.Id}
	if !r.AppendMessage(msg, now) {
		return sig, nil
	}

	if msg.Sender == types.SenderUser {
		sig.NewMessage = r.Id != focus
		if r.Status == types.StatusInactive {
			if _, err := r.SetStatus(types.StatusWaiting, now); err != nil {
				return sig, err
			}
		}
	}

	return sig, nil
}

func reconcileCustomerMessage(store *RoomStore, env *protocol.Envelope, focus string, now time.Time) (Signal, error) {
	var cm protocol.CustomerMessage
	if err := env.Decode(&cm); err != nil {
		return Signal{}, err
	}

	roomId := cm.RoomId
	if roomId == "" {
		roomId = cm.Message.RoomId
	}
	if roomId == "" {
		return Signal{}, missingRoomId(env.Event)
	}

	msg := cm.Message
	if msg.Sender == "" {
		msg.Sender = types.SenderUser
	}

	r, _ := store.Ensure(roomId, now)
	sig, err := recordMessage(r, msg, focus, now)
	if !cm.IsNewMessage {
		sig.NewMessage = false
	}

	return sig, err
}

func reconcileChatMessage(store *RoomStore, env *protocol.Envelope, focus string, now time.Time) (Signal, error) {
	var msg types.Message
	if err := env.Decode(&msg); err != nil {
		return Signal{}, err
	}
	if msg.RoomId == "" {
		return Signal{}, missingRoomId(env.Event)
	}

	r, _ := store.Ensure(msg.RoomId, now)
	return recordMessage(r, msg, focus, now)
}

func reconcileRoomAssigned(store *RoomStore, env *protocol.Envelope, now time.Time) (Signal, error) {
	var ra protocol.RoomAssigned
	if err := env.Decode(&ra); err != nil {
		return Signal{}, err
	}
	if ra.RoomId == "" {
		return Signal{}, missingRoomId(env.Event)
	}

	r, _ := store.Ensure(ra.RoomId, now)
	sig := Signal{RoomId: r.Id}
	if r.Status == types.StatusClosed {
		return sig, nil
	}

	if r.Status == types.StatusInactive {
		if _, err := r.SetStatus(types.StatusWaiting, now); err != nil {
			return sig, err
		}
	}
	if _, err := r.SetStatus(types.StatusActive, now); err != nil {
		return sig, err
	}

	if r.AssignedAgent != ra.AgentId {
		r.AssignedAgent = ra.AgentId
		r.Touch(now)
	}

	return sig, nil
}

func reconcileRoomUnassigned(store *RoomStore, env *protocol.Envelope, now time.Time) (Signal, error) {
	var ru protocol.RoomUnassigned
	if err := env.Decode(&ru); err != nil {
		return Signal{}, err
	}
	if ru.RoomId == "" {
		return Signal{}, missingRoomId(env.Event)
	}

	r, _ := store.Ensure(ru.RoomId, now)
	sig := Signal{RoomId: r.Id}
	if r.Status != types.StatusActive {
		return sig, nil
	}
	if ru.AgentId != "" && r.AssignedAgent != "" && ru.AgentId != r.AssignedAgent {
		// stale: the room has since been claimed by someone else
		return sig, nil
	}

	if _, err := r.SetStatus(types.StatusWaiting, now); err != nil {
		return sig, err
	}
	r.AssignedAgent = ""

	return sig, nil
}

func reconcileChatEnded(store *RoomStore, env *protocol.Envelope, now time.Time) (Signal, error) {
	var ce protocol.ChatEnded
	if err := env.Decode(&ce); err != nil {
		return Signal{}, err
	}
	if ce.RoomId == "" {
		return Signal{}, missingRoomId(env.Event)
	}

	r, _ := store.Ensure(ce.RoomId, now)
	_, err := r.SetStatus(types.StatusClosed, now)
	return Signal{RoomId: r.Id}, err
}

func reconcileNewChat(store *RoomStore, env *protocol.Envelope, now time.Time) (Signal, error) {
	var nc protocol.CustomerStartedNewChat
	if err := env.Decode(&nc); err != nil {
		return Signal{}, err
	}
	if nc.RoomId == "" {
		return Signal{}, missingRoomId(env.Event)
	}

	sig := Signal{RoomId: nc.RoomId}
	if nc.CustomerId != "" {
		sig.Removed = store.RemoveClosedForCustomer(nc.CustomerId, nc.RoomId)
	}

	r, _ := store.Ensure(nc.RoomId, now)
	if r.CustomerId == "" {
		r.CustomerId = nc.CustomerId
	}
	if r.Status == types.StatusClosed {
		return sig, nil
	}

	r.AppendMessage(types.WelcomeMessage(r.Id, now), now)

	if r.Status == types.StatusInactive {
		if _, err := r.SetStatus(types.StatusWaiting, now); err != nil {
			return sig, err
		}
	}

	return sig, nil
}
