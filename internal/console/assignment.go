package console

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/go-livechat/internal/protocol"
	"github.com/npezzotti/go-livechat/internal/types"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrNotClaimable = errors.New("room cannot be claimed")
	ErrEmptyMessage = errors.New("message text is empty")
)

// Emitter sends an outbound intent to the chat server.
type Emitter interface {
	Send(event string, payload any) error
}

// CanTakeOver reports whether agentId may claim the room: it is waiting for
// an agent, or is active but bound to someone else.
func CanTakeOver(r *types.ChatRoom, agentId string) bool {
	switch r.Status {
	case types.StatusWaiting:
		return true
	case types.StatusActive:
		return r.AssignedAgent != agentId
	}
	return false
}

// AssignmentController binds and unbinds the console's agent to rooms.
type AssignmentController struct {
	self    types.Agent
	emitter Emitter
}

func NewAssignmentController(self types.Agent, emitter Emitter) *AssignmentController {
	return &AssignmentController{self: self, emitter: emitter}
}

// Claim asks the server for the room and, once the request is handed to the
// transport, shows it as active and bound to this agent without waiting for
// confirmation. A later room_assigned naming another agent overrides the
// local state through the reconciler.
func (a *AssignmentController) Claim(store *RoomStore, roomId string, now time.Time) error {
	r, ok := store.Get(roomId)
	if !ok {
		return fmt.Errorf("claim %q: %w", roomId, ErrRoomNotFound)
	}
	if !CanTakeOver(r, a.self.Id) {
		return fmt.Errorf("claim %q (%s): %w", roomId, r.Status, ErrNotClaimable)
	}

	// a claim that never left the console must not show as active
	if err := a.emitter.Send(protocol.EventAssignToMe, protocol.RoomRequest{RoomId: roomId}); err != nil {
		return fmt.Errorf("claim %q: %w", roomId, err)
	}

	if _, err := r.SetStatus(types.StatusActive, now); err != nil {
		return err
	}
	r.AssignedAgent = a.self.Id
	r.Touch(now)

	return nil
}

// Release asks the server to unbind this agent. The room only returns to
// waiting once room_unassigned arrives.
func (a *AssignmentController) Release(store *RoomStore, roomId string) error {
	if _, ok := store.Get(roomId); !ok {
		return fmt.Errorf("release %q: %w", roomId, ErrRoomNotFound)
	}

	if err := a.emitter.Send(protocol.EventReleaseChat, protocol.RoomRequest{RoomId: roomId}); err != nil {
		return fmt.Errorf("release %q: %w", roomId, err)
	}

	return nil
}

// Close asks the server to end the conversation. The closed status is set by
// the confirming chat_closed event, not here.
func (a *AssignmentController) Close(store *RoomStore, roomId string) error {
	if _, ok := store.Get(roomId); !ok {
		return fmt.Errorf("close %q: %w", roomId, ErrRoomNotFound)
	}

	if err := a.emitter.Send(protocol.EventCloseChat, protocol.RoomRequest{RoomId: roomId}); err != nil {
		return fmt.Errorf("close %q: %w", roomId, err)
	}

	return nil
}

func (a *AssignmentController) SendMessage(store *RoomStore, roomId, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if _, ok := store.Get(roomId); !ok {
		return fmt.Errorf("send to %q: %w", roomId, ErrRoomNotFound)
	}

	if err := a.emitter.Send(protocol.EventSendMessage, protocol.SendMessage{RoomId: roomId, Text: text}); err != nil {
		return fmt.Errorf("send to %q: %w", roomId, err)
	}

	return nil
}
