package types

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var ErrInvalidTransition = errors.New("invalid room status transition")

const WelcomeText = "Hi there! An agent will be with you shortly."

// transitions lists every status edge a room may take. Rooms come into
// existence as waiting (or inactive when seeded from a sync), so creation
// is not an edge here.
var transitions = map[RoomStatus][]RoomStatus{
	StatusInactive: {StatusWaiting, StatusClosed},
	StatusWaiting:  {StatusActive, StatusClosed},
	StatusActive:   {StatusWaiting, StatusClosed},
	StatusClosed:   {},
}

// CanTransition reports whether a room in status from may move to status to.
// Staying in the same status is always allowed.
func CanTransition(from, to RoomStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}

	return slices.Contains(transitions[from], to)
}

func NewChatRoom(id, customerId string, createdAt time.Time) *ChatRoom {
	return &ChatRoom{
		Id:           id,
		CustomerId:   customerId,
		Status:       StatusWaiting,
		CreatedAt:    createdAt,
		LastActivity: createdAt,
		Messages:     []Message{},
	}
}

// WelcomeMessage is the greeting seeded into a room a customer opens with
// start_new_chat. Its id is derived from the room id so repeated
// announcements of the same room never add a second greeting.
func WelcomeMessage(roomId string, at time.Time) Message {
	return Message{
		Id:        "welcome-" + roomId,
		Text:      WelcomeText,
		Sender:    SenderAgent,
		Timestamp: at,
		RoomId:    roomId,
	}
}

// SetStatus moves the room to status to, refreshing LastActivity when the
// status actually changes. It reports whether anything changed.
func (r *ChatRoom) SetStatus(to RoomStatus, at time.Time) (bool, error) {
	if !CanTransition(r.Status, to) {
		return false, fmt.Errorf("room %q %s -> %s: %w", r.Id, r.Status, to, ErrInvalidTransition)
	}
	if r.Status == to {
		return false, nil
	}

	r.Status = to
	r.Touch(at)
	return true, nil
}

// Touch advances LastActivity to at. It never moves it backwards.
func (r *ChatRoom) Touch(at time.Time) {
	if at.After(r.LastActivity) {
		r.LastActivity = at
	}
}

func (r *ChatRoom) HasMessage(id string) bool {
	if id == "" {
		return false
	}

	return slices.ContainsFunc(r.Messages, func(m Message) bool {
		return m.Id == id
	})
}

// AppendMessage adds msg to the end of the room's history. Messages whose id
// is already present are ignored so redelivered events do not duplicate
// history. It reports whether the message was appended.
func (r *ChatRoom) AppendMessage(msg Message, at time.Time) bool {
	if r.HasMessage(msg.Id) {
		return false
	}

	msg.RoomId = r.Id
	r.Messages = append(r.Messages, msg)
	if msg.Sender == SenderUser {
		r.HasCustomerMessage = true
	}

	if msg.Timestamp.After(at) {
		at = msg.Timestamp
	}
	r.Touch(at)
	return true
}

func (r *ChatRoom) LastMessage() (Message, bool) {
	if len(r.Messages) == 0 {
		return Message{}, false
	}

	return r.Messages[len(r.Messages)-1], true
}

// Expired reports whether a closed room has been idle longer than window.
func (r *ChatRoom) Expired(now time.Time, window time.Duration) bool {
	return r.Status == StatusClosed && now.Sub(r.LastActivity) > window
}

// Clone returns a deep copy safe to hand to readers outside the owner.
func (r *ChatRoom) Clone() ChatRoom {
	c := *r
	c.Messages = slices.Clone(r.Messages)
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return c
}
