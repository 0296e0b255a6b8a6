// Package protocol defines the events exchanged between the chat server,
// admin consoles and customer widgets. Every frame is a JSON Envelope whose
// data is decoded lazily once the event name is known.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/npezzotti/go-livechat/internal/types"
)

// Agent -> server.
const (
	EventGetActiveRooms = "get_active_rooms"
	EventAssignToMe     = "assign_to_me"
	EventReleaseChat    = "release_chat"
	EventSendMessage    = "send_message"
	EventCloseChat      = "close_chat"
)

// Server -> agent.
const (
	EventChatRooms              = "chat_rooms"
	EventNewCustomer            = "new_customer"
	EventCustomerMessage        = "customer_message"
	EventChatMessage            = "chat_message"
	EventRoomAssigned           = "room_assigned"
	EventRoomUnassigned         = "room_unassigned"
	EventChatEnded              = "chat_ended"
	EventChatClosed             = "chat_closed"
	EventCustomerStartedNewChat = "customer_started_new_chat"
	EventError                  = "error"
)

// Customer <-> server. The customer reuses customer_message for outbound
// text and receives chat_message and chat_ended like agents do.
const (
	EventStartNewChat = "start_new_chat"
	EventEndChat      = "end_chat"
	EventRoomJoined   = "room_joined"
	EventAgentJoined  = "agent_joined"
)

var ErrMalformedEvent = errors.New("malformed event")

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload as the data of a new envelope. A nil payload
// produces an envelope without data.
func NewEnvelope(event string, payload any) (*Envelope, error) {
	env := &Envelope{Event: event}
	if payload == nil {
		return env, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %q payload: %w", event, err)
	}

	env.Data = data
	return env, nil
}

// Decode unmarshals the envelope data into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%q: empty payload: %w", e.Event, ErrMalformedEvent)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%q: %w: %w", e.Event, ErrMalformedEvent, err)
	}

	return nil
}

func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("missing event name: %w", ErrMalformedEvent)
	}

	return &env, nil
}

// Handshake is the identity an agent presents when opening its connection.
type Handshake struct {
	IsAdmin   bool   `json:"isAdmin"`
	AgentId   string `json:"agentId"`
	AgentName string `json:"agentName"`
}

func (h Handshake) Query() url.Values {
	q := url.Values{}
	q.Set("isAdmin", strconv.FormatBool(h.IsAdmin))
	q.Set("agentId", h.AgentId)
	q.Set("agentName", h.AgentName)
	return q
}

func ParseHandshake(q url.Values) (Handshake, error) {
	isAdmin, err := strconv.ParseBool(q.Get("isAdmin"))
	if err != nil {
		return Handshake{}, fmt.Errorf("parse isAdmin: %w", err)
	}

	h := Handshake{
		IsAdmin:   isAdmin,
		AgentId:   q.Get("agentId"),
		AgentName: q.Get("agentName"),
	}
	if h.AgentId == "" {
		return Handshake{}, errors.New("missing agentId")
	}

	return h, nil
}

type RoomRequest struct {
	RoomId string `json:"roomId"`
}

type SendMessage struct {
	RoomId string `json:"roomId"`
	Text   string `json:"text"`
}

type NewCustomer struct {
	RoomId     string    `json:"roomId"`
	CustomerId string    `json:"customerId"`
	CreatedAt  time.Time `json:"createdAt"`
}

type CustomerMessage struct {
	RoomId       string        `json:"roomId"`
	Message      types.Message `json:"message"`
	IsNewMessage bool          `json:"isNewMessage"`
}

type RoomAssigned struct {
	RoomId    string `json:"roomId"`
	AgentId   string `json:"agentId"`
	AgentName string `json:"agentName"`
}

type RoomUnassigned struct {
	RoomId  string `json:"roomId"`
	AgentId string `json:"agentId"`
}

// ChatEnded is carried by both chat_ended and chat_closed. Older servers
// send the bare room id instead of an object.
type ChatEnded struct {
	RoomId  string `json:"roomId"`
	Message string `json:"message,omitempty"`
}

func (c *ChatEnded) UnmarshalJSON(data []byte) error {
	var roomId string
	if err := json.Unmarshal(data, &roomId); err == nil {
		*c = ChatEnded{RoomId: roomId}
		return nil
	}

	type plain ChatEnded
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	*c = ChatEnded(p)
	return nil
}

type CustomerStartedNewChat struct {
	RoomId     string `json:"roomId"`
	CustomerId string `json:"customerId"`
}

type Error struct {
	Message string `json:"message"`
	RoomId  string `json:"roomId,omitempty"`
}

type CustomerText struct {
	Text string `json:"text"`
}

// RoomJoined tells a customer which room they are in. AgentName is set when
// an agent is already attached, so a reconnecting widget can show it.
type RoomJoined struct {
	RoomId     string           `json:"roomId"`
	CustomerId string           `json:"customerId"`
	Status     types.RoomStatus `json:"status"`
	AgentName  string           `json:"agentName,omitempty"`
	Messages   []types.Message  `json:"messages"`
}

type AgentJoined struct {
	RoomId    string `json:"roomId"`
	AgentName string `json:"agentName"`
}
