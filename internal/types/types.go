package types

import (
	"time"
)

type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusActive   RoomStatus = "active"
	StatusClosed   RoomStatus = "closed"
	StatusInactive RoomStatus = "inactive"
)

func (s RoomStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusClosed, StatusInactive:
		return true
	}
	return false
}

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Agent is the identity an admin client presents during the handshake.
type Agent struct {
	Id   string `json:"agentId"`
	Name string `json:"agentName"`
}

type Message struct {
	Id        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	RoomId    string    `json:"roomId"`
	AgentId   string    `json:"agentId,omitempty"`
}

type ChatRoom struct {
	Id                 string     `json:"id"`
	CustomerId         string     `json:"customerId"`
	Status             RoomStatus `json:"status"`
	CreatedAt          time.Time  `json:"createdAt"`
	LastActivity       time.Time  `json:"lastActivity"`
	Messages           []Message  `json:"messages"`
	AssignedAgent      string     `json:"assignedAgent,omitempty"`
	HasCustomerMessage bool       `json:"hasCustomerMessage"`
}
