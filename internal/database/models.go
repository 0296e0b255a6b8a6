package database

import (
	"time"

	"github.com/npezzotti/go-livechat/internal/types"
)

// Transcript is the archived history of a closed chat room.
type Transcript struct {
	RoomId     string          `json:"roomId"`
	CustomerId string          `json:"customerId"`
	AgentId    string          `json:"agentId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	ClosedAt   time.Time       `json:"closedAt"`
	Messages   []types.Message `json:"messages"`
}

// NewTranscript captures room as it stood when it was closed.
func NewTranscript(room types.ChatRoom, agentId string, closedAt time.Time) Transcript {
	msgs := room.Messages
	if msgs == nil {
		msgs = []types.Message{}
	}

	return Transcript{
		RoomId:     room.Id,
		CustomerId: room.CustomerId,
		AgentId:    agentId,
		CreatedAt:  room.CreatedAt,
		ClosedAt:   closedAt,
		Messages:   msgs,
	}
}
