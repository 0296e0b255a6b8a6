package server

import (
	"time"

	"github.com/npezzotti/go-livechat/internal/protocol"
)

// ClientMessage is an inbound frame tagged with the connection it came from.
type ClientMessage struct {
	*protocol.Envelope
	Timestamp time.Time
	client    *Client
}

// envelope wraps payload for sending. Payloads are plain structs from the
// protocol package, so encoding cannot fail.
func envelope(event string, payload any) *protocol.Envelope {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		panic(err)
	}
	return env
}

func errorEvent(msg, roomId string) *protocol.Envelope {
	return envelope(protocol.EventError, protocol.Error{Message: msg, RoomId: roomId})
}

func ErrRoomNotFound(roomId string) *protocol.Envelope {
	return errorEvent("room not found", roomId)
}

func ErrRoomClosed(roomId string) *protocol.Envelope {
	return errorEvent("room is closed", roomId)
}

func ErrNotAssigned(roomId string) *protocol.Envelope {
	return errorEvent("room is not assigned to you", roomId)
}

func ErrNotClaimable(roomId string) *protocol.Envelope {
	return errorEvent("room cannot be claimed", roomId)
}

func ErrInvalidMessage(roomId string) *protocol.Envelope {
	return errorEvent("invalid message format", roomId)
}

func ErrServiceUnavailable() *protocol.Envelope {
	return errorEvent("service unavailable", "")
}

func ErrUnknownEvent(event string) *protocol.Envelope {
	return errorEvent("unknown event: "+event, "")
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
