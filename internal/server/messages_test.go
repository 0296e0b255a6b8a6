package server

import (
	"testing"
	"time"

	"github.com/npezzotti/go-livechat/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorEvents(t *testing.T) {
	tcases := []struct {
		name       string
		env        *protocol.Envelope
		wantMsg    string
		wantRoomId string
	}{
		{"room not found", ErrRoomNotFound("r1"), "room not found", "r1"},
		{"room closed", ErrRoomClosed("r1"), "room is closed", "r1"},
		{"not assigned", ErrNotAssigned("r1"), "room is not assigned to you", "r1"},
		{"not claimable", ErrNotClaimable("r1"), "room cannot be claimed", "r1"},
		{"invalid message", ErrInvalidMessage(""), "invalid message format", ""},
		{"service unavailable", ErrServiceUnavailable(), "service unavailable", ""},
		{"unknown event", ErrUnknownEvent("typing"), "unknown event: typing", ""},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, protocol.EventError, tc.env.Event)

			var e protocol.Error
			require.NoError(t, tc.env.Decode(&e))
			assert.Equal(t, tc.wantMsg, e.Message)
			assert.Equal(t, tc.wantRoomId, e.RoomId)
		})
	}
}

func TestEnvelopePanicsOnUnencodablePayload(t *testing.T) {
	assert.Panics(t, func() {
		envelope(protocol.EventChatRooms, make(chan int))
	})
}

func TestNow(t *testing.T) {
	now := Now()
	assert.Equal(t, time.UTC, now.Location(), "expected Now to return UTC time")
	assert.Equal(t, now, now.Round(time.Millisecond), "expected Now to be rounded to the millisecond")
}
