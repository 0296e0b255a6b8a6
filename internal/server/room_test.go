package server

import (
	"testing"

	"github.com/npezzotti/go-livechat/internal/protocol"
	"github.com/npezzotti/go-livechat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoom_joined(t *testing.T) {
	r := &Room{ChatRoom: *types.NewChatRoom("r1", "c1", testStart), agentName: "Alice"}
	r.Status = types.StatusActive
	r.AppendMessage(types.Message{Id: "m1", Text: "hi", Sender: types.SenderUser, Timestamp: testStart}, testStart)

	env := r.joined()
	require.Equal(t, protocol.EventRoomJoined, env.Event)

	var rj protocol.RoomJoined
	require.NoError(t, env.Decode(&rj))
	assert.Equal(t, "r1", rj.RoomId)
	assert.Equal(t, "c1", rj.CustomerId)
	assert.Equal(t, types.StatusActive, rj.Status)
	assert.Equal(t, "Alice", rj.AgentName)
	require.Len(t, rj.Messages, 1)
	assert.Equal(t, "m1", rj.Messages[0].Id)
}

func TestRoom_assignedTo(t *testing.T) {
	tcases := []struct {
		name   string
		status types.RoomStatus
		agent  string
		want   bool
	}{
		{"active and bound", types.StatusActive, "a1", true},
		{"active other agent", types.StatusActive, "a2", false},
		{"waiting", types.StatusWaiting, "a1", false},
		{"closed", types.StatusClosed, "a1", false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r := &Room{ChatRoom: *types.NewChatRoom("r1", "c1", testStart)}
			r.Status = tc.status
			r.AssignedAgent = tc.agent

			assert.Equal(t, tc.want, r.assignedTo("a1"))
		})
	}
}
