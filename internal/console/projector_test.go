package console

import (
	"strings"
	"testing"
	"time"

	"github.com/npezzotti/go-livechat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func room(id string, status types.RoomStatus, lastActivity time.Time, msgs ...types.Message) types.ChatRoom {
	r := types.NewChatRoom(id, "cust-"+id, testStart)
	r.Status = status
	for _, m := range msgs {
		r.AppendMessage(m, testStart)
	}
	r.LastActivity = lastActivity
	return *r
}

func TestSortRooms(t *testing.T) {
	rooms := []types.ChatRoom{
		room("b", types.StatusWaiting, testStart),
		room("c", types.StatusWaiting, testStart.Add(time.Minute)),
		room("a", types.StatusWaiting, testStart),
	}

	SortRooms(rooms)

	var ids []string
	for _, r := range rooms {
		ids = append(ids, r.Id)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestPreview(t *testing.T) {
	tcases := []struct {
		name string
		msgs []types.Message
		want string
	}{
		{"no messages", nil, ""},
		{"customer", []types.Message{{Id: "1", Text: "hello", Sender: types.SenderUser}}, "Customer: hello"},
		{"agent", []types.Message{{Id: "1", Text: "hello", Sender: types.SenderUser}, {Id: "2", Text: "hi there", Sender: types.SenderAgent}}, "You: hi there"},
		{"exactly forty", []types.Message{{Id: "1", Text: strings.Repeat("x", 40), Sender: types.SenderUser}}, "Customer: " + strings.Repeat("x", 40)},
		{"truncated", []types.Message{{Id: "1", Text: strings.Repeat("x", 41), Sender: types.SenderUser}}, "Customer: " + strings.Repeat("x", 40) + "..."},
		{"multibyte", []types.Message{{Id: "1", Text: strings.Repeat("é", 45), Sender: types.SenderUser}}, "Customer: " + strings.Repeat("é", 40) + "..."},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Preview(room("r1", types.StatusWaiting, testStart, tc.msgs...)))
		})
	}
}

func TestUnread(t *testing.T) {
	userMsg := types.Message{Id: "1", Text: "hi", Sender: types.SenderUser}
	agentMsg := types.Message{Id: "2", Text: "hello", Sender: types.SenderAgent}

	assert.Equal(t, 1, Unread(room("r1", types.StatusWaiting, testStart, userMsg, agentMsg), ""))
	assert.Equal(t, 1, Unread(room("r1", types.StatusWaiting, testStart, userMsg, userMsg, types.Message{Id: "3", Sender: types.SenderUser}), ""),
		"expected unread to be an indicator, not a count")
	assert.Equal(t, 0, Unread(room("r1", types.StatusWaiting, testStart, userMsg), "r1"))
	assert.Equal(t, 0, Unread(room("r1", types.StatusWaiting, testStart, agentMsg), ""))
}

func TestCountAndFilters(t *testing.T) {
	mine := room("r2", types.StatusActive, testStart)
	mine.AssignedAgent = "agent-1"
	rooms := []types.ChatRoom{
		room("r1", types.StatusWaiting, testStart),
		mine,
		room("r3", types.StatusClosed, testStart),
		room("r4", types.StatusInactive, testStart),
		room("r5", types.StatusWaiting, testStart),
	}

	c := Count(rooms)
	assert.Equal(t, 4, c.Open)
	assert.Equal(t, map[types.RoomStatus]int{
		types.StatusWaiting:  2,
		types.StatusActive:   1,
		types.StatusClosed:   1,
		types.StatusInactive: 1,
	}, c.ByStatus)

	assert.Len(t, FilterByStatus(rooms, types.StatusWaiting), 2)
	assert.Len(t, FilterByStatus(rooms, types.StatusWaiting, types.StatusActive), 3)
	assert.Empty(t, FilterByStatus(rooms))

	assigned := FilterAssignedTo(rooms, "agent-1")
	require.Len(t, assigned, 1)
	assert.Equal(t, "r2", assigned[0].Id)
}

func TestProject(t *testing.T) {
	self := types.Agent{Id: "agent-1", Name: "Alice"}
	userMsg := types.Message{Id: "m1", Text: "where is my order?", Sender: types.SenderUser}

	mine := room("r2", types.StatusActive, testStart.Add(2*time.Minute), userMsg)
	mine.AssignedAgent = self.Id
	theirs := room("r3", types.StatusActive, testStart.Add(time.Minute))
	theirs.AssignedAgent = "agent-2"

	rooms := []types.ChatRoom{
		room("r1", types.StatusWaiting, testStart, userMsg),
		mine,
		theirs,
	}

	v := Project(rooms, self, "r2", true)

	assert.True(t, v.Connected)
	assert.Equal(t, "r2", v.Focus)
	assert.Equal(t, 3, v.Counts.Open)
	require.Len(t, v.Rooms, 3)

	assert.Equal(t, RoomView{
		Id:            "r2",
		CustomerId:    "cust-r2",
		Status:        types.StatusActive,
		AssignedAgent: self.Id,
		LastActivity:  testStart.Add(2 * time.Minute),
		Preview:       "Customer: where is my order?",
		Unread:        0,
		CanTakeOver:   false,
	}, v.Rooms[0])

	assert.Equal(t, "r3", v.Rooms[1].Id)
	assert.True(t, v.Rooms[1].CanTakeOver)

	assert.Equal(t, "r1", v.Rooms[2].Id)
	assert.Equal(t, 1, v.Rooms[2].Unread)
	assert.True(t, v.Rooms[2].CanTakeOver)

	require.Len(t, v.Messages, 1)
	assert.Equal(t, "m1", v.Messages[0].Id)
}

func TestProject_NoFocus(t *testing.T) {
	v := Project(nil, types.Agent{Id: "agent-1"}, "", false)
	assert.False(t, v.Connected)
	assert.NotNil(t, v.Rooms)
	assert.Empty(t, v.Rooms)
	assert.Nil(t, v.Messages)
	assert.Zero(t, v.Counts.Open)
}
