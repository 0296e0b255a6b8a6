package console

import (
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-livechat/internal/protocol"
	"github.com/npezzotti/go-livechat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentIntent struct {
	event   string
	payload any
}

type recordingEmitter struct {
	sent []sentIntent
	err  error
}

func (e *recordingEmitter) Send(event string, payload any) error {
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, sentIntent{event: event, payload: payload})
	return nil
}

func TestCanTakeOver(t *testing.T) {
	tcases := []struct {
		name   string
		status types.RoomStatus
		agent  string
		want   bool
	}{
		{"waiting", types.StatusWaiting, "", true},
		{"active for someone else", types.StatusActive, "agent-2", true},
		{"active for self", types.StatusActive, "agent-1", false},
		{"inactive", types.StatusInactive, "", false},
		{"closed", types.StatusClosed, "", false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r := types.NewChatRoom("r1", "c1", testStart)
			r.Status = tc.status
			r.AssignedAgent = tc.agent
			assert.Equal(t, tc.want, CanTakeOver(r, "agent-1"))
		})
	}
}

func TestAssignmentController_Claim(t *testing.T) {
	self := types.Agent{Id: "agent-1", Name: "Alice"}
	now := testStart.Add(time.Minute)

	t.Run("claims a waiting room", func(t *testing.T) {
		s := NewRoomStore()
		r := seedRoom(s, "r1", "c1", types.StatusWaiting, testStart)
		em := &recordingEmitter{}

		err := NewAssignmentController(self, em).Claim(s, "r1", now)
		require.NoError(t, err)

		assert.Equal(t, types.StatusActive, r.Status)
		assert.Equal(t, self.Id, r.AssignedAgent)
		assert.Equal(t, now, r.LastActivity)
		assert.Equal(t, []sentIntent{{protocol.EventAssignToMe, protocol.RoomRequest{RoomId: "r1"}}}, em.sent)
	})

	t.Run("takes over from another agent", func(t *testing.T) {
		s := NewRoomStore()
		r := seedRoom(s, "r1", "c1", types.StatusActive, testStart)
		r.AssignedAgent = "agent-2"

		err := NewAssignmentController(self, &recordingEmitter{}).Claim(s, "r1", now)
		require.NoError(t, err)
		assert.Equal(t, self.Id, r.AssignedAgent)
	})

	t.Run("refuses rooms that cannot be claimed", func(t *testing.T) {
		for _, status := range []types.RoomStatus{types.StatusInactive, types.StatusClosed} {
			s := NewRoomStore()
			seedRoom(s, "r1", "c1", status, testStart)
			em := &recordingEmitter{}

			err := NewAssignmentController(self, em).Claim(s, "r1", now)
			assert.ErrorIs(t, err, ErrNotClaimable, "status %s", status)
			assert.Empty(t, em.sent)
		}
	})

	t.Run("unknown room", func(t *testing.T) {
		err := NewAssignmentController(self, &recordingEmitter{}).Claim(NewRoomStore(), "r1", now)
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("failed send leaves the room untouched", func(t *testing.T) {
		s := NewRoomStore()
		r := seedRoom(s, "r1", "c1", types.StatusWaiting, testStart)

		err := NewAssignmentController(self, &recordingEmitter{err: ErrNotConnected}).Claim(s, "r1", now)
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Equal(t, types.StatusWaiting, r.Status)
		assert.Empty(t, r.AssignedAgent)
	})
}

func TestAssignmentController_Intents(t *testing.T) {
	self := types.Agent{Id: "agent-1", Name: "Alice"}

	s := NewRoomStore()
	r := seedRoom(s, "r1", "c1", types.StatusActive, testStart)
	r.AssignedAgent = self.Id

	em := &recordingEmitter{}
	ac := NewAssignmentController(self, em)

	require.NoError(t, ac.SendMessage(s, "r1", "how can I help?"))
	require.NoError(t, ac.Release(s, "r1"))
	require.NoError(t, ac.Close(s, "r1"))

	assert.Equal(t, []sentIntent{
		{protocol.EventSendMessage, protocol.SendMessage{RoomId: "r1", Text: "how can I help?"}},
		{protocol.EventReleaseChat, protocol.RoomRequest{RoomId: "r1"}},
		{protocol.EventCloseChat, protocol.RoomRequest{RoomId: "r1"}},
	}, em.sent)

	// release and close only take effect once the server confirms
	assert.Equal(t, types.StatusActive, r.Status)
	assert.Equal(t, self.Id, r.AssignedAgent)
}

func TestAssignmentController_IntentErrors(t *testing.T) {
	self := types.Agent{Id: "agent-1"}
	s := NewRoomStore()
	seedRoom(s, "r1", "c1", types.StatusActive, testStart)

	down := errors.New("connection reset")
	ac := NewAssignmentController(self, &recordingEmitter{err: down})

	tcases := []struct {
		name string
		fn   func() error
		want error
	}{
		{"send blank text", func() error { return ac.SendMessage(s, "r1", "   ") }, ErrEmptyMessage},
		{"send to unknown room", func() error { return ac.SendMessage(s, "r9", "hi") }, ErrRoomNotFound},
		{"release unknown room", func() error { return ac.Release(s, "r9") }, ErrRoomNotFound},
		{"close unknown room", func() error { return ac.Close(s, "r9") }, ErrRoomNotFound},
		{"send fails", func() error { return ac.SendMessage(s, "r1", "hi") }, down},
		{"release fails", func() error { return ac.Release(s, "r1") }, down},
		{"close fails", func() error { return ac.Close(s, "r1") }, down},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.fn(), tc.want)
		})
	}
}
