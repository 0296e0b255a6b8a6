package database

import (
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-livechat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationSource(t *testing.T) {
	src, err := migrationSource()
	require.NoError(t, err, "expected embedded migrations to load")
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, identifier, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "create_transcripts", identifier)

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	down.Close()
}

func TestNewTranscript(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	closed := created.Add(10 * time.Minute)

	room := types.ChatRoom{
		Id:         "r1",
		CustomerId: "c1",
		Status:     types.StatusClosed,
		CreatedAt:  created,
		Messages:   []types.Message{{Id: "m1", Text: "hi", Sender: types.SenderUser}},
	}

	tr := NewTranscript(room, "agent-1", closed)
	assert.Equal(t, Transcript{
		RoomId:     "r1",
		CustomerId: "c1",
		AgentId:    "agent-1",
		CreatedAt:  created,
		ClosedAt:   closed,
		Messages:   room.Messages,
	}, tr)

	empty := NewTranscript(types.ChatRoom{Id: "r2"}, "", closed)
	assert.NotNil(t, empty.Messages, "expected empty history to encode as an array")
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		case *[]byte:
			*p = r.values[i].([]byte)
		}
	}
	return nil
}

func TestScanTranscript(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("decodes messages", func(t *testing.T) {
		row := fakeRow{values: []any{"r1", "c1", "agent-1", at, at.Add(time.Minute),
			[]byte(`[{"id":"m1","text":"hi","sender":"user","timestamp":"2024-03-01T09:00:00Z","roomId":"r1"}]`)}}

		tr, err := scanTranscript(row)
		require.NoError(t, err)
		assert.Equal(t, "r1", tr.RoomId)
		require.Len(t, tr.Messages, 1)
		assert.Equal(t, types.SenderUser, tr.Messages[0].Sender)
		assert.Equal(t, at, tr.Messages[0].Timestamp)
	})

	t.Run("bad messages column", func(t *testing.T) {
		row := fakeRow{values: []any{"r1", "c1", "", at, at, []byte(`{`)}}
		_, err := scanTranscript(row)
		assert.ErrorContains(t, err, "decode messages")
	})

	t.Run("scan error", func(t *testing.T) {
		want := errors.New("no rows")
		_, err := scanTranscript(fakeRow{err: want})
		assert.ErrorIs(t, err, want)
	})
}
