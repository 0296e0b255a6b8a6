package console

import (
	"testing"
	"time"

	"github.com/npezzotti/go-livechat/internal/testutil"
	"github.com/npezzotti/go-livechat/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestSweep(t *testing.T) {
	now := testStart.Add(time.Hour)
	window := DefaultRetentionWindow

	s := NewRoomStore()
	seedRoom(s, "expired", "c1", types.StatusClosed, now.Add(-window-time.Second))
	seedRoom(s, "recent", "c2", types.StatusClosed, now.Add(-window+time.Second))
	seedRoom(s, "boundary", "c3", types.StatusClosed, now.Add(-window))
	seedRoom(s, "old-waiting", "c4", types.StatusWaiting, testStart.Add(-24*time.Hour))
	seedRoom(s, "old-active", "c5", types.StatusActive, testStart.Add(-24*time.Hour))
	seedRoom(s, "old-inactive", "c6", types.StatusInactive, testStart.Add(-24*time.Hour))

	removed := Sweep(s, now, window)
	assert.Equal(t, []string{"expired"}, removed)
	assert.Equal(t, 5, s.Len())

	assert.Empty(t, Sweep(s, now, window), "expected a second sweep to be a no-op")
}

func TestSweeper(t *testing.T) {
	ticks := make(chan struct{}, 10)
	sw := NewSweeper(testutil.TestLogger(t), 5*time.Millisecond, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})
	go sw.Start()

	for range 2 {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("expected sweeper to tick")
		}
	}

	stopped := make(chan struct{})
	go func() {
		sw.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("expected sweeper to stop")
	}
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	sw := NewSweeper(testutil.TestLogger(t), 0, func() {})
	assert.Equal(t, DefaultSweepInterval, sw.interval)
}
