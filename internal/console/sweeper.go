package console

import (
	"log"
	"time"
)

const (
	DefaultSweepInterval   = 60 * time.Second
	DefaultRetentionWindow = 5 * time.Minute
)

// Sweep removes every closed room whose last activity is older than window
// and returns the evicted ids. Rooms in any other status are never touched.
func Sweep(store *RoomStore, now time.Time, window time.Duration) []string {
	var removed []string
	for id, r := range store.rooms {
		if r.Expired(now, window) {
			delete(store.rooms, id)
			removed = append(removed, id)
		}
	}

	return removed
}

// Sweeper ticks on a fixed interval and calls sink on each tick. It does not
// touch the store itself; the session applies Sweep on its own goroutine.
type Sweeper struct {
	log      *log.Logger
	interval time.Duration
	sink     func()
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(logger *log.Logger, interval time.Duration, sink func()) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Sweeper{
		log:      logger,
		interval: interval,
		sink:     sink,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	defer close(s.done)
	s.log.Printf("retention sweeper started (interval: %v)", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sink()
		case <-s.stop:
			s.log.Println("retention sweeper stopped")
			return
		}
	}
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
