package console

import (
	"time"

	"github.com/npezzotti/go-livechat/internal/types"
)

// RoomStore is the console's authoritative view of every room it knows of.
// It is owned by a single Session goroutine and is not safe for concurrent use.
type RoomStore struct {
	rooms map[string]*types.ChatRoom
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*types.ChatRoom),
	}
}

func (s *RoomStore) Get(id string) (*types.ChatRoom, bool) {
	r, ok := s.rooms[id]
	return r, ok
}

// Ensure returns the room with the given id, creating a waiting placeholder
// when the id is unknown. The second return value reports whether the room
// was created.
func (s *RoomStore) Ensure(id string, now time.Time) (*types.ChatRoom, bool) {
	if r, ok := s.rooms[id]; ok {
		return r, false
	}

	r := types.NewChatRoom(id, "", now)
	s.rooms[id] = r
	return r, true
}

// Put stores r under its id, replacing any existing entry.
func (s *RoomStore) Put(r *types.ChatRoom) {
	s.rooms[r.Id] = r
}

func (s *RoomStore) Remove(id string) bool {
	if _, ok := s.rooms[id]; !ok {
		return false
	}

	delete(s.rooms, id)
	return true
}

// RemoveClosedForCustomer deletes every closed room belonging to customerId
// except keep, returning the removed ids.
func (s *RoomStore) RemoveClosedForCustomer(customerId, keep string) []string {
	var removed []string
	for id, r := range s.rooms {
		if id == keep || r.CustomerId != customerId || r.Status != types.StatusClosed {
			continue
		}

		delete(s.rooms, id)
		removed = append(removed, id)
	}

	return removed
}

func (s *RoomStore) Len() int {
	return len(s.rooms)
}

// Snapshot returns deep copies of all rooms in no particular order.
func (s *RoomStore) Snapshot() []types.ChatRoom {
	out := make([]types.ChatRoom, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r.Clone())
	}

	return out
}
