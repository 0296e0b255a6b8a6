package console

import (
	"slices"
	"strings"
	"time"

	"github.com/npezzotti/go-livechat/internal/types"
)

const (
	previewLength = 40
	customerLabel = "Customer: "
	selfLabel     = "You: "
)

// RoomView is the render-ready summary of one room.
type RoomView struct {
	Id            string           `json:"id"`
	CustomerId    string           `json:"customerId"`
	Status        types.RoomStatus `json:"status"`
	AssignedAgent string           `json:"assignedAgent,omitempty"`
	LastActivity  time.Time        `json:"lastActivity"`
	Preview       string           `json:"preview"`
	Unread        int              `json:"unread"`
	CanTakeOver   bool             `json:"canTakeOver"`
}

type Counts struct {
	Open     int                      `json:"open"`
	ByStatus map[types.RoomStatus]int `json:"byStatus"`
}

// View is everything the console UI needs to render one frame.
type View struct {
	Connected bool            `json:"connected"`
	Focus     string          `json:"focus,omitempty"`
	Rooms     []RoomView      `json:"rooms"`
	Counts    Counts          `json:"counts"`
	Messages  []types.Message `json:"messages,omitempty"`
	Signal    *Signal         `json:"-"`
}

// SortRooms orders rooms by most recent activity first.
func SortRooms(rooms []types.ChatRoom) {
	slices.SortStableFunc(rooms, func(a, b types.ChatRoom) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return strings.Compare(a.Id, b.Id)
	})
}

// Unread is 1 when the room holds any customer message and is not the room
// being viewed, 0 otherwise. It is an indicator, not a count.
func Unread(r types.ChatRoom, focus string) int {
	if r.Id == focus {
		return 0
	}

	if slices.ContainsFunc(r.Messages, func(m types.Message) bool { return m.Sender == types.SenderUser }) {
		return 1
	}
	return 0
}

func Preview(r types.ChatRoom) string {
	last, ok := r.LastMessage()
	if !ok {
		return ""
	}

	label := selfLabel
	if last.Sender == types.SenderUser {
		label = customerLabel
	}

	return label + truncate(last.Text, previewLength)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n]) + "..."
}

func Count(rooms []types.ChatRoom) Counts {
	c := Counts{ByStatus: make(map[types.RoomStatus]int)}
	for _, r := range rooms {
		c.ByStatus[r.Status]++
		if r.Status != types.StatusClosed {
			c.Open++
		}
	}

	return c
}

func FilterByStatus(rooms []types.ChatRoom, statuses ...types.RoomStatus) []types.ChatRoom {
	var out []types.ChatRoom
	for _, r := range rooms {
		if slices.Contains(statuses, r.Status) {
			out = append(out, r)
		}
	}

	return out
}

func FilterAssignedTo(rooms []types.ChatRoom, agentId string) []types.ChatRoom {
	var out []types.ChatRoom
	for _, r := range rooms {
		if r.AssignedAgent == agentId {
			out = append(out, r)
		}
	}

	return out
}

// Project derives the full view from a store snapshot. It does not modify
// its input beyond sorting the slice it is given.
func Project(rooms []types.ChatRoom, self types.Agent, focus string, connected bool) View {
	SortRooms(rooms)

	v := View{
		Connected: connected,
		Focus:     focus,
		Rooms:     make([]RoomView, 0, len(rooms)),
		Counts:    Count(rooms),
	}

	for _, r := range rooms {
		v.Rooms = append(v.Rooms, RoomView{
			Id:            r.Id,
			CustomerId:    r.CustomerId,
			Status:        r.Status,
			AssignedAgent: r.AssignedAgent,
			LastActivity:  r.LastActivity,
			Preview:       Preview(r),
			Unread:        Unread(r, focus),
			CanTakeOver:   CanTakeOver(&r, self.Id),
		})

		if r.Id == focus {
			v.Messages = r.Messages
		}
	}

	return v
}
