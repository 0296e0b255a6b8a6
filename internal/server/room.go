package server

import (
	"strings"

	"github.com/google/uuid"
	"github.com/npezzotti/go-livechat/internal/protocol"
	"github.com/npezzotti/go-livechat/internal/types"
)

// Room is the server's record of one conversation.
type Room struct {
	types.ChatRoom
	agentName string
}

func (r *Room) joined() *protocol.Envelope {
	return envelope(protocol.EventRoomJoined, protocol.RoomJoined{
		RoomId:     r.Id,
		CustomerId: r.CustomerId,
		Status:     r.Status,
		AgentName:  r.agentName,
		Messages:   r.Clone().Messages,
	})
}

func (r *Room) assignedTo(agentId string) bool {
	return r.Status == types.StatusActive && r.AssignedAgent == agentId
}

func (cs *ChatServer) handleMessage(msg *ClientMessage) {
	c := msg.client
	if c.role == RoleAgent {
		cs.handleAgentMessage(msg)
		return
	}

	switch msg.Event {
	case protocol.EventCustomerMessage:
		cs.customerMessage(msg)
	case protocol.EventStartNewChat:
		cs.startNewChat(msg)
	case protocol.EventEndChat:
		if r := cs.openRoomFor(c.customerId); r != nil {
			cs.closeRoom(r, protocol.EventChatEnded, "Customer ended the chat")
		}
	default:
		c.queueMessage(ErrUnknownEvent(msg.Event))
	}
}

func (cs *ChatServer) handleAgentMessage(msg *ClientMessage) {
	c := msg.client

	switch msg.Event {
	case protocol.EventGetActiveRooms:
		c.queueMessage(envelope(protocol.EventChatRooms, cs.snapshot()))
		return
	case protocol.EventAssignToMe, protocol.EventReleaseChat, protocol.EventCloseChat, protocol.EventSendMessage:
	default:
		c.queueMessage(ErrUnknownEvent(msg.Event))
		return
	}

	var req protocol.SendMessage
	if err := msg.Decode(&req); err != nil || req.RoomId == "" {
		c.queueMessage(ErrInvalidMessage(req.RoomId))
		return
	}

	r, ok := cs.rooms[req.RoomId]
	if !ok {
		c.queueMessage(ErrRoomNotFound(req.RoomId))
		return
	}
	if r.Status == types.StatusClosed {
		c.queueMessage(ErrRoomClosed(r.Id))
		return
	}

	switch msg.Event {
	case protocol.EventAssignToMe:
		cs.assignRoom(c, r)
	case protocol.EventReleaseChat:
		cs.releaseRoom(c, r)
	case protocol.EventCloseChat:
		if r.Status == types.StatusActive && r.AssignedAgent != c.agent.Id {
			c.queueMessage(ErrNotAssigned(r.Id))
			return
		}
		cs.closeRoom(r, protocol.EventChatClosed, "Chat closed by agent")
	case protocol.EventSendMessage:
		cs.agentMessage(c, r, req.Text)
	}
}

func (cs *ChatServer) newMessage(r *Room, text string, sender types.Sender) types.Message {
	return types.Message{
		Id:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: cs.now(),
		RoomId:    r.Id,
	}
}

// customerMessage records text from a customer. The first message turns a
// placeholder room into one agents can see waiting.
func (cs *ChatServer) customerMessage(msg *ClientMessage) {
	c := msg.client

	var req protocol.CustomerText
	if err := msg.Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.queueMessage(ErrInvalidMessage(""))
		return
	}

	r := cs.openRoomFor(c.customerId)
	if r == nil {
		c.queueMessage(ErrRoomClosed(""))
		return
	}

	m := cs.newMessage(r, req.Text, types.SenderUser)
	r.AppendMessage(m, m.Timestamp)
	cs.stats.Incr("NumMessages")

	if r.Status == types.StatusInactive {
		if _, err := r.SetStatus(types.StatusWaiting, m.Timestamp); err != nil {
			cs.log.Printf("wake room %q: %v", r.Id, err)
		}
		cs.toAgents(envelope(protocol.EventNewCustomer, protocol.NewCustomer{
			RoomId:     r.Id,
			CustomerId: r.CustomerId,
			CreatedAt:  r.CreatedAt,
		}))
	}

	cs.toAgents(envelope(protocol.EventCustomerMessage, protocol.CustomerMessage{
		RoomId:       r.Id,
		Message:      m,
		IsNewMessage: true,
	}))
	cs.toCustomer(r.CustomerId, envelope(protocol.EventChatMessage, m))
}

// startNewChat closes whatever the customer had open and seeds a fresh
// waiting room with a greeting.
func (cs *ChatServer) startNewChat(msg *ClientMessage) {
	c := msg.client

	if old := cs.openRoomFor(c.customerId); old != nil {
		cs.closeRoom(old, protocol.EventChatEnded, "Customer started a new chat")
	}

	r, err := cs.createRoom(c.customerId, types.StatusWaiting)
	if err != nil {
		cs.log.Printf("create room for %s: %v", c, err)
		c.queueMessage(ErrServiceUnavailable())
		return
	}
	r.AppendMessage(types.WelcomeMessage(r.Id, r.CreatedAt), r.CreatedAt)

	cs.toAgents(envelope(protocol.EventCustomerStartedNewChat, protocol.CustomerStartedNewChat{
		RoomId:     r.Id,
		CustomerId: r.CustomerId,
	}))
	cs.toCustomer(r.CustomerId, r.joined())
}

// assignRoom binds the room to the requesting agent. The latest claim wins,
// so an active room may be taken over.
func (cs *ChatServer) assignRoom(c *Client, r *Room) {
	if r.Status == types.StatusInactive {
		c.queueMessage(ErrNotClaimable(r.Id))
		return
	}

	now := cs.now()
	if _, err := r.SetStatus(types.StatusActive, now); err != nil {
		cs.log.Printf("assign room %q: %v", r.Id, err)
		c.queueMessage(ErrNotClaimable(r.Id))
		return
	}
	if r.AssignedAgent != "" && r.AssignedAgent != c.agent.Id {
		cs.log.Printf("room %q taken over from %q by %q", r.Id, r.AssignedAgent, c.agent.Id)
	}
	r.AssignedAgent = c.agent.Id
	r.agentName = c.agent.Name
	r.Touch(now)

	cs.toAgents(envelope(protocol.EventRoomAssigned, protocol.RoomAssigned{
		RoomId:    r.Id,
		AgentId:   c.agent.Id,
		AgentName: c.agent.Name,
	}))
	cs.toCustomer(r.CustomerId, envelope(protocol.EventAgentJoined, protocol.AgentJoined{
		RoomId:    r.Id,
		AgentName: c.agent.Name,
	}))
}

func (cs *ChatServer) releaseRoom(c *Client, r *Room) {
	if !r.assignedTo(c.agent.Id) {
		c.queueMessage(ErrNotAssigned(r.Id))
		return
	}

	if _, err := r.SetStatus(types.StatusWaiting, cs.now()); err != nil {
		cs.log.Printf("release room %q: %v", r.Id, err)
		return
	}
	r.AssignedAgent = ""
	r.agentName = ""

	cs.toAgents(envelope(protocol.EventRoomUnassigned, protocol.RoomUnassigned{
		RoomId:  r.Id,
		AgentId: c.agent.Id,
	}))
}

func (cs *ChatServer) agentMessage(c *Client, r *Room, text string) {
	if strings.TrimSpace(text) == "" {
		c.queueMessage(ErrInvalidMessage(r.Id))
		return
	}
	if !r.assignedTo(c.agent.Id) {
		c.queueMessage(ErrNotAssigned(r.Id))
		return
	}

	m := cs.newMessage(r, text, types.SenderAgent)
	m.AgentId = c.agent.Id
	r.AppendMessage(m, m.Timestamp)
	cs.stats.Incr("NumMessages")

	env := envelope(protocol.EventChatMessage, m)
	cs.toAgents(env)
	cs.toCustomer(r.CustomerId, env)
}
