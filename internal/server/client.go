package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-livechat/internal/protocol"
	"github.com/npezzotti/go-livechat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type Role int

const (
	RoleCustomer Role = iota
	RoleAgent
)

func (r Role) String() string {
	if r == RoleAgent {
		return "agent"
	}
	return "customer"
}

type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	role       Role
	agent      types.Agent
	customerId string
	send       chan *protocol.Envelope
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewAgentClient(agent types.Agent, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	c := newClient(conn, cs, l)
	c.role = RoleAgent
	c.agent = agent
	return c
}

func NewCustomerClient(customerId string, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	c := newClient(conn, cs, l)
	c.role = RoleCustomer
	c.customerId = customerId
	return c
}

func newClient(conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		send:       make(chan *protocol.Envelope, 256),
		stop:       make(chan struct{}),
	}
}

// String names the client in logs.
func (c *Client) String() string {
	if c.role == RoleAgent {
		return "agent " + c.agent.Id
	}
	return "customer " + c.customerId
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		env, err := protocol.ParseEnvelope(raw)
		if err != nil {
			c.log.Printf("error parsing message from %s: %v", c, err)
			c.queueMessage(ErrInvalidMessage(""))
			continue
		}

		c.dispatch(&ClientMessage{Envelope: env, Timestamp: Now(), client: c})
	}
}

// dispatch hands msg to the server without blocking the read pump.
func (c *Client) dispatch(msg *ClientMessage) {
	select {
	case c.chatServer.clientMsgChan <- msg:
	default:
		c.log.Printf("clientMsgChan full, dropping %q from %s", msg.Event, c)
		c.queueMessage(ErrServiceUnavailable())
	}
}

func (c *Client) queueMessage(msg *protocol.Envelope) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("failed to send message to %s, channel is full", c)
		return false
	}

	return true
}

func serializeMessage(msg *protocol.Envelope) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.chatServer.deregister(c)
	c.stopClient()
}
