package server

import (
	"encoding/json"
	"sync"
	"time"

	"ephemsg/internal/model"
	"ephemsg/internal/utils/log"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// envelope is the wire frame for both directions of the channel.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// client is one websocket connection. It implements presence.Handle; the
// registry owns the user mapping, the client only knows its socket and
// which chat rooms it joined.
type client struct {
	conn *websocket.Conn
	send chan outEnvelope

	mu     sync.Mutex
	userID string
	rooms  map[string]struct{}
	closed bool
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:  conn,
		send:  make(chan outEnvelope, sendBufferSize),
		rooms: make(map[string]struct{}),
	}
}

// Send queues an event for the write pump. A connection that cannot keep
// up is dropped rather than allowed to block the caller; once dropped (or
// disconnected) further Sends are no-ops, never a write to a closed
// channel. Typing indicators only reach connections that joined the
// chat's room.
func (c *client) Send(event string, data any) {
	if event == model.EventTyping || event == model.EventStopTyping {
		if p, ok := data.(model.TypingPayload); ok && !c.inRoom(p.ChatID) {
			return
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- outEnvelope{Event: event, Data: data}:
		c.mu.Unlock()
	default:
		c.closed = true
		close(c.send)
		userID := c.userID
		c.mu.Unlock()
		log.Warn("dropping slow connection", zap.String("userId", userID))
	}
}

func (c *client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *client) setUserID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = id
}

func (c *client) joinRoom(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[chatID] = struct{}{}
}

func (c *client) inRoom(chatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[chatID]
	return ok
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump serializes all writes to the socket.
func (c *client) writePump() {
	defer c.conn.Close()
	for env := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(env); err != nil {
			log.Debug("write failed", zap.Error(err))
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
