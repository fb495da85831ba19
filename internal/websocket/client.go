package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one authenticated websocket connection.
type Client struct {
	ID          string
	UserID      uuid.UUID
	DisplayName string
	AvatarURL   string

	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(userID uuid.UUID, displayName, avatarURL string, conn *websocket.Conn) *Client {
	return &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		conn:        conn,
		send:        make(chan []byte, 64),
	}
}

// writeLoop drains the send buffer onto the wire and closes the connection
// when the buffer is closed.
func (c *Client) writeLoop() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	c.conn.Close()
}

// enqueue marshals and buffers one outbound event. A full buffer drops the
// event: delivery is at-most-once and a stalled reader must not block the
// room.
func (c *Client) enqueue(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.enqueueRaw(data)
}

func (c *Client) enqueueRaw(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("dropping event for slow connection %s (user %s)", c.ID, c.UserID)
	}
}

// close shuts the send buffer; the write loop then closes the socket.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
