package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arklim/wearable-stream-broker/internal/core/port"
)

// Conn adapts a gorilla websocket connection to port.Connection.
// Writes are serialized; gorilla connections allow one concurrent writer.
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewConn wraps an upgraded websocket connection.
func NewConn(conn *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{conn: conn, writeTimeout: writeTimeout}
}

// Send marshals payload to JSON and writes it as a text message.
func (c *Conn) Send(payload any) error {
	bytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal websocket payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("websocket connection closed")
	}

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, bytes); err != nil {
		c.closed = true
		return fmt.Errorf("write websocket message: %w", err)
	}

	return nil
}

// IsOpen reports whether the connection is still usable.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// MarkClosed flags the connection dead without closing the socket.
// Used by read loops that observe a peer disconnect.
func (c *Conn) MarkClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Close sends a close frame and tears down the socket. Safe to call twice.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, message, deadline)

	return c.conn.Close()
}

var _ port.Connection = (*Conn)(nil)
