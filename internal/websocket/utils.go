package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a gorilla connection with a write mutex so the countdown
// pusher and the request handler can share it safely.
type Conn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewConn wraps an upgraded connection.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadRaw reads one message with a read deadline. The caller peeks at the
// action via RequestEnvelope before full parsing.
func (c *Conn) ReadRaw() ([]byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
