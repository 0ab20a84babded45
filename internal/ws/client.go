package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientConn is one authenticated websocket connection. The id is unique for
// the process lifetime; the user id was validated at the handshake boundary.
type clientConn struct {
	id      string
	userID  string
	rawConn *websocket.Conn
	mu      sync.Mutex
}

func (c *clientConn) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(mt, data)
}

func (c *clientConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(v)
}
