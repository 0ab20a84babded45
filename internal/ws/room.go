package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// room is the set of local connections subscribed to one fanout channel.
type room struct {
	mu    sync.RWMutex
	conns map[string]*clientConn // connection id -> conn
}

func newRoom() *room { return &room{conns: map[string]*clientConn{}} }

func (r *room) add(c *clientConn) {
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
}

func (r *room) remove(connID string) {
	r.mu.Lock()
	delete(r.conns, connID)
	r.mu.Unlock()
}

func (r *room) empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns) == 0
}

func (r *room) connIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// broadcast writes msg to every member except excludeConnID ("" excludes
// nobody). Delivery is fire-and-forget: a failed write only drops that one
// connection from the room, the rest of the fanout continues.
func (r *room) broadcast(msg []byte, excludeConnID string) {
	// Take a quick snapshot of the current connections
	r.mu.RLock()
	conns := make([]*clientConn, 0, len(r.conns))
	for id, c := range r.conns {
		if id == excludeConnID {
			continue
		}
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	// Do the I/O outside the lock
	var failed []string
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			failed = append(failed, c.id)
		}
	}
	for _, id := range failed {
		r.remove(id)
	}
}
