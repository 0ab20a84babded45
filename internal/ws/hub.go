package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Broadcaster is the room-addressable delivery primitive the coordinator
// fans out through. Delivery is at-most-once: sends are fire-and-forget and
// nothing is replayed to connections that join later.
type Broadcaster interface {
	SendToConnection(connID, event string, payload any)
	SendToRoom(roomKey, event string, payload any, excludeConnID string)
	ListConnectionsInRoom(roomKey string) []string
}

// Hub keeps the local connection index and one room per fanout channel, and
// mirrors every room send to the Redis fanout so other instances can deliver
// to their own connections.
type Hub struct {
	rooms  sync.Map // room key -> *room
	connMu sync.RWMutex
	conns  map[string]*clientConn // connection id -> conn

	fanout *Fanout // nil when running single-instance (and in tests)
	subMgr *subscriptionManager
}

var _ Broadcaster = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*clientConn)}
}

// SetFanout wires the cross-instance publish/subscribe pair. Must be called
// before the first connection is accepted.
func (h *Hub) SetFanout(f *Fanout, sm *subscriptionManager) {
	h.fanout = f
	h.subMgr = sm
}

// Register makes a connection addressable by id. Called once per handshake.
func (h *Hub) Register(c *clientConn) {
	h.connMu.Lock()
	h.conns[c.id] = c
	h.connMu.Unlock()
}

// Unregister drops the connection from the addressable index.
func (h *Hub) Unregister(connID string) {
	h.connMu.Lock()
	delete(h.conns, connID)
	h.connMu.Unlock()
}

// Join subscribes a connection to a room's fanout channel, creating the room
// (and the cross-instance subscription) on first use.
func (h *Hub) Join(roomKey string, c *clientConn) {
	r, loaded := h.rooms.LoadOrStore(roomKey, newRoom())
	r.(*room).add(c)
	if !loaded && h.subMgr != nil {
		h.subMgr.Subscribe(roomKey)
	}
}

// Leave removes a connection from a room's fanout channel; the room and its
// cross-instance subscription are torn down when the last local member leaves.
func (h *Hub) Leave(roomKey, connID string) {
	v, ok := h.rooms.Load(roomKey)
	if !ok {
		return
	}
	r := v.(*room)
	r.remove(connID)
	if r.empty() {
		h.rooms.Delete(roomKey)
		if h.subMgr != nil {
			h.subMgr.Unsubscribe(roomKey)
		}
	}
}

func (h *Hub) SendToConnection(connID, event string, payload any) {
	h.connMu.RLock()
	c, ok := h.conns[connID]
	h.connMu.RUnlock()
	if !ok {
		return // connection already gone: at-most-once, not an error
	}
	if err := c.writeJSON(Envelope{Event: event, Body: marshalBody(payload)}); err != nil {
		zap.L().Debug("hub.send_to_connection", zap.String("connID", connID), zap.Error(err))
	}
}

func (h *Hub) SendToRoom(roomKey, event string, payload any, excludeConnID string) {
	msg, err := json.Marshal(Envelope{Event: event, Body: marshalBody(payload)})
	if err != nil {
		zap.L().Warn("hub.marshal", zap.String("event", event), zap.Error(err))
		return
	}
	h.deliverLocal(roomKey, msg, excludeConnID)
	if h.fanout != nil {
		h.fanout.Publish(roomKey, msg, excludeConnID)
	}
}

func (h *Hub) ListConnectionsInRoom(roomKey string) []string {
	if v, ok := h.rooms.Load(roomKey); ok {
		return v.(*room).connIDs()
	}
	return nil
}

// deliverLocal is also the entry point for messages arriving from other
// instances via the Redis subscription.
func (h *Hub) deliverLocal(roomKey string, msg []byte, excludeConnID string) {
	if v, ok := h.rooms.Load(roomKey); ok {
		v.(*room).broadcast(msg, excludeConnID)
	}
}

func marshalBody(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		zap.L().Warn("hub.marshal_body", zap.Error(err))
		return nil
	}
	return b
}
