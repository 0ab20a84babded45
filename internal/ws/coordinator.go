package ws

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// errNoWarRoom marks an event that requires war-room context arriving on an
// idle connection. It is swallowed by the reader loop rather than surfaced:
// a stale cursor move racing a leave is a normal client-side condition.
var errNoWarRoom = errors.New("no active war room")

const analyticsRoomKey = "analytics"

func watchlistKey(id string) string { return "wl:" + id }
func warRoomKey(id string) string   { return "war:" + id }

// roomBus is the slice of the Hub the coordinator drives.
type roomBus interface {
	Broadcaster
	Register(c *clientConn)
	Unregister(connID string)
	Join(roomKey string, c *clientConn)
	Leave(roomKey, connID string)
}

var _ roomBus = (*Hub)(nil)

// connState is the coordinator-side view of one connection. warRoomID == ""
// means the connection is idle with respect to war-room participation.
type connState struct {
	conn      *clientConn
	warRoomID string
	hubRooms  map[string]struct{} // every hub room key this connection joined
}

// Coordinator owns the connection registry and both room membership indices,
// and applies every inbound event against them. All index mutations for a
// given event happen under c.mu; fanout I/O runs after the lock is released.
type Coordinator struct {
	mu         sync.Mutex
	conns      map[string]*connState // connection id -> state
	registry   *connRegistry
	watchlists *membershipIndex
	warRooms   *membershipIndex

	bus                roomBus
	defaultCursorColor string
}

func NewCoordinator(bus roomBus, defaultCursorColor string) *Coordinator {
	return &Coordinator{
		conns:              make(map[string]*connState),
		registry:           newConnRegistry(),
		watchlists:         newMembershipIndex(),
		warRooms:           newMembershipIndex(),
		bus:                bus,
		defaultCursorColor: defaultCursorColor,
	}
}

// Connect admits an authenticated connection into the indices. The caller
// guarantees the user id was validated before the connection existed.
func (co *Coordinator) Connect(c *clientConn) {
	co.mu.Lock()
	co.conns[c.id] = &connState{conn: c, hubRooms: make(map[string]struct{})}
	co.registry.register(c.userID, c.id)
	co.mu.Unlock()

	co.bus.Register(c)
}

// emit defers fanout until the coordinator lock is released.
type emit func()

func (co *Coordinator) run(emits []emit) {
	for _, e := range emits {
		e()
	}
}

// ─────────────────────────── watchlist rooms ─────────────────────────────────

func (co *Coordinator) JoinWatchlist(c *clientConn, watchlistID string) {
	if watchlistID == "" {
		return
	}
	key := watchlistKey(watchlistID)

	co.mu.Lock()
	st, ok := co.conns[c.id]
	if !ok {
		co.mu.Unlock()
		return // raced a disconnect, reconciler already ran
	}
	viewers := co.watchlists.join(watchlistID, c.userID)
	st.hubRooms[key] = struct{}{}
	co.bus.Join(key, c)
	co.mu.Unlock()

	co.bus.SendToRoom(key, EvUserJoined,
		UserJoinedPayload{UserID: c.userID, WatchlistID: watchlistID}, c.id)
	co.bus.SendToConnection(c.id, EvPresenceUpdate,
		PresenceUpdatePayload{WatchlistID: watchlistID, Viewers: viewers})
}

func (co *Coordinator) LeaveWatchlist(c *clientConn, watchlistID string) {
	key := watchlistKey(watchlistID)

	co.mu.Lock()
	if st, ok := co.conns[c.id]; ok {
		delete(st.hubRooms, key)
	}
	left := co.watchlists.leave(watchlistID, c.userID)
	co.bus.Leave(key, c.id)
	co.mu.Unlock()

	if left {
		co.bus.SendToRoom(key, EvUserLeft,
			UserLeftPayload{UserID: c.userID, WatchlistID: watchlistID}, c.id)
	}
}

// ─────────────────────────── analytics channel ───────────────────────────────

// JoinAnalytics subscribes the connection to the broadcast-only analytics
// channel. No membership bookkeeping: the channel has no presence semantics.
func (co *Coordinator) JoinAnalytics(c *clientConn) {
	co.mu.Lock()
	st, ok := co.conns[c.id]
	if !ok {
		co.mu.Unlock()
		return
	}
	st.hubRooms[analyticsRoomKey] = struct{}{}
	co.bus.Join(analyticsRoomKey, c)
	co.mu.Unlock()
}

func (co *Coordinator) LeaveAnalytics(c *clientConn) {
	co.mu.Lock()
	if st, ok := co.conns[c.id]; ok {
		delete(st.hubRooms, analyticsRoomKey)
	}
	co.bus.Leave(analyticsRoomKey, c.id)
	co.mu.Unlock()
}

// ─────────────────────────── war rooms ───────────────────────────────────────

// JoinWarRoom moves the connection into a war room. A connection already in
// another war room leaves it first, membership included; the previous room's
// members see a war_room_user_left before the new room sees the join.
func (co *Coordinator) JoinWarRoom(c *clientConn, incidentID string) {
	if incidentID == "" {
		return
	}
	key := warRoomKey(incidentID)
	var emits []emit

	co.mu.Lock()
	st, ok := co.conns[c.id]
	if !ok {
		co.mu.Unlock()
		return
	}
	if prev := st.warRoomID; prev != "" && prev != incidentID {
		emits = append(emits, co.detachWarRoomLocked(st, prev)...)
	}
	participants := co.warRooms.join(incidentID, c.userID)
	st.warRoomID = incidentID
	st.hubRooms[key] = struct{}{}
	co.bus.Join(key, c)
	co.mu.Unlock()

	emits = append(emits,
		func() {
			co.bus.SendToRoom(key, EvWarRoomUserJoined,
				WarRoomUserJoinedPayload{UserID: c.userID, IncidentID: incidentID}, c.id)
		},
		func() {
			co.bus.SendToConnection(c.id, EvWarRoomParticipts, WarRoomParticipantsPayload{
				IncidentID:   incidentID,
				Count:        len(participants),
				Participants: participants,
			})
		})
	co.run(emits)
}

func (co *Coordinator) LeaveWarRoom(c *clientConn, incidentID string) {
	co.mu.Lock()
	st, ok := co.conns[c.id]
	if !ok {
		co.mu.Unlock()
		return
	}
	if incidentID == "" {
		incidentID = st.warRoomID
	}
	if incidentID == "" {
		co.mu.Unlock()
		return
	}
	emits := co.detachWarRoomLocked(st, incidentID)
	co.mu.Unlock()

	co.run(emits)
}

// detachWarRoomLocked removes membership and hub subscription for one war
// room and queues the leave broadcast. Caller holds co.mu.
func (co *Coordinator) detachWarRoomLocked(st *connState, incidentID string) []emit {
	key := warRoomKey(incidentID)
	left := co.warRooms.leave(incidentID, st.conn.userID)
	delete(st.hubRooms, key)
	co.bus.Leave(key, st.conn.id)
	if st.warRoomID == incidentID {
		st.warRoomID = ""
	}
	if !left {
		return nil
	}
	userID, connID := st.conn.userID, st.conn.id
	return []emit{func() {
		co.bus.SendToRoom(key, EvWarRoomUserLeft,
			WarRoomUserLeftPayload{UserID: userID, IncidentID: incidentID}, connID)
	}}
}

// currentWarRoom returns the connection's war room, or errNoWarRoom when the
// connection is idle or already torn down.
func (co *Coordinator) currentWarRoom(connID string) (string, error) {
	co.mu.Lock()
	defer co.mu.Unlock()

	st, ok := co.conns[connID]
	if !ok || st.warRoomID == "" {
		return "", errNoWarRoom
	}
	return st.warRoomID, nil
}

func (co *Coordinator) CursorMove(c *clientConn, req CursorMoveRequest) error {
	incidentID, err := co.currentWarRoom(c.id)
	if err != nil {
		return err
	}
	color := req.Color
	if color == "" {
		color = co.defaultCursorColor
	}
	co.bus.SendToRoom(warRoomKey(incidentID), EvWarRoomCursor,
		CursorUpdatePayload{UserID: c.userID, Position: req.Position, Color: color}, c.id)
	return nil
}

func (co *Coordinator) CameraMove(c *clientConn, req CameraMoveRequest) error {
	incidentID, err := co.currentWarRoom(c.id)
	if err != nil {
		return err
	}
	co.bus.SendToRoom(warRoomKey(incidentID), EvWarRoomCamera,
		CameraUpdatePayload{UserID: c.userID, Position: req.Position, Target: req.Target}, c.id)
	return nil
}

// CreatePin relays an annotation pin to every member of the war room, sender
// included so the originating client can reconcile its optimistic UI.
func (co *Coordinator) CreatePin(c *clientConn, req CreatePinRequest) error {
	incidentID, err := co.currentWarRoom(c.id)
	if err != nil {
		return err
	}
	severity := req.Severity
	if !ValidSeverity(severity) {
		severity = SeverityMedium
	}
	now := time.Now()
	pin := WarRoomPin{
		PinID:     fmt.Sprintf("pin-%d-%s", now.UnixMilli(), c.userID),
		UserID:    c.userID,
		Position:  req.Position,
		NodeID:    req.NodeID,
		Message:   req.Message,
		Severity:  severity,
		Timestamp: now.UnixMilli(),
	}
	co.bus.SendToRoom(warRoomKey(incidentID), EvWarRoomPinCreated, pin, "")
	return nil
}

func (co *Coordinator) RemovePin(c *clientConn, req RemovePinRequest) error {
	incidentID, err := co.currentWarRoom(c.id)
	if err != nil {
		return err
	}
	co.bus.SendToRoom(warRoomKey(incidentID), EvWarRoomPinRemoved,
		PinRemovedPayload{PinID: req.PinID, UserID: c.userID}, "")
	return nil
}

func (co *Coordinator) StatusUpdate(c *clientConn, req StatusUpdateRequest) error {
	incidentID, err := co.currentWarRoom(c.id)
	if err != nil {
		return err
	}
	co.bus.SendToRoom(warRoomKey(incidentID), EvWarRoomStatusBcast, StatusBroadcastPayload{
		UserID:    c.userID,
		Status:    req.Status,
		Message:   req.Message,
		Timestamp: time.Now().UnixMilli(),
	}, "")
	return nil
}

// ─────────────────────────── disconnect reconciliation ───────────────────────

// Disconnect reconciles every index after a connection teardown. It runs at
// most once per connection id: the state entry is consumed on the first call
// and later calls are no-ops. Each step is independent; a failed fanout to
// one room never blocks the cleanup of another.
func (co *Coordinator) Disconnect(connID string) {
	var emits []emit

	co.mu.Lock()
	st, ok := co.conns[connID]
	if !ok {
		co.mu.Unlock()
		return
	}
	delete(co.conns, connID)
	userID := st.conn.userID

	// 1. War room the connection was actively in.
	if st.warRoomID != "" {
		emits = append(emits, co.detachWarRoomLocked(st, st.warRoomID)...)
	}

	// 2. Connection registry.
	co.registry.unregister(userID, connID)

	// 3. Every watchlist room the user is still a member of. Membership is
	// aggregate per user, so this clears the user even where the room was
	// joined from another of their connections.
	for _, watchlistID := range co.watchlists.roomsOf(userID) {
		if co.watchlists.leave(watchlistID, userID) {
			key, wid := watchlistKey(watchlistID), watchlistID
			emits = append(emits, func() {
				co.bus.SendToRoom(key, EvUserLeft,
					UserLeftPayload{UserID: userID, WatchlistID: wid}, connID)
			})
		}
	}

	// 4. Hub channels this connection subscribed to.
	for key := range st.hubRooms {
		co.bus.Leave(key, connID)
	}
	co.bus.Unregister(connID)
	co.mu.Unlock()

	co.run(emits)
	zap.L().Debug("coordinator.disconnect", zap.String("connID", connID), zap.String("userId", userID))
}

// ─────────────────────────── read-only snapshots ─────────────────────────────

func (co *Coordinator) WatchlistViewers(watchlistID string) []string {
	return co.watchlists.membersOf(watchlistID)
}

func (co *Coordinator) WarRoomParticipants(incidentID string) []string {
	return co.warRooms.membersOf(incidentID)
}

func (co *Coordinator) WatchlistOccupancy() map[string]int {
	return co.watchlists.occupancy()
}

func (co *Coordinator) WarRoomOccupancy() map[string]int {
	return co.warRooms.occupancy()
}

func (co *Coordinator) UserOnline(userID string) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.registry.online(userID)
}

func (co *Coordinator) ConnectionsOf(userID string) []string {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.registry.connectionsOf(userID)
}
