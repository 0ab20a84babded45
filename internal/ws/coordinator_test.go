package ws

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus records every hub interaction instead of performing I/O.
type fakeBus struct {
	mu       sync.Mutex
	members  map[string]map[string]bool // room key -> conn id -> joined
	sends    []roomSend
	unicasts []unicast
}

type roomSend struct {
	roomKey string
	event   string
	payload any
	exclude string
}

type unicast struct {
	connID  string
	event   string
	payload any
}

func newFakeBus() *fakeBus {
	return &fakeBus{members: make(map[string]map[string]bool)}
}

func (b *fakeBus) Register(*clientConn) {}
func (b *fakeBus) Unregister(string)    {}

func (b *fakeBus) Join(roomKey string, c *clientConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.members[roomKey] == nil {
		b.members[roomKey] = make(map[string]bool)
	}
	b.members[roomKey][c.id] = true
}

func (b *fakeBus) Leave(roomKey, connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members[roomKey], connID)
}

func (b *fakeBus) SendToConnection(connID, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unicasts = append(b.unicasts, unicast{connID: connID, event: event, payload: payload})
}

func (b *fakeBus) SendToRoom(roomKey, event string, payload any, excludeConnID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sends = append(b.sends, roomSend{roomKey: roomKey, event: event, payload: payload, exclude: excludeConnID})
}

func (b *fakeBus) ListConnectionsInRoom(roomKey string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for id := range b.members[roomKey] {
		out = append(out, id)
	}
	return out
}

func (b *fakeBus) sendsOf(event string) []roomSend {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []roomSend
	for _, s := range b.sends {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

func (b *fakeBus) unicastsTo(connID string) []unicast {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []unicast
	for _, u := range b.unicasts {
		if u.connID == connID {
			out = append(out, u)
		}
	}
	return out
}

func (b *fakeBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sends = nil
	b.unicasts = nil
}

// --- test suite setup ---

func newTestCoordinator() (*Coordinator, *fakeBus) {
	bus := newFakeBus()
	return NewCoordinator(bus, "#3b82f6"), bus
}

func connect(co *Coordinator, userID string) *clientConn {
	c := &clientConn{id: uuid.NewString(), userID: userID}
	co.Connect(c)
	return c
}

// --- watchlist rooms ---

func TestJoinWatchlistBroadcastsAndSnapshots(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	b := connect(co, "userB")

	co.JoinWatchlist(a, "wl-42")
	bus.reset()
	co.JoinWatchlist(b, "wl-42")

	// A (and only connections other than B's) gets user_joined for B.
	joins := bus.sendsOf(EvUserJoined)
	require.Len(t, joins, 1)
	assert.Equal(t, watchlistKey("wl-42"), joins[0].roomKey)
	assert.Equal(t, b.id, joins[0].exclude)
	assert.Equal(t, UserJoinedPayload{UserID: "userB", WatchlistID: "wl-42"}, joins[0].payload)

	// B learns about A only through the presence snapshot, never a replayed
	// user_joined.
	snaps := bus.unicastsTo(b.id)
	require.Len(t, snaps, 1)
	assert.Equal(t, EvPresenceUpdate, snaps[0].event)
	payload := snaps[0].payload.(PresenceUpdatePayload)
	assert.Equal(t, "wl-42", payload.WatchlistID)
	assert.ElementsMatch(t, []string{"userA", "userB"}, payload.Viewers)
}

func TestLeaveWatchlistNotifiesRemaining(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	b := connect(co, "userB")
	co.JoinWatchlist(a, "wl-42")
	co.JoinWatchlist(b, "wl-42")
	bus.reset()

	co.LeaveWatchlist(a, "wl-42")

	lefts := bus.sendsOf(EvUserLeft)
	require.Len(t, lefts, 1)
	assert.Equal(t, a.id, lefts[0].exclude)
	assert.Equal(t, UserLeftPayload{UserID: "userA", WatchlistID: "wl-42"}, lefts[0].payload)
	assert.Equal(t, []string{"userB"}, co.WatchlistViewers("wl-42"))
}

func TestLeaveWatchlistNeverJoinedIsNoop(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")

	co.LeaveWatchlist(a, "wl-7")

	assert.Empty(t, bus.sends)
}

func TestWatchlistMembershipMatchesLastOperation(t *testing.T) {
	co, _ := newTestCoordinator()
	conns := make(map[string]*clientConn)
	for _, u := range []string{"u1", "u2", "u3", "u4"} {
		conns[u] = connect(co, u)
	}

	ops := []struct {
		user string
		join bool
	}{
		{"u1", true}, {"u2", true}, {"u1", false}, {"u3", true},
		{"u2", false}, {"u2", true}, {"u4", true}, {"u4", false},
	}
	for _, op := range ops {
		if op.join {
			co.JoinWatchlist(conns[op.user], "wl-1")
		} else {
			co.LeaveWatchlist(conns[op.user], "wl-1")
		}
	}

	assert.ElementsMatch(t, []string{"u2", "u3"}, co.WatchlistViewers("wl-1"))
}

func TestWatchlistMembershipIsPerUserNotPerConnection(t *testing.T) {
	co, _ := newTestCoordinator()
	tab1 := connect(co, "userA")
	tab2 := connect(co, "userA")

	co.JoinWatchlist(tab1, "wl-1")
	co.JoinWatchlist(tab2, "wl-1")
	assert.Equal(t, []string{"userA"}, co.WatchlistViewers("wl-1"))

	co.LeaveWatchlist(tab1, "wl-1")
	assert.Empty(t, co.WatchlistViewers("wl-1"))
}

// --- war rooms ---

func TestJoinWarRoomSnapshotAndFanout(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	b := connect(co, "userB")

	co.JoinWarRoom(a, "incident-7")
	bus.reset()
	co.JoinWarRoom(b, "incident-7")

	joins := bus.sendsOf(EvWarRoomUserJoined)
	require.Len(t, joins, 1)
	assert.Equal(t, warRoomKey("incident-7"), joins[0].roomKey)
	assert.Equal(t, b.id, joins[0].exclude)

	snaps := bus.unicastsTo(b.id)
	require.Len(t, snaps, 1)
	assert.Equal(t, EvWarRoomParticipts, snaps[0].event)
	payload := snaps[0].payload.(WarRoomParticipantsPayload)
	assert.Equal(t, "incident-7", payload.IncidentID)
	assert.Equal(t, 2, payload.Count)
	assert.ElementsMatch(t, []string{"userA", "userB"}, payload.Participants)
}

func TestCreatePinBroadcastsToAllIncludingSender(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	b := connect(co, "userB")
	co.JoinWarRoom(a, "incident-7")
	co.JoinWarRoom(b, "incident-7")
	bus.reset()

	err := co.CreatePin(a, CreatePinRequest{
		Position: Position{X: 1, Y: 2, Z: 3},
		NodeID:   "node-9",
		Message:  "db shard is hot",
		Severity: SeverityHigh,
	})
	require.NoError(t, err)

	pins := bus.sendsOf(EvWarRoomPinCreated)
	require.Len(t, pins, 1)
	assert.Equal(t, "", pins[0].exclude, "pin events echo back to the sender")

	pin := pins[0].payload.(WarRoomPin)
	assert.NotEmpty(t, pin.PinID)
	assert.Equal(t, "userA", pin.UserID)
	assert.Equal(t, Position{X: 1, Y: 2, Z: 3}, pin.Position)
	assert.Equal(t, SeverityHigh, pin.Severity)
	assert.NotZero(t, pin.Timestamp)
}

func TestCreatePinDefaultsSeverityToMedium(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	co.JoinWarRoom(a, "incident-1")
	bus.reset()

	require.NoError(t, co.CreatePin(a, CreatePinRequest{NodeID: "n1"}))
	require.NoError(t, co.CreatePin(a, CreatePinRequest{NodeID: "n2", Severity: "catastrophic"}))

	pins := bus.sendsOf(EvWarRoomPinCreated)
	require.Len(t, pins, 2)
	assert.Equal(t, SeverityMedium, pins[0].payload.(WarRoomPin).Severity)
	assert.Equal(t, SeverityMedium, pins[1].payload.(WarRoomPin).Severity)
}

func TestCursorMoveWithoutWarRoomIsSilentlyDropped(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")

	err := co.CursorMove(a, CursorMoveRequest{Position: Position{X: 1}})

	assert.ErrorIs(t, err, errNoWarRoom)
	assert.Empty(t, bus.sends, "no broadcast may be produced")
	assert.Empty(t, bus.unicasts)
}

func TestCursorMoveDefaultsColorAndExcludesSender(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	co.JoinWarRoom(a, "incident-2")
	bus.reset()

	require.NoError(t, co.CursorMove(a, CursorMoveRequest{Position: Position{X: 4, Y: 5, Z: 6}}))

	moves := bus.sendsOf(EvWarRoomCursor)
	require.Len(t, moves, 1)
	assert.Equal(t, a.id, moves[0].exclude)
	payload := moves[0].payload.(CursorUpdatePayload)
	assert.Equal(t, "#3b82f6", payload.Color)

	require.NoError(t, co.CursorMove(a, CursorMoveRequest{Color: "#ff0000"}))
	moves = bus.sendsOf(EvWarRoomCursor)
	assert.Equal(t, "#ff0000", moves[1].payload.(CursorUpdatePayload).Color)
}

func TestCameraMoveRelaysPositionAndTarget(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	co.JoinWarRoom(a, "incident-2")
	bus.reset()

	require.NoError(t, co.CameraMove(a, CameraMoveRequest{
		Position: Position{X: 1}, Target: Position{Z: 9},
	}))

	moves := bus.sendsOf(EvWarRoomCamera)
	require.Len(t, moves, 1)
	assert.Equal(t, a.id, moves[0].exclude)
	payload := moves[0].payload.(CameraUpdatePayload)
	assert.Equal(t, Position{X: 1}, payload.Position)
	assert.Equal(t, Position{Z: 9}, payload.Target)
}

func TestStatusUpdateIncludesSender(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	co.JoinWarRoom(a, "incident-3")
	bus.reset()

	require.NoError(t, co.StatusUpdate(a, StatusUpdateRequest{Status: "mitigating", Message: "failover started"}))

	bcasts := bus.sendsOf(EvWarRoomStatusBcast)
	require.Len(t, bcasts, 1)
	assert.Equal(t, "", bcasts[0].exclude)
	payload := bcasts[0].payload.(StatusBroadcastPayload)
	assert.Equal(t, "mitigating", payload.Status)
	assert.NotZero(t, payload.Timestamp)
}

func TestRemovePinIncludesSender(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	co.JoinWarRoom(a, "incident-3")
	bus.reset()

	require.NoError(t, co.RemovePin(a, RemovePinRequest{PinID: "pin-1-userA"}))

	removed := bus.sendsOf(EvWarRoomPinRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, "", removed[0].exclude)
	assert.Equal(t, PinRemovedPayload{PinID: "pin-1-userA", UserID: "userA"}, removed[0].payload)
}

func TestJoinSecondWarRoomAutoLeavesFirst(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	bystander := connect(co, "userB")
	co.JoinWarRoom(a, "incident-1")
	co.JoinWarRoom(bystander, "incident-1")
	bus.reset()

	co.JoinWarRoom(a, "incident-2")

	// Membership in the first room is removed, not left stale.
	assert.Equal(t, []string{"userB"}, co.WarRoomParticipants("incident-1"))
	assert.Equal(t, []string{"userA"}, co.WarRoomParticipants("incident-2"))

	lefts := bus.sendsOf(EvWarRoomUserLeft)
	require.Len(t, lefts, 1)
	assert.Equal(t, warRoomKey("incident-1"), lefts[0].roomKey)
	assert.Equal(t, WarRoomUserLeftPayload{UserID: "userA", IncidentID: "incident-1"}, lefts[0].payload)

	// Cursor traffic now lands in the second room.
	require.NoError(t, co.CursorMove(a, CursorMoveRequest{}))
	moves := bus.sendsOf(EvWarRoomCursor)
	require.Len(t, moves, 1)
	assert.Equal(t, warRoomKey("incident-2"), moves[0].roomKey)
}

func TestLeaveWarRoomClearsPointer(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	co.JoinWarRoom(a, "incident-5")
	bus.reset()

	co.LeaveWarRoom(a, "incident-5")

	assert.Empty(t, co.WarRoomParticipants("incident-5"))
	assert.ErrorIs(t, co.CursorMove(a, CursorMoveRequest{}), errNoWarRoom)
	require.Len(t, bus.sendsOf(EvWarRoomUserLeft), 1)
}

// --- disconnect reconciliation ---

func TestDisconnectCleansEverything(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	b := connect(co, "userB")
	co.JoinWatchlist(a, "wl-1")
	co.JoinWatchlist(a, "wl-2")
	co.JoinWatchlist(b, "wl-1")
	co.JoinWarRoom(a, "incident-1")
	co.JoinWarRoom(b, "incident-1")
	bus.reset()

	co.Disconnect(a.id)

	assert.False(t, co.UserOnline("userA"))
	assert.Empty(t, co.ConnectionsOf("userA"))
	assert.Equal(t, []string{"userB"}, co.WatchlistViewers("wl-1"))
	assert.Empty(t, co.WatchlistViewers("wl-2"))
	assert.Equal(t, []string{"userB"}, co.WarRoomParticipants("incident-1"))

	require.Len(t, bus.sendsOf(EvWarRoomUserLeft), 1)
	lefts := bus.sendsOf(EvUserLeft)
	require.Len(t, lefts, 2)
	rooms := []string{lefts[0].roomKey, lefts[1].roomKey}
	assert.ElementsMatch(t, []string{watchlistKey("wl-1"), watchlistKey("wl-2")}, rooms)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	co.JoinWatchlist(a, "wl-1")
	co.JoinWarRoom(a, "incident-1")

	co.Disconnect(a.id)
	bus.reset()
	co.Disconnect(a.id)

	assert.Empty(t, bus.sends, "second teardown must emit nothing")
}

func TestDisconnectOneOfTwoConnectionsKeepsUserRegistered(t *testing.T) {
	co, _ := newTestCoordinator()
	tab1 := connect(co, "userA")
	tab2 := connect(co, "userA")

	co.Disconnect(tab1.id)

	assert.True(t, co.UserOnline("userA"))
	assert.Equal(t, []string{tab2.id}, co.ConnectionsOf("userA"))

	co.Disconnect(tab2.id)
	assert.False(t, co.UserOnline("userA"))
}

func TestEventAfterDisconnectIsNoop(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")
	co.Disconnect(a.id)
	bus.reset()

	co.JoinWatchlist(a, "wl-1")
	co.JoinWarRoom(a, "incident-1")
	co.JoinAnalytics(a)

	assert.Empty(t, bus.sends)
	assert.Empty(t, co.WatchlistViewers("wl-1"))
	assert.Empty(t, co.WarRoomParticipants("incident-1"))
}

func TestConcurrentJoinsAndDisconnects(t *testing.T) {
	co, _ := newTestCoordinator()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", n%8)
			c := connect(co, user)
			co.JoinWatchlist(c, "wl-shared")
			co.JoinWarRoom(c, "incident-shared")
			co.CursorMove(c, CursorMoveRequest{})
			co.Disconnect(c.id)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, co.WatchlistViewers("wl-shared"))
	assert.Empty(t, co.WarRoomParticipants("incident-shared"))
	for i := 0; i < 8; i++ {
		assert.False(t, co.UserOnline(fmt.Sprintf("user-%d", i)))
	}
}

// --- analytics channel ---

func TestAnalyticsChannelHasNoMembershipBookkeeping(t *testing.T) {
	co, bus := newTestCoordinator()
	a := connect(co, "userA")

	co.JoinAnalytics(a)
	assert.True(t, bus.members[analyticsRoomKey][a.id])
	assert.Empty(t, bus.sends, "subscribing emits no presence events")

	co.LeaveAnalytics(a)
	assert.False(t, bus.members[analyticsRoomKey][a.id])
}
