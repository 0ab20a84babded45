package ws

import "sync"

// membershipIndex tracks which users are in which rooms for one room family
// (watchlist or war room). Membership is keyed by user id, not connection id:
// two tabs of the same user occupy a single membership slot.
type membershipIndex struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{} // room id -> set of user ids
}

func newMembershipIndex() *membershipIndex {
	return &membershipIndex{rooms: make(map[string]map[string]struct{})}
}

// join adds the user and returns the post-join member snapshot, which the
// caller uses to build the presence response for the joining connection.
func (m *membershipIndex) join(roomID, userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.rooms[roomID]
	if !ok {
		set = make(map[string]struct{})
		m.rooms[roomID] = set
	}
	set[userID] = struct{}{}

	members := make([]string, 0, len(set))
	for id := range set {
		members = append(members, id)
	}
	return members
}

// leave removes the user; an emptied room is deleted to bound memory.
// Reports whether the user was actually a member.
func (m *membershipIndex) leave(roomID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	if _, member := set[userID]; !member {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(m.rooms, roomID)
	}
	return true
}

func (m *membershipIndex) membersOf(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.rooms[roomID]
	members := make([]string, 0, len(set))
	for id := range set {
		members = append(members, id)
	}
	return members
}

// roomsOf returns every room the user is currently a member of.
func (m *membershipIndex) roomsOf(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for roomID, set := range m.rooms {
		if _, ok := set[userID]; ok {
			out = append(out, roomID)
		}
	}
	return out
}

// occupancy returns the current member count per room.
func (m *membershipIndex) occupancy() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int, len(m.rooms))
	for roomID, set := range m.rooms {
		out[roomID] = len(set)
	}
	return out
}
