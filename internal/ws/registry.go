package ws

import "sync"

// connRegistry maps each authenticated user to the set of connection ids it
// currently holds open (multi-tab, multi-device). A user is present in the
// map iff its set is non-empty.
type connRegistry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{} // user id -> set of connection ids
}

func newConnRegistry() *connRegistry {
	return &connRegistry{byUser: make(map[string]map[string]struct{})}
}

// register is idempotent: set semantics absorb a duplicate pair.
func (r *connRegistry) register(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[userID] = set
	}
	set[connID] = struct{}{}
}

// unregister removes the pair and deletes the user entry when its last
// connection goes away. Unknown pairs are a no-op, which keeps disconnect
// reconciliation idempotent.
func (r *connRegistry) unregister(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byUser[userID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
}

func (r *connRegistry) connectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (r *connRegistry) online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}
