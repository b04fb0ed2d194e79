package realtime

import "sync"

// Registry maps an identity to its live connections. It is process local and
// starts empty on every boot.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[ConnID]*Connection
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]map[ConnID]*Connection)}
}

// Bind adds conn to the identity's set. Binding twice is a no-op.
func (r *Registry) Bind(userID string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[ConnID]*Connection)
		r.byUser[userID] = set
	}
	set[conn.ID()] = conn
}

// Unbind removes the handle and reports whether the identity has no live
// connection left. Only the call that empties the set returns true.
func (r *Registry) Unbind(userID string, id ConnID) (becameOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[userID]
	if !ok {
		return false
	}
	if _, present := set[id]; !present {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.byUser, userID)
		return true
	}
	return false
}

// HandlesFor returns a snapshot of the identity's live connections; empty for
// unknown identities.
func (r *Registry) HandlesFor(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Online reports whether the identity has at least one live connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// OnlineCount returns the number of identities with a live connection.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// ConnectionCount returns the number of bound connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.byUser {
		n += len(set)
	}
	return n
}

// RoomCount returns the number of distinct rooms joined by bound connections.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make(map[string]struct{})
	for _, set := range r.byUser {
		for _, c := range set {
			if id, ok := c.JoinedRoom(); ok {
				rooms[id] = struct{}{}
			}
		}
	}
	return len(rooms)
}
