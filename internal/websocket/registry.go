package websocket

import (
	"sort"
	"sync"
)

// Registry maps user ids to live connection handles and tracks every open
// transport connection, including anonymous ones.
//
// In single-session mode a user maps to the most recently registered handle
// and an earlier handle is silently replaced. In multi-session mode every live
// handle is kept and routed events fan out to all of them.
type Registry struct {
	mu           sync.RWMutex
	multiSession bool
	users        map[string][]Conn
	conns        map[Conn]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry(multiSession bool) *Registry {
	return &Registry{
		multiSession: multiSession,
		users:        make(map[string][]Conn),
		conns:        make(map[Conn]struct{}),
	}
}

// Register tracks conn and, when it carries a user id, makes it that user's
// current handle. It reports whether the user registry changed.
func (r *Registry) Register(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn] = struct{}{}

	userID := conn.UserID()
	if userID == "" {
		return false
	}

	if !r.multiSession {
		r.users[userID] = []Conn{conn}
		return true
	}

	handles := r.users[userID]
	for _, h := range handles {
		if h == conn {
			return false
		}
	}
	r.users[userID] = append(handles, conn)
	return true
}

// Unregister forgets conn. A user entry is only removed when conn is the
// handle stored for it, so a stale disconnect cannot evict a newer session.
// It reports whether the user registry changed.
func (r *Registry) Unregister(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, conn)

	userID := conn.UserID()
	if userID == "" {
		return false
	}

	handles := r.users[userID]
	for i, h := range handles {
		if h != conn {
			continue
		}
		if len(handles) == 1 {
			delete(r.users, userID)
		} else {
			next := make([]Conn, 0, len(handles)-1)
			next = append(next, handles[:i]...)
			r.users[userID] = append(next, handles[i+1:]...)
		}
		return true
	}
	return false
}

// Tracked reports whether conn is an open transport connection
func (r *Registry) Tracked(conn Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[conn]
	return ok
}

// Lookup returns the most recently registered handle for userID
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := r.users[userID]
	if len(handles) == 0 {
		return nil, false
	}
	return handles[len(handles)-1], true
}

// Targets returns the handles a routed event for userID goes to
func (r *Registry) Targets(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := r.users[userID]
	if len(handles) == 0 {
		return nil
	}
	if !r.multiSession {
		return []Conn{handles[len(handles)-1]}
	}
	return append([]Conn(nil), handles...)
}

// Has reports whether userID has a registered handle
func (r *Registry) Has(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// Roster returns the sorted set of registered user ids
func (r *Registry) Roster() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.users))
	for userID := range r.users {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Connections returns every tracked transport connection
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// ConnectionCount returns the number of tracked transport connections
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// UserCount returns the number of registered users
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// ConnectionsFor returns how many handles userID has registered
func (r *Registry) ConnectionsFor(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// MultiSession reports the session mode
func (r *Registry) MultiSession() bool {
	return r.multiSession
}
