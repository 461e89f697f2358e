package cluster

import (
	"sort"
	"sync"
	"time"
)

// RosterTracker keeps the latest roster snapshot reported by every other
// instance. A snapshot that is not refreshed within the expiry window is
// dropped, so users on a crashed instance fall out of the global roster.
type RosterTracker struct {
	mu        sync.RWMutex
	expiry    time.Duration
	snapshots map[string]snapshot
	// last is the union as of the previous Update or Prune
	last      map[string]struct{}
	now       func() time.Time
}

type snapshot struct {
	users    map[string]struct{}
	received time.Time
}

// NewRosterTracker creates a tracker whose snapshots expire after expiry
func NewRosterTracker(expiry time.Duration) *RosterTracker {
	return &RosterTracker{
		expiry:    expiry,
		snapshots: make(map[string]snapshot),
		last:      make(map[string]struct{}),
		now:       time.Now,
	}
}

// Update replaces the snapshot of origin and reports whether the union of
// remote users changed
func (t *RosterTracker) Update(origin string, users []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := make(map[string]struct{}, len(users))
	for _, u := range users {
		if u != "" {
			set[u] = struct{}{}
		}
	}
	t.snapshots[origin] = snapshot{users: set, received: t.now()}

	return t.refreshLocked()
}

// Remove forgets origin and reports whether the union changed
func (t *RosterTracker) Remove(origin string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.snapshots, origin)
	return t.refreshLocked()
}

// Prune drops expired snapshots and reports whether the union changed
func (t *RosterTracker) Prune() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.expiry)
	for origin, snap := range t.snapshots {
		if snap.received.Before(cutoff) {
			delete(t.snapshots, origin)
		}
	}
	return t.refreshLocked()
}

func (t *RosterTracker) refreshLocked() bool {
	cur := t.unionLocked()
	changed := !sameSet(t.last, cur)
	t.last = cur
	return changed
}

// Knows reports whether origin has a snapshot, fresh or not
func (t *RosterTracker) Knows(origin string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.snapshots[origin]
	return ok
}

// Has reports whether any fresh remote snapshot contains userID
func (t *RosterTracker) Has(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := t.now().Add(-t.expiry)
	for _, snap := range t.snapshots {
		if snap.received.Before(cutoff) {
			continue
		}
		if _, ok := snap.users[userID]; ok {
			return true
		}
	}
	return false
}

// Users returns the sorted union of fresh remote users
func (t *RosterTracker) Users() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	union := t.unionLocked()
	users := make([]string, 0, len(union))
	for u := range union {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Instances returns how many remote instances have a fresh snapshot
func (t *RosterTracker) Instances() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := t.now().Add(-t.expiry)
	n := 0
	for _, snap := range t.snapshots {
		if !snap.received.Before(cutoff) {
			n++
		}
	}
	return n
}

func (t *RosterTracker) unionLocked() map[string]struct{} {
	cutoff := t.now().Add(-t.expiry)
	union := make(map[string]struct{})
	for _, snap := range t.snapshots {
		if snap.received.Before(cutoff) {
			continue
		}
		for u := range snap.users {
			union[u] = struct{}{}
		}
	}
	return union
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
