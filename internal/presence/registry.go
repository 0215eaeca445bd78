// Package presence tracks which identities currently hold a live connection.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Handle is a live connection that can receive frames.
type Handle interface {
	ID() string
	UserID() int64
	Send(payload []byte) error
	Close(code int, reason string)
}

// Entry is the presence record of one identity.
type Entry struct {
	UserID       int64
	Handle       Handle
	ConnectedAt  time.Time
	LastActivity time.Time
}

// Registry maps identities to their newest live connection. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]*Entry
	now     func() time.Time
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]*Entry), now: time.Now}
}

// Register makes h the addressable connection for userID and returns the handle it replaced, if any.
func (r *Registry) Register(userID int64, h Handle) Handle {
	at := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var prev Handle
	if e, ok := r.entries[userID]; ok && e.Handle != h {
		prev = e.Handle
	}
	r.entries[userID] = &Entry{UserID: userID, Handle: h, ConnectedAt: at, LastActivity: at}
	return prev
}

// Touch refreshes the last-activity time. It reports false if userID is not registered.
func (r *Registry) Touch(userID int64) bool {
	at := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok {
		return false
	}
	e.LastActivity = at
	return true
}

// Unregister removes the entry for userID if h is still its current handle.
// A connection replaced by a newer one therefore cannot evict its successor.
func (r *Registry) Unregister(userID int64, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok || e.Handle != h {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Sweep removes every entry idle for longer than threshold and returns them.
// Removal and the idle check happen under one lock, so an entry re-registered concurrently survives.
func (r *Registry) Sweep(now time.Time, threshold time.Duration) []Entry {
	cutoff := now.Add(-threshold)

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []Entry
	for id, e := range r.entries {
		if e.LastActivity.Before(cutoff) {
			evicted = append(evicted, *e)
			delete(r.entries, id)
		}
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i].UserID < evicted[j].UserID })
	return evicted
}

// Lookup returns the current handle for userID.
func (r *Registry) Lookup(userID int64) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.Handle, true
}

// IsOnline reports whether userID has a live entry.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[userID]
	return ok
}

// Snapshot copies every entry, ordered by identity.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Count returns the number of online identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
