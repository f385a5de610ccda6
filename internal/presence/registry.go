// Package presence tracks which users currently hold a live connection.
package presence

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sinchita-code/quickchat/internal/events"
)

// Handle is an addressable live connection.
type Handle interface {
	// ID is unique per connection, not per user.
	ID() string
	// Push queues an event for delivery. It returns false when the
	// connection is gone or too slow to accept more; callers treat that as
	// the offline path, not an error.
	Push(evt events.Event) bool
}

// Registry maps a user to their one addressable connection. The last
// connection wins: registering a second handle for a user replaces the
// first, which stays open but no longer receives user-addressed pushes.
//
// All mutations go through one mutex, so a register and an unregister for
// the same user never interleave.
type Registry struct {
	mu      sync.RWMutex
	handles map[uuid.UUID]Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[uuid.UUID]Handle)}
}

// Register binds userID to h, replacing any previous handle. It returns
// the replaced handle, or nil.
func (r *Registry) Register(userID uuid.UUID, h Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.handles[userID]
	r.handles[userID] = h
	return prev
}

// Unregister removes userID only while h is still the stored handle. A
// late disconnect from a replaced connection is therefore a no-op and
// cannot knock the newer connection offline.
func (r *Registry) Unregister(userID uuid.UUID, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.handles[userID]
	if !ok || cur.ID() != h.ID() {
		return false
	}
	delete(r.handles, userID)
	return true
}

func (r *Registry) Lookup(userID uuid.UUID) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[userID]
	return h, ok
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Snapshot returns the online user ids, sorted so repeated broadcasts of
// the same set are byte-identical.
func (r *Registry) Snapshot() []uuid.UUID {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
