// Package session tracks live client connections and expires the silent ones.
package session

import (
	"sync"
	"time"

	"github.com/cwrk-planet/presence-service/internal/domain"
)

type Registry struct {
	mu      sync.Mutex
	entries map[string]*domain.ConnectionEntry
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*domain.ConnectionEntry),
		now:     time.Now,
	}
}

// Register replaces any previous entry for connID.
func (r *Registry) Register(connID string, id domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[connID] = &domain.ConnectionEntry{
		ConnID:       connID,
		Identity:     id,
		LastActivity: r.now(),
	}
}

func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[connID]; ok {
		e.LastActivity = r.now()
	}
}

// BindRoom ties the connection to roomID. A connection holds at most one room; binding the same
// room again is a no-op, binding a different one fails with ErrAlreadyInRoom.
func (r *Registry) BindRoom(connID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return domain.ErrConnectionNotFound
	}
	if e.RoomID != "" && e.RoomID != roomID {
		return domain.ErrAlreadyInRoom
	}
	e.RoomID = roomID
	e.LastActivity = r.now()

	return nil
}

func (r *Registry) Lookup(connID string) (domain.ConnectionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return domain.ConnectionEntry{}, false
	}

	return *e, true
}

// Claim marks connID as disconnecting. Only the first caller gets ok.
func (r *Registry) Claim(connID string) (domain.ConnectionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok || e.Claimed {
		return domain.ConnectionEntry{}, false
	}
	e.Claimed = true

	return *e, true
}

func (r *Registry) Remove(connID string) (domain.ConnectionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return domain.ConnectionEntry{}, false
	}
	delete(r.entries, connID)

	return *e, true
}

// Expired removes and returns every entry whose last activity is older than timeout.
func (r *Registry) Expired(now time.Time, timeout time.Duration) []domain.ConnectionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.ConnectionEntry
	for id, e := range r.entries {
		if now.Sub(e.LastActivity) > timeout {
			out = append(out, *e)
			delete(r.entries, id)
		}
	}

	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}
