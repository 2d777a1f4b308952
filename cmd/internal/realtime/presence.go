package realtime

import (
	"log/slog"
	"sync"
)

// Registry is the in-memory bidirectional mapping between profile ids and
// live connections. At most one connection holds a profile's slot at any
// instant; a reconnect overwrites the slot (last writer wins) and the
// superseded connection is left dangling until it disconnects on its own.
//
// All mutation goes through Register/Unregister under one mutex; callers
// never touch the maps directly.
type Registry struct {
	log *slog.Logger

	mu        sync.Mutex
	byProfile map[string]*Client
	byConn    map[string]*Client
}

// NewRegistry constructs an empty presence registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:       log,
		byProfile: make(map[string]*Client),
		byConn:    make(map[string]*Client),
	}
}

// Register makes c the addressable connection for its profile.
// Any previous holder of the slot loses its inverse entry without being
// notified; no eviction frame is sent to the old connection.
func (r *Registry) Register(c *Client) {
	if c == nil || c.ProfileID == "" || c.ConnID == "" {
		return
	}

	r.mu.Lock()
	if prev, ok := r.byProfile[c.ProfileID]; ok && prev.ConnID != c.ConnID {
		delete(r.byConn, prev.ConnID)
	}
	r.byProfile[c.ProfileID] = c
	r.byConn[c.ConnID] = c
	online := len(r.byProfile)
	r.mu.Unlock()

	presenceOnline.Set(float64(online))
	r.log.Info("presence.register", "profile_id", c.ProfileID, "conn_id", c.ConnID)
}

// Unregister removes c's presence entry, resolving the profile BY CONNECTION.
// A delayed disconnect of a superseded connection is a no-op: the slot is
// only cleared when c is still its current holder. Reports whether an entry
// was removed.
func (r *Registry) Unregister(c *Client) bool {
	if c == nil || c.ConnID == "" {
		return false
	}

	r.mu.Lock()
	cur, ok := r.byConn[c.ConnID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byConn, c.ConnID)
	if holder, held := r.byProfile[cur.ProfileID]; held && holder.ConnID == c.ConnID {
		delete(r.byProfile, cur.ProfileID)
	}
	online := len(r.byProfile)
	r.mu.Unlock()

	presenceOnline.Set(float64(online))
	r.log.Info("presence.unregister", "profile_id", cur.ProfileID, "conn_id", c.ConnID)
	return true
}

// Lookup returns the current connection for a profile, or nil when offline.
func (r *Registry) Lookup(profileID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byProfile[profileID]
}

// IsOnline reports whether a profile currently holds a live connection.
func (r *Registry) IsOnline(profileID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byProfile[profileID]
	return ok
}

// Online returns the number of profiles with a live connection.
func (r *Registry) Online() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byProfile)
}
