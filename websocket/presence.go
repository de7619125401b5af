package websocket

import (
	"errors"
	"hash/fnv"
	"sync"

	"home-service-server/models"
)

// ErrDuplicateConnection is returned when admitting a connection id that
// is already registered
var ErrDuplicateConnection = errors.New("connection id already registered")

// PresenceEntry records the identity and role behind a live connection.
// It is created on successful authentication and destroyed on disconnect;
// it never outlives the connection.
type PresenceEntry struct {
	ConnID string
	UserID uint
	Role   models.UserRole
}

const presenceShardCount = 16

type presenceShard struct {
	mu      sync.RWMutex
	entries map[string]PresenceEntry
}

// PresenceRegistry is the source of truth for "is this user currently
// reachable live". It is sharded by connection id so admit/remove traffic
// for unrelated connections never contends on one lock.
//
// The same user may hold multiple live connections; lookups return an
// arbitrary one. Upstream assumes at most one per user, so this is a
// known limitation rather than supported behavior.
type PresenceRegistry struct {
	shards [presenceShardCount]*presenceShard
}

// NewPresenceRegistry creates an empty registry
func NewPresenceRegistry() *PresenceRegistry {
	r := &PresenceRegistry{}
	for i := range r.shards {
		r.shards[i] = &presenceShard{entries: make(map[string]PresenceEntry)}
	}
	return r
}

func (r *PresenceRegistry) shard(connID string) *presenceShard {
	h := fnv.New32a()
	h.Write([]byte(connID))
	return r.shards[h.Sum32()%presenceShardCount]
}

// Admit registers a connection. It fails only if the same connection id is
// already present; a user id appearing on several connections is allowed.
func (r *PresenceRegistry) Admit(connID string, userID uint, role models.UserRole) error {
	s := r.shard(connID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[connID]; exists {
		return ErrDuplicateConnection
	}
	s.entries[connID] = PresenceEntry{ConnID: connID, UserID: userID, Role: role}
	return nil
}

// Remove deregisters a connection. Removing an unknown id is a no-op.
func (r *PresenceRegistry) Remove(connID string) {
	s := r.shard(connID)
	s.mu.Lock()
	delete(s.entries, connID)
	s.mu.Unlock()
}

// Lookup returns the entry for a connection id
func (r *PresenceRegistry) Lookup(connID string) (PresenceEntry, bool) {
	s := r.shard(connID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[connID]
	return entry, ok
}

// FindByUser returns one live connection for the user, if any. With
// multiple live connections for the same user the result is arbitrary.
func (r *PresenceRegistry) FindByUser(userID uint) (PresenceEntry, bool) {
	for _, s := range r.shards {
		s.mu.RLock()
		for _, entry := range s.entries {
			if entry.UserID == userID {
				s.mu.RUnlock()
				return entry, true
			}
		}
		s.mu.RUnlock()
	}
	return PresenceEntry{}, false
}

// ListByRole returns a snapshot of the live connections with the given
// role, taken shard by shard at call time
func (r *PresenceRegistry) ListByRole(role models.UserRole) []PresenceEntry {
	var result []PresenceEntry
	for _, s := range r.shards {
		s.mu.RLock()
		for _, entry := range s.entries {
			if entry.Role == role {
				result = append(result, entry)
			}
		}
		s.mu.RUnlock()
	}
	return result
}

// Count returns the number of live connections
func (r *PresenceRegistry) Count() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}
