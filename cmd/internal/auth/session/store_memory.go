package session

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a map-backed Store used when no database is configured
// and in tests. All operations are serialized by a single mutex, which gives
// UpdateToken the same compare-and-swap semantics as the SQL variant.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]Session)}
}

// Create inserts a new session.
func (s *InMemoryStore) Create(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess
	return nil
}

// GetByID loads a session by id.
func (s *InMemoryStore) GetByID(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// UpdateToken swaps the refresh digest if and only if the old digest matches.
func (s *InMemoryStore) UpdateToken(_ context.Context, id, oldRefreshHash, newRefreshHash string, newExpiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.RefreshTokenHash != oldRefreshHash {
		return ErrRefreshStale
	}

	sess.RefreshTokenHash = newRefreshHash
	sess.ExpiresAt = newExpiresAt
	s.sessions[id] = sess
	return nil
}

// Delete removes a session.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}
