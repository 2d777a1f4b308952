package identity

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a map-backed Store for no-database mode and tests.
type InMemoryStore struct {
	mu          sync.Mutex
	byTelephone map[string]User
	profiles    map[string]Profile
}

// NewInMemoryStore constructs an empty in-memory identity store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byTelephone: make(map[string]User),
		profiles:    make(map[string]Profile),
	}
}

// CreateUser inserts a user row. A profile-less row holding the telephone is
// taken over: it keeps its id and gets the new credentials.
func (s *InMemoryStore) CreateUser(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byTelephone[u.Telephone]; ok {
		if existing.ProfileID != "" {
			return User{}, ErrConflict
		}
		u.ID = existing.ID
	}
	s.byTelephone[u.Telephone] = u

	// Convenience for tests: a user created with a profile id gets a profile row.
	if u.ProfileID != "" {
		s.profiles[u.ProfileID] = Profile{ID: u.ProfileID, UserID: u.ID}
	}
	return u, nil
}

// CreateProfile inserts a profile row and links it to its user.
func (s *InMemoryStore) CreateProfile(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.profiles {
		if p.Username != "" && existing.Username == p.Username {
			return ErrConflict
		}
	}
	s.profiles[p.ID] = p

	for tel, u := range s.byTelephone {
		if u.ID == p.UserID {
			u.ProfileID = p.ID
			s.byTelephone[tel] = u
			break
		}
	}
	return nil
}

// FindByTelephone loads a user by normalized telephone.
func (s *InMemoryStore) FindByTelephone(_ context.Context, telephone string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byTelephone[telephone]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// GetProfile loads a profile by id.
func (s *InMemoryStore) GetProfile(_ context.Context, profileID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[profileID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// UpdateLastSeen stamps the last-seen marker for a profile.
// Unknown profiles are a no-op to match the SQL UPDATE semantics.
func (s *InMemoryStore) UpdateLastSeen(_ context.Context, profileID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[profileID]
	if !ok {
		return nil
	}
	t := at
	p.LastSeenAt = &t
	s.profiles[profileID] = p
	return nil
}
