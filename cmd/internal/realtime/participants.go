package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ParticipantStore resolves the profile ids participating in a chat.
// It is the authorization boundary for chat-scoped fanout: a sender not in
// the returned set must not reach the other participants.
type ParticipantStore interface {
	ListProfileIDs(ctx context.Context, chatID string) ([]string, error)
}

// PostgresParticipantStore reads participants from pulse.chat_participants.
type PostgresParticipantStore struct {
	pool *pgxpool.Pool
}

// NewPostgresParticipantStore constructs a participant store backed by PostgreSQL.
func NewPostgresParticipantStore(pool *pgxpool.Pool) (*PostgresParticipantStore, error) {
	if pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	return &PostgresParticipantStore{pool: pool}, nil
}

// ListProfileIDs returns the profile ids of all participants of chatID.
// An unknown chat yields an empty set, not an error.
func (s *PostgresParticipantStore) ListProfileIDs(ctx context.Context, chatID string) ([]string, error) {
	if chatID == "" {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT profile_id FROM pulse.chat_participants WHERE chat_id = $1`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// InMemoryParticipantStore is a fixture-style participant store for
// no-database mode and tests.
type InMemoryParticipantStore struct {
	mu    sync.RWMutex
	chats map[string][]string
}

// NewInMemoryParticipantStore constructs an empty in-memory participant store.
func NewInMemoryParticipantStore() *InMemoryParticipantStore {
	return &InMemoryParticipantStore{chats: make(map[string][]string)}
}

// SetChat replaces the participant set for a chat.
func (s *InMemoryParticipantStore) SetChat(chatID string, profileIDs ...string) {
	s.mu.Lock()
	s.chats[chatID] = append([]string(nil), profileIDs...)
	s.mu.Unlock()
}

// ListProfileIDs returns the participant set for a chat.
func (s *InMemoryParticipantStore) ListProfileIDs(_ context.Context, chatID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.chats[chatID]...), nil
}
