package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (pulse.sessions).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, sess Session) error {
	var ip net.IP
	if sess.Device.IP != nil {
		ip = sess.Device.IP
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pulse.sessions (
			id, user_id, profile_id, refresh_token_hash,
			created_at, expires_at, user_agent, ip
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sess.ID, sess.UserID, sess.ProfileID, sess.RefreshTokenHash,
		sess.CreatedAt, sess.ExpiresAt, nullIfEmpty(sess.Device.UserAgent), ip)
	return err
}

// GetByID loads a session row by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Session, error) {
	var (
		sess Session
		ua   *string
		ip   net.IP
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, profile_id, refresh_token_hash, created_at, expires_at, user_agent, ip
		FROM pulse.sessions
		WHERE id = $1
	`, id).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.ProfileID,
		&sess.RefreshTokenHash,
		&sess.CreatedAt,
		&sess.ExpiresAt,
		&ua,
		&ip,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}

	if ua != nil {
		sess.Device.UserAgent = *ua
	}
	sess.Device.IP = ip
	return sess, nil
}

// UpdateToken swaps the refresh digest in a single conditional statement.
// The WHERE clause carries both the id and the previous digest, which makes
// concurrent rotations mutually exclusive without an explicit transaction.
func (s *PostgresStore) UpdateToken(ctx context.Context, id, oldRefreshHash, newRefreshHash string, newExpiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pulse.sessions
		SET refresh_token_hash = $3,
		    expires_at = $4
		WHERE id = $1 AND refresh_token_hash = $2
	`, id, oldRefreshHash, newRefreshHash, newExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRefreshStale
	}
	return nil
}

// Delete removes a session row.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pulse.sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
