package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL (pulse.users / pulse.profiles).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed identity store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// CreateUser inserts a user row. A telephone held by a profile-less row is
// taken over in the same statement: the row keeps its id but gets the new
// credentials. RETURNING yields no row when the conflicting user already has
// a profile, which maps to ErrConflict.
func (s *PostgresStore) CreateUser(ctx context.Context, u User) (User, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pulse.users (id, telephone, password_hash, profile_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (telephone) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
		    created_at = EXCLUDED.created_at
		WHERE pulse.users.profile_id IS NULL
		RETURNING id, created_at
	`, u.ID, u.Telephone, u.PasswordHash, nullIfEmpty(u.ProfileID), u.CreatedAt).
		Scan(&u.ID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrConflict
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// CreateProfile inserts a profile row and links it to its user.
func (s *PostgresStore) CreateProfile(ctx context.Context, p Profile) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO pulse.profiles (id, user_id, first_name, last_name, username)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.UserID, p.FirstName, p.LastName, nullIfEmpty(p.Username))

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrConflict
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE pulse.users SET profile_id = $2 WHERE id = $1
	`, p.UserID, p.ID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindByTelephone loads a user by normalized telephone.
func (s *PostgresStore) FindByTelephone(ctx context.Context, telephone string) (User, error) {
	var (
		u         User
		profileID *string
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, telephone, password_hash, profile_id, created_at
		FROM pulse.users
		WHERE telephone = $1
	`, telephone).Scan(&u.ID, &u.Telephone, &u.PasswordHash, &profileID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}

	if profileID != nil {
		u.ProfileID = *profileID
	}
	return u, nil
}

// GetProfile loads a profile by id.
func (s *PostgresStore) GetProfile(ctx context.Context, profileID string) (Profile, error) {
	var p Profile

	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, first_name, last_name, COALESCE(username, ''), last_seen_at
		FROM pulse.profiles
		WHERE id = $1
	`, profileID).Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Username, &p.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}

	return p, nil
}

// UpdateLastSeen stamps last_seen_at for a profile.
func (s *PostgresStore) UpdateLastSeen(ctx context.Context, profileID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pulse.profiles
		SET last_seen_at = $2
		WHERE id = $1
	`, profileID, at)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
