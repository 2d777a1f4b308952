package session

import (
	"context"
	"net"
	"time"
)

// DeviceContext describes the client device that owns a session.
// It is captured once at login from the HTTP request.
type DeviceContext struct {
	UserAgent string
	IP        net.IP
}

// Session is one durable login record.
//
// RefreshTokenHash holds the server-side digest of the current refresh token
// (see cmd/security/token); the plaintext token is never persisted.
type Session struct {
	ID               string
	UserID           string
	ProfileID        string
	RefreshTokenHash string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Device           DeviceContext
}

// Store abstracts persistence for session state.
//
// UpdateToken is the rotation primitive and must be atomic per session id:
// it swaps the stored refresh digest only when the presented digest still
// matches, so two concurrent rotations can never both succeed.
type Store interface {
	// Create inserts a new session row.
	Create(ctx context.Context, s Session) error

	// GetByID loads a session row by id. ErrSessionNotFound when absent.
	GetByID(ctx context.Context, id string) (Session, error)

	// UpdateToken atomically replaces the stored refresh digest and expiry,
	// guarded by an exact match on the previous digest.
	// ErrRefreshStale when the session is absent or the digest does not match.
	UpdateToken(ctx context.Context, id, oldRefreshHash, newRefreshHash string, newExpiresAt time.Time) error

	// Delete removes a session row, revoking its refresh chain permanently.
	// ErrSessionNotFound when absent.
	Delete(ctx context.Context, id string) error
}
