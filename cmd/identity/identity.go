package identity

import (
	"context"
	"time"
)

// User is Pulse's canonical security principal: one row per phone number.
// IMPORTANT: PasswordHash is a bcrypt digest; the plaintext is never stored.
type User struct {
	ID           string
	Telephone    string
	PasswordHash string

	// ProfileID is set once the user completes profile creation.
	// Realtime presence addresses profiles, not users.
	ProfileID string

	CreatedAt time.Time
}

// Profile is the addressable identity for presence and event delivery.
type Profile struct {
	ID         string
	UserID     string
	FirstName  string
	LastName   string
	Username   string
	LastSeenAt *time.Time
}

// Store abstracts persistence for users and profiles.
type Store interface {
	// CreateUser inserts a user row with a hashed password and returns the
	// stored user. A profile-less row left behind by an earlier failed
	// registration is taken over (same id, new credentials) so the telephone
	// is not stranded. ErrConflict when the telephone belongs to a user that
	// completed profile creation.
	CreateUser(ctx context.Context, u User) (User, error)

	// CreateProfile inserts the addressable profile for a user.
	// ErrConflict when the username is taken.
	CreateProfile(ctx context.Context, p Profile) error

	// FindByTelephone loads a user by normalized telephone.
	// ErrNotFound when absent.
	FindByTelephone(ctx context.Context, telephone string) (User, error)

	// GetProfile loads a profile by its id. ErrNotFound when absent.
	GetProfile(ctx context.Context, profileID string) (Profile, error)

	// UpdateLastSeen stamps the profile's last-seen marker.
	// Best-effort from the caller's perspective; errors are logged, not fatal.
	UpdateLastSeen(ctx context.Context, profileID string, at time.Time) error
}
