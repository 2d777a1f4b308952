package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"pulse/cmd/internal/auth/token"
	sectoken "pulse/cmd/security/token"
)

// Service implements the session lifecycle: issuing a session at login,
// rotating its refresh token, and revoking it at logout.
type Service struct {
	tokens *token.Manager
	store  Store
}

// Issued is the result of issuing or rotating a session.
type Issued struct {
	SessionID string
	Pair      token.Pair
}

// NewService constructs a Service from a credential manager and a store.
func NewService(tokens *token.Manager, store Store) *Service {
	return &Service{tokens: tokens, store: store}
}

// Issue creates a new session row and returns a fresh token pair bound to it.
func (s *Service) Issue(ctx context.Context, now time.Time, userID, profileID string, dev DeviceContext) (Issued, error) {
	id := ulid.Make().String()

	pair, err := s.tokens.IssuePair(now, userID, profileID, id)
	if err != nil {
		return Issued{}, err
	}

	sess := Session{
		ID:               id,
		UserID:           userID,
		ProfileID:        profileID,
		RefreshTokenHash: sectoken.HashRefreshTokenHex(pair.RefreshToken),
		CreatedAt:        now,
		ExpiresAt:        pair.RefreshExpiresAt,
		Device:           dev,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return Issued{}, fmt.Errorf("session create: %w", err)
	}

	return Issued{SessionID: id, Pair: pair}, nil
}

// Rotate exchanges a refresh token for a new pair.
//
// The session id stays stable across the rotation chain; only the stored
// refresh digest and expiry change. The store swap is guarded by an exact
// match on the presented token's digest, so a superseded token fails with
// ErrRefreshStale even if its signature is still valid.
func (s *Service) Rotate(ctx context.Context, now time.Time, refreshToken string) (Issued, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	// Bound pathological inputs before any crypto work.
	if refreshToken == "" || len(refreshToken) > 4096 {
		return Issued{}, token.ErrInvalidToken
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken, now)
	if err != nil {
		return Issued{}, err
	}

	pair, err := s.tokens.IssuePair(now, claims.UserID, claims.ProfileID, claims.SessionID)
	if err != nil {
		return Issued{}, err
	}

	oldHash := sectoken.HashRefreshTokenHex(refreshToken)
	newHash := sectoken.HashRefreshTokenHex(pair.RefreshToken)

	// Atomic swap: issuing the new pair above has no side effects, so a
	// stale-token failure here leaves the store untouched.
	if err := s.store.UpdateToken(ctx, claims.SessionID, oldHash, newHash, pair.RefreshExpiresAt); err != nil {
		return Issued{}, err
	}

	return Issued{SessionID: claims.SessionID, Pair: pair}, nil
}

// Revoke deletes the session named by a refresh token (logout).
//
// Matching the login flow it terminates, only the signature and session id
// are checked; a superseded-but-valid refresh token can still log out.
func (s *Service) Revoke(ctx context.Context, now time.Time, refreshToken string) error {
	claims, err := s.tokens.VerifyRefresh(refreshToken, now)
	if err != nil {
		return err
	}

	if _, err := s.store.GetByID(ctx, claims.SessionID); err != nil {
		return err
	}
	return s.store.Delete(ctx, claims.SessionID)
}
