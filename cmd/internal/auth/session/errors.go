package session

import "errors"

var (
	// ErrSessionNotFound is returned when no session row exists for an id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRefreshStale is returned when a refresh token is well-formed but does
	// not match the stored value for its session: either the pair was already
	// rotated or the token was forged from old material. Callers must treat
	// this as terminal and restart the login flow, never retry.
	ErrRefreshStale = errors.New("refresh token stale")
)
