package identity

import "errors"

var (
	// ErrNotFound is returned when a user or profile row is absent.
	ErrNotFound = errors.New("identity not found")

	// ErrConflict is returned when a telephone is already registered.
	ErrConflict = errors.New("identity already exists")
)
