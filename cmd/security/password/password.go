// Package password provides password hashing and verification for Pulse.
//
// It wraps bcrypt with explicit cost and input-length bounds. Hash strings are
// treated as untrusted input during Verify and are validated by bcrypt itself.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt work factor used for new hashes.
	DefaultCost = 10

	// maxPasswordBytes guards against bcrypt's 72-byte truncation silently
	// accepting oversized inputs.
	maxPasswordBytes = 72
)

var (
	// ErrPasswordTooLong is returned when the plaintext exceeds bcrypt's input bound.
	ErrPasswordTooLong = errors.New("password too long")

	// ErrMismatch is returned when the plaintext does not match the stored hash.
	ErrMismatch = errors.New("password mismatch")
)

// Hash returns a salted bcrypt hash of plain.
func Hash(plain string) (string, error) {
	if len(plain) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify compares plain against a stored bcrypt hash.
// Returns ErrMismatch when the password is wrong, and the underlying bcrypt
// error when the stored hash itself is malformed.
func Verify(plain, hash string) error {
	if len(plain) > maxPasswordBytes {
		return ErrMismatch
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
