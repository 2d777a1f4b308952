// Package session owns the durable session records behind refresh tokens.
//
// One session row exists per login. The stored refresh-token digest is the
// only valid refresh credential for that session: rotation atomically swaps
// it, and deleting the row (logout) makes the whole refresh chain unusable
// immediately, without waiting for token expiry.
package session
