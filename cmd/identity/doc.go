// Package identity implements Pulse's user and profile foundation.
//
// It owns the account records (phone number + password hash) created at
// registration and the profile records addressed by the realtime layer.
// The realtime core consumes only two things from here: profile lookup by
// telephone at login, and last-seen updates on connect/disconnect.
//
// This package is intentionally dependency-light and security-first.
package identity
