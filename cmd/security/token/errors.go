package token

import "errors"

var (
	// ErrHMACKeyMissing indicates PULSE_TOKEN_HMAC_KEY is unset or blank.
	ErrHMACKeyMissing = errors.New("refresh token HMAC key not configured")
	// ErrHMACKeyTooShort indicates the configured key is below the required length.
	ErrHMACKeyTooShort = errors.New("refresh token HMAC key below minimum length")
)
