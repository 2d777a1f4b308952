package app

import (
	"errors"

	sectoken "pulse/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
// Fail-fast: production must never silently fall back to unkeyed
// refresh-token digests.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// 32 bytes minimum for an HMAC-SHA256 secret, measured as raw bytes.
	if _, err := sectoken.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, sectoken.ErrHMACKeyMissing):
			return errors.New("security policy: PULSE_REQUIRE_TOKEN_HMAC=true but PULSE_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, sectoken.ErrHMACKeyTooShort):
			return errors.New("security policy: PULSE_REQUIRE_TOKEN_HMAC=true but PULSE_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}
	return nil
}
