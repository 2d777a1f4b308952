package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

// HMACEnvKey names the environment variable carrying the refresh-token HMAC
// secret.
// #nosec G101 -- variable name, not a credential.
const HMACEnvKey = "PULSE_TOKEN_HMAC_KEY"

// HashRefreshTokenHex digests a refresh token for storage. With
// PULSE_TOKEN_HMAC_KEY set the digest is keyed (HMAC-SHA256); without it the
// digest degrades to plain SHA-256 so local development needs no secret.
// Either way the output is 64 hex chars compared by exact equality.
func HashRefreshTokenHex(token string) string {
	if key := strings.TrimSpace(os.Getenv(HMACEnvKey)); key != "" {
		return HashHMACSHA256Hex(token, []byte(key))
	}
	return HashSHA256Hex(token)
}

// HashSHA256Hex returns hex(SHA-256(s)).
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns hex(HMAC-SHA256(s, key)).
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv reads and trims the configured HMAC key, enforcing a minimum
// length in bytes. Startup policy checks use this to fail fast when keyed
// digests are required.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	if minBytes > 0 && len(raw) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return []byte(raw), nil
}
