package token

import (
	"errors"
	"testing"
)

func TestHashRefreshTokenHex_SHA256WithoutKey(t *testing.T) {
	t.Setenv(HMACEnvKey, "")

	got := HashRefreshTokenHex("refresh-token-value")
	want := HashSHA256Hex("refresh-token-value")
	if got != want {
		t.Fatalf("digest mismatch: got=%s want=%s", got, want)
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(got))
	}
}

func TestHashRefreshTokenHex_HMACWhenKeySet(t *testing.T) {
	const key = "0123456789abcdef0123456789abcdef"
	t.Setenv(HMACEnvKey, key)

	got := HashRefreshTokenHex("refresh-token-value")
	want := HashHMACSHA256Hex("refresh-token-value", []byte(key))
	if got != want {
		t.Fatalf("keyed digest mismatch: got=%s want=%s", got, want)
	}
	if got == HashSHA256Hex("refresh-token-value") {
		t.Fatalf("keyed digest must differ from the unkeyed digest")
	}
}

func TestHMACKeyFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := HMACKeyFromEnv(32); !errors.Is(err, ErrHMACKeyMissing) {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := HMACKeyFromEnv(32); !errors.Is(err, ErrHMACKeyTooShort) {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}

	t.Setenv(HMACEnvKey, "  0123456789abcdef0123456789abcdef  ")
	key, err := HMACKeyFromEnv(32)
	if err != nil {
		t.Fatalf("expected key, got %v", err)
	}
	if string(key) != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("expected trimmed key, got %q", string(key))
	}
}
