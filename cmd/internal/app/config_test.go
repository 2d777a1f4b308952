package app

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		AccessTokenSecret:  "access-secret-0123456789abcdef",
		RefreshTokenSecret: "refresh-secret-0123456789abcde",
		AccessTokenTTL:     90 * time.Second,
		RefreshTokenTTL:    360 * time.Hour,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	missing := validConfig()
	missing.AccessTokenSecret = ""
	if err := missing.Validate(); err == nil {
		t.Fatalf("expected error for missing access secret")
	}

	same := validConfig()
	same.RefreshTokenSecret = same.AccessTokenSecret
	if err := same.Validate(); err == nil {
		t.Fatalf("expected error for identical secrets")
	}

	badTTL := validConfig()
	badTTL.AccessTokenTTL = 0
	if err := badTTL.Validate(); err == nil {
		t.Fatalf("expected error for zero access TTL")
	}
}

func TestConfigMappings(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.TokenIssuer = "pulse-test"
	cfg.WSSendQueueSize = 128
	cfg.AuthLoginFailureMax = 7

	tc := cfg.TokenConfig()
	if tc.Issuer != "pulse-test" || string(tc.AccessSecret) != cfg.AccessTokenSecret {
		t.Fatalf("token config mapping mismatch: %+v", tc)
	}

	gc := cfg.GatewayConfig()
	if gc.SendQueueSize != 128 {
		t.Fatalf("gateway config mapping mismatch: %+v", gc)
	}

	ac := cfg.AuthConfig()
	if ac.LoginFailureMax != 7 {
		t.Fatalf("auth config mapping mismatch: %+v", ac)
	}
}
