package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Issuer:        "pulse",
		AccessSecret:  []byte("access-secret-for-tests-only"),
		RefreshSecret: []byte("refresh-secret-for-tests-only"),
		AccessTTL:     90 * time.Second,
		RefreshTTL:    15 * 24 * time.Hour,
	}
}

func TestNewManager_RejectsBadConfig(t *testing.T) {
	req := require.New(t)

	cfg := testConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	_, err := NewManager(cfg)
	req.ErrorIs(err, ErrConfig)

	cfg = testConfig()
	cfg.AccessSecret = nil
	_, err = NewManager(cfg)
	req.ErrorIs(err, ErrConfig)

	cfg = testConfig()
	cfg.AccessTTL = 0
	_, err = NewManager(cfg)
	req.ErrorIs(err, ErrConfig)
}

func TestIssuePair_RoundTrip(t *testing.T) {
	req := require.New(t)

	mgr, err := NewManager(testConfig())
	req.NoError(err)

	now := time.Now().UTC()
	pair, err := mgr.IssuePair(now, "user-1", "profile-1", "session-1")
	req.NoError(err)
	req.NotEqual(pair.AccessToken, pair.RefreshToken)
	req.True(pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	access, err := mgr.VerifyAccess(pair.AccessToken, now.Add(time.Second))
	req.NoError(err)
	req.Equal("user-1", access.UserID)
	req.Equal("profile-1", access.ProfileID)
	req.Equal("session-1", access.SessionID)
	req.Equal("user-1", access.Subject)

	refresh, err := mgr.VerifyRefresh(pair.RefreshToken, now.Add(time.Second))
	req.NoError(err)
	req.Equal(access.SessionID, refresh.SessionID)
}

func TestVerify_RejectsCrossClassTokens(t *testing.T) {
	req := require.New(t)

	mgr, err := NewManager(testConfig())
	req.NoError(err)

	now := time.Now().UTC()
	pair, err := mgr.IssuePair(now, "user-1", "profile-1", "session-1")
	req.NoError(err)

	// A refresh token must not pass as an access token, and vice versa.
	_, err = mgr.VerifyAccess(pair.RefreshToken, now)
	req.ErrorIs(err, ErrInvalidToken)
	_, err = mgr.VerifyRefresh(pair.AccessToken, now)
	req.ErrorIs(err, ErrInvalidToken)
}

func TestVerify_RejectsExpired(t *testing.T) {
	req := require.New(t)

	mgr, err := NewManager(testConfig())
	req.NoError(err)

	now := time.Now().UTC()
	pair, err := mgr.IssuePair(now, "user-1", "profile-1", "session-1")
	req.NoError(err)

	_, err = mgr.VerifyAccess(pair.AccessToken, now.Add(91*time.Second))
	req.ErrorIs(err, ErrInvalidToken)

	// Refresh stays valid far beyond access expiry.
	_, err = mgr.VerifyRefresh(pair.RefreshToken, now.Add(24*time.Hour))
	req.NoError(err)
}

func TestVerify_RejectsGarbageAndForeignSignature(t *testing.T) {
	req := require.New(t)

	mgr, err := NewManager(testConfig())
	req.NoError(err)

	now := time.Now().UTC()
	_, err = mgr.VerifyAccess("not-a-jwt", now)
	req.ErrorIs(err, ErrInvalidToken)

	other := testConfig()
	other.AccessSecret = []byte("some-other-access-secret")
	otherMgr, err := NewManager(other)
	req.NoError(err)

	pair, err := otherMgr.IssuePair(now, "user-1", "profile-1", "session-1")
	req.NoError(err)

	_, err = mgr.VerifyAccess(pair.AccessToken, now)
	req.ErrorIs(err, ErrInvalidToken)
}
