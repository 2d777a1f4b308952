// Package token implements the Pulse credential service: issuing and
// verifying paired access/refresh JWTs.
//
// The two token classes are signed with distinct HMAC secrets and distinct
// expiry windows. Access tokens are short-lived and self-verifying (no store
// lookup); refresh tokens are long-lived and only become authoritative after
// the session store cross-check performed by the session service.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// ErrInvalidToken is returned when a token fails signature, structure, or
// expiry checks. It maps to the Unauthenticated class: the bearer presented
// no usable credential.
var ErrInvalidToken = errors.New("invalid token")

// ErrConfig is returned for invalid manager configuration.
var ErrConfig = errors.New("invalid token config")

// Claims is the identity envelope carried by both token classes.
// Subject duplicates UserID in the registered claims.
type Claims struct {
	UserID    string `json:"userId"`
	ProfileID string `json:"profileId"`
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// Pair is an issued access/refresh token pair with expiry metadata.
type Pair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Config defines signing material and expiry windows for the manager.
type Config struct {
	Issuer string

	AccessSecret  []byte
	RefreshSecret []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Manager signs and verifies access/refresh token pairs.
type Manager struct {
	cfg Config
}

// NewManager validates cfg and constructs a Manager.
// The two secrets must be non-empty and distinct: a refresh token must never
// verify under the access secret or vice versa.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, ErrConfig
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, ErrConfig
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, ErrConfig
	}
	return &Manager{cfg: cfg}, nil
}

// IssuePair signs an access token and a refresh token carrying the same
// subject/identity/session claims.
func (m *Manager) IssuePair(now time.Time, userID, profileID, sessionID string) (Pair, error) {
	accessExp := now.Add(m.cfg.AccessTTL)
	refreshExp := now.Add(m.cfg.RefreshTTL)

	access, err := m.sign(now, accessExp, m.cfg.AccessSecret, userID, profileID, sessionID)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.sign(now, refreshExp, m.cfg.RefreshSecret, userID, profileID, sessionID)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess checks signature and expiry of an access token. No external I/O.
func (m *Manager) VerifyAccess(tokenString string, now time.Time) (Claims, error) {
	return m.verify(tokenString, now, m.cfg.AccessSecret)
}

// VerifyRefresh checks signature and expiry of a refresh token.
// The caller is responsible for the session-store cross-check.
func (m *Manager) VerifyRefresh(tokenString string, now time.Time) (Claims, error) {
	return m.verify(tokenString, now, m.cfg.RefreshSecret)
}

// AccessTTL reports the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.cfg.AccessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }

func (m *Manager) sign(now, exp time.Time, secret []byte, userID, profileID, sessionID string) (string, error) {
	claims := Claims{
		UserID:    userID,
		ProfileID: profileID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			// Unique per token: two pairs issued within the same second for the
			// same session must still produce distinct refresh tokens.
			ID: ulid.Make().String(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *Manager) verify(tokenString string, now time.Time, secret []byte) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.UserID == "" || claims.ProfileID == "" || claims.SessionID == "" {
		return Claims{}, ErrInvalidToken
	}

	return *claims, nil
}
