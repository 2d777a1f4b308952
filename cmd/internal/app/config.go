package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"

	"pulse/cmd/internal/auth/api"
	"pulse/cmd/internal/auth/token"
	"pulse/cmd/internal/realtime"
)

// envPrefix namespaces all environment variables (PULSE_HTTP_ADDR, ...).
const envPrefix = "pulse"

// Config contains all runtime configuration, loaded from PULSE_* environment
// variables.
type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:"0.0.0.0:8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	ReadHeaderTimeout time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout       time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes    int           `envconfig:"HTTP_MAX_HEADER_BYTES" default:"1048576"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"0"`

	// If true, /readyz returns 503 unless the database is configured and
	// reachable.
	ReadinessRequireDB bool `envconfig:"READINESS_REQUIRE_DB" default:"false"`

	// If true, PULSE_TOKEN_HMAC_KEY must be set (>= 32 bytes) so stored
	// refresh-token digests are keyed.
	RequireTokenHMAC bool `envconfig:"REQUIRE_TOKEN_HMAC" default:"false"`

	// Credential service. The two secrets must be distinct; access tokens are
	// deliberately short-lived.
	TokenIssuer        string        `envconfig:"TOKEN_ISSUER" default:"pulse"`
	AccessTokenSecret  string        `envconfig:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string        `envconfig:"REFRESH_TOKEN_SECRET"`
	AccessTokenTTL     time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"90s"`
	RefreshTokenTTL    time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"360h"`

	// Auth HTTP surface.
	AuthTrustProxy         bool          `envconfig:"AUTH_TRUST_PROXY" default:"false"`
	AuthMaxBodyBytes       int64         `envconfig:"AUTH_MAX_BODY_BYTES" default:"1048576"`
	AuthLoginFailureMax    int           `envconfig:"AUTH_LOGIN_FAILURE_MAX" default:"5"`
	AuthLoginFailureWindow time.Duration `envconfig:"AUTH_LOGIN_FAILURE_WINDOW" default:"15m"`

	// CORS for the auth endpoints (the websocket enforces its own origin policy).
	CORSAllowedOrigins   []string `envconfig:"CORS_ALLOWED_ORIGINS"`
	CORSAllowCredentials bool     `envconfig:"CORS_ALLOW_CREDENTIALS" default:"false"`
	CORSMaxAgeSeconds    int      `envconfig:"CORS_MAX_AGE_SECONDS" default:"600"`

	// Websocket gateway.
	WSOriginRequired      bool          `envconfig:"WS_ORIGIN_REQUIRED" default:"true"`
	WSAllowedOrigins      []string      `envconfig:"WS_ALLOWED_ORIGINS" default:"http://localhost,http://127.0.0.1"`
	WSDevInsecure         bool          `envconfig:"WS_DEV_INSECURE" default:"false"`
	WSWriteTimeout        time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"5s"`
	WSReadIdleTimeout     time.Duration `envconfig:"WS_READ_IDLE_TIMEOUT" default:"2m"`
	WSSendQueueSize       int           `envconfig:"WS_SEND_QUEUE" default:"256"`
	WSHeartbeatInterval   time.Duration `envconfig:"WS_HEARTBEAT_INTERVAL" default:"25s"`
	WSHeartbeatTimeout    time.Duration `envconfig:"WS_HEARTBEAT_TIMEOUT" default:"5s"`
	WSRateEvents          int           `envconfig:"WS_RATE_EVENTS" default:"120"`
	WSRateWindow          time.Duration `envconfig:"WS_RATE_WINDOW" default:"10s"`
}

// LoadConfig loads Config from the environment and validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the startup invariants that must fail fast.
func (c Config) Validate() error {
	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		return errors.New("config: PULSE_ACCESS_TOKEN_SECRET and PULSE_REFRESH_TOKEN_SECRET are required")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("config: access and refresh token secrets must differ")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	return nil
}

// TokenConfig maps the config onto the credential service.
func (c Config) TokenConfig() token.Config {
	return token.Config{
		Issuer:        c.TokenIssuer,
		AccessSecret:  []byte(c.AccessTokenSecret),
		RefreshSecret: []byte(c.RefreshTokenSecret),
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
	}
}

// AuthConfig maps the config onto the auth HTTP surface.
func (c Config) AuthConfig() api.Config {
	return api.Config{
		TrustProxy:         c.AuthTrustProxy,
		MaxBodyBytes:       c.AuthMaxBodyBytes,
		LoginFailureMax:    c.AuthLoginFailureMax,
		LoginFailureWindow: c.AuthLoginFailureWindow,
	}
}

// GatewayConfig maps the config onto the websocket gateway.
func (c Config) GatewayConfig() realtime.GatewayConfig {
	return realtime.GatewayConfig{
		OriginRequired:    c.WSOriginRequired,
		AllowedOrigins:    c.WSAllowedOrigins,
		DevInsecure:       c.WSDevInsecure,
		WriteTimeout:      c.WSWriteTimeout,
		ReadIdleTimeout:   c.WSReadIdleTimeout,
		SendQueueSize:     c.WSSendQueueSize,
		HeartbeatInterval: c.WSHeartbeatInterval,
		HeartbeatTimeout:  c.WSHeartbeatTimeout,
		RateEvents:        c.WSRateEvents,
		RateWindow:        c.WSRateWindow,
	}
}
