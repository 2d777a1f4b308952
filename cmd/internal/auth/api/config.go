package api

import "time"

// Config controls auth API behavior and security defaults.
// App config resolves the values from the environment and passes them in.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// Failed-login throttling, tracked per client IP and per telephone.
	LoginFailureMax    int
	LoginFailureWindow time.Duration
}

// DefaultConfig returns the secure defaults used when a knob is unset.
func DefaultConfig() Config {
	return Config{
		TrustProxy:         false,
		MaxBodyBytes:       1 << 20, // 1 MiB
		LoginFailureMax:    5,
		LoginFailureWindow: 15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.LoginFailureMax <= 0 {
		c.LoginFailureMax = def.LoginFailureMax
	}
	if c.LoginFailureWindow <= 0 {
		c.LoginFailureWindow = def.LoginFailureWindow
	}
	return c
}
