package session

import "time"

// Config is the rotation policy handed to the Service at construction.
type Config struct {
	// RotationEnabled switches between rotating refresh tokens on every use
	// and re-minting the same session (same jti, same expiry).
	RotationEnabled bool

	// RotationGrace is how long a rotated token still yields its successor's credentials.
	RotationGrace time.Duration

	// RefreshTTLPersistent applies to "remember me" sessions.
	RefreshTTLPersistent time.Duration

	// RefreshTTLSession applies to browser-session-only sessions.
	RefreshTTLSession time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RotationEnabled:      true,
		RotationGrace:        30 * time.Second,
		RefreshTTLPersistent: 30 * 24 * time.Hour,
		RefreshTTLSession:    24 * time.Hour,
	}
}

// Validate returns ErrConfig if the policy is unusable.
func (c Config) Validate() error {
	if c.RefreshTTLPersistent <= 0 || c.RefreshTTLSession <= 0 {
		return ErrConfig
	}
	if c.RotationGrace < 0 {
		return ErrConfig
	}
	// A session-only lifetime longer than "remember me" is a misconfiguration.
	if c.RefreshTTLSession > c.RefreshTTLPersistent {
		return ErrConfig
	}
	return nil
}

func (c Config) refreshTTL(persistent bool) time.Duration {
	if persistent {
		return c.RefreshTTLPersistent
	}
	return c.RefreshTTLSession
}
