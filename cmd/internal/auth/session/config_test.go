package session

import (
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{name: "zero persistent ttl", mut: func(c *Config) { c.RefreshTTLPersistent = 0 }},
		{name: "negative session ttl", mut: func(c *Config) { c.RefreshTTLSession = -time.Hour }},
		{name: "negative grace", mut: func(c *Config) { c.RotationGrace = -time.Second }},
		{name: "session longer than persistent", mut: func(c *Config) { c.RefreshTTLSession = 60 * 24 * time.Hour }},
	}

	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mut(&cfg)
		if err := cfg.Validate(); err != ErrConfig {
			t.Fatalf("%s: expected ErrConfig, got %v", tc.name, err)
		}
	}
}

func TestConfig_ZeroGraceAllowed(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RotationGrace = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero grace must be allowed: %v", err)
	}
}
