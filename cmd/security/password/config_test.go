package password

import (
	"errors"
	"testing"
)

func TestDefaultConfig_PassesValidateParams(t *testing.T) {
	if err := DefaultConfig().ValidateParams(); err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}
}

func TestValidateParams_Rejects(t *testing.T) {
	cases := map[string]func(*Config){
		"memory too low":       func(c *Config) { c.Params.MemoryKiB = 1024 },
		"memory too high":      func(c *Config) { c.Params.MemoryKiB = 2 * 1024 * 1024 },
		"zero iterations":      func(c *Config) { c.Params.Iterations = 0 },
		"too many iterations":  func(c *Config) { c.Params.Iterations = 21 },
		"zero parallelism":     func(c *Config) { c.Params.Parallelism = 0 },
		"parallelism too high": func(c *Config) { c.Params.Parallelism = 65 },
		"short salt":           func(c *Config) { c.Params.SaltLength = 4 },
		"short key":            func(c *Config) { c.Params.KeyLength = 8 },
		"min above max":        func(c *Config) { c.Policy.MinLength, c.Policy.MaxLength = 20, 10 },
		"zero min length":      func(c *Config) { c.Policy.MinLength = 0 },
		"max length too high":  func(c *Config) { c.Policy.MaxLength = 5000 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if err := cfg.ValidateParams(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
