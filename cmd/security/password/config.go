package password

import (
	"fmt"
	"runtime"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// RejectVeryWeak turns on the trivial-password check in Validate.
	RejectVeryWeak bool
}

// Config carries hashing cost and the password policy.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the baseline for interactive logins.
func DefaultConfig() Config {
	// Parallelism follows the CPU count, clamped to [1..4].
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      12,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// Bounds accepted by ValidateParams.
const (
	minMemoryKiB   = 8 * 1024
	maxMemoryKiB   = 1024 * 1024
	maxIterations  = 20
	maxParallelism = 64
	maxLengthLimit = 4096
)

// ValidateParams rejects cost and policy settings outside safe operating bounds.
// It is run once at startup; Validate checks individual passwords.
func (c Config) ValidateParams() error {
	p, pol := c.Params, c.Policy
	switch {
	case p.MemoryKiB < minMemoryKiB || p.MemoryKiB > maxMemoryKiB:
		return fmt.Errorf("%w: memory %d KiB outside [%d..%d]", ErrInvalidConfig, p.MemoryKiB, minMemoryKiB, maxMemoryKiB)
	case p.Iterations < 1 || p.Iterations > maxIterations:
		return fmt.Errorf("%w: iterations %d outside [1..%d]", ErrInvalidConfig, p.Iterations, maxIterations)
	case p.Parallelism < 1 || p.Parallelism > maxParallelism:
		return fmt.Errorf("%w: parallelism %d outside [1..%d]", ErrInvalidConfig, p.Parallelism, maxParallelism)
	case p.SaltLength < 8 || p.SaltLength > 64:
		return fmt.Errorf("%w: salt length %d outside [8..64]", ErrInvalidConfig, p.SaltLength)
	case p.KeyLength < 16 || p.KeyLength > 64:
		return fmt.Errorf("%w: key length %d outside [16..64]", ErrInvalidConfig, p.KeyLength)
	case pol.MinLength < 1 || pol.MaxLength > maxLengthLimit:
		return fmt.Errorf("%w: length limits %d..%d outside [1..%d]", ErrInvalidConfig, pol.MinLength, pol.MaxLength, maxLengthLimit)
	case pol.MinLength > pol.MaxLength:
		return fmt.Errorf("%w: min length %d > max length %d", ErrInvalidConfig, pol.MinLength, pol.MaxLength)
	}
	return nil
}
