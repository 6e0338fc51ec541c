package password

import (
	"sync"
)

var (
	dummyOnce sync.Once
	dummyHash string
)

// Confirm verifies password against encodedHash and reports ErrMismatch on a
// wrong password. An empty encodedHash (unknown account) still runs a full
// Argon2id derivation against a throwaway hash before returning ErrMismatch.
func (c Config) Confirm(encodedHash, password string) error {
	if encodedHash == "" {
		c.burn(password)
		return ErrMismatch
	}
	ok, err := c.Verify(encodedHash, password)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMismatch
	}
	return nil
}

func (c Config) burn(password string) {
	dummyOnce.Do(func() {
		cfg := c
		cfg.Policy.MinLength = 1
		h, err := cfg.Hash("sessiond-unknown-account")
		if err == nil {
			dummyHash = h
		}
	})
	if dummyHash != "" {
		_, _ = c.Verify(dummyHash, password)
	}
}
