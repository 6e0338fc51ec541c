package password

import (
	"errors"
	"testing"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestConfirm(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if err := cfg.Confirm(h, "correct horse battery staple"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := cfg.Confirm(h, "wrong horse battery staple"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	if err := cfg.Confirm("", "anything"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch for unknown account, got %v", err)
	}
	if err := cfg.Confirm("not-a-hash", "anything"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}
