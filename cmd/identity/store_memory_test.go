package identity

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_CreateAndLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	acc, err := s.CreateAccount(ctx, CreateAccountInput{Username: "  Alice ", PasswordHash: "$argon2id$stub"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acc.Username != "alice" || acc.Role != RoleUser || len(acc.ID) != 26 {
		t.Fatalf("unexpected account: %+v", acc)
	}

	byName, err := s.GetByUsername(ctx, "ALICE")
	if err != nil || byName.ID != acc.ID {
		t.Fatalf("GetByUsername: acc=%+v err=%v", byName, err)
	}
	byID, err := s.GetByID(ctx, acc.ID)
	if err != nil || byID.Username != "alice" {
		t.Fatalf("GetByID: acc=%+v err=%v", byID, err)
	}

	if _, err := s.CreateAccount(ctx, CreateAccountInput{Username: "alice", PasswordHash: "x"}); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := s.GetByID(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStore_InvalidInput(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	cases := []CreateAccountInput{
		{Username: "", PasswordHash: "x"},
		{Username: "bob", PasswordHash: ""},
		{Username: "bob", PasswordHash: "x", Role: "root"},
	}
	for i, in := range cases {
		if _, err := s.CreateAccount(context.Background(), in); !IsInvalidInput(err) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestMemoryStore_BlockingFlags(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()

	acc, err := s.CreateAccount(ctx, CreateAccountInput{Username: "carol", PasswordHash: "x", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !acc.IsAdmin() {
		t.Fatalf("expected admin role")
	}

	if err := s.Lock(ctx, acc.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := s.RequirePasswordReset(ctx, acc.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := s.Delete(ctx, acc.ID, now); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := s.GetByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LockedUntil == nil || !got.LockedUntil.Equal(now.Add(time.Hour)) {
		t.Fatalf("locked_until not set: %+v", got)
	}
	if !got.PasswordResetRequired || got.DeletedAt == nil {
		t.Fatalf("flags not set: %+v", got)
	}
	if err := s.Lock(ctx, "missing", now); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
