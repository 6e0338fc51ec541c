package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"sessiond/cmd/identity"
)

func TestFacts_Status(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		facts Facts
		want  Status
	}{
		{name: "active", facts: Facts{}, want: StatusActive},
		{name: "deleted", facts: Facts{Deleted: true, PasswordResetRequired: true}, want: StatusDeleted},
		{name: "locked future", facts: Facts{LockedUntil: now.Add(time.Minute)}, want: StatusLocked},
		{name: "lock elapsed", facts: Facts{LockedUntil: now.Add(-time.Minute)}, want: StatusActive},
		{name: "lock ends now", facts: Facts{LockedUntil: now}, want: StatusActive},
		{name: "reset", facts: Facts{PasswordResetRequired: true}, want: StatusPasswordResetRequired},
		{name: "locked beats reset", facts: Facts{LockedUntil: now.Add(time.Hour), PasswordResetRequired: true}, want: StatusLocked},
	}

	for _, tc := range cases {
		if got := tc.facts.Status(now); got != tc.want {
			t.Fatalf("%s: status=%v want=%v", tc.name, got, tc.want)
		}
	}
}

func TestStatus_Err(t *testing.T) {
	t.Parallel()

	if StatusActive.Err() != nil || StatusActive.Blocked() {
		t.Fatalf("active must not be blocked")
	}
	for _, s := range []Status{StatusDeleted, StatusLocked, StatusPasswordResetRequired} {
		if !s.Blocked() {
			t.Fatalf("%v must be blocked", s)
		}
		if !errors.Is(s.Err(), ErrAccountBlocked) {
			t.Fatalf("%v error must wrap ErrAccountBlocked", s)
		}
	}
	if !errors.Is(StatusLocked.Err(), ErrAccountLocked) {
		t.Fatalf("locked must map to ErrAccountLocked")
	}
}

func TestAccountGuard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	accounts := identity.NewMemoryStore()

	acc, err := accounts.CreateAccount(ctx, identity.CreateAccountInput{Username: "dave", PasswordHash: "x", Now: now})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	g := NewAccountGuard(accounts)

	if st, err := g.Check(ctx, acc.ID, now); err != nil || st != StatusActive {
		t.Fatalf("fresh account: st=%v err=%v", st, err)
	}

	if err := accounts.Lock(ctx, acc.ID, now.Add(10*time.Minute)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if st, _ := g.Check(ctx, acc.ID, now); st != StatusLocked {
		t.Fatalf("expected locked, got %v", st)
	}
	if st, _ := g.Check(ctx, acc.ID, now.Add(11*time.Minute)); st != StatusActive {
		t.Fatalf("expected lock to lapse, got %v", st)
	}

	if st, _ := g.Check(ctx, "missing", now); st != StatusDeleted {
		t.Fatalf("missing account must read as deleted, got %v", st)
	}
}
