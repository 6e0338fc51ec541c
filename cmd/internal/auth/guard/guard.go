// Package guard decides whether a subject may receive new credentials.
//
// The session service consults a Guard before every mint. A blocked subject
// is rejected with a reason the client may see (deleted, locked, password
// reset required); these are not security-ambiguous, so they are not folded
// into the generic invalid-token outcome.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sessiond/cmd/identity"
)

// ErrAccountBlocked is the umbrella for every blocking reason.
var ErrAccountBlocked = errors.New("account blocked")

var (
	ErrAccountDeleted        = fmt.Errorf("%w: deleted", ErrAccountBlocked)
	ErrAccountLocked         = fmt.Errorf("%w: locked", ErrAccountBlocked)
	ErrPasswordResetRequired = fmt.Errorf("%w: password reset required", ErrAccountBlocked)
)

// Status is the outcome of a guard check.
type Status int

const (
	StatusActive Status = iota
	StatusDeleted
	StatusLocked
	StatusPasswordResetRequired
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusDeleted:
		return "deleted"
	case StatusLocked:
		return "locked"
	case StatusPasswordResetRequired:
		return "password_reset_required"
	default:
		return "unknown"
	}
}

// Blocked reports whether s forbids minting credentials.
func (s Status) Blocked() bool { return s != StatusActive }

// Err maps s to its sentinel error, or nil when active.
func (s Status) Err() error {
	switch s {
	case StatusActive:
		return nil
	case StatusDeleted:
		return ErrAccountDeleted
	case StatusLocked:
		return ErrAccountLocked
	case StatusPasswordResetRequired:
		return ErrPasswordResetRequired
	default:
		return ErrAccountBlocked
	}
}

// Facts are the account attributes a decision is derived from.
type Facts struct {
	Deleted               bool
	LockedUntil           time.Time
	PasswordResetRequired bool
}

// Status evaluates facts at now. Deleted wins over locked, locked over reset.
func (f Facts) Status(now time.Time) Status {
	switch {
	case f.Deleted:
		return StatusDeleted
	case !f.LockedUntil.IsZero() && f.LockedUntil.After(now):
		return StatusLocked
	case f.PasswordResetRequired:
		return StatusPasswordResetRequired
	default:
		return StatusActive
	}
}

// Guard is consulted before minting credentials for a subject.
type Guard interface {
	Check(ctx context.Context, subjectID string, now time.Time) (Status, error)
}

// Invalidator is implemented by guards that cache facts. Callers drop the
// cached entry after an administrative action on the subject.
type Invalidator interface {
	Invalidate(ctx context.Context, subjectID string) error
}

// Source loads the facts for a subject.
type Source interface {
	Facts(ctx context.Context, subjectID string) (Facts, error)
}

// Func adapts a plain function to Guard.
type Func func(ctx context.Context, subjectID string, now time.Time) (Status, error)

func (f Func) Check(ctx context.Context, subjectID string, now time.Time) (Status, error) {
	return f(ctx, subjectID, now)
}

// AccountGuard reads blocking flags from the identity account directory.
type AccountGuard struct {
	accounts identity.Store
}

func NewAccountGuard(accounts identity.Store) *AccountGuard {
	return &AccountGuard{accounts: accounts}
}

// Facts loads the account. A missing account counts as deleted.
func (g *AccountGuard) Facts(ctx context.Context, subjectID string) (Facts, error) {
	acc, err := g.accounts.GetByID(ctx, subjectID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Facts{Deleted: true}, nil
		}
		return Facts{}, fmt.Errorf("guard: load account: %w", err)
	}
	f := Facts{
		Deleted:               acc.DeletedAt != nil,
		PasswordResetRequired: acc.PasswordResetRequired,
	}
	if acc.LockedUntil != nil {
		f.LockedUntil = *acc.LockedUntil
	}
	return f, nil
}

func (g *AccountGuard) Check(ctx context.Context, subjectID string, now time.Time) (Status, error) {
	f, err := g.Facts(ctx, subjectID)
	if err != nil {
		return StatusActive, err
	}
	return f.Status(now), nil
}
