package session

import (
	"context"
	"time"
)

// RevokeReason records why a row stopped being usable.
type RevokeReason string

const (
	ReasonLogout       RevokeReason = "logout"
	ReasonRotated      RevokeReason = "rotated"
	ReasonRevokeOthers RevokeReason = "revoke_others"
	ReasonRevokeOne    RevokeReason = "revoke_one"
	ReasonAdminForced  RevokeReason = "admin-forced"
)

// Metadata is best-effort request context captured at issuance.
// It is shown in session listings and never used for security decisions.
type Metadata struct {
	UserAgent   string
	IPAddress   string
	CountryCode string
}

// Row mirrors a refresh_sessions row: one per issued refresh token.
type Row struct {
	ID         string
	JTI        string
	SubjectID  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Persistent bool

	Revoked       bool
	RevokedReason RevokeReason
	RevokedAt     *time.Time
	RotatedAt     *time.Time
	ReplacedByJTI *string

	Metadata Metadata
}

// Active reports whether the row is neither revoked nor expired at now.
func (r Row) Active(now time.Time) bool {
	return !r.Revoked && r.ExpiresAt.After(now)
}

type tokenState int

const (
	stateActive tokenState = iota
	stateExpired
	stateRevoked
	stateRotatedInGrace
	stateRotatedStale
)

func (s tokenState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateExpired:
		return "expired"
	case stateRevoked:
		return "revoked"
	case stateRotatedInGrace:
		return "rotated_within_grace"
	case stateRotatedStale:
		return "rotated_expired_grace"
	default:
		return "unknown"
	}
}

// state classifies the row for the rotation engine.
// A rotated row inside the grace window is still honoured even if its own
// expiry has passed; the successor's liveness decides.
func (r Row) state(now time.Time, grace time.Duration) tokenState {
	if r.Revoked {
		if r.RevokedReason != ReasonRotated || r.RotatedAt == nil || r.ReplacedByJTI == nil {
			return stateRevoked
		}
		if now.Before(r.RotatedAt.Add(grace)) {
			return stateRotatedInGrace
		}
		return stateRotatedStale
	}
	if !r.ExpiresAt.After(now) {
		return stateExpired
	}
	return stateActive
}

// Store is the durable session registry.
type Store interface {
	// Insert stores a new row. Returns ErrDuplicateJTI on a jti collision.
	Insert(ctx context.Context, row Row) error

	// GetByID loads a row by id. Returns ErrSessionNotFound when missing.
	GetByID(ctx context.Context, id string) (Row, error)

	// GetByJTI loads a row by jti without locking.
	GetByJTI(ctx context.Context, jti string) (Row, error)

	// ListActive returns non-revoked, non-expired rows of a subject, newest first.
	ListActive(ctx context.Context, subjectID string, now time.Time) ([]Row, error)

	// Revoke marks one row revoked. It reports false if the row was already revoked.
	Revoke(ctx context.Context, id string, reason RevokeReason, now time.Time) (bool, error)

	// RevokeSubject revokes every active row of a subject except exceptJTI (may be empty).
	RevokeSubject(ctx context.Context, subjectID, exceptJTI string, reason RevokeReason, now time.Time) (int, error)

	// InTx runs fn in one transaction. Locks taken by Tx.LoadForUpdate are held
	// until fn returns. Writes are discarded if fn returns an error.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view used by the rotation engine.
type Tx interface {
	// LoadForUpdate loads a row by jti and holds an exclusive lock on it.
	LoadForUpdate(ctx context.Context, jti string) (Row, error)

	GetByJTI(ctx context.Context, jti string) (Row, error)

	Insert(ctx context.Context, row Row) error

	// MarkRotated revokes the row with reason rotated and links its successor.
	MarkRotated(ctx context.Context, id, successorJTI string, now time.Time) error
}
