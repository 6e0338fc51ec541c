package identity

import (
	"context"
	"strings"
	"time"
)

// Role gates admin-scoped endpoints.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account is sessiond's canonical credential subject.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time

	DeletedAt             *time.Time
	LockedUntil           *time.Time
	PasswordResetRequired bool
}

// IsAdmin reports whether the account may use admin-scoped endpoints.
func (a Account) IsAdmin() bool { return a.Role == RoleAdmin }

// CreateAccountInput describes a new account. PasswordHash must already be
// an Argon2id PHC string.
type CreateAccountInput struct {
	Username     string
	PasswordHash string
	Role         Role
	Now          time.Time
}

// Store reads accounts.
type Store interface {
	GetByID(ctx context.Context, id string) (Account, error)
	GetByUsername(ctx context.Context, username string) (Account, error)
}

// Writer creates accounts. Used for seeding; account management is owned elsewhere.
type Writer interface {
	CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error)
}

func (in CreateAccountInput) normalize(op string) (CreateAccountInput, error) {
	in.Username = NormalizeUsername(in.Username)
	if in.Username == "" {
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username required"}
	}
	if in.PasswordHash == "" {
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash required"}
	}
	if in.Role == "" {
		in.Role = RoleUser
	}
	if in.Role != RoleUser && in.Role != RoleAdmin {
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "unknown role"}
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

// NormalizeUsername is the canonical lookup form: trimmed, lower-cased.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
