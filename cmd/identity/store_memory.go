package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"sessiond/cmd/identity/ids"
)

// MemoryStore is an in-process account directory for dev mode and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]Account
	byName map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]Account),
		byName: make(map[string]string),
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	in, err := in.normalize(op)
	if err != nil {
		return Account{}, err
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[in.Username]; exists {
		return Account{}, ConflictError{Op: op, Field: "username"}
	}
	acc := Account{
		ID:           id,
		Username:     in.Username,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		CreatedAt:    in.Now,
	}
	s.byID[id] = acc
	s.byName[in.Username] = id
	return acc, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Account{}, NotFoundError{Op: "identity.GetByID", Resource: "account"}
	}
	return acc, nil
}

func (s *MemoryStore) GetByUsername(_ context.Context, username string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[NormalizeUsername(username)]
	if !ok {
		return Account{}, NotFoundError{Op: "identity.GetByUsername", Resource: "account"}
	}
	return s.byID[id], nil
}

// Lock sets locked_until for an account.
func (s *MemoryStore) Lock(_ context.Context, id string, until time.Time) error {
	return s.update(id, func(a *Account) { a.LockedUntil = &until })
}

// Delete soft-deletes an account.
func (s *MemoryStore) Delete(_ context.Context, id string, now time.Time) error {
	return s.update(id, func(a *Account) { a.DeletedAt = &now })
}

// RequirePasswordReset flags an account for a forced password reset.
func (s *MemoryStore) RequirePasswordReset(_ context.Context, id string) error {
	return s.update(id, func(a *Account) { a.PasswordResetRequired = true })
}

func (s *MemoryStore) update(id string, fn func(*Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: "identity.update", Resource: "account"}
	}
	fn(&acc)
	s.byID[id] = acc
	return nil
}
