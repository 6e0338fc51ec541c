package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process registry used in dev mode (no database) and tests.
//
// Row locks are per-jti channels; waiting honours context cancellation.
// Transactional writes are buffered and applied atomically on success.
type MemoryStore struct {
	mu    sync.RWMutex
	rows  map[string]Row    // id -> row
	byJTI map[string]string // jti -> id

	locks *jtiLocks
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:  make(map[string]Row),
		byJTI: make(map[string]string),
		locks: newJTILocks(),
	}
}

func (s *MemoryStore) Insert(_ context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInsert(row); err != nil {
		return err
	}
	s.applyInsert(row)
	return nil
}

func (s *MemoryStore) checkInsert(row Row) error {
	if _, exists := s.byJTI[row.JTI]; exists {
		return ErrDuplicateJTI
	}
	if _, exists := s.rows[row.ID]; exists {
		return ErrDuplicateJTI
	}
	return nil
}

func (s *MemoryStore) applyInsert(row Row) {
	s.rows[row.ID] = cloneRow(row)
	s.byJTI[row.JTI] = row.ID
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[strings.TrimSpace(id)]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return cloneRow(row), nil
}

func (s *MemoryStore) GetByJTI(_ context.Context, jti string) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getByJTILocked(jti)
}

func (s *MemoryStore) getByJTILocked(jti string) (Row, error) {
	id, ok := s.byJTI[jti]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return cloneRow(s.rows[id]), nil
}

func (s *MemoryStore) ListActive(_ context.Context, subjectID string, now time.Time) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Row, 0, 4)
	for _, row := range s.rows {
		if row.SubjectID == subjectID && row.Active(now) {
			out = append(out, cloneRow(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Revoke(_ context.Context, id string, reason RevokeReason, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return false, ErrSessionNotFound
	}
	if row.Revoked {
		return false, nil
	}
	revokeRow(&row, reason, now)
	s.rows[id] = row
	return true, nil
}

func (s *MemoryStore) RevokeSubject(_ context.Context, subjectID, exceptJTI string, reason RevokeReason, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, row := range s.rows {
		if row.SubjectID != subjectID || !row.Active(now) {
			continue
		}
		if exceptJTI != "" && row.JTI == exceptJTI {
			continue
		}
		revokeRow(&row, reason, now)
		s.rows[id] = row
		n++
	}
	return n, nil
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memoryTx{s: s}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

type memoryTx struct {
	s         *MemoryStore
	unlocks   []func()
	inserts   []Row
	rotations []rotation
}

type rotation struct {
	id           string
	successorJTI string
	at           time.Time
}

func (tx *memoryTx) LoadForUpdate(ctx context.Context, jti string) (Row, error) {
	unlock, err := tx.s.locks.lock(ctx, jti)
	if err != nil {
		return Row{}, err
	}
	tx.unlocks = append(tx.unlocks, unlock)
	return tx.s.GetByJTI(ctx, jti)
}

func (tx *memoryTx) GetByJTI(ctx context.Context, jti string) (Row, error) {
	return tx.s.GetByJTI(ctx, jti)
}

func (tx *memoryTx) Insert(_ context.Context, row Row) error {
	tx.inserts = append(tx.inserts, cloneRow(row))
	return nil
}

func (tx *memoryTx) MarkRotated(_ context.Context, id, successorJTI string, now time.Time) error {
	tx.rotations = append(tx.rotations, rotation{id: id, successorJTI: successorJTI, at: now})
	return nil
}

// commit validates every buffered write, then applies them all under one lock.
func (tx *memoryTx) commit() error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range tx.inserts {
		if err := s.checkInsert(row); err != nil {
			return err
		}
	}
	for _, r := range tx.rotations {
		row, ok := s.rows[r.id]
		if !ok {
			return ErrSessionNotFound
		}
		if row.Revoked {
			return ErrSessionRevoked
		}
	}

	for _, row := range tx.inserts {
		s.applyInsert(row)
	}
	for _, r := range tx.rotations {
		row := s.rows[r.id]
		at := r.at
		succ := r.successorJTI
		revokeRow(&row, ReasonRotated, at)
		row.RotatedAt = &at
		row.ReplacedByJTI = &succ
		s.rows[r.id] = row
	}
	return nil
}

func (tx *memoryTx) release() {
	for i := len(tx.unlocks) - 1; i >= 0; i-- {
		tx.unlocks[i]()
	}
	tx.unlocks = nil
}

func revokeRow(row *Row, reason RevokeReason, now time.Time) {
	at := now
	row.Revoked = true
	row.RevokedReason = reason
	row.RevokedAt = &at
}

func cloneRow(r Row) Row {
	if r.RevokedAt != nil {
		v := *r.RevokedAt
		r.RevokedAt = &v
	}
	if r.RotatedAt != nil {
		v := *r.RotatedAt
		r.RotatedAt = &v
	}
	if r.ReplacedByJTI != nil {
		v := *r.ReplacedByJTI
		r.ReplacedByJTI = &v
	}
	return r
}

// jtiLocks is a set of per-key mutexes that can be abandoned on context cancellation.
type jtiLocks struct {
	mu sync.Mutex
	m  map[string]*jtiLock
}

type jtiLock struct {
	ch   chan struct{}
	refs int
}

func newJTILocks() *jtiLocks {
	return &jtiLocks{m: make(map[string]*jtiLock)}
}

func (l *jtiLocks) lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &jtiLock{ch: make(chan struct{}, 1)}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.drop(key, e)
		})
	}, nil
}

func (l *jtiLocks) drop(key string, e *jtiLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.m, key)
	}
}
