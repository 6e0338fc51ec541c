package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testRow(id, jti, subject string, now time.Time) Row {
	return Row{
		ID:        id,
		JTI:       jti,
		SubjectID: subject,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestMemoryStore_InsertDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Insert(ctx, testRow("id-1", "jti-1", "u", testNow)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, testRow("id-2", "jti-1", "u", testNow)); !errors.Is(err, ErrDuplicateJTI) {
		t.Fatalf("duplicate jti: got %v", err)
	}
}

func TestMemoryStore_TxRollbackDiscardsWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Insert(ctx, testRow("id-1", "jti-1", "u", testNow))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Tx) error {
		if _, err := tx.LoadForUpdate(ctx, "jti-1"); err != nil {
			return err
		}
		_ = tx.Insert(ctx, testRow("id-2", "jti-2", "u", testNow))
		_ = tx.MarkRotated(ctx, "id-1", "jti-2", testNow)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx: got %v", err)
	}

	if _, err := s.GetByJTI(ctx, "jti-2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("insert leaked out of a failed tx: %v", err)
	}
	row, _ := s.GetByJTI(ctx, "jti-1")
	if row.Revoked {
		t.Fatalf("rotation leaked out of a failed tx")
	}
}

func TestMemoryStore_CommitRejectsConcurrentRevoke(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Insert(ctx, testRow("id-1", "jti-1", "u", testNow))

	err := s.InTx(ctx, func(tx Tx) error {
		if _, err := tx.LoadForUpdate(ctx, "jti-1"); err != nil {
			return err
		}
		// Revocation does not take the row lock.
		if _, err := s.Revoke(ctx, "id-1", ReasonLogout, testNow); err != nil {
			return err
		}
		_ = tx.Insert(ctx, testRow("id-2", "jti-2", "u", testNow))
		return tx.MarkRotated(ctx, "id-1", "jti-2", testNow)
	})
	if !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("InTx: got %v", err)
	}
	if _, err := s.GetByJTI(ctx, "jti-2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("successor must not exist")
	}
	row, _ := s.GetByJTI(ctx, "jti-1")
	if row.RevokedReason != ReasonLogout {
		t.Fatalf("reason: %q", row.RevokedReason)
	}
}

func TestMemoryStore_LockWaitHonoursContext(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Insert(context.Background(), testRow("id-1", "jti-1", "u", testNow))

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InTx(context.Background(), func(tx Tx) error {
			if _, err := tx.LoadForUpdate(context.Background(), "jti-1"); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.InTx(ctx, func(tx Tx) error {
		_, err := tx.LoadForUpdate(ctx, "jti-1")
		return err
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder tx: %v", err)
	}

	// The lock is free again.
	err = s.InTx(context.Background(), func(tx Tx) error {
		_, err := tx.LoadForUpdate(context.Background(), "jti-1")
		return err
	})
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
}

func TestMemoryStore_ListActiveAndRevokeSubject(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Insert(ctx, testRow("id-1", "jti-1", "u", testNow))
	_ = s.Insert(ctx, testRow("id-2", "jti-2", "u", testNow.Add(time.Second)))
	expired := testRow("id-3", "jti-3", "u", testNow.Add(-2*time.Hour))
	_ = s.Insert(ctx, expired)
	_ = s.Insert(ctx, testRow("id-4", "jti-4", "v", testNow))

	rows, _ := s.ListActive(ctx, "u", testNow)
	if len(rows) != 2 || rows[0].ID != "id-2" {
		t.Fatalf("ListActive: %+v", rows)
	}

	n, err := s.RevokeSubject(ctx, "u", "jti-2", ReasonRevokeOthers, testNow)
	if err != nil || n != 1 {
		t.Fatalf("RevokeSubject: n=%d err=%v", n, err)
	}
	rows, _ = s.ListActive(ctx, "u", testNow)
	if len(rows) != 1 || rows[0].JTI != "jti-2" {
		t.Fatalf("after revoke: %+v", rows)
	}

	// Expired rows are left alone.
	row, _ := s.GetByID(ctx, "id-3")
	if row.Revoked {
		t.Fatalf("expired row should not be revoked")
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Insert(ctx, testRow("id-1", "jti-1", "u", testNow))
	_, _ = s.Revoke(ctx, "id-1", ReasonLogout, testNow)

	row, _ := s.GetByID(ctx, "id-1")
	*row.RevokedAt = testNow.Add(time.Hour)

	again, _ := s.GetByID(ctx, "id-1")
	if !again.RevokedAt.Equal(testNow) {
		t.Fatalf("stored row mutated through a returned copy")
	}
}
