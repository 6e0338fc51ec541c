package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingSource struct {
	calls atomic.Int32
	facts Facts
	err   error
}

func (s *countingSource) Facts(_ context.Context, _ string) (Facts, error) {
	s.calls.Add(1)
	return s.facts, s.err
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisCache_HitsAfterFirstLoad(t *testing.T) {
	mr, rdb := newTestRedis(t)

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	src := &countingSource{facts: Facts{LockedUntil: now.Add(time.Minute)}}
	c := NewRedisCache(src, rdb, 30*time.Second, quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		st, err := c.Check(ctx, "user-1", now)
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if st != StatusLocked {
			t.Fatalf("expected locked, got %v", st)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("expected 1 source call, got %d", got)
	}

	// Facts are re-evaluated against the caller's clock.
	if st, _ := c.Check(ctx, "user-1", now.Add(2*time.Minute)); st != StatusActive {
		t.Fatalf("expected lock to lapse from cached facts, got %v", st)
	}

	if ttl := mr.TTL("sessiond:guard:user-1"); ttl <= 0 || ttl > 30*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mr.FastForward(31 * time.Second)
	if _, err := c.Check(ctx, "user-1", now); err != nil {
		t.Fatalf("check after expiry: %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", got)
	}
}

func TestRedisCache_Invalidate(t *testing.T) {
	_, rdb := newTestRedis(t)

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	src := &countingSource{}
	c := NewRedisCache(src, rdb, time.Minute, quietLogger())
	ctx := context.Background()

	if st, _ := c.Check(ctx, "user-2", now); st != StatusActive {
		t.Fatalf("expected active, got %v", st)
	}

	src.facts = Facts{Deleted: true}
	if err := c.Invalidate(ctx, "user-2"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if st, _ := c.Check(ctx, "user-2", now); st != StatusDeleted {
		t.Fatalf("expected deleted after invalidate, got %v", st)
	}
}

func TestRedisCache_RedisDownFallsThrough(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	src := &countingSource{facts: Facts{PasswordResetRequired: true}}
	c := NewRedisCache(src, rdb, time.Minute, quietLogger())

	st, err := c.Check(context.Background(), "user-3", now)
	if err != nil {
		t.Fatalf("expected fallthrough, got %v", err)
	}
	if st != StatusPasswordResetRequired {
		t.Fatalf("expected reset required, got %v", st)
	}
}

func TestRedisCache_SourceErrorPropagates(t *testing.T) {
	_, rdb := newTestRedis(t)

	boom := errors.New("db down")
	c := NewRedisCache(&countingSource{err: boom}, rdb, time.Minute, quietLogger())

	if _, err := c.Check(context.Background(), "user-4", time.Now()); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestRedisCache_DisabledWithoutTTL(t *testing.T) {
	_, rdb := newTestRedis(t)

	src := &countingSource{}
	c := NewRedisCache(src, rdb, 0, quietLogger())
	ctx := context.Background()

	_, _ = c.Check(ctx, "user-5", time.Now())
	_, _ = c.Check(ctx, "user-5", time.Now())
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("expected no caching, got %d calls", got)
	}
}
