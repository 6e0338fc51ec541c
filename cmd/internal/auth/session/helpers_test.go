package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sessiond/cmd/internal/auth/guard"
	"sessiond/cmd/security/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// switchGuard lets a test flip a subject's status mid-scenario.
type switchGuard struct {
	mu          sync.Mutex
	m           map[string]guard.Status
	invalidated []string
}

func (g *switchGuard) Invalidate(_ context.Context, subject string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invalidated = append(g.invalidated, subject)
	return nil
}

func (g *switchGuard) invalidations() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.invalidated...)
}

func (g *switchGuard) set(subject string, st guard.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.m == nil {
		g.m = make(map[string]guard.Status)
	}
	g.m[subject] = st
}

func (g *switchGuard) Check(_ context.Context, subject string, _ time.Time) (guard.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m[subject], nil
}

type testEnv struct {
	svc   *Service
	store *MemoryStore
	guard *switchGuard
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...Option) testEnv {
	t.Helper()

	codec, err := token.New(token.Config{
		Format:     token.FormatJWT,
		Issuer:     "sessiond-test",
		AccessTTL:  15 * time.Minute,
		HMACSecret: testSecret,
	})
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := NewMemoryStore()
	g := &switchGuard{}
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	svc, err := NewService(cfg, store, codec, g, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return testEnv{svc: svc, store: store, guard: g}
}

func (e testEnv) login(t *testing.T, subject string, persistent bool, now time.Time) Issued {
	t.Helper()
	issued, err := e.svc.IssueSession(context.Background(), now, subject, persistent, Metadata{UserAgent: "test-agent", IPAddress: "203.0.113.7"})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	return issued
}

func (e testEnv) refresh(t *testing.T, tok string, now time.Time) RefreshResult {
	t.Helper()
	res, err := e.svc.Refresh(context.Background(), RefreshRequest{Token: tok, Now: now})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return res
}

func (e testEnv) row(t *testing.T, jti string) Row {
	t.Helper()
	row, err := e.store.GetByJTI(context.Background(), jti)
	if err != nil {
		t.Fatalf("GetByJTI(%s): %v", jti, err)
	}
	return row
}
