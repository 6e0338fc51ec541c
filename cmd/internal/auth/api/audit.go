package authapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent is one audit_log entry. Empty strings are stored as NULL.
type AuditEvent struct {
	Action    string
	SubjectID string
	SessionID string
	ActorID   string
	IPAddress string
	UserAgent string
	Meta      map[string]any
	At        time.Time
}

// Auditor records security events and answers the throttling query.
// Recording is best-effort: implementations log failures and never block the request.
type Auditor interface {
	Record(ctx context.Context, ev AuditEvent)
	CountSince(ctx context.Context, action, ip string, since time.Time) (int, error)
}

// PostgresAuditor writes to the audit_log table.
type PostgresAuditor struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresAuditor(pool *pgxpool.Pool, log *slog.Logger) *PostgresAuditor {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresAuditor{pool: pool, log: log}
}

func (a *PostgresAuditor) Record(ctx context.Context, ev AuditEvent) {
	action := strings.TrimSpace(ev.Action)
	if a == nil || a.pool == nil || action == "" {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	meta := "{}"
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			meta = string(b)
		}
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO audit_log (
			action, subject_id, session_id, actor_id, ip_address, user_agent, meta, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
	`, action, trimOrNil(ev.SubjectID), trimOrNil(ev.SessionID), trimOrNil(ev.ActorID),
		trimOrNil(ev.IPAddress), trimOrNil(ev.UserAgent), meta, ev.At)
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func (a *PostgresAuditor) CountSince(ctx context.Context, action, ip string, since time.Time) (int, error) {
	if a == nil || a.pool == nil || ip == "" {
		return 0, nil
	}
	var n int
	err := a.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM audit_log
		WHERE action = $1
		  AND ip_address = $2
		  AND created_at >= $3
	`, action, ip, since).Scan(&n)
	return n, err
}

// MemoryAuditor keeps events in process. Used in dev mode and tests.
type MemoryAuditor struct {
	mu     sync.Mutex
	events []AuditEvent
}

func NewMemoryAuditor() *MemoryAuditor { return &MemoryAuditor{} }

func (a *MemoryAuditor) Record(_ context.Context, ev AuditEvent) {
	if strings.TrimSpace(ev.Action) == "" {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *MemoryAuditor) CountSince(_ context.Context, action, ip string, since time.Time) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, ev := range a.events {
		if ev.Action == action && ev.IPAddress == ip && !ev.At.Before(since) {
			n++
		}
	}
	return n, nil
}

// Events returns a copy of everything recorded so far.
func (a *MemoryAuditor) Events() []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEvent(nil), a.events...)
}

const (
	auditLoginSuccess  = "auth.login.success"
	auditLoginFailed   = "auth.login.failed"
	auditLoginBlocked  = "auth.login.blocked"
	auditRefreshRotate = "auth.refresh.rotated"
	auditRefreshReject = "auth.refresh.rejected"
	auditLogout        = "auth.logout"
	auditRevokeOne     = "auth.session.revoke_one"
	auditRevokeOthers  = "auth.session.revoke_others"
	auditAdminRevoke   = "auth.session.admin_revoke"
)

func (h *Handler) audit(ctx context.Context, rc requestContext, ev AuditEvent) {
	ev.IPAddress = rc.meta.IPAddress
	ev.UserAgent = rc.meta.UserAgent
	ev.At = rc.now
	h.auditor.Record(ctx, ev)
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
