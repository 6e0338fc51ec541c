package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (refresh_sessions).
// The pool is owned by the caller.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session registry.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const rowColumns = `
	id, jti, subject_id, created_at, expires_at, persistent,
	revoked, revoked_reason, revoked_at, rotated_at, replaced_by_jti,
	user_agent, ip_address, country_code`

func (s *PostgresStore) Insert(ctx context.Context, row Row) error {
	return insertRow(ctx, s.pool, row)
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Row, error) {
	return scanOne(s.pool.QueryRow(ctx, `SELECT `+rowColumns+` FROM refresh_sessions WHERE id = $1`, id))
}

func (s *PostgresStore) GetByJTI(ctx context.Context, jti string) (Row, error) {
	return getByJTI(ctx, s.pool, jti)
}

func (s *PostgresStore) ListActive(ctx context.Context, subjectID string, now time.Time) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+rowColumns+`
		FROM refresh_sessions
		WHERE subject_id = $1 AND NOT revoked AND expires_at > $2
		ORDER BY created_at DESC, id DESC
	`, subjectID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Row, 0, 4)
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Revoke revokes a single session. Already-revoked rows are left untouched.
func (s *PostgresStore) Revoke(ctx context.Context, id string, reason RevokeReason, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked = true, revoked_reason = $2, revoked_at = $3
		WHERE id = $1 AND NOT revoked
	`, id, string(reason), now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish "already revoked" from "missing".
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM refresh_sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrSessionNotFound
	}
	return false, nil
}

func (s *PostgresStore) RevokeSubject(ctx context.Context, subjectID, exceptJTI string, reason RevokeReason, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked = true, revoked_reason = $3, revoked_at = $4
		WHERE subject_id = $1
		  AND NOT revoked
		  AND expires_at > $4
		  AND ($2 = '' OR jti <> $2)
	`, subjectID, exceptJTI, string(reason), now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// InTx runs fn inside a single pgx transaction. The transaction is rolled
// back when fn fails or ctx is cancelled before commit.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	return nil
}

func getByJTI(ctx context.Context, q querier, jti string) (Row, error) {
	return scanOne(q.QueryRow(ctx, `SELECT `+rowColumns+` FROM refresh_sessions WHERE jti = $1`, jti))
}

func insertRow(ctx context.Context, q querier, row Row) error {
	_, err := q.Exec(ctx, `
		INSERT INTO refresh_sessions (
			id, jti, subject_id, created_at, expires_at, persistent,
			revoked, user_agent, ip_address, country_code
		) VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8, $9)
	`,
		row.ID, row.JTI, row.SubjectID, row.CreatedAt, row.ExpiresAt, row.Persistent,
		nullIfEmpty(row.Metadata.UserAgent),
		nullIfEmpty(row.Metadata.IPAddress),
		nullIfEmpty(row.Metadata.CountryCode),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrDuplicateJTI
		}
		return err
	}
	return nil
}

func scanOne(r pgx.Row) (Row, error) {
	row, err := scanRow(r)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	return row, err
}

func scanRow(r pgx.Row) (Row, error) {
	var (
		row                        Row
		reason                     *string
		userAgent, ip, countryCode *string
	)
	err := r.Scan(
		&row.ID,
		&row.JTI,
		&row.SubjectID,
		&row.CreatedAt,
		&row.ExpiresAt,
		&row.Persistent,
		&row.Revoked,
		&reason,
		&row.RevokedAt,
		&row.RotatedAt,
		&row.ReplacedByJTI,
		&userAgent,
		&ip,
		&countryCode,
	)
	if err != nil {
		return Row{}, err
	}
	if reason != nil {
		row.RevokedReason = RevokeReason(*reason)
	}
	row.Metadata = Metadata{
		UserAgent:   deref(userAgent),
		IPAddress:   deref(ip),
		CountryCode: deref(countryCode),
	}
	return row, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
