package session

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

type pgTx struct {
	tx pgx.Tx
}

// LoadForUpdate locks the row by jti until the enclosing transaction ends.
func (t pgTx) LoadForUpdate(ctx context.Context, jti string) (Row, error) {
	return scanOne(t.tx.QueryRow(ctx, `
		SELECT `+rowColumns+`
		FROM refresh_sessions
		WHERE jti = $1
		FOR UPDATE
	`, jti))
}

func (t pgTx) GetByJTI(ctx context.Context, jti string) (Row, error) {
	return getByJTI(ctx, t.tx, jti)
}

func (t pgTx) Insert(ctx context.Context, row Row) error {
	return insertRow(ctx, t.tx, row)
}

func (t pgTx) MarkRotated(ctx context.Context, id, successorJTI string, now time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE refresh_sessions
		SET
			revoked = true,
			revoked_reason = 'rotated',
			revoked_at = $2,
			rotated_at = $2,
			replaced_by_jti = $3
		WHERE id = $1 AND NOT revoked
	`, id, now, successorJTI)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrSessionRevoked
	}
	return nil
}
