package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"sessiond/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements account persistence over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema holding the accounts table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "accounts"}.Sanitize()
}

const accountColumns = `id, username, password_hash, role, created_at, deleted_at, locked_until, password_reset_required`

// CreateAccount inserts a new account.
func (s *PostgresStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	in, err := in.normalize(op)
	if err != nil {
		return Account{}, err
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Account{}, fmt.Errorf("%s: id: %w", op, err)
	}

	q := `INSERT INTO ` + s.table() + ` (id, username, password_hash, role, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + accountColumns

	acc, err := scanAccount(s.pool.QueryRow(ctx, q, id, in.Username, in.PasswordHash, string(in.Role), in.Now))
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Account{}, ConflictError{Op: op, Field: "username"}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// GetByID loads an account by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.GetByID"

	id = strings.TrimSpace(id)
	if id == "" {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}

	q := `SELECT ` + accountColumns + ` FROM ` + s.table() + ` WHERE id = $1`
	acc, err := scanAccount(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// GetByUsername loads an account by normalized username.
func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (Account, error) {
	const op = "identity.GetByUsername"

	username = NormalizeUsername(username)
	if username == "" {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}

	q := `SELECT ` + accountColumns + ` FROM ` + s.table() + ` WHERE username = $1`
	acc, err := scanAccount(s.pool.QueryRow(ctx, q, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a           Account
		role        string
		deletedAt   *time.Time
		lockedUntil *time.Time
	)
	if err := row.Scan(
		&a.ID,
		&a.Username,
		&a.PasswordHash,
		&role,
		&a.CreatedAt,
		&deletedAt,
		&lockedUntil,
		&a.PasswordResetRequired,
	); err != nil {
		return Account{}, err
	}
	a.Role = Role(role)
	a.DeletedAt = deletedAt
	a.LockedUntil = lockedUntil
	return a, nil
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
