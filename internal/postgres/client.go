// Package postgres provides the shared Postgres pool factory. Only this
// package and the store adapters import pgx; error classification lives here
// so callers never inspect driver error codes themselves.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aelexs/directchat/internal/domain"
)

// Config holds Postgres connection parameters.
type Config struct {
	DSN      domain.SecretString
	MaxConns int32         // Zero keeps the pgxpool default
	Timeout  time.Duration // Connect and initial ping timeout
}

// Querier is the statement surface shared by *pgxpool.Pool and pgx.Tx, so
// read helpers run unchanged inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a Querier that can also open transactions.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	_ DB      = (*pgxpool.Pool)(nil)
	_ Querier = (pgx.Tx)(nil)
)

// NewPool creates a connection pool and verifies connectivity.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN.Expose())
	if err != nil {
		// The parse error may echo the DSN, password included.
		return nil, errors.New("parse postgres dsn: invalid connection string")
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.Timeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.Timeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// Type aliases so adapters reference transactions and rows through this package.
type (
	Tx   = pgx.Tx
	Rows = pgx.Rows
	Row  = pgx.Row
)

// ErrNoRows is returned by Row.Scan when the query selected nothing.
var ErrNoRows = pgx.ErrNoRows

// InTx runs fn inside a transaction on db. The transaction commits when fn
// returns nil and rolls back otherwise.
func InTx(ctx context.Context, db DB, fn func(Tx) error) error {
	return pgx.BeginFunc(ctx, db, fn)
}

// QuoteIdentifier quotes a possibly schema-qualified table name
// ("public.users") for safe interpolation into SQL.
func QuoteIdentifier(name string) string {
	return pgx.Identifier(splitQualified(name)).Sanitize()
}

func splitQualified(name string) []string {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return []string{name[:i], name[i+1:]}
		}
	}
	return []string{name}
}

// SQLSTATE codes this service reacts to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, codeForeignKeyViolation)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// ErrUniqueViolation returns a unique violation error on the given
// constraint, suitable for testing. Postgres produces the real one.
func ErrUniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           codeUniqueViolation,
		Message:        "duplicate key value violates unique constraint",
		ConstraintName: constraint,
	}
}
