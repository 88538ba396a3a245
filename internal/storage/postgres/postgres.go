// Package postgres keeps the participant ledger in a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"castboard/internal/observability"
	"castboard/internal/storage"
)

// Ledger writes are single-row statements; a handful of connections is plenty.
const (
	defaultMaxConns = 8
	pingTimeout     = 5 * time.Second
)

// Pool is the connection pool shared by the ledger store and the migrate command.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects to dsn and checks the server answers.
// pool_max_conns in dsn overrides the default pool size.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if !strings.Contains(dsn, "pool_max_conns") {
		cfg.MaxConns = defaultMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// SQLSTATE codes the ledger table can raise.
const (
	sqlStateUnique = "23505"
	sqlStateCheck  = "23514"
)

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// translate maps ledger constraint violations onto storage errors and
// wraps anything else with op.
func translate(op string, err error) error {
	switch sqlState(err) {
	case sqlStateUnique:
		return storage.ErrDuplicateKey
	case sqlStateCheck:
		return fmt.Errorf("%w: %s: counts must be non-negative", storage.ErrInvalidInput, op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// observe records latency and failure of a ledger query.
// Defer it with a pointer to the named error result.
func observe(operation string, start time.Time, err *error) {
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), *err)
}
