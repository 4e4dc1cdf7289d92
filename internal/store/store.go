// Package store provides Postgres persistence for the pipeline entities.
//
// Every exported method on Store runs as its own short transaction
// (single statement, auto-committed). Workers that need several durable
// steps call those methods in sequence; multi-statement work with
// after-commit side effects goes through InTx, whose Tx collects
// callbacks that run only after a successful commit. That ordering keeps
// queue sends and async uploads from referring to rolled-back rows.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
)

// dbtx is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries holds all repository methods; it is embedded by both Store
// (pool-backed) and Tx (transaction-backed).
type queries struct {
	db dbtx
}

// Store is the pool-backed repository set.
type Store struct {
	queries
	pool   *pgxpool.Pool
	logger *logging.Logger
}

// Connect opens a pgx pool against url and verifies connectivity.
func Connect(ctx context.Context, url string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return &Store{
		queries: queries{db: pool},
		pool:    pool,
		logger:  logging.NewLogger("store", false),
	}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Tx is a transaction with an append-only list of after-commit hooks.
type Tx struct {
	queries
	hooks []func(context.Context)
}

// AfterCommit registers fn to run after the surrounding transaction
// commits. Hooks never run on rollback.
func (t *Tx) AfterCommit(fn func(context.Context)) {
	t.hooks = append(t.hooks, fn)
}

// InTx runs fn inside a database transaction. On successful commit the
// registered after-commit hooks run, in registration order, on the same
// context.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Transientf("begin transaction failed: %v", err)
	}
	tx := &Tx{queries: queries{db: pgtx}}

	if err := fn(ctx, tx); err != nil {
		_ = pgtx.Rollback(ctx)
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return models.Transientf("commit failed: %v", err)
	}
	for _, hook := range tx.hooks {
		hook(ctx)
	}
	return nil
}

// uniqueViolation is the Postgres SQLSTATE for unique-index violations.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique-index violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
