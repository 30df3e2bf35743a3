package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/recordkit/recordkit/internal/dbpool"
)

const defaultQueryTimeout = 30 * time.Second

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// Querier is the statement-execution surface repositories run against.
// Both the pool and an open pgx transaction satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB bundles the connection pool with the transaction-scope discipline
// shared by every repository. The open transaction, if any, travels in the
// context so all repositories in one unit of work share it.
type DB struct {
	pool *dbpool.Pool
	log  *logrus.Logger
}

// NewDB creates a DB.
func NewDB(pool *dbpool.Pool, log *logrus.Logger) *DB {
	return &DB{pool: pool, log: log}
}

// Pool exposes the underlying pool for health checks and composition.
func (d *DB) Pool() *dbpool.Pool { return d.pool }

type txKey struct{}

// txFrom returns the transaction carried by ctx, if any.
func txFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)

	return tx, ok
}

// Querier returns the in-flight transaction when one is open, otherwise
// the pool. Read-side aggregators use it so their statements join the
// surrounding transaction scope.
func (d *DB) Querier(ctx context.Context) Querier {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}

	return d.pool
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := txFrom(ctx)

	return ok
}

// Transact runs fn inside a transaction: begin on entry, commit on normal
// return, rollback on error or panic. A nested call within the same unit
// of work flattens into the already-open transaction instead of opening a
// second one.
func (d *DB) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return d.transact(ctx, pgx.TxOptions{}, fn)
}

// TransactRO runs fn inside a read-only REPEATABLE READ transaction, so a
// multi-query aggregation observes one consistent snapshot.
func (d *DB) TransactRO(ctx context.Context, fn func(ctx context.Context) error) error {
	return d.transact(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (d *DB) transact(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) error { //nolint:gocritic // pgx.TxOptions passed by value per pgx API.
	if _, ok := txFrom(ctx); ok {
		// Already inside a unit of work; join it.
		return fn(ctx)
	}

	tx, err := d.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	// Rollback on every exit path that is not a clean commit, including
	// panics and context cancellation.
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit.

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
