// Package postgres implements the persistence interfaces over sqlx.
// Transactions are carried in the context: repositories invoked inside
// DB.InTx join the surrounding transaction transparently.
package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type ctxKey struct{}

// DB wraps the connection pool and implements storage.TxRunner.
type DB struct {
	db *sqlx.DB
}

// New wraps an open pool.
func New(db *sqlx.DB) *DB {
	return &DB{db: db}
}

// InTx runs fn inside one transaction. fn returning an error (or panicking)
// rolls everything back.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(ctxKey{}).(*sqlx.Tx); ok {
		// Already inside a transaction; join it.
		return fn(ctx)
	}
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(context.WithValue(ctx, ctxKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ext returns the transaction bound to ctx, or the pool.
func (d *DB) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(ctxKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return d.db
}
