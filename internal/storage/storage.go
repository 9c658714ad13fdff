// Package storage defines the transactional contract shared by the
// persistence layer and its consumers.
package storage

import "context"

// TxRunner executes fn inside a single database transaction. Implementations
// carry the transaction in the context so that stores invoked from fn join
// it transparently. fn returning an error rolls the whole transaction back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTx runs fn without any transaction. Intended for tests.
type NopTx struct{}

// InTx invokes fn directly.
func (NopTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
