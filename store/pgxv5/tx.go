package pgxv5

import (
	"context"
	"fmt"
	"reflect"

	"github.com/foodcourt/ordersaga/saga"
)

// Transactor runs a function inside one database transaction, carrying
// the transaction in the context under the configured key so the stores
// join it. This is the atomic unit that covers a saga step's aggregate
// mutation and outbox writes.
type Transactor struct {
	txKey saga.TxKey
	db    dbpool
}

func NewTransactor(txKey saga.TxKey, pool dbpool) *Transactor {
	if txKey == nil {
		panic("txKey is mandatory")
	}
	if pool == nil || reflect.ValueOf(pool).IsNil() {
		panic("pool is mandatory")
	}
	return &Transactor{
		txKey: txKey,
		db:    pool,
	}
}

// InTx begins a transaction, runs fn with the transaction in the context
// and commits when fn returns nil; any error rolls back and is returned.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	txCtx := context.WithValue(ctx, t.txKey, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}
