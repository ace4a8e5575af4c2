package pgxv5

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/foodcourt/ordersaga/order"
	"github.com/foodcourt/ordersaga/saga"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	selectOrderSql = "SELECT id, customer_id, restaurant_id, tracking_id, price_cents, status, failure_messages, version FROM orders WHERE id=$1"
	insertOrderSql = "INSERT INTO orders (id, customer_id, restaurant_id, tracking_id, price_cents, status, failure_messages, version) VALUES ($1, $2, $3, $4, $5, $6, $7, 1)"
	updateOrderSql = "UPDATE orders SET status=$1, failure_messages=$2, version=version+1 WHERE id=$3 AND version=$4"
)

// OrderStore is a pgx implementation of order.Repository with the same
// tx-in-context behavior as OutboxStore.
type OrderStore struct {
	txKey  saga.TxKey
	db     dbpool
	logger saga.Logger
}

var _ order.Repository = (*OrderStore)(nil)
var _ saga.Loggable = (*OrderStore)(nil)

func NewOrderStore(txKey saga.TxKey, pool dbpool) *OrderStore {
	if txKey == nil {
		panic("txKey is mandatory")
	}
	if pool == nil || reflect.ValueOf(pool).IsNil() {
		panic("pool is mandatory")
	}
	return &OrderStore{
		txKey:  txKey,
		db:     pool,
		logger: &saga.NopLogger{},
	}
}

// SetLogger sets an optional logger.
func (s *OrderStore) SetLogger(l saga.Logger) {
	s.logger = l
}

// FindById returns the order or order.ErrOrderNotFound.
func (s *OrderStore) FindById(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	row := s.executor(ctx).QueryRow(ctx, selectOrderSql, id)
	var o order.Order
	var status string
	err := row.Scan(&o.Id, &o.CustomerId, &o.RestaurantId, &o.TrackingId,
		&o.PriceCents, &status, &o.FailureMessages, &o.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, order.ErrOrderNotFound)
		}
		return nil, err
	}
	o.Status = order.Status(status)
	return &o, nil
}

// Save inserts the order when its version is zero and otherwise performs
// a compare-and-swap update that fails with saga.ErrVersionConflict when
// the stored version has moved.
func (s *OrderStore) Save(ctx context.Context, o *order.Order) (*order.Order, error) {
	ex := s.executor(ctx)
	if o.Version == 0 {
		_, err := ex.Exec(ctx, insertOrderSql, o.Id, o.CustomerId, o.RestaurantId,
			o.TrackingId, o.PriceCents, string(o.Status), o.FailureMessages)
		if err != nil {
			return nil, fmt.Errorf("could not persist the order: %w", err)
		}
		saved := *o
		saved.Version = 1
		return &saved, nil
	}

	ct, err := ex.Exec(ctx, updateOrderSql, string(o.Status), o.FailureMessages, o.Id, o.Version)
	if err != nil {
		return nil, fmt.Errorf("could not update the order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, fmt.Errorf("updating order %s at version %d: %w", o.Id, o.Version, saga.ErrVersionConflict)
	}
	saved := *o
	saved.Version = o.Version + 1
	return &saved, nil
}

func (s *OrderStore) executor(ctx context.Context) executor {
	if tx, ok := ctx.Value(s.txKey).(pgx.Tx); ok {
		return tx
	}
	return s.db
}
