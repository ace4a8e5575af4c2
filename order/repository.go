package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository manages order aggregate persistence.
type Repository interface {

	// FindById returns the order or ErrOrderNotFound.
	FindById(ctx context.Context, id uuid.UUID) (*Order, error)

	// Save persists the order and returns it with its version advanced.
	// The write is a compare-and-swap on the version read: a moved version
	// fails with saga.ErrVersionConflict.
	Save(ctx context.Context, o *Order) (*Order, error)
}
