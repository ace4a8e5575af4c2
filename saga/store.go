package saga

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrVersionConflict is returned by Store.Save when the stored version of
// a message has moved since it was read. The caller must reload and retry
// or treat the write as a lost race.
var ErrVersionConflict = errors.New("outbox message version conflict")

// ErrDuplicateMessage is returned by Store.Save when an insert violates
// the unique (type, saga_id, saga_status) constraint. Two instances raced
// to create the same leg; exactly one insert won.
var ErrDuplicateMessage = errors.New("duplicate outbox message")

// Store manages the persistence of one saga leg's outbox table. All
// methods honor a business transaction carried in the context when the
// implementation supports it.
type Store interface {

	// Save persists the message and returns it with its version advanced.
	// A zero version inserts, any other version performs a compare-and-swap
	// update that fails with ErrVersionConflict when the stored version
	// does not match.
	Save(ctx context.Context, m *OutboxMessage) (*OutboxMessage, error)

	// FindByTypeAndOutboxStatusAndSagaStatus returns every message of the
	// given type matching the outbox status and any of the saga statuses.
	FindByTypeAndOutboxStatusAndSagaStatus(ctx context.Context, sagaType string,
		outboxStatus OutboxStatus, sagaStatuses ...SagaStatus) ([]*OutboxMessage, error)

	// FindByTypeAndSagaIdAndSagaStatus returns the single message of the
	// given type correlated by saga id in any of the saga statuses, or nil
	// when none matches.
	FindByTypeAndSagaIdAndSagaStatus(ctx context.Context, sagaType string,
		sagaId uuid.UUID, sagaStatuses ...SagaStatus) (*OutboxMessage, error)

	// DeleteByTypeAndOutboxStatusAndSagaStatus removes every message of the
	// given type matching the outbox status and any of the saga statuses.
	DeleteByTypeAndOutboxStatusAndSagaStatus(ctx context.Context, sagaType string,
		outboxStatus OutboxStatus, sagaStatuses ...SagaStatus) error
}
