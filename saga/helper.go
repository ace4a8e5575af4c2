package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSaveFailed signals a save that reported neither an error nor a
// persisted row. This is a storage invariant breach, never a transient
// condition: it must propagate and degrade service health visibly.
var ErrSaveFailed = errors.New("outbox message save returned no result")

// Helper is the typed façade over one saga leg's Store. It serializes
// domain payloads into outbox rows and enforces the save-must-succeed
// invariant.
type Helper struct {
	sagaType string
	store    Store
	logger   Logger
}

var _ Loggable = (*Helper)(nil)

func NewHelper(sagaType string, store Store) *Helper {
	if sagaType == "" {
		panic("sagaType is mandatory")
	}
	if store == nil {
		panic("store is mandatory")
	}
	return &Helper{
		sagaType: sagaType,
		store:    store,
		logger:   &NopLogger{},
	}
}

// SetLogger sets an optional logger.
func (h *Helper) SetLogger(l Logger) {
	h.logger = l
}

// MessagesByOutboxStatusAndSagaStatus returns the leg's messages matching
// the outbox status and any of the saga statuses.
func (h *Helper) MessagesByOutboxStatusAndSagaStatus(ctx context.Context,
	outboxStatus OutboxStatus, sagaStatuses ...SagaStatus) ([]*OutboxMessage, error) {
	return h.store.FindByTypeAndOutboxStatusAndSagaStatus(ctx, h.sagaType, outboxStatus, sagaStatuses...)
}

// MessageBySagaIdAndSagaStatus returns the leg's single message for the
// saga id in any of the saga statuses, or nil when none matches. A nil
// result is the idempotency signal: the event was already handled.
func (h *Helper) MessageBySagaIdAndSagaStatus(ctx context.Context,
	sagaId uuid.UUID, sagaStatuses ...SagaStatus) (*OutboxMessage, error) {
	return h.store.FindByTypeAndSagaIdAndSagaStatus(ctx, h.sagaType, sagaId, sagaStatuses...)
}

// Save persists the message through the Store. A save that yields no row
// and no error breaches the storage contract and is surfaced as a fatal
// ErrSaveFailed; concurrency conflicts and duplicates pass through as the
// store's sentinel errors for the caller to classify.
func (h *Helper) Save(ctx context.Context, m *OutboxMessage) (*OutboxMessage, error) {
	saved, err := h.store.Save(ctx, m)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		h.logger.Error(fmt.Sprintf("could not save outbox message with id: %s", m.Id), ErrSaveFailed)
		return nil, fmt.Errorf("saving outbox message %s: %w", m.Id, ErrSaveFailed)
	}
	h.logger.Debug(fmt.Sprintf("outbox message saved with id: %s", m.Id))
	return saved, nil
}

// SaveNew serializes the payload and persists a fresh outbox row for the
// saga id. New rows always start their delivery lifecycle in
// OutboxStarted.
func (h *Helper) SaveNew(ctx context.Context, payload any, domainStatus string,
	sagaStatus SagaStatus, sagaId uuid.UUID) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not serialize outbox payload for saga id %s: %w", sagaId, err)
	}
	_, err = h.Save(ctx, &OutboxMessage{
		Id:           uuid.New(),
		SagaId:       sagaId,
		CreatedAt:    time.Now().UTC(),
		Type:         h.sagaType,
		Payload:      body,
		DomainStatus: domainStatus,
		SagaStatus:   sagaStatus,
		OutboxStatus: OutboxStarted,
	})
	return err
}

// DeleteByOutboxStatusAndSagaStatus removes the leg's messages matching
// the outbox status and any of the saga statuses.
func (h *Helper) DeleteByOutboxStatusAndSagaStatus(ctx context.Context,
	outboxStatus OutboxStatus, sagaStatuses ...SagaStatus) error {
	return h.store.DeleteByTypeAndOutboxStatusAndSagaStatus(ctx, h.sagaType, outboxStatus, sagaStatuses...)
}
