package order

import (
	"context"

	"github.com/foodcourt/ordersaga/saga"
	"github.com/google/uuid"
)

// memRepository is an in-memory Repository with scriptable failures.
type memRepository struct {
	orders map[uuid.UUID]*Order

	findErr error
	saveErr error
	saves   int
}

var _ Repository = (*memRepository)(nil)

func newMemRepository(orders ...*Order) *memRepository {
	r := &memRepository{orders: make(map[uuid.UUID]*Order)}
	for _, o := range orders {
		r.orders[o.Id] = o
	}
	return r
}

func (r *memRepository) FindById(_ context.Context, id uuid.UUID) (*Order, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *memRepository) Save(_ context.Context, o *Order) (*Order, error) {
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	r.saves++
	saved := *o
	saved.Version = o.Version + 1
	r.orders[o.Id] = &saved
	return &saved, nil
}

// memStore is an in-memory saga.Store backing the helpers in these tests.
type memStore struct {
	messages []*saga.OutboxMessage

	findErr error
	saveErr error
}

var _ saga.Store = (*memStore)(nil)

func (s *memStore) Save(_ context.Context, m *saga.OutboxMessage) (*saga.OutboxMessage, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	saved := *m
	saved.Version = m.Version + 1
	for i, existing := range s.messages {
		if existing.Id == m.Id {
			s.messages[i] = &saved
			return &saved, nil
		}
	}
	s.messages = append(s.messages, &saved)
	return &saved, nil
}

func (s *memStore) FindByTypeAndOutboxStatusAndSagaStatus(_ context.Context, sagaType string,
	outboxStatus saga.OutboxStatus, sagaStatuses ...saga.SagaStatus) ([]*saga.OutboxMessage, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	var result []*saga.OutboxMessage
	for _, m := range s.messages {
		if m.Type == sagaType && m.OutboxStatus == outboxStatus && hasStatus(sagaStatuses, m.SagaStatus) {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *memStore) FindByTypeAndSagaIdAndSagaStatus(_ context.Context, sagaType string,
	sagaId uuid.UUID, sagaStatuses ...saga.SagaStatus) (*saga.OutboxMessage, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, m := range s.messages {
		if m.Type == sagaType && m.SagaId == sagaId && hasStatus(sagaStatuses, m.SagaStatus) {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) DeleteByTypeAndOutboxStatusAndSagaStatus(_ context.Context, sagaType string,
	outboxStatus saga.OutboxStatus, sagaStatuses ...saga.SagaStatus) error {
	var remaining []*saga.OutboxMessage
	for _, m := range s.messages {
		if m.Type == sagaType && m.OutboxStatus == outboxStatus && hasStatus(sagaStatuses, m.SagaStatus) {
			continue
		}
		remaining = append(remaining, m)
	}
	s.messages = remaining
	return nil
}

func (s *memStore) bySagaStatus(status saga.SagaStatus) []*saga.OutboxMessage {
	var result []*saga.OutboxMessage
	for _, m := range s.messages {
		if m.SagaStatus == status {
			result = append(result, m)
		}
	}
	return result
}

func hasStatus(statuses []saga.SagaStatus, status saga.SagaStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func startedMessage(sagaId uuid.UUID) *saga.OutboxMessage {
	return &saga.OutboxMessage{
		Id:           uuid.New(),
		SagaId:       sagaId,
		Type:         SagaType,
		Payload:      []byte("{}"),
		DomainStatus: string(StatusPending),
		SagaStatus:   saga.SagaStarted,
		OutboxStatus: saga.OutboxStarted,
		Version:      1,
	}
}

func messageIn(sagaId uuid.UUID, status saga.SagaStatus, domainStatus Status) *saga.OutboxMessage {
	m := startedMessage(sagaId)
	m.SagaStatus = status
	m.DomainStatus = string(domainStatus)
	return m
}
