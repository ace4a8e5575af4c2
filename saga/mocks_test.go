package saga

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// mockStore is a scriptable in-memory Store used by the package tests.
type mockStore struct {
	mu sync.Mutex

	messages []*OutboxMessage

	saveErr   error
	findErr   error
	deleteErr error

	saved   []*OutboxMessage
	deletes int
}

var _ Store = (*mockStore)(nil)

func (s *mockStore) Save(_ context.Context, m *OutboxMessage) (*OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	saved := *m
	saved.Version = m.Version + 1
	s.saved = append(s.saved, &saved)
	return &saved, nil
}

func (s *mockStore) FindByTypeAndOutboxStatusAndSagaStatus(_ context.Context, sagaType string,
	outboxStatus OutboxStatus, sagaStatuses ...SagaStatus) ([]*OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var result []*OutboxMessage
	for _, m := range s.messages {
		if m.Type == sagaType && m.OutboxStatus == outboxStatus && containsStatus(sagaStatuses, m.SagaStatus) {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *mockStore) FindByTypeAndSagaIdAndSagaStatus(_ context.Context, sagaType string,
	sagaId uuid.UUID, sagaStatuses ...SagaStatus) (*OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, m := range s.messages {
		if m.Type == sagaType && m.SagaId == sagaId && containsStatus(sagaStatuses, m.SagaStatus) {
			return m, nil
		}
	}
	return nil, nil
}

func (s *mockStore) DeleteByTypeAndOutboxStatusAndSagaStatus(_ context.Context, sagaType string,
	outboxStatus OutboxStatus, sagaStatuses ...SagaStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	var remaining []*OutboxMessage
	for _, m := range s.messages {
		if m.Type == sagaType && m.OutboxStatus == outboxStatus && containsStatus(sagaStatuses, m.SagaStatus) {
			s.deletes++
			continue
		}
		remaining = append(remaining, m)
	}
	s.messages = remaining
	return nil
}

func (s *mockStore) savedMessages() []*OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*OutboxMessage(nil), s.saved...)
}

func containsStatus(statuses []SagaStatus, status SagaStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// nilResultStore simulates a broken Store that reports success without a
// persisted row.
type nilResultStore struct {
	mockStore
}

func (s *nilResultStore) Save(_ context.Context, _ *OutboxMessage) (*OutboxMessage, error) {
	return nil, nil
}

// mockPublisher captures published messages and reports a scripted
// delivery result through the callback.
type mockPublisher struct {
	mu         sync.Mutex
	published  []*OutboxMessage
	reportWith *OutboxStatus // nil means no delivery report at all
	err        error
}

var _ Publisher = (*mockPublisher)(nil)

func (p *mockPublisher) Publish(m *OutboxMessage, onResult func(*OutboxMessage, OutboxStatus)) error {
	p.mu.Lock()
	p.published = append(p.published, m)
	report := p.reportWith
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if report != nil {
		onResult(m, *report)
	}
	return nil
}

func (p *mockPublisher) publishedMessages() []*OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*OutboxMessage(nil), p.published...)
}
