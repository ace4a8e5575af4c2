package saga

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Publisher bridges outbox rows to the transport. Publish is
// fire-and-forget: transport acknowledgment arrives later through
// onResult, carrying the outbox status the row should advance to. The
// core never blocks on the transport.
type Publisher interface {
	Publish(m *OutboxMessage, onResult func(*OutboxMessage, OutboxStatus)) error
}

// SchedulerOption allows optional Scheduler configuration.
type SchedulerOption func(s *Scheduler)

// WithLogger allows clients to configure an optional logger.
func WithLogger(l Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCounters allows clients to configure optional counters for
// observability.
func WithCounters(published Counter, errors Counter) SchedulerOption {
	return func(s *Scheduler) {
		if published != nil {
			s.publishedCtr = published
		}
		if errors != nil {
			s.errorCtr = errors
		}
	}
}

// Scheduler drains one saga leg's outbox table into the transport on a
// fixed interval. Each tick reads the rows that still must be sent
// (STARTED delivery state in a STARTED or COMPENSATING saga) and hands
// them to the Publisher; the completion callback records the publish
// outcome. A row whose delivery is not acknowledged stays STARTED and is
// picked up again on the next tick, so downstream consumers must
// deduplicate by message id.
type Scheduler struct {
	helper       *Helper
	publisher    Publisher
	settings     Settings
	logger       Logger
	publishedCtr Counter
	errorCtr     Counter
	stop         chan struct{}
	done         chan struct{}
}

func NewScheduler(helper *Helper, publisher Publisher, settings Settings, options ...SchedulerOption) *Scheduler {
	if helper == nil || publisher == nil {
		panic("you must provide a helper and a publisher")
	}
	validateSettings(&settings)
	s := &Scheduler{
		helper:       helper,
		publisher:    publisher,
		settings:     settings,
		logger:       &NopLogger{},
		publishedCtr: &NopCounter{},
		errorCtr:     &NopCounter{},
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Start launches the polling loop. The first tick happens after the
// configured initial delay, subsequent ticks at the poll interval.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop terminates the polling loop and waits for it to finish. In-flight
// delivery callbacks may still arrive after Stop returns.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	if s.settings.InitialDelay > 0 {
		select {
		case <-s.stop:
			return
		case <-time.After(s.settings.InitialDelay):
		}
	}

	ticker := time.NewTicker(s.settings.PollInterval)
	defer ticker.Stop()
	for {
		s.processOutboxMessages(context.Background())
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// processOutboxMessages performs one polling tick.
func (s *Scheduler) processOutboxMessages(ctx context.Context) {
	messages, err := s.helper.MessagesByOutboxStatusAndSagaStatus(ctx,
		OutboxStarted, SagaStarted, SagaCompensating)
	if err != nil {
		s.logger.Error("querying outbox messages to publish", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.Id.String()
	}
	s.logger.Info(fmt.Sprintf("received %d outbox messages with ids: %s, sending to message bus",
		len(messages), strings.Join(ids, ",")))

	for _, m := range messages {
		if err := s.publisher.Publish(m, s.updateOutboxStatus); err != nil {
			// The row stays STARTED and will be retried on the next tick.
			s.logger.Error(fmt.Sprintf("publishing outbox message %s", m.Id), err)
			s.errorCtr.Inc(1)
		}
	}
}

// updateOutboxStatus is the delivery completion callback. It persists the
// reported outbox status on the row; a failed save leaves the row for the
// next tick rather than dropping it.
func (s *Scheduler) updateOutboxStatus(m *OutboxMessage, status OutboxStatus) {
	m.OutboxStatus = status
	if _, err := s.helper.Save(context.Background(), m); err != nil {
		s.logger.Error(fmt.Sprintf("updating outbox message %s to status %s", m.Id, status), err)
		s.errorCtr.Inc(1)
		return
	}
	s.logger.Debug(fmt.Sprintf("outbox message %s is updated with outbox status: %s", m.Id, status))
	if status == OutboxCompleted {
		s.publishedCtr.Inc(1)
	}
}
