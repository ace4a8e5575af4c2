package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/foodcourt/ordersaga/saga"
)

const pollTimeout = 100 * time.Millisecond

// Handler consumes one raw message. A nil return acknowledges the
// delivery; an error leaves it unacknowledged for redelivery.
type Handler interface {
	Handle(ctx context.Context, raw []byte) error
}

// kafkaConsumer abstracts the confluent kafka.Consumer for testability.
type kafkaConsumer interface {
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Seek(partition kafka.TopicPartition, ignoredTimeoutMs int) error
}

// Listener is the kafka consumption loop feeding a Handler. Offsets are
// committed per message only after the handler accepted it; a failed
// handling seeks back so the same message is read again, which is the
// transport-level redelivery the error taxonomy relies on.
type Listener struct {
	consumer kafkaConsumer
	handler  Handler
	logger   saga.Logger
	stop     chan struct{}
	done     chan struct{}
}

var _ saga.Loggable = (*Listener)(nil)

func NewListener(consumer kafkaConsumer, handler Handler) *Listener {
	if consumer == nil || handler == nil {
		panic("you must provide a consumer and a handler")
	}
	return &Listener{
		consumer: consumer,
		handler:  handler,
		logger:   &saga.NopLogger{},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetLogger sets an optional logger.
func (l *Listener) SetLogger(lg saga.Logger) {
	l.logger = lg
}

// Start launches the consumption loop.
func (l *Listener) Start() {
	go l.run()
}

// Stop terminates the consumption loop and waits for it to finish.
func (l *Listener) Stop() {
	close(l.stop)
	<-l.done
}

func (l *Listener) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		msg, err := l.consumer.ReadMessage(pollTimeout)
		if err != nil {
			if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			l.logger.Error("reading from the response stream", err)
			continue
		}

		if err := l.handler.Handle(context.Background(), msg.Value); err != nil {
			l.logger.Error(fmt.Sprintf("handling message at %s, it will be redelivered", msg.TopicPartition), err)
			if err := l.consumer.Seek(msg.TopicPartition, 0); err != nil {
				l.logger.Error("seeking back to redeliver", err)
			}
			// brief pause so a persistent failure does not spin hot
			time.Sleep(time.Second)
			continue
		}

		if _, err := l.consumer.CommitMessage(msg); err != nil {
			l.logger.Error("committing consumed message", err)
		}
	}
}
