package kafka

import (
	"fmt"
	"strconv"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/foodcourt/ordersaga/saga"
	"github.com/iancoleman/strcase"
)

// producer abstracts the confluent kafka.Producer for testability.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

// Publisher delivers outbox messages to a kafka topic. Delivery reports
// arrive asynchronously on a per-message channel; the completion callback
// is invoked with COMPLETED only on broker acknowledgment. A failed
// delivery is logged and the callback is not invoked, leaving the row
// STARTED so the scheduler retries it on the next tick.
type Publisher struct {
	producer producer
	topic    string
	logger   saga.Logger
}

var _ saga.Publisher = (*Publisher)(nil)
var _ saga.Loggable = (*Publisher)(nil)

func New(p producer, topic string) *Publisher {
	if p == nil {
		panic("producer is mandatory")
	}
	if topic == "" {
		panic("topic is mandatory")
	}
	return &Publisher{
		producer: p,
		topic:    topic,
		logger:   &saga.NopLogger{},
	}
}

// SetLogger sets an optional logger.
func (p *Publisher) SetLogger(l saga.Logger) {
	p.logger = l
}

// Publish produces the outbox message keyed by saga id, so all messages
// of one saga instance land on the same partition. The message id and
// creation time travel as headers for downstream deduplication.
func (p *Publisher) Publish(m *saga.OutboxMessage, onResult func(*saga.OutboxMessage, saga.OutboxStatus)) error {
	var internal = make(chan kafka.Event)
	go func() {
		for ev := range internal {
			switch e := ev.(type) {
			case *kafka.Message:
				if e.TopicPartition.Error != nil {
					p.logger.Error(fmt.Sprintf("delivery failed for outbox message %s", m.Id), e.TopicPartition.Error)
				} else {
					p.logger.Debug(fmt.Sprintf("delivered outbox message %s to topic %s [%d] at offset %v",
						m.Id, *e.TopicPartition.Topic, e.TopicPartition.Partition, e.TopicPartition.Offset))
					onResult(m, saga.OutboxCompleted)
				}
			default:
				p.logger.Debug(fmt.Sprintf("ignored event: %s", ev))
			}
			// in this case the caller knows that this channel is used only
			// for one Produce call, so it can close it.
			close(internal)
		}
	}()

	topic := p.topic
	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(m.SagaId.String()),
		Value:          m.Payload,
		Headers: []kafka.Header{
			{Key: "id", Value: []byte(m.Id.String())},
			{Key: "createdAt", Value: []byte(strconv.FormatInt(m.CreatedAt.UnixMilli(), 10))},
		},
	}, internal)
}

// TopicName builds a conventional topic name from a saga type (e.g. if
// sagaType="ORDER_SAGA" and leg="payment" then the topic name is
// "order-saga-payment-request").
func TopicName(sagaType string, leg string) string {
	return fmt.Sprintf("%s-%s-request", strcase.ToKebab(sagaType), strcase.ToKebab(leg))
}
