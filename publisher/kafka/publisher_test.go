package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/foodcourt/ordersaga/saga"
	"github.com/foodcourt/ordersaga/test"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	assert.Panics(t, func() {
		New(nil, "a-topic")
	})
	assert.Panics(t, func() {
		New(&test.MockedKafkaProducer{}, "")
	})
	assert.NotPanics(t, func() {
		New(&test.MockedKafkaProducer{}, "a-topic")
	})
}

func TestPublish(t *testing.T) {
	topic := "order-saga-payment-request"
	message := &saga.OutboxMessage{
		Id:           uuid.New(),
		SagaId:       uuid.New(),
		CreatedAt:    time.Now().UTC(),
		Type:         "ORDER_SAGA",
		Payload:      []byte(`{"orderId":"x"}`),
		SagaStatus:   saga.SagaStarted,
		OutboxStatus: saga.OutboxStarted,
		Version:      1,
	}

	testcases := []struct {
		name        string
		report      kafka.Event
		produceErr  error
		wantErr     bool
		wantResult  bool
		wantStatus  saga.OutboxStatus
	}{
		{
			name: "an acknowledged delivery completes the message",
			report: &kafka.Message{
				TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: 1},
			},
			wantResult: true,
			wantStatus: saga.OutboxCompleted,
		},
		{
			name: "a failed delivery reports nothing and leaves the row pending",
			report: &kafka.Message{
				TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0,
					Error: errors.New("broker unreachable")},
			},
			wantResult: false,
		},
		{
			name:       "an unrelated event reports nothing",
			report:     &test.MockedKafkaEvent{},
			wantResult: false,
		},
		{
			name:       "a produce error propagates",
			report:     &test.MockedKafkaEvent{},
			produceErr: errors.New("queue full"),
			wantErr:    true,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			snitch := make(chan *kafka.Message, 1)
			producer := &test.MockedKafkaProducer{
				MockedReportToSend: tc.report,
				Snitch:             snitch,
				RetVal:             tc.produceErr,
			}
			publisher := New(producer, topic)

			results := make(chan saga.OutboxStatus, 1)
			err := publisher.Publish(message, func(_ *saga.OutboxMessage, status saga.OutboxStatus) {
				results <- status
			})

			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			produced := <-snitch
			assert.Equal(t, topic, *produced.TopicPartition.Topic)
			assert.Equal(t, []byte(message.SagaId.String()), produced.Key)
			assert.Equal(t, message.Payload, produced.Value)
			assert.Len(t, produced.Headers, 2)
			assert.Equal(t, "id", produced.Headers[0].Key)
			assert.Equal(t, []byte(message.Id.String()), produced.Headers[0].Value)

			if tc.wantResult {
				select {
				case status := <-results:
					assert.Equal(t, tc.wantStatus, status)
				case <-time.After(time.Second):
					t.Fatal("expected a delivery result")
				}
			} else {
				select {
				case status := <-results:
					t.Fatalf("unexpected delivery result: %s", status)
				case <-time.After(50 * time.Millisecond):
				}
			}
		})
	}
}

func TestTopicName(t *testing.T) {
	testcases := []struct {
		name     string
		sagaType string
		leg      string
		want     string
	}{
		{
			name:     "payment leg",
			sagaType: "ORDER_SAGA",
			leg:      "payment",
			want:     "order-saga-payment-request",
		},
		{
			name:     "restaurant approval leg",
			sagaType: "ORDER_SAGA",
			leg:      "restaurant approval",
			want:     "order-saga-restaurant-approval-request",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TopicName(tc.sagaType, tc.leg))
		})
	}
}
