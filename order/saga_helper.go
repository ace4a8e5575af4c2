package order

import (
	"errors"
	"time"

	"github.com/foodcourt/ordersaga/saga"
)

// SagaType discriminates this saga family on every outbox row.
const SagaType = "ORDER_SAGA"

// sagaStatusFor derives the saga status from the order status that
// resulted from a domain transition.
func sagaStatusFor(s Status) saga.SagaStatus {
	switch s {
	case StatusPaid:
		return saga.SagaProcessing
	case StatusApproved:
		return saga.SagaSucceeded
	case StatusCancelling:
		return saga.SagaCompensating
	case StatusCancelled:
		return saga.SagaCompensated
	default:
		return saga.SagaStarted
	}
}

// benignOutcome classifies the error categories that are expected races
// on the consumer path rather than failures. The caller converts them to
// outcomes and carries on; anything else propagates.
func benignOutcome(err error) (saga.Outcome, bool) {
	switch {
	case err == nil:
		return 0, false
	case errors.Is(err, saga.ErrVersionConflict):
		return saga.OutcomeConflict, true
	case errors.Is(err, saga.ErrDuplicateMessage):
		return saga.OutcomeConflict, true
	case errors.Is(err, ErrOrderNotFound):
		return saga.OutcomeNotFound, true
	}
	return 0, false
}

// advanceOutboxMessage stamps the message with the order's new business
// status and the derived saga status.
func advanceOutboxMessage(m *saga.OutboxMessage, orderStatus Status, sagaStatus saga.SagaStatus) *saga.OutboxMessage {
	m.ProcessedAt = time.Now().UTC()
	m.DomainStatus = string(orderStatus)
	m.SagaStatus = sagaStatus
	return m
}
