package order

import (
	"context"
	"fmt"
	"time"

	"github.com/foodcourt/ordersaga/saga"
)

// PaymentSaga is the saga transition driven by payment responses. Process
// reacts to a completed payment by marking the order paid and triggering
// the restaurant approval leg; Rollback compensates the order when the
// payment was cancelled or failed.
type PaymentSaga struct {
	orders         Repository
	paymentOutbox  *saga.Helper
	approvalOutbox *saga.Helper
	logger         saga.Logger
}

var _ saga.Step[*PaymentResponse] = (*PaymentSaga)(nil)
var _ saga.Loggable = (*PaymentSaga)(nil)

func NewPaymentSaga(orders Repository, paymentOutbox *saga.Helper, approvalOutbox *saga.Helper) *PaymentSaga {
	if orders == nil || paymentOutbox == nil || approvalOutbox == nil {
		panic("you must provide a repository and both outbox helpers")
	}
	return &PaymentSaga{
		orders:         orders,
		paymentOutbox:  paymentOutbox,
		approvalOutbox: approvalOutbox,
		logger:         &saga.NopLogger{},
	}
}

// SetLogger sets an optional logger.
func (s *PaymentSaga) SetLogger(l saga.Logger) {
	s.logger = l
}

// Process handles a completed payment. The payment outbox row in STARTED
// is the idempotency guard: when it is absent the event was already
// handled and nothing is mutated or re-published.
func (s *PaymentSaga) Process(ctx context.Context, r *PaymentResponse) (saga.Outcome, error) {
	msg, err := s.paymentOutbox.MessageBySagaIdAndSagaStatus(ctx, r.SagaId, saga.SagaStarted)
	if err != nil {
		return 0, err
	}
	if msg == nil {
		s.logger.Info(fmt.Sprintf("an outbox message with saga id: %s is already processed", r.SagaId))
		return saga.OutcomeAlreadyProcessed, nil
	}

	o, err := s.orders.FindById(ctx, r.OrderId)
	if outcome, ok := benignOutcome(err); ok {
		s.logger.Warn(fmt.Sprintf("order with id: %s could not be found, skipping payment completion", r.OrderId))
		return outcome, nil
	}
	if err != nil {
		return 0, err
	}

	if err := o.Pay(); err != nil {
		return 0, err
	}
	paid, err := s.orders.Save(ctx, o)
	if outcome, ok := benignOutcome(err); ok {
		s.logger.Warn(fmt.Sprintf("lost the race persisting order with id: %s", o.Id))
		return outcome, nil
	}
	if err != nil {
		return 0, err
	}

	sagaStatus := sagaStatusFor(paid.Status)
	if _, err := s.paymentOutbox.Save(ctx, advanceOutboxMessage(msg, paid.Status, sagaStatus)); err != nil {
		if outcome, ok := benignOutcome(err); ok {
			return outcome, nil
		}
		return 0, err
	}

	payload := ApprovalEventPayload{
		OrderId:               paid.Id.String(),
		RestaurantId:          paid.RestaurantId.String(),
		PriceCents:            paid.PriceCents,
		CreatedAt:             time.Now().UTC(),
		RestaurantOrderStatus: string(paid.Status),
	}
	if err := s.approvalOutbox.SaveNew(ctx, payload, string(paid.Status), sagaStatus, r.SagaId); err != nil {
		if outcome, ok := benignOutcome(err); ok {
			s.logger.Warn(fmt.Sprintf("approval outbox message for saga id: %s was already created by another instance", r.SagaId))
			return outcome, nil
		}
		return 0, err
	}

	s.logger.Info(fmt.Sprintf("order with id: %s is paid", paid.Id))
	return saga.OutcomeApplied, nil
}

// Rollback compensates a cancelled or failed payment. The guard statuses
// depend on the reported outcome: a CANCELLED response can only follow a
// PROCESSING leg, while FAILED can legitimately arrive from STARTED or
// PROCESSING because the payment may fail before or after partially
// succeeding upstream.
func (s *PaymentSaga) Rollback(ctx context.Context, r *PaymentResponse) (saga.Outcome, error) {
	guards := rollbackGuardStatuses(r.PaymentStatus)
	if len(guards) == 0 {
		s.logger.Warn(fmt.Sprintf("no rollback applies for payment status: %s (saga id: %s)", r.PaymentStatus, r.SagaId))
		return saga.OutcomeAlreadyProcessed, nil
	}

	msg, err := s.paymentOutbox.MessageBySagaIdAndSagaStatus(ctx, r.SagaId, guards...)
	if err != nil {
		return 0, err
	}
	if msg == nil {
		s.logger.Info(fmt.Sprintf("an outbox message with saga id: %s is already rolled back", r.SagaId))
		return saga.OutcomeAlreadyProcessed, nil
	}

	o, err := s.orders.FindById(ctx, r.OrderId)
	if outcome, ok := benignOutcome(err); ok {
		s.logger.Warn(fmt.Sprintf("order with id: %s could not be found, skipping payment rollback", r.OrderId))
		return outcome, nil
	}
	if err != nil {
		return 0, err
	}

	if err := o.Cancel(r.FailureMessages); err != nil {
		return 0, err
	}
	cancelled, err := s.orders.Save(ctx, o)
	if outcome, ok := benignOutcome(err); ok {
		s.logger.Warn(fmt.Sprintf("lost the race persisting order with id: %s", o.Id))
		return outcome, nil
	}
	if err != nil {
		return 0, err
	}

	sagaStatus := sagaStatusFor(cancelled.Status)
	if _, err := s.paymentOutbox.Save(ctx, advanceOutboxMessage(msg, cancelled.Status, sagaStatus)); err != nil {
		if outcome, ok := benignOutcome(err); ok {
			return outcome, nil
		}
		return 0, err
	}

	// A CANCELLED payment is the tail of a cross-leg compensation that the
	// approval leg initiated, so its COMPENSATING sibling row must exist.
	// Its absence means the two legs desynchronized, which is fatal.
	if r.PaymentStatus == PaymentCancelled {
		approvalMsg, err := s.approvalOutbox.MessageBySagaIdAndSagaStatus(ctx, r.SagaId, saga.SagaCompensating)
		if err != nil {
			return 0, err
		}
		if approvalMsg == nil {
			return 0, &DomainError{Reason: fmt.Sprintf(
				"approval outbox message could not be found in %s status for saga id: %s",
				saga.SagaCompensating, r.SagaId)}
		}
		if _, err := s.approvalOutbox.Save(ctx, advanceOutboxMessage(approvalMsg, cancelled.Status, sagaStatus)); err != nil {
			if outcome, ok := benignOutcome(err); ok {
				return outcome, nil
			}
			return 0, err
		}
	}

	s.logger.Info(fmt.Sprintf("order with id: %s is cancelled", cancelled.Id))
	return saga.OutcomeApplied, nil
}

// rollbackGuardStatuses selects the prior saga statuses a rollback may
// match for the reported payment outcome. The FAILED set intentionally
// covers both STARTED and PROCESSING while CANCELLED covers only
// PROCESSING; the asymmetry reflects the upstream payment flow.
func rollbackGuardStatuses(status PaymentStatus) []saga.SagaStatus {
	switch status {
	case PaymentCompleted:
		return []saga.SagaStatus{saga.SagaStarted}
	case PaymentCancelled:
		return []saga.SagaStatus{saga.SagaProcessing}
	case PaymentFailed:
		return []saga.SagaStatus{saga.SagaStarted, saga.SagaProcessing}
	default:
		return nil
	}
}
