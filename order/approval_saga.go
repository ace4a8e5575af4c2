package order

import (
	"context"
	"fmt"
	"time"

	"github.com/foodcourt/ordersaga/saga"
)

// ApprovalSaga is the saga transition driven by restaurant approval
// responses. Process closes the saga successfully; Rollback starts the
// compensation by requesting a payment cancellation through a fresh
// payment outbox row.
type ApprovalSaga struct {
	orders         Repository
	paymentOutbox  *saga.Helper
	approvalOutbox *saga.Helper
	logger         saga.Logger
}

var _ saga.Step[*ApprovalResponse] = (*ApprovalSaga)(nil)
var _ saga.Loggable = (*ApprovalSaga)(nil)

func NewApprovalSaga(orders Repository, paymentOutbox *saga.Helper, approvalOutbox *saga.Helper) *ApprovalSaga {
	if orders == nil || paymentOutbox == nil || approvalOutbox == nil {
		panic("you must provide a repository and both outbox helpers")
	}
	return &ApprovalSaga{
		orders:         orders,
		paymentOutbox:  paymentOutbox,
		approvalOutbox: approvalOutbox,
		logger:         &saga.NopLogger{},
	}
}

// SetLogger sets an optional logger.
func (s *ApprovalSaga) SetLogger(l saga.Logger) {
	s.logger = l
}

// Process handles an approved order. The approval outbox row in
// PROCESSING is the idempotency guard. On success both legs' rows advance
// to SUCCEEDED; a missing payment sibling row is a fatal inconsistency.
func (s *ApprovalSaga) Process(ctx context.Context, r *ApprovalResponse) (saga.Outcome, error) {
	msg, err := s.approvalOutbox.MessageBySagaIdAndSagaStatus(ctx, r.SagaId, saga.SagaProcessing)
	if err != nil {
		return 0, err
	}
	if msg == nil {
		s.logger.Info(fmt.Sprintf("an outbox message with saga id: %s is already processed", r.SagaId))
		return saga.OutcomeAlreadyProcessed, nil
	}

	o, err := s.orders.FindById(ctx, r.OrderId)
	if outcome, ok := benignOutcome(err); ok {
		s.logger.Warn(fmt.Sprintf("order with id: %s could not be found, skipping approval", r.OrderId))
		return outcome, nil
	}
	if err != nil {
		return 0, err
	}

	if err := o.Approve(); err != nil {
		return 0, err
	}
	approved, err := s.orders.Save(ctx, o)
	if outcome, ok := benignOutcome(err); ok {
		s.logger.Warn(fmt.Sprintf("lost the race persisting order with id: %s", o.Id))
		return outcome, nil
	}
	if err != nil {
		return 0, err
	}

	sagaStatus := sagaStatusFor(approved.Status)
	if _, err := s.approvalOutbox.Save(ctx, advanceOutboxMessage(msg, approved.Status, sagaStatus)); err != nil {
		if outcome, ok := benignOutcome(err); ok {
			return outcome, nil
		}
		return 0, err
	}

	paymentMsg, err := s.paymentOutbox.MessageBySagaIdAndSagaStatus(ctx, r.SagaId, saga.SagaProcessing)
	if err != nil {
		return 0, err
	}
	if paymentMsg == nil {
		return 0, &DomainError{Reason: fmt.Sprintf(
			"payment outbox message could not be found in %s status for saga id: %s",
			saga.SagaProcessing, r.SagaId)}
	}
	if _, err := s.paymentOutbox.Save(ctx, advanceOutboxMessage(paymentMsg, approved.Status, sagaStatus)); err != nil {
		if outcome, ok := benignOutcome(err); ok {
			return outcome, nil
		}
		return 0, err
	}

	s.logger.Info(fmt.Sprintf("order with id: %s is approved", approved.Id))
	return saga.OutcomeApplied, nil
}

// Rollback compensates a rejected order. The order parks in CANCELLING,
// the approval row moves to COMPENSATING, and a new payment outbox row is
// written to request the payment cancellation that completes the
// compensation later.
func (s *ApprovalSaga) Rollback(ctx context.Context, r *ApprovalResponse) (saga.Outcome, error) {
	msg, err := s.approvalOutbox.MessageBySagaIdAndSagaStatus(ctx, r.SagaId, saga.SagaProcessing)
	if err != nil {
		return 0, err
	}
	if msg == nil {
		s.logger.Info(fmt.Sprintf("an outbox message with saga id: %s is already rolled back", r.SagaId))
		return saga.OutcomeAlreadyProcessed, nil
	}

	o, err := s.orders.FindById(ctx, r.OrderId)
	if outcome, ok := benignOutcome(err); ok {
		s.logger.Warn(fmt.Sprintf("order with id: %s could not be found, skipping approval rollback", r.OrderId))
		return outcome, nil
	}
	if err != nil {
		return 0, err
	}

	if err := o.InitCancel(r.FailureMessages); err != nil {
		return 0, err
	}
	cancelling, err := s.orders.Save(ctx, o)
	if outcome, ok := benignOutcome(err); ok {
		s.logger.Warn(fmt.Sprintf("lost the race persisting order with id: %s", o.Id))
		return outcome, nil
	}
	if err != nil {
		return 0, err
	}

	sagaStatus := sagaStatusFor(cancelling.Status)
	if _, err := s.approvalOutbox.Save(ctx, advanceOutboxMessage(msg, cancelling.Status, sagaStatus)); err != nil {
		if outcome, ok := benignOutcome(err); ok {
			return outcome, nil
		}
		return 0, err
	}

	payload := PaymentEventPayload{
		OrderId:            cancelling.Id.String(),
		CustomerId:         cancelling.CustomerId.String(),
		PriceCents:         cancelling.PriceCents,
		CreatedAt:          time.Now().UTC(),
		PaymentOrderStatus: string(cancelling.Status),
	}
	if err := s.paymentOutbox.SaveNew(ctx, payload, string(cancelling.Status), sagaStatus, r.SagaId); err != nil {
		if outcome, ok := benignOutcome(err); ok {
			s.logger.Warn(fmt.Sprintf("payment outbox message for saga id: %s was already created by another instance", r.SagaId))
			return outcome, nil
		}
		return 0, err
	}

	s.logger.Info(fmt.Sprintf("order with id: %s is cancelling", cancelling.Id))
	return saga.OutcomeApplied, nil
}
