package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/foodcourt/ordersaga/order"
	"github.com/foodcourt/ordersaga/saga"
	"github.com/google/uuid"
)

// Transactor runs a dispatch inside one atomic unit covering the
// aggregate mutation and the outbox writes.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// errDiscard forces a transaction rollback for dispatches that resolved
// to a non-applied outcome: there is nothing to keep and a possibly
// aborted transaction must not be committed.
var errDiscard = errors.New("discard delivery")

// dispatcher is the outcome-aware core shared by the response handlers.
// Benign outcomes are swallowed with a log and a counter; real errors
// propagate so the delivery is not acknowledged and the transport
// redelivers it.
type dispatcher struct {
	tx         Transactor
	logger     saga.Logger
	skippedCtr saga.Counter
}

func (d *dispatcher) dispatch(ctx context.Context, sagaId uuid.UUID,
	fn func(ctx context.Context) (saga.Outcome, error)) (saga.Outcome, error) {
	var outcome saga.Outcome
	err := d.tx.InTx(ctx, func(txCtx context.Context) error {
		o, err := fn(txCtx)
		if err != nil {
			return err
		}
		outcome = o
		if o != saga.OutcomeApplied {
			return errDiscard
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDiscard) {
		return 0, err
	}
	if outcome != saga.OutcomeApplied {
		d.logger.Info(fmt.Sprintf("discarded response for saga id: %s with outcome: %s", sagaId, outcome))
		d.skippedCtr.Inc(1)
	}
	return outcome, nil
}

// PaymentResponseHandler translates payment change records into calls on
// the payment saga step. Concurrency conflicts on this entry point are
// retried synchronously with a tight bound, since the racing writer
// resolves within microseconds; only an exhausted retry becomes a fatal
// error.
type PaymentResponseHandler struct {
	dispatcher
	step        saga.Step[*order.PaymentResponse]
	maxAttempts int
}

var _ saga.Loggable = (*PaymentResponseHandler)(nil)

func NewPaymentResponseHandler(step saga.Step[*order.PaymentResponse], tx Transactor) *PaymentResponseHandler {
	if step == nil || tx == nil {
		panic("you must provide a step and a transactor")
	}
	return &PaymentResponseHandler{
		dispatcher: dispatcher{
			tx:         tx,
			logger:     &saga.NopLogger{},
			skippedCtr: &saga.NopCounter{},
		},
		step:        step,
		maxAttempts: saga.DefaultMaxAttempts,
	}
}

// SetLogger sets an optional logger.
func (h *PaymentResponseHandler) SetLogger(l saga.Logger) {
	h.logger = l
}

// SetSkippedCounter sets an optional counter for discarded deliveries.
func (h *PaymentResponseHandler) SetSkippedCounter(c saga.Counter) {
	if c != nil {
		h.skippedCtr = c
	}
}

// Handle consumes one raw change envelope. Non-insert records are
// ignored; malformed records are logged and dropped since a retry can
// never fix them. Errors from the dispatch propagate to prevent the
// delivery from being acknowledged.
func (h *PaymentResponseHandler) Handle(ctx context.Context, raw []byte) error {
	env, payload, err := decodePayment(raw)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("dropping undecodable payment change record: %v", err))
		return nil
	}
	if env == nil {
		h.logger.Debug("ignoring payment change record echo")
		return nil
	}

	response, err := paymentResponseFrom(env.After, payload)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("dropping malformed payment response: %v", err))
		return nil
	}

	var op func(ctx context.Context) (saga.Outcome, error)
	switch response.PaymentStatus {
	case order.PaymentCompleted:
		h.logger.Info(fmt.Sprintf("processing successful payment for order id: %s", payload.OrderId))
		op = func(ctx context.Context) (saga.Outcome, error) { return h.step.Process(ctx, response) }
	case order.PaymentCancelled, order.PaymentFailed:
		h.logger.Info(fmt.Sprintf("processing unsuccessful payment for order id: %s", payload.OrderId))
		op = func(ctx context.Context) (saga.Outcome, error) { return h.step.Rollback(ctx, response) }
	default:
		h.logger.Warn(fmt.Sprintf("dropping payment response with unknown status: %s", payload.PaymentStatus))
		return nil
	}

	return saga.RetryOnConflict(h.maxAttempts, h.logger, func() error {
		outcome, err := h.dispatch(ctx, response.SagaId, op)
		if err != nil {
			return err
		}
		if outcome == saga.OutcomeConflict {
			// Re-enter the guard query immediately; the winning writer's
			// state decides whether the replay becomes a no-op.
			return saga.ErrVersionConflict
		}
		return nil
	})
}

// ApprovalResponseHandler translates restaurant approval change records
// into calls on the approval saga step. Conflicts here are swallowed:
// the winning writer did the work and a replay resolves as already
// processed.
type ApprovalResponseHandler struct {
	dispatcher
	step saga.Step[*order.ApprovalResponse]
}

var _ saga.Loggable = (*ApprovalResponseHandler)(nil)

func NewApprovalResponseHandler(step saga.Step[*order.ApprovalResponse], tx Transactor) *ApprovalResponseHandler {
	if step == nil || tx == nil {
		panic("you must provide a step and a transactor")
	}
	return &ApprovalResponseHandler{
		dispatcher: dispatcher{
			tx:         tx,
			logger:     &saga.NopLogger{},
			skippedCtr: &saga.NopCounter{},
		},
		step: step,
	}
}

// SetLogger sets an optional logger.
func (h *ApprovalResponseHandler) SetLogger(l saga.Logger) {
	h.logger = l
}

// SetSkippedCounter sets an optional counter for discarded deliveries.
func (h *ApprovalResponseHandler) SetSkippedCounter(c saga.Counter) {
	if c != nil {
		h.skippedCtr = c
	}
}

// Handle consumes one raw change envelope, see PaymentResponseHandler.Handle.
func (h *ApprovalResponseHandler) Handle(ctx context.Context, raw []byte) error {
	env, payload, err := decodeApproval(raw)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("dropping undecodable approval change record: %v", err))
		return nil
	}
	if env == nil {
		h.logger.Debug("ignoring approval change record echo")
		return nil
	}

	response, err := approvalResponseFrom(env.After, payload)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("dropping malformed approval response: %v", err))
		return nil
	}

	switch response.ApprovalStatus {
	case order.OrderApproved:
		h.logger.Info(fmt.Sprintf("processing approved order with id: %s", payload.OrderId))
		_, err := h.dispatch(ctx, response.SagaId, func(ctx context.Context) (saga.Outcome, error) {
			return h.step.Process(ctx, response)
		})
		return err
	case order.OrderRejected:
		h.logger.Info(fmt.Sprintf("processing rejected order with id: %s", payload.OrderId))
		_, err := h.dispatch(ctx, response.SagaId, func(ctx context.Context) (saga.Outcome, error) {
			return h.step.Rollback(ctx, response)
		})
		return err
	default:
		h.logger.Warn(fmt.Sprintf("dropping approval response with unknown status: %s", payload.OrderApprovalStatus))
		return nil
	}
}

func decodePayment(raw []byte) (*Envelope, *PaymentOrderEventPayload, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("could not decode change envelope: %w", err)
	}
	if !env.IsCreate() {
		return nil, nil, nil
	}
	var payload PaymentOrderEventPayload
	if err := json.Unmarshal([]byte(env.After.Payload), &payload); err != nil {
		return nil, nil, fmt.Errorf("could not decode payment event payload: %w", err)
	}
	return &env, &payload, nil
}

func decodeApproval(raw []byte) (*Envelope, *ApprovalOrderEventPayload, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("could not decode change envelope: %w", err)
	}
	if !env.IsCreate() {
		return nil, nil, nil
	}
	var payload ApprovalOrderEventPayload
	if err := json.Unmarshal([]byte(env.After.Payload), &payload); err != nil {
		return nil, nil, fmt.Errorf("could not decode approval event payload: %w", err)
	}
	return &env, &payload, nil
}

func paymentResponseFrom(record *ChangeRecord, payload *PaymentOrderEventPayload) (*order.PaymentResponse, error) {
	sagaId, err := uuid.Parse(record.SagaId)
	if err != nil {
		return nil, fmt.Errorf("invalid saga id %q: %w", record.SagaId, err)
	}
	orderId, err := uuid.Parse(payload.OrderId)
	if err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", payload.OrderId, err)
	}
	return &order.PaymentResponse{
		Id:              record.Id,
		SagaId:          sagaId,
		OrderId:         orderId,
		PaymentId:       payload.PaymentId,
		CustomerId:      payload.CustomerId,
		PriceCents:      payload.PriceCents,
		CreatedAt:       time.UnixMilli(record.CreatedAt).UTC(),
		PaymentStatus:   order.PaymentStatus(payload.PaymentStatus),
		FailureMessages: payload.FailureMessages,
	}, nil
}

func approvalResponseFrom(record *ChangeRecord, payload *ApprovalOrderEventPayload) (*order.ApprovalResponse, error) {
	sagaId, err := uuid.Parse(record.SagaId)
	if err != nil {
		return nil, fmt.Errorf("invalid saga id %q: %w", record.SagaId, err)
	}
	orderId, err := uuid.Parse(payload.OrderId)
	if err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", payload.OrderId, err)
	}
	return &order.ApprovalResponse{
		Id:              record.Id,
		SagaId:          sagaId,
		OrderId:         orderId,
		RestaurantId:    payload.RestaurantId,
		CreatedAt:       time.UnixMilli(record.CreatedAt).UTC(),
		ApprovalStatus:  order.ApprovalStatus(payload.OrderApprovalStatus),
		FailureMessages: payload.FailureMessages,
	}, nil
}
