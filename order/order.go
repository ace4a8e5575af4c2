package order

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrOrderNotFound is returned by Repository.FindById when no order
// exists for the id.
var ErrOrderNotFound = errors.New("order not found")

// DomainError signals a fatal business inconsistency, e.g. an invalid
// status transition or a desynchronized saga leg. It is never swallowed.
type DomainError struct {
	Reason string
}

func (e *DomainError) Error() string {
	return e.Reason
}

// Status is the business status of an order aggregate.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusPaid       Status = "PAID"
	StatusApproved   Status = "APPROVED"
	StatusCancelling Status = "CANCELLING"
	StatusCancelled  Status = "CANCELLED"
)

// Order is the aggregate owned by this service. Concurrent writers race
// through the Version field: the repository save is a compare-and-swap
// and exactly one of two racing writers succeeds.
type Order struct {
	Id              uuid.UUID
	CustomerId      uuid.UUID
	RestaurantId    uuid.UUID
	TrackingId      uuid.UUID
	PriceCents      int64
	Status          Status
	FailureMessages []string
	Version         int64
}

// Pay marks the order paid after a successful payment response.
func (o *Order) Pay() error {
	if o.Status != StatusPending {
		return &DomainError{Reason: fmt.Sprintf("order %s is not in correct state for pay operation: %s", o.Id, o.Status)}
	}
	o.Status = StatusPaid
	return nil
}

// Approve marks the order approved after a successful restaurant
// approval response.
func (o *Order) Approve() error {
	if o.Status != StatusPaid {
		return &DomainError{Reason: fmt.Sprintf("order %s is not in correct state for approve operation: %s", o.Id, o.Status)}
	}
	o.Status = StatusApproved
	return nil
}

// InitCancel starts the compensation of a paid order when the restaurant
// rejected it. The payment must still be cancelled, so the order parks in
// CANCELLING until the payment response arrives.
func (o *Order) InitCancel(failureMessages []string) error {
	if o.Status != StatusPaid {
		return &DomainError{Reason: fmt.Sprintf("order %s is not in correct state for initCancel operation: %s", o.Id, o.Status)}
	}
	o.Status = StatusCancelling
	o.appendFailureMessages(failureMessages)
	return nil
}

// Cancel terminates the order. A pending order cancels directly (the
// payment failed before anything succeeded); a cancelling order completes
// its compensation.
func (o *Order) Cancel(failureMessages []string) error {
	if o.Status != StatusPending && o.Status != StatusCancelling {
		return &DomainError{Reason: fmt.Sprintf("order %s is not in correct state for cancel operation: %s", o.Id, o.Status)}
	}
	o.Status = StatusCancelled
	o.appendFailureMessages(failureMessages)
	return nil
}

func (o *Order) appendFailureMessages(failureMessages []string) {
	for _, m := range failureMessages {
		if m != "" {
			o.FailureMessages = append(o.FailureMessages, m)
		}
	}
}
