package order

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the outcome reported by the payment service.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// ApprovalStatus is the outcome reported by the restaurant service.
type ApprovalStatus string

const (
	OrderApproved ApprovalStatus = "APPROVED"
	OrderRejected ApprovalStatus = "REJECTED"
)

// PaymentResponse is the asynchronous answer to a payment request,
// correlated to the saga instance by SagaId.
type PaymentResponse struct {
	Id              string
	SagaId          uuid.UUID
	OrderId         uuid.UUID
	PaymentId       string
	CustomerId      string
	PriceCents      int64
	CreatedAt       time.Time
	PaymentStatus   PaymentStatus
	FailureMessages []string
}

// ApprovalResponse is the asynchronous answer to a restaurant approval
// request, correlated to the saga instance by SagaId.
type ApprovalResponse struct {
	Id              string
	SagaId          uuid.UUID
	OrderId         uuid.UUID
	RestaurantId    string
	CreatedAt       time.Time
	ApprovalStatus  ApprovalStatus
	FailureMessages []string
}
