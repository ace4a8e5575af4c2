package consumer

import "time"

// Change-data-capture operation tags.
const (
	OpCreate = "c"
	OpUpdate = "u"
	OpDelete = "d"
)

// ChangeRecord is the row image carried by a change envelope: the
// downstream service's outbox row as captured from its database.
type ChangeRecord struct {
	Id        string `json:"id"`
	SagaId    string `json:"saga_id"`
	CreatedAt int64  `json:"created_at"` // epoch millis
	Type      string `json:"type"`
	Payload   string `json:"payload"` // the serialized response event body
}

// Envelope is the change-data-capture record consumed from the response
// stream. Only fresh inserts (no before image, create op) represent new
// response events; update and delete records are echoes of this service's
// own status writes and must be ignored.
type Envelope struct {
	Before *ChangeRecord `json:"before"`
	After  *ChangeRecord `json:"after"`
	Op     string        `json:"op"`
}

// IsCreate reports whether the envelope represents a fresh insert.
func (e *Envelope) IsCreate() bool {
	return e.Before == nil && e.Op == OpCreate && e.After != nil
}

// PaymentOrderEventPayload is the body of a payment response event as
// serialized by the payment service.
type PaymentOrderEventPayload struct {
	PaymentId       string    `json:"paymentId"`
	CustomerId      string    `json:"customerId"`
	OrderId         string    `json:"orderId"`
	PriceCents      int64     `json:"priceCents"`
	CreatedAt       time.Time `json:"createdAt"`
	PaymentStatus   string    `json:"paymentStatus"`
	FailureMessages []string  `json:"failureMessages"`
}

// ApprovalOrderEventPayload is the body of a restaurant approval response
// event as serialized by the restaurant service.
type ApprovalOrderEventPayload struct {
	OrderId             string    `json:"orderId"`
	RestaurantId        string    `json:"restaurantId"`
	CreatedAt           time.Time `json:"createdAt"`
	OrderApprovalStatus string    `json:"orderApprovalStatus"`
	FailureMessages     []string  `json:"failureMessages"`
}
