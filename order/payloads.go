package order

import "time"

// PaymentEventPayload is the serialized body of a payment outbox message,
// consumed by the payment service.
type PaymentEventPayload struct {
	OrderId            string    `json:"orderId"`
	CustomerId         string    `json:"customerId"`
	PriceCents         int64     `json:"priceCents"`
	CreatedAt          time.Time `json:"createdAt"`
	PaymentOrderStatus string    `json:"paymentOrderStatus"`
}

// ApprovalEventPayload is the serialized body of a restaurant approval
// outbox message, consumed by the restaurant service.
type ApprovalEventPayload struct {
	OrderId               string    `json:"orderId"`
	RestaurantId          string    `json:"restaurantId"`
	PriceCents            int64     `json:"priceCents"`
	CreatedAt             time.Time `json:"createdAt"`
	RestaurantOrderStatus string    `json:"restaurantOrderStatus"`
}
