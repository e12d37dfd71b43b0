package models

import "time"

// Event types
const (
	EventTypePaymentConfirmed = "PAYMENT_CONFIRMED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentConfirmedEvent published after the first successful
// reconciliation of a payment.
type PaymentConfirmedEvent struct {
	BaseEvent
	OrderID          int64   `json:"order_id"`
	OrderNumber      string  `json:"order_number"`
	UserID           int64   `json:"user_id"`
	PaymentReference string  `json:"payment_reference"`
	TransactionID    string  `json:"transaction_id"`
	Amount           float64 `json:"amount"`
}

// PaymentFailedEvent published when the gateway reports a terminal
// failure for a payment.
type PaymentFailedEvent struct {
	BaseEvent
	OrderID          int64  `json:"order_id"`
	OrderNumber      string `json:"order_number"`
	UserID           int64  `json:"user_id"`
	PaymentReference string `json:"payment_reference"`
	Reason           string `json:"reason"`
}
