package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Order represents a customer purchase. Each order has at most one
// payment attempt tracked by this service.
type Order struct {
	ID            int64     `db:"id" json:"id"`
	OrderNumber   string    `db:"order_number" json:"order_number"`
	UserID        int64     `db:"user_id" json:"user_id"`
	Status        string    `db:"status" json:"status"`
	PaymentStatus string    `db:"payment_status" json:"payment_status"`
	TotalAmount   float64   `db:"total_amount" json:"total_amount"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Payment represents one attempted payment for an order. Reference is
// the correlation id shared with the gateway. GatewayResponse keeps the
// raw webhook payload verbatim for audit.
type Payment struct {
	ID              int64           `db:"id" json:"id"`
	OrderID         int64           `db:"order_id" json:"order_id"`
	Reference       string          `db:"reference" json:"reference"`
	Status          string          `db:"status" json:"status"`
	TransactionID   string          `db:"transaction_id" json:"transaction_id,omitempty"`
	Amount          float64         `db:"amount" json:"amount"`
	ProcessedAt     sql.NullTime    `db:"processed_at" json:"processed_at,omitempty"`
	GatewayResponse json.RawMessage `db:"gateway_response" json:"gateway_response,omitempty"`
	FailureReason   sql.NullString  `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderStatusHistory is the append-only audit trail for an order.
type OrderStatusHistory struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	Status    string    `db:"status" json:"status"`
	Note      string    `db:"note" json:"note"`
	ChangedBy string    `db:"changed_by" json:"changed_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LoyaltyAccount tracks accrued points per user.
type LoyaltyAccount struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	Points    int64     `db:"points" json:"points"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusReturned   = "returned"
	OrderStatusRefunded   = "refunded"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// ValidOrderStatus reports whether s is part of the order-status vocabulary.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned,
		OrderStatusRefunded:
		return true
	}
	return false
}

// ProcessedEvent for consumer-side idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
