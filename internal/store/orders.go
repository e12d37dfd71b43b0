package store

import (
	"context"
	"database/sql"
	"fmt"

	"payment-service/internal/models"
)

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (order_number, user_id, status, payment_status, total_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, order, query,
		order.OrderNumber, order.UserID, order.Status, order.PaymentStatus, order.TotalAmount)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderPaymentStatus sets the order's payment_status column.
func (s *Store) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, paymentStatus string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2",
		paymentStatus, orderID)
	return err
}

// AdvanceOrderToProcessing moves an order from pending to processing.
// The condition keeps the webhook from regressing an order an admin has
// already moved forward. Returns false when the order was past pending.
func (s *Store) AdvanceOrderToProcessing(ctx context.Context, orderID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.OrderStatusProcessing, orderID, models.OrderStatusPending)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateOrderStatus updates order status (admin path)
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// AppendOrderStatusHistory appends an audit trail entry for an order.
func (s *Store) AppendOrderStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	query := `
		INSERT INTO order_status_history (order_id, status, note, changed_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, entry, query,
		entry.OrderID, entry.Status, entry.Note, entry.ChangedBy)
}

// GetOrderStatusHistory retrieves the audit trail for an order, oldest first.
func (s *Store) GetOrderStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	var entries []models.OrderStatusHistory
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id", orderID)
	return entries, err
}

// AwardLoyaltyPoints credits points to a user's loyalty account,
// creating the account on first award.
func (s *Store) AwardLoyaltyPoints(ctx context.Context, userID, points int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loyalty_accounts (user_id, points, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET points = loyalty_accounts.points + EXCLUDED.points, updated_at = NOW()`,
		userID, points)
	return err
}

// GetLoyaltyAccount retrieves a user's loyalty balance
func (s *Store) GetLoyaltyAccount(ctx context.Context, userID int64) (*models.LoyaltyAccount, error) {
	var account models.LoyaltyAccount
	err := s.db.GetContext(ctx, &account,
		"SELECT * FROM loyalty_accounts WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return &models.LoyaltyAccount{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
