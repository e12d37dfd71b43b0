package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payment-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrPaymentNotFound is returned when no payment matches the looked-up
// reference. It is the only hard failure the reconciliation path reports.
var ErrPaymentNotFound = errors.New("payment not found")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// CreatePayment creates a new pending payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, reference, status, transaction_id, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, payment, query,
		payment.OrderID, payment.Reference, payment.Status, payment.TransactionID, payment.Amount)
}

// GetPaymentByReference retrieves a payment by its gateway correlation
// reference. Returns ErrPaymentNotFound when no row matches.
func (s *Store) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE reference = $1", reference)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, reference)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// SettlePayment applies a webhook outcome to a payment. The update is
// conditional on the row not already being completed, so a duplicate
// delivery racing the read-then-write idempotency check cannot produce
// a second effective transition. Returns false when no row changed.
func (s *Store) SettlePayment(ctx context.Context, reference, status, transactionID string,
	processedAt time.Time, gatewayResponse json.RawMessage, failureReason string) (bool, error) {

	query := `
		UPDATE payments
		SET status = $1, transaction_id = $2, processed_at = $3,
		    gateway_response = $4, failure_reason = NULLIF($5, ''), updated_at = NOW()
		WHERE reference = $6 AND status <> $7`

	res, err := s.db.ExecContext(ctx, query,
		status, transactionID, processedAt, []byte(gatewayResponse), failureReason,
		reference, models.PaymentStatusCompleted)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
