package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"payment-service/internal/gateway"
	"payment-service/internal/models"
	"payment-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	payments map[string]*models.Payment
	orders   map[int64]*models.Order
	history  []models.OrderStatusHistory

	settleCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments: make(map[string]*models.Payment),
		orders:   make(map[int64]*models.Order),
	}
}

func (f *fakeStore) GetPaymentByReference(_ context.Context, reference string) (*models.Payment, error) {
	p, ok := f.payments[reference]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrPaymentNotFound, reference)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) SettlePayment(_ context.Context, reference, status, transactionID string,
	processedAt time.Time, gatewayResponse json.RawMessage, failureReason string) (bool, error) {

	f.settleCalls++
	p, ok := f.payments[reference]
	if !ok || p.Status == models.PaymentStatusCompleted {
		return false, nil
	}
	p.Status = status
	p.TransactionID = transactionID
	p.ProcessedAt = sql.NullTime{Time: processedAt, Valid: true}
	p.GatewayResponse = gatewayResponse
	p.FailureReason = sql.NullString{String: failureReason, Valid: failureReason != ""}
	return true, nil
}

func (f *fakeStore) UpdateOrderPaymentStatus(_ context.Context, orderID int64, paymentStatus string) error {
	f.orders[orderID].PaymentStatus = paymentStatus
	return nil
}

func (f *fakeStore) AdvanceOrderToProcessing(_ context.Context, orderID int64) (bool, error) {
	o := f.orders[orderID]
	if o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusProcessing
	return true, nil
}

func (f *fakeStore) AppendOrderStatusHistory(_ context.Context, entry *models.OrderStatusHistory) error {
	f.history = append(f.history, *entry)
	return nil
}

type fakePublisher struct {
	confirmed []*models.PaymentConfirmedEvent
	failed    []*models.PaymentFailedEvent
}

func (f *fakePublisher) PublishPaymentConfirmed(_ context.Context, event *models.PaymentConfirmedEvent) error {
	f.confirmed = append(f.confirmed, event)
	return nil
}

func (f *fakePublisher) PublishPaymentFailed(_ context.Context, event *models.PaymentFailedEvent) error {
	f.failed = append(f.failed, event)
	return nil
}

func seedOrderAndPayment(f *fakeStore) {
	f.orders[1] = &models.Order{
		ID:            1,
		OrderNumber:   "ORD-1",
		UserID:        42,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		TotalAmount:   2500.00,
	}
	f.payments["ref-123"] = &models.Payment{
		ID:        10,
		OrderID:   1,
		Reference: "ref-123",
		Status:    models.PaymentStatusPending,
		Amount:    2500.00,
	}
}

func successEvent() *gateway.WebhookEvent {
	return &gateway.WebhookEvent{
		EventType: gateway.EventSuccessfulTransaction,
		EventData: gateway.WebhookEventData{
			TransactionReference: "MNFY|TX|001",
			PaymentReference:     "ref-123",
			AmountPaid:           "2500.00",
			PaymentStatus:        gateway.StatusPaid,
			PaidOn:               "2024-03-15 10:30:45.0",
			Currency:             "NGN",
			Customer:             gateway.WebhookCustomer{Email: "jo@example.com", Name: "Jo"},
		},
	}
}

func TestReconcileHappyPath(t *testing.T) {
	fs := newFakeStore()
	seedOrderAndPayment(fs)
	pub := &fakePublisher{}
	r := NewReconciler(fs, pub, nil, 0.01)

	raw := []byte(`{"eventType":"SUCCESSFUL_TRANSACTION"}`)
	result, err := r.Reconcile(context.Background(), successEvent(), raw)
	require.NoError(t, err)

	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, "ORD-1", result.OrderNumber)

	payment := fs.payments["ref-123"]
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, "MNFY|TX|001", payment.TransactionID)
	assert.True(t, payment.ProcessedAt.Valid)
	assert.Equal(t, json.RawMessage(raw), payment.GatewayResponse)
	assert.False(t, payment.FailureReason.Valid)

	order := fs.orders[1]
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)

	require.Len(t, fs.history, 1)
	assert.Equal(t, models.OrderStatusProcessing, fs.history[0].Status)
	assert.Equal(t, "system", fs.history[0].ChangedBy)

	require.Len(t, pub.confirmed, 1)
	assert.Equal(t, "ORD-1", pub.confirmed[0].OrderNumber)
	assert.Equal(t, int64(42), pub.confirmed[0].UserID)
}

func TestReconcileDuplicateDelivery(t *testing.T) {
	fs := newFakeStore()
	seedOrderAndPayment(fs)
	pub := &fakePublisher{}
	r := NewReconciler(fs, pub, nil, 0.01)

	raw := []byte(`{}`)
	_, err := r.Reconcile(context.Background(), successEvent(), raw)
	require.NoError(t, err)

	firstProcessedAt := fs.payments["ref-123"].ProcessedAt.Time
	firstTxID := fs.payments["ref-123"].TransactionID

	result, err := r.Reconcile(context.Background(), successEvent(), raw)
	require.NoError(t, err)

	assert.Equal(t, OutcomeAlreadyProcessed, result.Outcome)
	assert.Equal(t, "ORD-1", result.OrderNumber)

	// No second effective transition.
	assert.Equal(t, 1, fs.settleCalls)
	assert.Equal(t, firstProcessedAt, fs.payments["ref-123"].ProcessedAt.Time)
	assert.Equal(t, firstTxID, fs.payments["ref-123"].TransactionID)
	assert.Equal(t, models.OrderStatusProcessing, fs.orders[1].Status)
	assert.Len(t, fs.history, 1)
	assert.Len(t, pub.confirmed, 1)
}

func TestReconcileUnknownReference(t *testing.T) {
	fs := newFakeStore()
	r := NewReconciler(fs, &fakePublisher{}, nil, 0.01)

	_, err := r.Reconcile(context.Background(), successEvent(), []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrPaymentNotFound)
	assert.Empty(t, fs.history)
}

func TestReconcileIgnoresOtherEventTypes(t *testing.T) {
	fs := newFakeStore()
	seedOrderAndPayment(fs)
	r := NewReconciler(fs, &fakePublisher{}, nil, 0.01)

	event := successEvent()
	event.EventType = "SUCCESSFUL_DISBURSEMENT"

	result, err := r.Reconcile(context.Background(), event, []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, OutcomeIgnored, result.Outcome)
	assert.Equal(t, 0, fs.settleCalls)
	assert.Equal(t, models.PaymentStatusPending, fs.payments["ref-123"].Status)
	assert.Equal(t, models.OrderStatusPending, fs.orders[1].Status)
	assert.Empty(t, fs.history)
}

func TestReconcileFailedPayment(t *testing.T) {
	fs := newFakeStore()
	seedOrderAndPayment(fs)
	pub := &fakePublisher{}
	r := NewReconciler(fs, pub, nil, 0.01)

	event := successEvent()
	event.EventData.PaymentStatus = gateway.StatusFailed

	result, err := r.Reconcile(context.Background(), event, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)

	payment := fs.payments["ref-123"]
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	require.True(t, payment.FailureReason.Valid)
	assert.Contains(t, payment.FailureReason.String, gateway.StatusFailed)

	order := fs.orders[1]
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, models.OrderStatusPending, order.Status)

	require.Len(t, fs.history, 1)
	assert.Contains(t, fs.history[0].Note, gateway.StatusFailed)

	require.Len(t, pub.failed, 1)
	assert.Empty(t, pub.confirmed)
}

func TestReconcileDoesNotRegressAdvancedOrder(t *testing.T) {
	fs := newFakeStore()
	seedOrderAndPayment(fs)
	fs.orders[1].Status = models.OrderStatusShipped
	pub := &fakePublisher{}
	r := NewReconciler(fs, pub, nil, 0.01)

	result, err := r.Reconcile(context.Background(), successEvent(), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)

	order := fs.orders[1]
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)

	require.Len(t, fs.history, 1)
	assert.Equal(t, models.OrderStatusShipped, fs.history[0].Status)
}

func TestReconcileAmountMismatchStillConfirms(t *testing.T) {
	fs := newFakeStore()
	seedOrderAndPayment(fs)
	r := NewReconciler(fs, &fakePublisher{}, nil, 0.01)

	event := successEvent()
	event.EventData.AmountPaid = "2000.00"

	result, err := r.Reconcile(context.Background(), event, []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, models.PaymentStatusCompleted, fs.payments["ref-123"].Status)
	assert.Equal(t, models.PaymentStatusCompleted, fs.orders[1].PaymentStatus)
}

func TestReconcileCancelledLeavesOrderAlone(t *testing.T) {
	fs := newFakeStore()
	seedOrderAndPayment(fs)
	r := NewReconciler(fs, &fakePublisher{}, nil, 0.01)

	event := successEvent()
	event.EventData.PaymentStatus = gateway.StatusCancelled

	result, err := r.Reconcile(context.Background(), event, []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, models.PaymentStatusFailed, fs.payments["ref-123"].Status)
	assert.Equal(t, models.PaymentStatusPending, fs.orders[1].PaymentStatus)
	assert.Equal(t, models.OrderStatusPending, fs.orders[1].Status)
	assert.Empty(t, fs.history)
}

func TestReconcilePendingStatusUpdatesPaymentOnly(t *testing.T) {
	fs := newFakeStore()
	seedOrderAndPayment(fs)
	r := NewReconciler(fs, &fakePublisher{}, nil, 0.01)

	event := successEvent()
	event.EventData.PaymentStatus = gateway.StatusPartial

	result, err := r.Reconcile(context.Background(), event, []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, models.PaymentStatusPending, fs.payments["ref-123"].Status)
	assert.Equal(t, 1, fs.settleCalls)
	assert.Empty(t, fs.history)
}

func TestReconcileConcurrentSettleLosesGracefully(t *testing.T) {
	fs := newFakeStore()
	seedOrderAndPayment(fs)
	// Simulate a concurrent delivery completing the payment between the
	// engine's read and its conditional write.
	fs.payments["ref-123"].Status = models.PaymentStatusCompleted
	r := NewReconciler(fs, &fakePublisher{}, nil, 0.01)

	event := successEvent()
	event.EventData.PaymentStatus = gateway.StatusFailed

	result, err := r.Reconcile(context.Background(), event, []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAlreadyProcessed, result.Outcome)
	assert.Equal(t, models.PaymentStatusCompleted, fs.payments["ref-123"].Status)
	assert.Empty(t, fs.history)
}
