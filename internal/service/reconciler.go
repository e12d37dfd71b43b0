package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"payment-service/internal/gateway"
	"payment-service/internal/models"
	"payment-service/internal/redisclient"
	"payment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconciliationStore is the persistence surface the reconciler needs.
// *store.Store satisfies it.
type ReconciliationStore interface {
	GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	SettlePayment(ctx context.Context, reference, status, transactionID string,
		processedAt time.Time, gatewayResponse json.RawMessage, failureReason string) (bool, error)
	UpdateOrderPaymentStatus(ctx context.Context, orderID int64, paymentStatus string) error
	AdvanceOrderToProcessing(ctx context.Context, orderID int64) (bool, error)
	AppendOrderStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error
}

// PaymentEventPublisher publishes domain events after an effective
// reconciliation transition. *broker.EventPublisher satisfies it.
type PaymentEventPublisher interface {
	PublishPaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// Reconciliation outcomes. Everything except a hard error acknowledges
// the webhook so the gateway stops retrying.
const (
	OutcomeProcessed        = "processed"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeIgnored          = "ignored"
)

// ReconcileResult reports what a webhook delivery amounted to.
type ReconcileResult struct {
	Outcome     string `json:"outcome"`
	Message     string `json:"message"`
	OrderNumber string `json:"order_number,omitempty"`
}

// Reconciler applies verified webhook events to payment and order
// state. It is stateless across invocations; idempotency rests on the
// store's conditional updates, with a best-effort Redis lock to
// serialize concurrent deliveries for the same reference.
type Reconciler struct {
	store     ReconciliationStore
	publisher PaymentEventPublisher
	redis     *redisclient.Client
	tolerance float64
	logger    *zap.Logger
}

// NewReconciler creates a reconciler. redis may be nil; locking and
// cache invalidation are then skipped.
func NewReconciler(store ReconciliationStore, publisher PaymentEventPublisher,
	redis *redisclient.Client, tolerance float64) *Reconciler {
	return &Reconciler{
		store:     store,
		publisher: publisher,
		redis:     redis,
		tolerance: tolerance,
		logger:    util.GetLogger(),
	}
}

// Reconcile processes one verified webhook event. rawBody is the exact
// payload as received and is stored on the payment verbatim for audit.
// The only hard failure is an unknown payment reference; duplicate and
// irrelevant deliveries return soft results.
func (r *Reconciler) Reconcile(ctx context.Context, event *gateway.WebhookEvent, rawBody []byte) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Reconcile")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReconciliationLatency.Observe(time.Since(start).Seconds())
	}()

	if event.EventType != gateway.EventSuccessfulTransaction {
		r.logger.Info("Ignoring webhook event type",
			zap.String("event_type", event.EventType))
		util.ReconciliationsTotal.WithLabelValues(OutcomeIgnored).Inc()
		return &ReconcileResult{
			Outcome: OutcomeIgnored,
			Message: fmt.Sprintf("event type %s ignored", event.EventType),
		}, nil
	}

	data := event.EventData

	if r.redis != nil {
		lockKey := fmt.Sprintf("reconcile:%s", data.PaymentReference)
		acquired, err := r.redis.AcquireLock(ctx, lockKey, 30*time.Second)
		if err != nil || !acquired {
			// Proceed anyway; the conditional updates below stay correct
			// even when two deliveries interleave.
			r.logger.Warn("Could not acquire reconciliation lock",
				zap.String("reference", data.PaymentReference),
				zap.Error(err))
		} else {
			defer func() {
				if err := r.redis.ReleaseLock(ctx, lockKey); err != nil {
					r.logger.Warn("Failed to release reconciliation lock",
						zap.String("reference", data.PaymentReference),
						zap.Error(err))
				}
			}()
		}
	}

	payment, err := r.store.GetPaymentByReference(ctx, data.PaymentReference)
	if err != nil {
		util.ReconciliationsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	order, err := r.store.GetOrderByID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}

	if payment.Status == models.PaymentStatusCompleted && gateway.IsSuccessStatus(data.PaymentStatus) {
		r.logger.Info("Duplicate webhook delivery for completed payment",
			zap.String("reference", payment.Reference),
			zap.String("order_number", order.OrderNumber))
		util.ReconciliationsTotal.WithLabelValues(OutcomeAlreadyProcessed).Inc()
		return &ReconcileResult{
			Outcome:     OutcomeAlreadyProcessed,
			Message:     "payment already processed",
			OrderNumber: order.OrderNumber,
		}, nil
	}

	newStatus := gateway.MapStatus(data.PaymentStatus)
	processedAt := gateway.ParsePaidOn(data.PaidOn)

	var failureReason string
	if newStatus == models.PaymentStatusFailed {
		failureReason = fmt.Sprintf("gateway reported payment status %s", data.PaymentStatus)
	}

	settled, err := r.store.SettlePayment(ctx, payment.Reference, newStatus,
		data.TransactionReference, processedAt, rawBody, failureReason)
	if err != nil {
		return nil, fmt.Errorf("failed to settle payment: %w", err)
	}
	if !settled {
		// A concurrent delivery completed the payment between our read
		// and this write.
		util.ReconciliationsTotal.WithLabelValues(OutcomeAlreadyProcessed).Inc()
		return &ReconcileResult{
			Outcome:     OutcomeAlreadyProcessed,
			Message:     "payment already processed",
			OrderNumber: order.OrderNumber,
		}, nil
	}

	switch {
	case gateway.IsSuccessStatus(data.PaymentStatus):
		if err := r.confirmOrder(ctx, order, payment, data); err != nil {
			return nil, err
		}
	case gateway.IsOrderFailureStatus(data.PaymentStatus):
		if err := r.failOrder(ctx, order, payment, data); err != nil {
			return nil, err
		}
	default:
		// Non-terminal status (PENDING, PARTIAL, ...): the payment
		// record reflects it, the order is left alone.
		r.logger.Info("Payment updated without order change",
			zap.String("reference", payment.Reference),
			zap.String("gateway_status", data.PaymentStatus))
	}

	r.invalidateCache(ctx, payment.Reference)

	util.ReconciliationsTotal.WithLabelValues(OutcomeProcessed).Inc()
	return &ReconcileResult{
		Outcome:     OutcomeProcessed,
		Message:     fmt.Sprintf("payment %s reconciled", payment.Reference),
		OrderNumber: order.OrderNumber,
	}, nil
}

// confirmOrder applies the success path: amount check, payment status
// on the order, conditional advance to processing, audit entry, event.
func (r *Reconciler) confirmOrder(ctx context.Context, order *models.Order,
	payment *models.Payment, data gateway.WebhookEventData) error {

	if amountPaid, err := strconv.ParseFloat(data.AmountPaid, 64); err != nil {
		r.logger.Warn("Unparseable amountPaid in webhook",
			zap.String("reference", payment.Reference),
			zap.String("amount_paid", data.AmountPaid))
	} else if math.Abs(amountPaid-order.TotalAmount) > r.tolerance {
		// Surfaced for manual review; the payment has been received,
		// so this is not a hard failure.
		r.logger.Warn("Paid amount differs from order total",
			zap.String("order_number", order.OrderNumber),
			zap.Float64("amount_paid", amountPaid),
			zap.Float64("order_total", order.TotalAmount))
		util.AmountMismatchTotal.Inc()
	}

	if err := r.store.UpdateOrderPaymentStatus(ctx, order.ID, models.PaymentStatusCompleted); err != nil {
		return fmt.Errorf("failed to update order payment status: %w", err)
	}

	advanced, err := r.store.AdvanceOrderToProcessing(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to advance order: %w", err)
	}

	resultingStatus := order.Status
	if advanced {
		resultingStatus = models.OrderStatusProcessing
	}

	entry := &models.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    resultingStatus,
		Note:      fmt.Sprintf("payment %s confirmed via gateway webhook", payment.Reference),
		ChangedBy: "system",
	}
	if err := r.store.AppendOrderStatusHistory(ctx, entry); err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}

	util.PaymentsConfirmedTotal.Inc()
	r.logger.Info("Payment confirmed",
		zap.String("reference", payment.Reference),
		zap.String("order_number", order.OrderNumber),
		zap.Bool("order_advanced", advanced))

	confirmed := &models.PaymentConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentConfirmed,
			Timestamp: time.Now(),
		},
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		PaymentReference: payment.Reference,
		TransactionID:    data.TransactionReference,
		Amount:           payment.Amount,
	}
	if r.publisher != nil {
		if err := r.publisher.PublishPaymentConfirmed(ctx, confirmed); err != nil {
			r.logger.Error("Failed to publish PaymentConfirmed event", zap.Error(err))
		}
	}

	return nil
}

// failOrder marks the order's payment failed and records the gateway
// status in the audit trail. The order status itself stays untouched.
func (r *Reconciler) failOrder(ctx context.Context, order *models.Order,
	payment *models.Payment, data gateway.WebhookEventData) error {

	if err := r.store.UpdateOrderPaymentStatus(ctx, order.ID, models.PaymentStatusFailed); err != nil {
		return fmt.Errorf("failed to update order payment status: %w", err)
	}

	entry := &models.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    order.Status,
		Note:      fmt.Sprintf("payment %s failed: gateway status %s", payment.Reference, data.PaymentStatus),
		ChangedBy: "system",
	}
	if err := r.store.AppendOrderStatusHistory(ctx, entry); err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}

	util.PaymentsFailedTotal.Inc()
	r.logger.Warn("Payment failed",
		zap.String("reference", payment.Reference),
		zap.String("order_number", order.OrderNumber),
		zap.String("gateway_status", data.PaymentStatus))

	failed := &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentFailed,
			Timestamp: time.Now(),
		},
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		PaymentReference: payment.Reference,
		Reason:           fmt.Sprintf("gateway reported payment status %s", data.PaymentStatus),
	}
	if r.publisher != nil {
		if err := r.publisher.PublishPaymentFailed(ctx, failed); err != nil {
			r.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
		}
	}

	return nil
}

func (r *Reconciler) invalidateCache(ctx context.Context, reference string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.InvalidatePaymentStatus(ctx, reference); err != nil {
		r.logger.Warn("Failed to invalidate payment status cache",
			zap.String("reference", reference),
			zap.Error(err))
	}
}
