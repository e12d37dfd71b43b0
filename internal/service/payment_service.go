package service

import (
	"context"
	"fmt"
	"time"

	"payment-service/internal/gateway"
	"payment-service/internal/models"
	"payment-service/internal/redisclient"
	"payment-service/internal/store"
	"payment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentService handles checkout-side payment initiation and lookups
type PaymentService struct {
	store   *store.Store
	redis   *redisclient.Client
	gateway *gateway.Client
	logger  *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store *store.Store, redis *redisclient.Client, gatewayClient *gateway.Client) *PaymentService {
	return &PaymentService{
		store:   store,
		redis:   redis,
		gateway: gatewayClient,
		logger:  util.GetLogger(),
	}
}

// InitiatePaymentRequest represents a request to start a payment attempt
type InitiatePaymentRequest struct {
	OrderID       int64  `json:"order_id" binding:"required"`
	CustomerName  string `json:"customer_name" binding:"required"`
	CustomerEmail string `json:"customer_email" binding:"required,email"`
	RedirectURL   string `json:"redirect_url,omitempty"`
}

// InitiatePaymentResponse carries the reference the gateway will echo
// back in the webhook, plus the hosted checkout URL.
type InitiatePaymentResponse struct {
	Reference            string `json:"reference"`
	TransactionReference string `json:"transaction_reference"`
	CheckoutURL          string `json:"checkout_url"`
}

// InitiatePayment creates a pending payment record for an order and
// initializes a hosted-checkout transaction with the gateway.
func (ps *PaymentService) InitiatePayment(ctx context.Context, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.InitiatePayment")
	defer span.End()

	order, err := ps.store.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	reference := fmt.Sprintf("PAY-%s", uuid.New().String())

	result, err := ps.gateway.InitTransaction(ctx, &gateway.InitTransactionRequest{
		Amount:             order.TotalAmount,
		CustomerName:       req.CustomerName,
		CustomerEmail:      req.CustomerEmail,
		PaymentReference:   reference,
		PaymentDescription: fmt.Sprintf("payment for order %s", order.OrderNumber),
		CurrencyCode:       "NGN",
		RedirectURL:        req.RedirectURL,
	})
	if err != nil {
		util.PaymentInitFailuresTotal.Inc()
		return nil, fmt.Errorf("failed to initialize gateway transaction: %w", err)
	}

	payment := &models.Payment{
		OrderID:       order.ID,
		Reference:     reference,
		Status:        models.PaymentStatusPending,
		TransactionID: result.TransactionReference,
		Amount:        order.TotalAmount,
	}
	if err := ps.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	util.PaymentsInitiatedTotal.Inc()
	ps.logger.Info("Payment initiated",
		zap.String("reference", reference),
		zap.String("order_number", order.OrderNumber),
		zap.Float64("amount", order.TotalAmount))

	return &InitiatePaymentResponse{
		Reference:            reference,
		TransactionReference: result.TransactionReference,
		CheckoutURL:          result.CheckoutURL,
	}, nil
}

// GetPayment retrieves a payment by reference
func (ps *PaymentService) GetPayment(ctx context.Context, reference string) (*models.Payment, error) {
	return ps.store.GetPaymentByReference(ctx, reference)
}

// GetPaymentStatus returns the payment's status, served from a
// short-TTL cache when warm. The reconciler invalidates the cache
// whenever it settles a payment.
func (ps *PaymentService) GetPaymentStatus(ctx context.Context, reference string) (string, error) {
	if ps.redis != nil {
		status, err := ps.redis.GetCachedPaymentStatus(ctx, reference)
		if err != nil {
			ps.logger.Warn("Payment status cache read failed", zap.Error(err))
		} else if status != "" {
			return status, nil
		}
	}

	payment, err := ps.store.GetPaymentByReference(ctx, reference)
	if err != nil {
		return "", err
	}

	if ps.redis != nil {
		if err := ps.redis.CachePaymentStatus(ctx, reference, payment.Status, 30*time.Second); err != nil {
			ps.logger.Warn("Payment status cache write failed", zap.Error(err))
		}
	}

	return payment.Status, nil
}
