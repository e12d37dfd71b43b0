package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"payment-service/internal/models"
	"payment-service/internal/store"
	"payment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService handles order intake and admin status updates
type OrderService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store *store.Store) *OrderService {
	return &OrderService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	UserID      int64   `json:"user_id" binding:"required"`
	TotalAmount float64 `json:"total_amount" binding:"required,gt=0"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
}

// CreateOrder creates a pending order awaiting payment
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	order := &models.Order{
		OrderNumber:   generateOrderNumber(),
		UserID:        req.UserID,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		TotalAmount:   req.TotalAmount,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber))

	return &CreateOrderResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
	}, nil
}

// GetOrder retrieves an order with its status history
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderStatusHistory, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.store.GetOrderStatusHistory(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, history, nil
}

// UpdateOrderStatus applies a manual admin status change and records it
// in the audit trail. This is the out-of-band writer the webhook path
// must never clobber.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID int64, status, note, actor string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	if !models.ValidOrderStatus(status) {
		return nil, fmt.Errorf("invalid order status: %s", status)
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if note == "" {
		note = fmt.Sprintf("status changed from %s to %s", order.Status, status)
	}
	entry := &models.OrderStatusHistory{
		OrderID:   orderID,
		Status:    status,
		Note:      note,
		ChangedBy: actor,
	}
	if err := s.store.AppendOrderStatusHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append status history: %w", err)
	}

	s.logger.Info("Order status updated",
		zap.String("order_number", order.OrderNumber),
		zap.String("status", status),
		zap.String("actor", actor))

	order.Status = status
	return order, nil
}

// generateOrderNumber builds a human-readable order identifier.
func generateOrderNumber() string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("ORD-%s-%s", time.Now().Format("20060102"), suffix)
}
