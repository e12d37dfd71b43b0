package service

import (
	"context"
	"fmt"

	"payment-service/internal/models"
	"payment-service/internal/util"

	"go.uber.org/zap"
)

// LoyaltyStore is the persistence surface for loyalty accrual.
// *store.Store satisfies it.
type LoyaltyStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	AwardLoyaltyPoints(ctx context.Context, userID, points int64) error
	GetLoyaltyAccount(ctx context.Context, userID int64) (*models.LoyaltyAccount, error)
}

// LoyaltyService credits points on confirmed payments. Events are
// deduplicated through the processed_events table so redelivered Kafka
// messages credit at most once.
type LoyaltyService struct {
	store    LoyaltyStore
	earnRate float64
	logger   *zap.Logger
}

// NewLoyaltyService creates a new loyalty service
func NewLoyaltyService(store LoyaltyStore, earnRate float64) *LoyaltyService {
	return &LoyaltyService{
		store:    store,
		earnRate: earnRate,
		logger:   util.GetLogger(),
	}
}

// HandlePaymentConfirmed credits points for a confirmed payment event
func (ls *LoyaltyService) HandlePaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error {
	ctx, span := util.StartSpan(ctx, "LoyaltyService.HandlePaymentConfirmed")
	defer span.End()

	processed, err := ls.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		ls.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	points := int64(event.Amount * ls.earnRate)
	if points > 0 {
		if err := ls.store.AwardLoyaltyPoints(ctx, event.UserID, points); err != nil {
			return fmt.Errorf("failed to award loyalty points: %w", err)
		}
		util.LoyaltyPointsAwardedTotal.Add(float64(points))
	}

	if err := ls.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		ls.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	ls.logger.Info("Loyalty points awarded",
		zap.Int64("user_id", event.UserID),
		zap.Int64("points", points),
		zap.String("order_number", event.OrderNumber))
	return nil
}

// GetBalance retrieves a user's loyalty balance
func (ls *LoyaltyService) GetBalance(ctx context.Context, userID int64) (*models.LoyaltyAccount, error) {
	return ls.store.GetLoyaltyAccount(ctx, userID)
}
