package service

import (
	"context"
	"testing"

	"payment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoyaltyStore struct {
	processed map[string]bool
	points    map[int64]int64
}

func newFakeLoyaltyStore() *fakeLoyaltyStore {
	return &fakeLoyaltyStore{
		processed: make(map[string]bool),
		points:    make(map[int64]int64),
	}
}

func (f *fakeLoyaltyStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	return f.processed[eventID], nil
}

func (f *fakeLoyaltyStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	f.processed[eventID] = true
	return nil
}

func (f *fakeLoyaltyStore) AwardLoyaltyPoints(_ context.Context, userID, points int64) error {
	f.points[userID] += points
	return nil
}

func (f *fakeLoyaltyStore) GetLoyaltyAccount(_ context.Context, userID int64) (*models.LoyaltyAccount, error) {
	return &models.LoyaltyAccount{UserID: userID, Points: f.points[userID]}, nil
}

func confirmedEvent(eventID string, amount float64) *models.PaymentConfirmedEvent {
	return &models.PaymentConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   eventID,
			EventType: models.EventTypePaymentConfirmed,
		},
		OrderID:     1,
		OrderNumber: "ORD-1",
		UserID:      42,
		Amount:      amount,
	}
}

func TestHandlePaymentConfirmedAwardsPoints(t *testing.T) {
	fs := newFakeLoyaltyStore()
	ls := NewLoyaltyService(fs, 0.01)

	err := ls.HandlePaymentConfirmed(context.Background(), confirmedEvent("evt-1", 2500))
	require.NoError(t, err)

	assert.Equal(t, int64(25), fs.points[42])
	assert.True(t, fs.processed["evt-1"])
}

func TestHandlePaymentConfirmedDeduplicates(t *testing.T) {
	fs := newFakeLoyaltyStore()
	ls := NewLoyaltyService(fs, 0.01)

	event := confirmedEvent("evt-1", 2500)
	require.NoError(t, ls.HandlePaymentConfirmed(context.Background(), event))
	require.NoError(t, ls.HandlePaymentConfirmed(context.Background(), event))

	assert.Equal(t, int64(25), fs.points[42])
}

func TestHandlePaymentConfirmedSmallAmount(t *testing.T) {
	fs := newFakeLoyaltyStore()
	ls := NewLoyaltyService(fs, 0.01)

	err := ls.HandlePaymentConfirmed(context.Background(), confirmedEvent("evt-2", 50))
	require.NoError(t, err)

	// Rounds down to zero; still marked processed.
	assert.Equal(t, int64(0), fs.points[42])
	assert.True(t, fs.processed["evt-2"])
}
