package worker

import (
	"context"
	"log"

	"payment-service/internal/broker"
	"payment-service/internal/service"
)

// LoyaltyWorker consumes payment events and credits loyalty points
type LoyaltyWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewLoyaltyWorker creates a new loyalty worker
func NewLoyaltyWorker(consumer *broker.Consumer, loyaltyService *service.LoyaltyService) *LoyaltyWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentConfirmed(loyaltyService.HandlePaymentConfirmed)

	return &LoyaltyWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *LoyaltyWorker) Start(ctx context.Context) error {
	log.Println("Starting loyalty worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *LoyaltyWorker) Stop() error {
	log.Println("Stopping loyalty worker...")
	return w.consumer.Close()
}
