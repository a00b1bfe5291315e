package service

import (
	"context"
	"time"

	"checkout-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher emits order lifecycle events to downstream consumers
// (fulfillment, email). The Kafka event publisher implements it; nil
// disables publishing. Publish failures are logged, never propagated: the
// order row is the source of truth, the event stream is best effort.
type Publisher interface {
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
}

func publishOrderCompleted(ctx context.Context, pub Publisher, logger *zap.Logger, order *models.Order) {
	if pub == nil {
		return
	}

	event := &models.OrderCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCompleted,
			Timestamp: time.Now(),
		},
		OrderID:         order.ID,
		PaymentIntentID: order.PaymentIntentID,
		ProductID:       order.ProductID,
		Quantity:        order.Quantity,
		Amount:          order.Amount,
		Currency:        order.Currency,
		CustomerEmail:   order.CustomerEmail,
	}

	if err := pub.PublishOrderCompleted(ctx, event); err != nil {
		logger.Error("Failed to publish order.completed event",
			zap.String("payment_intent_id", order.PaymentIntentID),
			zap.Error(err))
	}
}

func publishOrderFailed(ctx context.Context, pub Publisher, logger *zap.Logger, order *models.Order, reason string) {
	if pub == nil {
		return
	}

	event := &models.OrderFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderFailed,
			Timestamp: time.Now(),
		},
		OrderID:         order.ID,
		PaymentIntentID: order.PaymentIntentID,
		Reason:          reason,
	}

	if err := pub.PublishOrderFailed(ctx, event); err != nil {
		logger.Error("Failed to publish order.failed event",
			zap.String("payment_intent_id", order.PaymentIntentID),
			zap.Error(err))
	}
}
