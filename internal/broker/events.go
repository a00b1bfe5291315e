package broker

import (
	"context"

	"checkout-service/internal/models"
)

// EventPublisher publishes order lifecycle events to the order topic,
// keyed by payment intent id so one order's events stay in partition order.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderCompleted publishes an order.completed event
func (ep *EventPublisher) PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, event.PaymentIntentID, event)
}

// PublishOrderFailed publishes an order.failed event
func (ep *EventPublisher) PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error {
	return ep.producer.PublishEvent(ctx, event.PaymentIntentID, event)
}
