package models

import "time"

// Event types published to the order lifecycle topic once an order reaches a
// terminal state. Downstream consumers (fulfillment, email) key off these.
const (
	EventTypeOrderCompleted = "order.completed"
	EventTypeOrderFailed    = "order.failed"
)

// BaseEvent is embedded in all published events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCompletedEvent is published when an order is promoted to completed.
type OrderCompletedEvent struct {
	BaseEvent
	OrderID         int64  `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	ProductID       int64  `json:"product_id"`
	Quantity        int    `json:"quantity"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	CustomerEmail   string `json:"customer_email,omitempty"`
}

// OrderFailedEvent is published when an order is marked failed.
type OrderFailedEvent struct {
	BaseEvent
	OrderID         int64  `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Reason          string `json:"reason,omitempty"`
}
