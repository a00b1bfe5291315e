package models

import "time"

// Product represents a catalog item. Read-only reference data for this
// service; catalog management happens elsewhere.
type Product struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Description     string    `db:"description" json:"description,omitempty"`
	Price           int64     `db:"price" json:"price"`
	Currency        string    `db:"currency" json:"currency"`
	StripeProductID string    `db:"stripe_product_id" json:"stripe_product_id,omitempty"`
	StripePriceID   string    `db:"stripe_price_id" json:"stripe_price_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// User is the local identity projection, keyed by email.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order is the single record per payment attempt. PaymentIntentID is the
// externally issued idempotency key for the whole subsystem.
type Order struct {
	ID                   int64      `db:"id" json:"id"`
	PaymentIntentID      string     `db:"payment_intent_id" json:"payment_intent_id"`
	UserID               *int64     `db:"user_id" json:"user_id,omitempty"`
	ProductID            int64      `db:"product_id" json:"product_id"`
	Quantity             int        `db:"quantity" json:"quantity"`
	Amount               int64      `db:"amount" json:"amount"`
	Currency             string     `db:"currency" json:"currency"`
	Status               string     `db:"status" json:"status"`
	CustomerEmail        string     `db:"customer_email" json:"customer_email,omitempty"`
	CustomerName         string     `db:"customer_name" json:"customer_name,omitempty"`
	CustomerPhone        string     `db:"customer_phone" json:"customer_phone,omitempty"`
	IsProvisional        bool       `db:"is_provisional" json:"is_provisional"`
	ProvisionalCreatedAt *time.Time `db:"provisional_created_at" json:"provisional_created_at,omitempty"`
	SyncAttempts         int        `db:"sync_attempts" json:"sync_attempts"`
	LastSyncedAt         *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Order statuses. Completed and failed are terminal and must never be
// overwritten once reached.
const (
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusFailed     = "failed"
)

// IsTerminal reports whether a status must not change anymore.
func IsTerminal(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusFailed
}

// OrderDetail is the read-path projection: the order joined with its product
// and, when resolved, the local user record.
type OrderDetail struct {
	Order
	Product *Product `json:"product,omitempty"`
	User    *User    `json:"user,omitempty"`
}

// CustomerInfo carries optional contact fields collected at checkout.
type CustomerInfo struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// SyncStat is one row of the admin stats view, grouped by lifecycle state.
type SyncStat struct {
	Status        string `db:"status" json:"status"`
	IsProvisional bool   `db:"is_provisional" json:"isProvisional"`
	Count         int    `db:"count" json:"count"`
}

// SyncReport summarizes one reconciliation sweep.
type SyncReport struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ProcessedEvent records a gateway event id that has already been handled,
// so exact redeliveries short-circuit.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
