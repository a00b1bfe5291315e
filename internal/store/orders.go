package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-service/internal/models"
)

// CreateOrder inserts a new order. The unique index on payment_intent_id is
// the idempotency guard: a concurrent insert for the same intent loses with
// ErrConflict and must fall back to reading the winner's row.
func (s *Postgres) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (
			payment_intent_id, user_id, product_id, quantity, amount, currency,
			status, customer_email, customer_name, customer_phone,
			is_provisional, provisional_created_at, sync_attempts
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (payment_intent_id) DO NOTHING
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, order, query,
		order.PaymentIntentID, order.UserID, order.ProductID, order.Quantity,
		order.Amount, order.Currency, order.Status,
		order.CustomerEmail, order.CustomerName, order.CustomerPhone,
		order.IsProvisional, order.ProvisionalCreatedAt, order.SyncAttempts)
	if err == sql.ErrNoRows {
		// DO NOTHING swallowed the insert: a row for this intent already exists.
		return fmt.Errorf("order %s: %w", order.PaymentIntentID, ErrConflict)
	}
	return err
}

// GetOrderByPaymentIntentID retrieves an order by its payment intent id
func (s *Postgres) GetOrderByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE payment_intent_id = $1", paymentIntentID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", paymentIntentID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FinalizeOrder promotes an order to a terminal status. The status guard in
// the WHERE clause is what prevents a late duplicate from regressing a
// completed order: once terminal, the update matches zero rows.
func (s *Postgres) FinalizeOrder(ctx context.Context, paymentIntentID, status string) (bool, error) {
	if !models.IsTerminal(status) {
		return false, fmt.Errorf("finalize to non-terminal status %q", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, is_provisional = false, updated_at = NOW()
		WHERE payment_intent_id = $1
		  AND status NOT IN ('completed', 'failed')`,
		paymentIntentID, status)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListPendingOrders returns orders still awaiting reconciliation, oldest
// first, so the sweep drains the backlog in arrival order.
func (s *Postgres) ListPendingOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE is_provisional = true OR status = 'processing'
		ORDER BY created_at ASC`)
	return orders, err
}

// RecordSyncAttempt bumps the sweep bookkeeping for an order.
func (s *Postgres) RecordSyncAttempt(ctx context.Context, paymentIntentID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET sync_attempts = sync_attempts + 1, last_synced_at = NOW()
		WHERE payment_intent_id = $1`,
		paymentIntentID)
	return err
}

// GetSyncStats groups order counts by (status, is_provisional)
func (s *Postgres) GetSyncStats(ctx context.Context) ([]models.SyncStat, error) {
	var stats []models.SyncStat
	err := s.db.SelectContext(ctx, &stats, `
		SELECT status, is_provisional, COUNT(*) AS count
		FROM orders
		GROUP BY status, is_provisional
		ORDER BY status, is_provisional`)
	return stats, err
}

// IsEventProcessed checks if a gateway event has been processed
func (s *Postgres) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed records a gateway event id as handled
func (s *Postgres) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
