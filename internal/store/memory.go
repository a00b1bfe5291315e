package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"checkout-service/internal/models"
)

// Memory is a mutex-guarded in-memory Store for unit tests and local
// development without Postgres. It mirrors the Postgres semantics exactly:
// uniqueness on payment_intent_id and email, terminal-guarded finalize.
type Memory struct {
	mu              sync.RWMutex
	products        map[int64]models.Product
	users           map[int64]models.User
	usersByEmail    map[string]int64
	orders          map[string]models.Order
	processedEvents map[string]models.ProcessedEvent
	nextUserID      int64
	nextOrderID     int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		products:        make(map[int64]models.Product),
		users:           make(map[int64]models.User),
		usersByEmail:    make(map[string]int64),
		orders:          make(map[string]models.Order),
		processedEvents: make(map[string]models.ProcessedEvent),
		nextUserID:      1,
		nextOrderID:     1,
	}
}

var _ Store = (*Memory)(nil)

// SeedProduct inserts a product row for tests and local catalogs.
func (m *Memory) SeedProduct(product models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now()
	}
	m.products[product.ID] = product
}

func (m *Memory) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	product, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return &product, nil
}

func (m *Memory) GetProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	products := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usersByEmail[email]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	user := m.users[id]
	return &user, nil
}

func (m *Memory) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return &user, nil
}

func (m *Memory) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usersByEmail[user.Email]; exists {
		return fmt.Errorf("user %s: %w", user.Email, ErrConflict)
	}

	user.ID = m.nextUserID
	m.nextUserID++
	user.CreatedAt = time.Now()

	m.users[user.ID] = *user
	m.usersByEmail[user.Email] = user.ID
	return nil
}

func (m *Memory) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.PaymentIntentID]; exists {
		return fmt.Errorf("order %s: %w", order.PaymentIntentID, ErrConflict)
	}

	order.ID = m.nextOrderID
	m.nextOrderID++
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	m.orders[order.PaymentIntentID] = *order
	return nil
}

func (m *Memory) GetOrderByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[paymentIntentID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", paymentIntentID, ErrNotFound)
	}
	return &order, nil
}

func (m *Memory) FinalizeOrder(ctx context.Context, paymentIntentID, status string) (bool, error) {
	if !models.IsTerminal(status) {
		return false, fmt.Errorf("finalize to non-terminal status %q", status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[paymentIntentID]
	if !ok || models.IsTerminal(order.Status) {
		return false, nil
	}

	order.Status = status
	order.IsProvisional = false
	order.UpdatedAt = time.Now()
	m.orders[paymentIntentID] = order
	return true, nil
}

func (m *Memory) ListPendingOrders(ctx context.Context) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pending := make([]models.Order, 0)
	for _, order := range m.orders {
		if order.IsProvisional || order.Status == models.OrderStatusProcessing {
			pending = append(pending, order)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

func (m *Memory) RecordSyncAttempt(ctx context.Context, paymentIntentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[paymentIntentID]
	if !ok {
		return nil
	}

	now := time.Now()
	order.SyncAttempts++
	order.LastSyncedAt = &now
	m.orders[paymentIntentID] = order
	return nil
}

func (m *Memory) GetSyncStats(ctx context.Context) ([]models.SyncStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type key struct {
		status      string
		provisional bool
	}
	counts := make(map[key]int)
	for _, order := range m.orders {
		counts[key{order.Status, order.IsProvisional}]++
	}

	stats := make([]models.SyncStat, 0, len(counts))
	for k, n := range counts {
		stats = append(stats, models.SyncStat{Status: k.status, IsProvisional: k.provisional, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Status != stats[j].Status {
			return stats[i].Status < stats[j].Status
		}
		return !stats[i].IsProvisional && stats[j].IsProvisional
	})
	return stats, nil
}

func (m *Memory) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.processedEvents[eventID]
	return ok, nil
}

func (m *Memory) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.processedEvents[eventID]; ok {
		return nil
	}
	m.processedEvents[eventID] = models.ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now(),
	}
	return nil
}
