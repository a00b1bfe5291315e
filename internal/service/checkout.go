package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// ErrInvalidInput flags request validation failures, mapped to 400 upstream.
var ErrInvalidInput = errors.New("service: invalid input")

const productCacheTTL = 10 * time.Minute

// ProductCache is the catalog hot-path cache. The redis client implements
// it; a nil cache disables caching.
type ProductCache interface {
	GetCachedProduct(ctx context.Context, id int64) (*models.Product, error)
	CacheProduct(ctx context.Context, product *models.Product, ttl time.Duration) error
}

// CheckoutService handles payment intent creation and the provisional order
// fast path.
type CheckoutService struct {
	store  store.Store
	gw     gateway.Client
	cache  ProductCache
	users  *UserResolver
	logger *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(st store.Store, gw gateway.Client, cache ProductCache, users *UserResolver) *CheckoutService {
	return &CheckoutService{
		store:  st,
		gw:     gw,
		cache:  cache,
		users:  users,
		logger: util.GetLogger(),
	}
}

// CreatePaymentIntentRequest is the checkout entry point payload.
type CreatePaymentIntentRequest struct {
	ProductID    int64                `json:"productId" binding:"required"`
	Quantity     int                  `json:"quantity" binding:"required,min=1"`
	CustomerInfo *models.CustomerInfo `json:"customerInfo,omitempty"`
}

// CreatePaymentIntentResponse carries what the payment form needs.
type CreatePaymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// CreatePaymentIntent prices the purchase and opens a payment attempt on the
// gateway. Product reference, quantity, and customer contact ride along as
// intent metadata so the webhook can rebuild the order if the provisional
// writer is never reached.
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, req *CreatePaymentIntentRequest) (*CreatePaymentIntentResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreatePaymentIntent")
	defer span.End()

	if req.Quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1: %w", ErrInvalidInput)
	}

	product, err := s.lookupProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	amount := product.Price * int64(req.Quantity)

	metadata := map[string]string{
		"product_id": strconv.FormatInt(product.ID, 10),
		"quantity":   strconv.Itoa(req.Quantity),
	}
	var receiptEmail string
	if req.CustomerInfo != nil {
		receiptEmail = req.CustomerInfo.Email
		if req.CustomerInfo.Email != "" {
			metadata["customer_email"] = req.CustomerInfo.Email
		}
		if req.CustomerInfo.Name != "" {
			metadata["customer_name"] = req.CustomerInfo.Name
		}
		if req.CustomerInfo.Phone != "" {
			metadata["customer_phone"] = req.CustomerInfo.Phone
		}
	}

	start := time.Now()
	intent, err := s.gw.CreateIntent(ctx, gateway.CreateIntentParams{
		Amount:       amount,
		Currency:     product.Currency,
		ReceiptEmail: receiptEmail,
		Metadata:     metadata,
	})
	util.GatewayRequestLatency.WithLabelValues("create_intent").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	mode := "live"
	if gateway.IsMockIntent(intent.ID) {
		mode = "mock"
	}
	util.PaymentIntentsCreatedTotal.WithLabelValues(mode).Inc()

	s.logger.Info("Payment intent created",
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", amount),
		zap.String("currency", product.Currency))

	return &CreatePaymentIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          amount,
		Currency:        product.Currency,
	}, nil
}

// ProvisionalOrderRequest is the fast-path order payload, sent by the client
// right after it observes a successful charge confirmation.
type ProvisionalOrderRequest struct {
	PaymentIntentID string               `json:"paymentIntentId" binding:"required"`
	ProductID       int64                `json:"productId" binding:"required"`
	Quantity        int                  `json:"quantity" binding:"required,min=1"`
	CustomerInfo    *models.CustomerInfo `json:"customerInfo,omitempty"`
}

// ProvisionalOrderResponse reports the order backing a payment intent.
type ProvisionalOrderResponse struct {
	OrderID       int64 `json:"orderId"`
	IsProvisional bool  `json:"isProvisional"`
}

// CreateProvisionalOrder writes an in-flight order so the read path has
// something to show before the webhook lands. Idempotent on the payment
// intent id: if any order already exists for it, provisional or not, that
// order is returned untouched.
func (s *CheckoutService) CreateProvisionalOrder(ctx context.Context, req *ProvisionalOrderRequest) (*ProvisionalOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateProvisionalOrder")
	defer span.End()

	if req.PaymentIntentID == "" {
		return nil, fmt.Errorf("paymentIntentId is required: %w", ErrInvalidInput)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1: %w", ErrInvalidInput)
	}

	existing, err := s.store.GetOrderByPaymentIntentID(ctx, req.PaymentIntentID)
	if err == nil {
		util.ProvisionalOrdersDuplicateTotal.Inc()
		s.logger.Info("Provisional order request for existing order",
			zap.String("payment_intent_id", req.PaymentIntentID),
			zap.Int64("order_id", existing.ID))
		return &ProvisionalOrderResponse{OrderID: existing.ID, IsProvisional: existing.IsProvisional}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing order: %w", err)
	}

	product, err := s.lookupProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	var email, name, phone string
	if req.CustomerInfo != nil {
		email, name, phone = req.CustomerInfo.Email, req.CustomerInfo.Name, req.CustomerInfo.Phone
	}

	userID, err := s.users.Resolve(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	now := time.Now()
	order := &models.Order{
		PaymentIntentID:      req.PaymentIntentID,
		UserID:               userID,
		ProductID:            product.ID,
		Quantity:             req.Quantity,
		Amount:               product.Price * int64(req.Quantity),
		Currency:             product.Currency,
		Status:               models.OrderStatusProcessing,
		CustomerEmail:        email,
		CustomerName:         name,
		CustomerPhone:        phone,
		IsProvisional:        true,
		ProvisionalCreatedAt: &now,
		SyncAttempts:         0,
	}

	err = s.store.CreateOrder(ctx, order)
	if errors.Is(err, store.ErrConflict) {
		// The webhook won the creation race. Its row is authoritative.
		existing, rerr := s.store.GetOrderByPaymentIntentID(ctx, req.PaymentIntentID)
		if rerr != nil {
			return nil, fmt.Errorf("failed to re-read order after conflict: %w", rerr)
		}
		util.ProvisionalOrdersDuplicateTotal.Inc()
		return &ProvisionalOrderResponse{OrderID: existing.ID, IsProvisional: existing.IsProvisional}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create provisional order: %w", err)
	}

	util.ProvisionalOrdersCreatedTotal.Inc()
	s.logger.Info("Provisional order created",
		zap.String("payment_intent_id", req.PaymentIntentID),
		zap.Int64("order_id", order.ID))

	return &ProvisionalOrderResponse{OrderID: order.ID, IsProvisional: true}, nil
}

// GetProducts returns the catalog.
func (s *CheckoutService) GetProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.GetProducts(ctx)
}

// WarmProductCache preloads the catalog into the cache at startup.
func (s *CheckoutService) WarmProductCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}

	for i := range products {
		if err := s.cache.CacheProduct(ctx, &products[i], productCacheTTL); err != nil {
			return fmt.Errorf("failed to cache product %d: %w", products[i].ID, err)
		}
	}

	s.logger.Info("Product cache warmed", zap.Int("products", len(products)))
	return nil
}

// lookupProduct is cache-first with a store fallback.
func (s *CheckoutService) lookupProduct(ctx context.Context, id int64) (*models.Product, error) {
	if s.cache != nil {
		product, err := s.cache.GetCachedProduct(ctx, id)
		if err == nil {
			return product, nil
		}
	}

	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cerr := s.cache.CacheProduct(ctx, product, productCacheTTL); cerr != nil {
			s.logger.Warn("Failed to cache product", zap.Int64("product_id", id), zap.Error(cerr))
		}
	}
	return product, nil
}
