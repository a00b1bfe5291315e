package service

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// ErrOrderProcessing signals that the gateway reports the payment succeeded
// but the authoritative order write has not landed yet. The caller should
// answer 202 and have the client poll again shortly.
var ErrOrderProcessing = errors.New("service: order still processing")

// PaymentIncompleteError means the payment attempt has not succeeded on the
// gateway side, so there is no order to show yet.
type PaymentIncompleteError struct {
	Status string
}

func (e *PaymentIncompleteError) Error() string {
	return fmt.Sprintf("payment incomplete: %s", e.Status)
}

// OrderService is the read path. It never writes: a missing row is resolved
// by asking the gateway for the live intent state, not by fabricating one.
type OrderService struct {
	store  store.Store
	gw     gateway.Client
	logger *zap.Logger
}

// NewOrderService creates a new order read service
func NewOrderService(st store.Store, gw gateway.Client) *OrderService {
	return &OrderService{
		store:  st,
		gw:     gw,
		logger: util.GetLogger(),
	}
}

// GetOrder returns the order for a payment intent joined with its product
// and user. In-flight provisional orders are returned as-is; callers may
// display them. When no row exists yet, the gateway decides the answer:
// succeeded means the webhook is in flight (ErrOrderProcessing), pending
// means the payment was never completed, anything else is not found.
func (s *OrderService) GetOrder(ctx context.Context, paymentIntentID string) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	if paymentIntentID == "" {
		return nil, fmt.Errorf("paymentIntentId is required: %w", ErrInvalidInput)
	}

	order, err := s.store.GetOrderByPaymentIntentID(ctx, paymentIntentID)
	if err == nil {
		return s.joinOrder(ctx, order), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}

	intent, err := s.gw.GetIntent(ctx, paymentIntentID)
	if errors.Is(err, gateway.ErrIntentNotFound) {
		return nil, fmt.Errorf("order %s: %w", paymentIntentID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query gateway: %w", err)
	}

	switch intent.Status {
	case gateway.IntentSucceeded:
		s.logger.Info("Order not yet written for succeeded intent",
			zap.String("payment_intent_id", paymentIntentID))
		return nil, ErrOrderProcessing
	case gateway.IntentPending:
		return nil, &PaymentIncompleteError{Status: intent.StatusDetail}
	default:
		return nil, fmt.Errorf("order %s: %w", paymentIntentID, store.ErrNotFound)
	}
}

// joinOrder attaches the product and user projections. Join failures are
// logged, not fatal: the order row alone is still a valid answer.
func (s *OrderService) joinOrder(ctx context.Context, order *models.Order) *models.OrderDetail {
	detail := &models.OrderDetail{Order: *order}

	product, err := s.store.GetProductByID(ctx, order.ProductID)
	if err != nil {
		s.logger.Warn("Failed to join product",
			zap.Int64("product_id", order.ProductID),
			zap.Error(err))
	} else {
		detail.Product = product
	}

	if order.UserID != nil {
		user, err := s.store.GetUserByID(ctx, *order.UserID)
		if err != nil {
			s.logger.Warn("Failed to join user",
				zap.Int64("user_id", *order.UserID),
				zap.Error(err))
		} else {
			detail.User = user
		}
	}

	return detail
}
