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

// WebhookOutcome tags how a verified webhook delivery was resolved. The
// handler picks the HTTP status from it: Processed and Ignored acknowledge,
// Retry answers 5xx so the gateway redelivers.
type WebhookOutcome int

const (
	OutcomeProcessed WebhookOutcome = iota
	OutcomeIgnored
	OutcomeRetry
)

const eventDedupTTL = 24 * time.Hour

// SeenCache is the fast-path dedup window for webhook event ids. The redis
// client implements it; nil disables the fast path (the processed_events
// table still dedups durably).
type SeenCache interface {
	IsEventSeen(ctx context.Context, eventID string) (bool, error)
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) error
}

// Reconciler converges asynchronous gateway notifications onto the order
// store. Every path is idempotent on the payment intent id, so redeliveries
// and races with the provisional writer and the sweeper are no-ops.
type Reconciler struct {
	store     store.Store
	gw        gateway.Client
	users     *UserResolver
	publisher Publisher
	seen      SeenCache
	logger    *zap.Logger
}

// NewReconciler creates a new event reconciler
func NewReconciler(st store.Store, gw gateway.Client, users *UserResolver, publisher Publisher, seen SeenCache) *Reconciler {
	return &Reconciler{
		store:     st,
		gw:        gw,
		users:     users,
		publisher: publisher,
		seen:      seen,
		logger:    util.GetLogger(),
	}
}

// HandleEvent verifies and processes one webhook delivery.
//
// Signature failures return gateway.ErrInvalidSignature: a security
// boundary, rejected outright. After verification, unrecognized event kinds
// are acknowledged and ignored so the gateway never retries events this
// service intentionally skips. Store failures return OutcomeRetry, which
// the handler turns into a 5xx to force redelivery.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (WebhookOutcome, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleEvent")
	defer span.End()

	event, err := r.gw.VerifyEvent(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			util.WebhookSignatureFailuresTotal.Inc()
			r.logger.Warn("Webhook signature verification failed", zap.Error(err))
			return OutcomeIgnored, err
		}
		return OutcomeRetry, fmt.Errorf("failed to verify event: %w", err)
	}

	if event.Kind == gateway.EventIgnored {
		util.WebhookEventsTotal.WithLabelValues(event.Type, "ignored").Inc()
		r.logger.Debug("Ignoring webhook event", zap.String("type", event.Type))
		return OutcomeIgnored, nil
	}

	if done, outcome := r.alreadyProcessed(ctx, event); done {
		return outcome, nil
	}

	var outcome WebhookOutcome
	switch event.Kind {
	case gateway.EventPaymentSucceeded:
		outcome, err = r.handlePaymentSucceeded(ctx, event.Intent)
	case gateway.EventPaymentFailed:
		outcome, err = r.handlePaymentFailed(ctx, event.Intent)
	}
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(event.Type, "retry").Inc()
		return outcome, err
	}

	r.markProcessed(ctx, event)
	util.WebhookEventsTotal.WithLabelValues(event.Type, outcomeLabel(outcome)).Inc()
	return outcome, nil
}

// alreadyProcessed short-circuits exact redeliveries: redis inside the TTL
// window first, then the durable processed_events record. Dedup read errors
// are not fatal; processing is idempotent anyway.
func (r *Reconciler) alreadyProcessed(ctx context.Context, event *gateway.Event) (bool, WebhookOutcome) {
	if event.ID == "" {
		return false, 0
	}

	if r.seen != nil {
		if seen, err := r.seen.IsEventSeen(ctx, event.ID); err == nil && seen {
			r.logger.Info("Duplicate webhook event (cache)", zap.String("event_id", event.ID))
			util.WebhookEventsTotal.WithLabelValues(event.Type, "duplicate").Inc()
			return true, OutcomeIgnored
		}
	}

	processed, err := r.store.IsEventProcessed(ctx, event.ID)
	if err != nil {
		r.logger.Warn("Failed to check processed events", zap.String("event_id", event.ID), zap.Error(err))
		return false, 0
	}
	if processed {
		r.logger.Info("Duplicate webhook event", zap.String("event_id", event.ID))
		util.WebhookEventsTotal.WithLabelValues(event.Type, "duplicate").Inc()
		return true, OutcomeIgnored
	}
	return false, 0
}

func (r *Reconciler) markProcessed(ctx context.Context, event *gateway.Event) {
	if event.ID == "" {
		return
	}
	if err := r.store.MarkEventProcessed(ctx, event.ID, event.Type); err != nil {
		r.logger.Warn("Failed to record processed event", zap.String("event_id", event.ID), zap.Error(err))
	}
	if r.seen != nil {
		if err := r.seen.MarkEventSeen(ctx, event.ID, eventDedupTTL); err != nil {
			r.logger.Warn("Failed to cache processed event", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
}

// handlePaymentSucceeded promotes the matching order, or creates one in
// terminal state from intent metadata when the provisional writer was never
// reached (client crashed before calling it).
func (r *Reconciler) handlePaymentSucceeded(ctx context.Context, intent *gateway.PaymentIntent) (WebhookOutcome, error) {
	order, err := r.store.GetOrderByPaymentIntentID(ctx, intent.ID)
	switch {
	case err == nil:
		if models.IsTerminal(order.Status) {
			// Redelivered notification for an already-final order.
			r.logger.Info("Order already finalized",
				zap.String("payment_intent_id", intent.ID),
				zap.String("status", order.Status))
			return OutcomeIgnored, nil
		}

		promoted, err := r.store.FinalizeOrder(ctx, intent.ID, models.OrderStatusCompleted)
		if err != nil {
			return OutcomeRetry, fmt.Errorf("failed to promote order %s: %w", intent.ID, err)
		}
		if promoted {
			util.OrdersPromotedTotal.WithLabelValues(models.OrderStatusCompleted, "webhook").Inc()
			r.logger.Info("Order promoted to completed",
				zap.String("payment_intent_id", intent.ID),
				zap.Int64("order_id", order.ID))
			publishOrderCompleted(ctx, r.publisher, r.logger, order)
		}
		return OutcomeProcessed, nil

	case errors.Is(err, store.ErrNotFound):
		return r.createOrderFromIntent(ctx, intent)

	default:
		return OutcomeRetry, fmt.Errorf("failed to look up order %s: %w", intent.ID, err)
	}
}

// createOrderFromIntent is the metadata-driven fallback creation path.
// A missing or unknown product reference is a data inconsistency needing
// manual review, not a transient fault: log and acknowledge, no retry.
func (r *Reconciler) createOrderFromIntent(ctx context.Context, intent *gateway.PaymentIntent) (WebhookOutcome, error) {
	productID, err := strconv.ParseInt(intent.Metadata["product_id"], 10, 64)
	if err != nil {
		r.logger.Error("Payment succeeded without usable product metadata",
			zap.String("payment_intent_id", intent.ID),
			zap.String("product_id", intent.Metadata["product_id"]))
		return OutcomeIgnored, nil
	}

	product, err := r.store.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Error("Payment succeeded for unknown product",
			zap.String("payment_intent_id", intent.ID),
			zap.Int64("product_id", productID))
		return OutcomeIgnored, nil
	}
	if err != nil {
		return OutcomeRetry, fmt.Errorf("failed to look up product %d: %w", productID, err)
	}

	quantity := 1
	if q, err := strconv.Atoi(intent.Metadata["quantity"]); err == nil && q >= 1 {
		quantity = q
	}

	email := intent.Metadata["customer_email"]
	userID, err := r.users.Resolve(ctx, email)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("failed to resolve user: %w", err)
	}

	amount := intent.Amount
	if amount == 0 {
		amount = product.Price * int64(quantity)
	}
	currency := intent.Currency
	if currency == "" {
		currency = product.Currency
	}

	order := &models.Order{
		PaymentIntentID: intent.ID,
		UserID:          userID,
		ProductID:       product.ID,
		Quantity:        quantity,
		Amount:          amount,
		Currency:        currency,
		Status:          models.OrderStatusCompleted,
		CustomerEmail:   email,
		CustomerName:    intent.Metadata["customer_name"],
		CustomerPhone:   intent.Metadata["customer_phone"],
		IsProvisional:   false,
	}

	err = r.store.CreateOrder(ctx, order)
	if errors.Is(err, store.ErrConflict) {
		// The provisional writer slipped in between the lookup and the
		// insert. Converge on the one existing row.
		promoted, perr := r.store.FinalizeOrder(ctx, intent.ID, models.OrderStatusCompleted)
		if perr != nil {
			return OutcomeRetry, fmt.Errorf("failed to promote order %s after conflict: %w", intent.ID, perr)
		}
		if promoted {
			util.OrdersPromotedTotal.WithLabelValues(models.OrderStatusCompleted, "webhook").Inc()
			if existing, gerr := r.store.GetOrderByPaymentIntentID(ctx, intent.ID); gerr == nil {
				publishOrderCompleted(ctx, r.publisher, r.logger, existing)
			}
		}
		return OutcomeProcessed, nil
	}
	if err != nil {
		return OutcomeRetry, fmt.Errorf("failed to create order %s: %w", intent.ID, err)
	}

	util.OrdersPromotedTotal.WithLabelValues(models.OrderStatusCompleted, "webhook").Inc()
	r.logger.Info("Order created from event metadata",
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("order_id", order.ID))
	publishOrderCompleted(ctx, r.publisher, r.logger, order)
	return OutcomeProcessed, nil
}

// handlePaymentFailed marks the matching order failed. No order means
// nothing to mark; terminal orders never regress.
func (r *Reconciler) handlePaymentFailed(ctx context.Context, intent *gateway.PaymentIntent) (WebhookOutcome, error) {
	order, err := r.store.GetOrderByPaymentIntentID(ctx, intent.ID)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Info("Payment failed for unknown order", zap.String("payment_intent_id", intent.ID))
		return OutcomeIgnored, nil
	}
	if err != nil {
		return OutcomeRetry, fmt.Errorf("failed to look up order %s: %w", intent.ID, err)
	}

	marked, err := r.store.FinalizeOrder(ctx, intent.ID, models.OrderStatusFailed)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("failed to mark order %s failed: %w", intent.ID, err)
	}
	if marked {
		util.OrdersPromotedTotal.WithLabelValues(models.OrderStatusFailed, "webhook").Inc()
		r.logger.Info("Order marked failed",
			zap.String("payment_intent_id", intent.ID),
			zap.Int64("order_id", order.ID))
		publishOrderFailed(ctx, r.publisher, r.logger, order, intent.StatusDetail)
	}
	return OutcomeProcessed, nil
}

func outcomeLabel(o WebhookOutcome) string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "retry"
	}
}
