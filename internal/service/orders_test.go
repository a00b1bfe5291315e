package service

import (
	"context"
	"errors"
	"testing"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrderJoined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.checkout.CreateProvisionalOrder(ctx, &ProvisionalOrderRequest{
		PaymentIntentID: "pi_1",
		ProductID:       1,
		Quantity:        2,
		CustomerInfo:    &models.CustomerInfo{Email: "x@y.com"},
	})
	require.NoError(t, err)

	detail, err := env.orders.GetOrder(ctx, "pi_1")
	require.NoError(t, err)

	// In-flight provisional orders are served as-is.
	assert.True(t, detail.IsProvisional)
	assert.Equal(t, models.OrderStatusProcessing, detail.Status)
	require.NotNil(t, detail.Product)
	assert.Equal(t, "Widget", detail.Product.Name)
	require.NotNil(t, detail.User)
	assert.Equal(t, "x@y.com", detail.User.Email)
}

func TestGetOrderProcessingSignal(t *testing.T) {
	env := newTestEnv(t)

	// The gateway says succeeded but the webhook has not landed: the read
	// path must signal "poll again", not fabricate an order or 404.
	env.gw.addIntent(gateway.PaymentIntent{ID: "pi_1", Status: gateway.IntentSucceeded})

	_, err := env.orders.GetOrder(context.Background(), "pi_1")
	assert.ErrorIs(t, err, ErrOrderProcessing)

	_, err = env.store.GetOrderByPaymentIntentID(context.Background(), "pi_1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetOrderPaymentIncomplete(t *testing.T) {
	env := newTestEnv(t)

	env.gw.addIntent(gateway.PaymentIntent{
		ID:           "pi_1",
		Status:       gateway.IntentPending,
		StatusDetail: "requires_payment_method",
	})

	_, err := env.orders.GetOrder(context.Background(), "pi_1")

	var incomplete *PaymentIncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, "requires_payment_method", incomplete.Status)
}

func TestGetOrderUnknownIntent(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orders.GetOrder(context.Background(), "pi_nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetOrderCanceledIntent(t *testing.T) {
	env := newTestEnv(t)

	env.gw.addIntent(gateway.PaymentIntent{ID: "pi_1", Status: gateway.IntentCanceled})

	_, err := env.orders.GetOrder(context.Background(), "pi_1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetOrderGatewayUnavailable(t *testing.T) {
	env := newTestEnv(t)

	env.gw.failGet("pi_1", errors.New("gateway timeout"))

	_, err := env.orders.GetOrder(context.Background(), "pi_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, ErrOrderProcessing)
}
