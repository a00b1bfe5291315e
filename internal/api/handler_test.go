package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSignature = "whsec_test"
	testAdminKey  = "admin-test-token"
)

type testServer struct {
	router *gin.Engine
	store  *store.Memory
	gw     *gateway.MockClient
}

func newTestServer(t *testing.T, adminToken string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemory()
	st.SeedProduct(models.Product{ID: 1, Name: "Widget", Price: 2999, Currency: "usd"})

	gw := gateway.NewMockClient(testSignature)
	users := service.NewUserResolver(st)
	checkout := service.NewCheckoutService(st, gw, nil, users)
	orders := service.NewOrderService(st, gw)
	reconciler := service.NewReconciler(st, gw, users, nil, nil)
	sweeper := service.NewSweeper(st, gw, nil)

	router := gin.New()
	NewHandler(checkout, orders, reconciler, sweeper, adminToken).SetupRoutes(router)

	return &testServer{router: router, store: st, gw: gw}
}

func (s *testServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case []byte:
			buf.Write(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// createIntent drives the checkout endpoint and returns the new intent id.
func (s *testServer) createIntent(t *testing.T) string {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/create-payment-intent", map[string]any{
		"productId": 1,
		"quantity":  2,
		"customerInfo": map[string]string{
			"email": "buyer@example.com",
			"name":  "Test Buyer",
		},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	id, _ := body["paymentIntentId"].(string)
	require.NotEmpty(t, id)
	return id
}

func succeededEvent(eventID, intentID string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":                eventID,
		"type":              "payment_intent.succeeded",
		"payment_intent_id": intentID,
	})
	return payload
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, testAdminKey)

	rec := srv.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreatePaymentIntentEndpoint(t *testing.T) {
	srv := newTestServer(t, testAdminKey)

	rec := srv.do(http.MethodPost, "/api/create-payment-intent", map[string]any{
		"productId": 1,
		"quantity":  2,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["clientSecret"])
	assert.True(t, gateway.IsMockIntent(body["paymentIntentId"].(string)))
	assert.Equal(t, float64(5998), body["amount"])
	assert.Equal(t, "usd", body["currency"])
}

func TestCreatePaymentIntentRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, testAdminKey)

	// Unknown product.
	rec := srv.do(http.MethodPost, "/api/create-payment-intent", map[string]any{
		"productId": 999,
		"quantity":  1,
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Missing quantity fails binding.
	rec = srv.do(http.MethodPost, "/api/create-payment-intent", map[string]any{
		"productId": 1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Not JSON at all.
	rec = srv.do(http.MethodPost, "/api/create-payment-intent", []byte("not json"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProvisionalOrderEndpoint(t *testing.T) {
	srv := newTestServer(t, testAdminKey)
	intentID := srv.createIntent(t)

	req := map[string]any{
		"paymentIntentId": intentID,
		"productId":       1,
		"quantity":        2,
		"customerInfo":    map[string]string{"email": "buyer@example.com"},
	}

	rec := srv.do(http.MethodPost, "/api/create-provisional-order", req, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["isProvisional"])
	orderID := body["orderId"]

	// Retrying the same intent returns the same order.
	rec = srv.do(http.MethodPost, "/api/create-provisional-order", req, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orderID, decodeBody(t, rec)["orderId"])
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	srv := newTestServer(t, testAdminKey)
	intentID := srv.createIntent(t)

	rec := srv.do(http.MethodPost, "/api/webhooks", succeededEvent("evt_1", intentID),
		map[string]string{"Stripe-Signature": "whsec_wrong"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No order was touched.
	_, err := srv.store.GetOrderByPaymentIntentID(context.Background(), intentID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWebhookPromotesProvisionalOrder(t *testing.T) {
	srv := newTestServer(t, testAdminKey)
	intentID := srv.createIntent(t)

	rec := srv.do(http.MethodPost, "/api/create-provisional-order", map[string]any{
		"paymentIntentId": intentID,
		"productId":       1,
		"quantity":        2,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodPost, "/api/webhooks", succeededEvent("evt_1", intentID),
		map[string]string{"Stripe-Signature": testSignature})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["received"])

	rec = srv.do(http.MethodGet, "/api/orders/"+intentID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	order := decodeBody(t, rec)["order"].(map[string]any)
	assert.Equal(t, "completed", order["status"])
	assert.Equal(t, false, order["is_provisional"])
}

func TestWebhookAcknowledgesUnknownEventType(t *testing.T) {
	srv := newTestServer(t, testAdminKey)

	payload, _ := json.Marshal(map[string]any{
		"id":   "evt_refund",
		"type": "charge.refunded",
	})
	rec := srv.do(http.MethodPost, "/api/webhooks", payload,
		map[string]string{"Stripe-Signature": testSignature})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetOrderReturnsProcessingBeforeWrite(t *testing.T) {
	srv := newTestServer(t, testAdminKey)

	// Payment succeeded on the gateway but neither writer has landed yet.
	intentID := srv.createIntent(t)

	rec := srv.do(http.MethodGet, "/api/orders/"+intentID, nil, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "processing", decodeBody(t, rec)["status"])
}

func TestGetOrderUnknownIntent(t *testing.T) {
	srv := newTestServer(t, testAdminKey)

	rec := srv.do(http.MethodGet, "/api/orders/pi_mock_nonexistent", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// pendingGateway reports every intent as awaiting payment. Only the read
// path is exercised against it.
type pendingGateway struct{}

func (pendingGateway) CreateIntent(context.Context, gateway.CreateIntentParams) (*gateway.PaymentIntent, error) {
	return nil, errors.New("not supported")
}

func (pendingGateway) GetIntent(_ context.Context, id string) (*gateway.PaymentIntent, error) {
	return &gateway.PaymentIntent{
		ID:           id,
		Status:       gateway.IntentPending,
		StatusDetail: "requires_payment_method",
	}, nil
}

func (pendingGateway) VerifyEvent([]byte, string) (*gateway.Event, error) {
	return nil, gateway.ErrInvalidSignature
}

func TestGetOrderPaymentIncomplete(t *testing.T) {
	gin.SetMode(gin.TestMode)

	st := store.NewMemory()
	orders := service.NewOrderService(st, pendingGateway{})
	users := service.NewUserResolver(st)
	checkout := service.NewCheckoutService(st, pendingGateway{}, nil, users)
	reconciler := service.NewReconciler(st, pendingGateway{}, users, nil, nil)
	sweeper := service.NewSweeper(st, pendingGateway{}, nil)

	router := gin.New()
	NewHandler(checkout, orders, reconciler, sweeper, testAdminKey).SetupRoutes(router)
	srv := &testServer{router: router, store: st}

	rec := srv.do(http.MethodGet, "/api/orders/pi_pending_1", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "requires_payment_method", body["status"])
}

func TestAdminEndpointsRequireBearerToken(t *testing.T) {
	srv := newTestServer(t, testAdminKey)

	rec := srv.do(http.MethodPost, "/api/admin/sync-orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(http.MethodPost, "/api/admin/sync-orders", nil,
		map[string]string{"Authorization": "Bearer wrong-token"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(http.MethodPost, "/api/admin/sync-orders", nil,
		map[string]string{"Authorization": "Bearer " + testAdminKey})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(0), body["synced"])
}

func TestAdminEndpointsDisabledWithoutToken(t *testing.T) {
	srv := newTestServer(t, "")

	rec := srv.do(http.MethodGet, "/api/admin/sync-stats", nil,
		map[string]string{"Authorization": "Bearer anything"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSyncOrdersPromotesPendingOrders(t *testing.T) {
	srv := newTestServer(t, testAdminKey)
	intentID := srv.createIntent(t)

	rec := srv.do(http.MethodPost, "/api/create-provisional-order", map[string]any{
		"paymentIntentId": intentID,
		"productId":       1,
		"quantity":        1,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The mock gateway settles intents immediately, so the sweep promotes.
	rec = srv.do(http.MethodPost, "/api/admin/sync-orders", nil,
		map[string]string{"Authorization": "Bearer " + testAdminKey})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["synced"])
	assert.Equal(t, float64(0), body["failed"])

	rec = srv.do(http.MethodGet, "/api/orders/"+intentID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	order := decodeBody(t, rec)["order"].(map[string]any)
	assert.Equal(t, "completed", order["status"])
}

func TestSyncStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, testAdminKey)

	for i := 0; i < 2; i++ {
		intentID := srv.createIntent(t)
		rec := srv.do(http.MethodPost, "/api/create-provisional-order", map[string]any{
			"paymentIntentId": intentID,
			"productId":       1,
			"quantity":        1,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := srv.do(http.MethodGet, "/api/admin/sync-stats", nil,
		map[string]string{"Authorization": "Bearer " + testAdminKey})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	stats := body["stats"].([]any)
	require.Len(t, stats, 1)

	row := stats[0].(map[string]any)
	assert.Equal(t, "processing", row["status"])
	assert.Equal(t, true, row["isProvisional"])
	assert.Equal(t, float64(2), row["count"])
}

func TestListProductsEndpoint(t *testing.T) {
	srv := newTestServer(t, testAdminKey)

	rec := srv.do(http.MethodGet, "/api/products", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	products := decodeBody(t, rec)["products"].([]any)
	require.Len(t, products, 1)
	assert.Equal(t, "Widget", products[0].(map[string]any)["name"])
}
