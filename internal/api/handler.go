package api

import (
	"errors"
	"net/http"

	"checkout-service/internal/gateway"
	"checkout-service/internal/service"
	"checkout-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	checkout   *service.CheckoutService
	orders     *service.OrderService
	reconciler *service.Reconciler
	sweeper    *service.Sweeper
	adminToken string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout *service.CheckoutService,
	orders *service.OrderService,
	reconciler *service.Reconciler,
	sweeper *service.Sweeper,
	adminToken string,
) *Handler {
	return &Handler{
		checkout:   checkout,
		orders:     orders,
		reconciler: reconciler,
		sweeper:    sweeper,
		adminToken: adminToken,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/products", h.listProducts)
		api.POST("/create-payment-intent", h.createPaymentIntent)
		api.POST("/create-provisional-order", h.createProvisionalOrder)
		api.POST("/webhooks", h.handleWebhook)
		api.GET("/orders/:paymentIntentId", h.getOrder)

		admin := api.Group("/admin")
		admin.Use(bearerAuth(h.adminToken))
		{
			admin.POST("/sync-orders", h.syncOrders)
			admin.GET("/sync-stats", h.syncStats)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// listProducts serves the catalog
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.checkout.GetProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load products"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// createPaymentIntent opens a payment attempt for a product purchase
func (h *Handler) createPaymentIntent(c *gin.Context) {
	var req service.CreatePaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	resp, err := h.checkout.CreatePaymentIntent(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create payment intent"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// createProvisionalOrder writes the fast-path in-flight order
func (h *Handler) createProvisionalOrder(c *gin.Context) {
	var req service.ProvisionalOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	resp, err := h.checkout.CreateProvisionalOrder(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create provisional order"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"orderId":       resp.OrderID,
		"isProvisional": resp.IsProvisional,
	})
}

// handleWebhook receives gateway event notifications. The raw body is
// required for signature verification; gin must not parse it first.
func (h *Handler) handleWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	outcome, err := h.reconciler.HandleEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
			return
		}
		// Retryable failure: a non-2xx makes the gateway redeliver, which
		// is exactly what a transient store error needs.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Event processing failed"})
		return
	}

	_ = outcome // processed and ignored both acknowledge
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// getOrder serves order status to the client, including the 202 processing
// signal while the authoritative write is still in flight.
func (h *Handler) getOrder(c *gin.Context) {
	paymentIntentID := c.Param("paymentIntentId")

	detail, err := h.orders.GetOrder(c.Request.Context(), paymentIntentID)
	if err != nil {
		var incomplete *service.PaymentIncompleteError
		switch {
		case errors.Is(err, service.ErrOrderProcessing):
			c.JSON(http.StatusAccepted, gin.H{
				"status":  "processing",
				"message": "Order is being processed. Please try again shortly.",
			})
		case errors.As(err, &incomplete):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "Payment has not been completed",
				"status": incomplete.Status,
			})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch order"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": detail})
}

// syncOrders runs an on-demand reconciliation sweep
func (h *Handler) syncOrders(c *gin.Context) {
	report, err := h.sweeper.SyncPendingOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sync failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"synced":  report.Synced,
		"failed":  report.Failed,
		"skipped": report.Skipped,
	})
}

// syncStats serves grouped order counts for the admin dashboard
func (h *Handler) syncStats(c *gin.Context) {
	stats, err := h.sweeper.GetSyncStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}
