package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentIntentsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_intents_created_total",
		Help: "Total number of payment intents created",
	}, []string{"mode"})

	ProvisionalOrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provisional_orders_created_total",
		Help: "Total number of provisional orders created",
	})

	ProvisionalOrdersDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provisional_orders_duplicate_total",
		Help: "Total number of provisional order requests that matched an existing order",
	})

	OrdersPromotedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_promoted_total",
		Help: "Total number of orders finalized to a terminal status",
	}, []string{"status", "source"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of webhook events by outcome",
	}, []string{"type", "outcome"})

	WebhookSignatureFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_signature_failures_total",
		Help: "Total number of webhook deliveries rejected for a bad signature",
	})

	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_runs_total",
		Help: "Total number of reconciliation sweeps",
	})

	SweepOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_orders_total",
		Help: "Total number of orders touched by sweeps, by outcome",
	}, []string{"outcome"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of reconciliation sweeps",
		Buckets: prometheus.DefBuckets,
	})

	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
