package service

import (
	"context"
	"time"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Sweeper is the repair path: it re-queries the gateway for every order
// still awaiting reconciliation and finalizes the ones the gateway has
// decided. Safe to overlap with itself and with live webhook delivery
// because it converges on the same terminal-guarded finalize.
type Sweeper struct {
	store     store.Store
	gw        gateway.Client
	publisher Publisher
	logger    *zap.Logger
}

// NewSweeper creates a new reconciliation sweeper
func NewSweeper(st store.Store, gw gateway.Client, publisher Publisher) *Sweeper {
	return &Sweeper{
		store:     st,
		gw:        gw,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// SyncPendingOrders reconciles all pending orders against the gateway,
// oldest first. One order's failure never aborts the batch; it is counted
// and the sweep moves on.
func (s *Sweeper) SyncPendingOrders(ctx context.Context) (models.SyncReport, error) {
	ctx, span := util.StartSpan(ctx, "Sweeper.SyncPendingOrders")
	defer span.End()

	util.SweepRunsTotal.Inc()
	start := time.Now()
	defer func() {
		util.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	var report models.SyncReport

	orders, err := s.store.ListPendingOrders(ctx)
	if err != nil {
		return report, err
	}

	s.logger.Info("Starting order sync", zap.Int("pending", len(orders)))

	for i := range orders {
		order := &orders[i]

		// Bookkeeping happens for every touched order, whatever the
		// outcome, so staleness detection sees each attempt.
		if err := s.store.RecordSyncAttempt(ctx, order.PaymentIntentID); err != nil {
			s.logger.Warn("Failed to record sync attempt",
				zap.String("payment_intent_id", order.PaymentIntentID),
				zap.Error(err))
		}

		gwStart := time.Now()
		intent, err := s.gw.GetIntent(ctx, order.PaymentIntentID)
		util.GatewayRequestLatency.WithLabelValues("get_intent").Observe(time.Since(gwStart).Seconds())
		if err != nil {
			report.Failed++
			util.SweepOrdersTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("Failed to query gateway for order",
				zap.String("payment_intent_id", order.PaymentIntentID),
				zap.Error(err))
			continue
		}

		switch intent.Status {
		case gateway.IntentSucceeded:
			if err := s.finalize(ctx, order, models.OrderStatusCompleted, intent.StatusDetail); err != nil {
				report.Failed++
				util.SweepOrdersTotal.WithLabelValues("failed").Inc()
				continue
			}
			report.Synced++
			util.SweepOrdersTotal.WithLabelValues("synced").Inc()

		case gateway.IntentCanceled:
			if err := s.finalize(ctx, order, models.OrderStatusFailed, intent.StatusDetail); err != nil {
				report.Failed++
				util.SweepOrdersTotal.WithLabelValues("failed").Inc()
				continue
			}
			report.Synced++
			util.SweepOrdersTotal.WithLabelValues("synced").Inc()

		default:
			// Still pending on the gateway side; leave the order alone.
			report.Skipped++
			util.SweepOrdersTotal.WithLabelValues("skipped").Inc()
		}
	}

	s.logger.Info("Order sync finished",
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

func (s *Sweeper) finalize(ctx context.Context, order *models.Order, status, reason string) error {
	finalized, err := s.store.FinalizeOrder(ctx, order.PaymentIntentID, status)
	if err != nil {
		s.logger.Warn("Failed to finalize order",
			zap.String("payment_intent_id", order.PaymentIntentID),
			zap.String("status", status),
			zap.Error(err))
		return err
	}
	if !finalized {
		// A webhook or overlapping sweep got there first. Converged either way.
		return nil
	}

	util.OrdersPromotedTotal.WithLabelValues(status, "sweep").Inc()
	s.logger.Info("Order finalized by sweep",
		zap.String("payment_intent_id", order.PaymentIntentID),
		zap.String("status", status))

	if status == models.OrderStatusCompleted {
		publishOrderCompleted(ctx, s.publisher, s.logger, order)
	} else {
		publishOrderFailed(ctx, s.publisher, s.logger, order, reason)
	}
	return nil
}

// GetSyncStats returns order counts grouped by (status, provisional).
func (s *Sweeper) GetSyncStats(ctx context.Context) ([]models.SyncStat, error) {
	return s.store.GetSyncStats(ctx)
}
