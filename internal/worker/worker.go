package worker

import (
	"context"
	"log"
	"time"

	"checkout-service/internal/service"
)

// SweepWorker runs the reconciliation sweep on a fixed interval. Overlap
// with a manual admin sync or a slow previous run is harmless: the sweep
// converges on idempotent writes.
type SweepWorker struct {
	sweeper  *service.Sweeper
	interval time.Duration
	stop     chan struct{}
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(sweeper *service.Sweeper, interval time.Duration) *SweepWorker {
	return &SweepWorker{
		sweeper:  sweeper,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start runs the sweep loop until the context is cancelled or Stop is called.
func (w *SweepWorker) Start(ctx context.Context) error {
	log.Printf("Starting sweep worker, interval=%s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sweep worker context cancelled, stopping...")
			return ctx.Err()
		case <-w.stop:
			log.Println("Sweep worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.sweeper.SyncPendingOrders(ctx); err != nil {
				log.Printf("Sweep failed: %v", err)
			}
		}
	}
}

// Stop stops the worker
func (w *SweepWorker) Stop() {
	close(w.stop)
}
