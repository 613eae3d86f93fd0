package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/smart-tasks/internal/logger"
	"go.uber.org/zap"
)

// purgeTimeout bounds a single dead-letter sweep
const purgeTimeout = 2 * time.Minute

// GarbageCollector sweeps the dead-letter queue on a fixed interval, dropping failed
// extraction and completion jobs once they are older than the retention window.
type GarbageCollector struct {
	purger    DLQPurger
	every     time.Duration
	retention time.Duration
	log       *zap.Logger
}

func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration, log *zap.Logger) *GarbageCollector {
	return &GarbageCollector{purger: purger, every: interval, retention: retention, log: logger.OrNop(log)}
}

// Start sweeps once immediately, then every interval, until ctx is done.
// Sweep failures are logged and do not stop the loop.
func (gc *GarbageCollector) Start(ctx context.Context) error {
	sweep := func() {
		if err := gc.collect(ctx); err != nil && ctx.Err() == nil {
			gc.log.Error("dlq_gc_failed", zap.Error(err))
		}
	}
	sweep()

	ticker := time.NewTicker(gc.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sweep()
		}
	}
}

func (gc *GarbageCollector) collect(ctx context.Context) error {
	if gc.purger == nil {
		return nil
	}
	sweepCtx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()

	purged, err := gc.purger.PurgeOlderThan(sweepCtx, gc.retention)
	if err != nil {
		return fmt.Errorf("DLQ purge: %w", err)
	}
	if purged == 0 {
		return nil
	}
	gc.log.Info("dlq_gc_purged", zap.Int("purged", purged), zap.Duration("retention", gc.retention))
	return nil
}
