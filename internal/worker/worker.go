package worker

import (
	"context"
	"fmt"
	"time"

	"order-analytics/config"
	"order-analytics/internal/broker"
	"order-analytics/internal/models"
	"order-analytics/internal/redisclient"
	"order-analytics/internal/util"

	"go.uber.org/zap"
)

// Cleaner triggers an age-based retention pass.
type Cleaner interface {
	Cleanup(ctx context.Context, retainDays int) (int64, int64, error)
}

const retentionLockKey = "retention-pass"

// RetentionWorker runs the retention pass on a ticker. When a Redis client
// is present the pass is guarded by a lock, so only one replica cleans up
// per interval.
type RetentionWorker struct {
	cleaner    Cleaner
	locks      *redisclient.Client
	interval   time.Duration
	retainDays int
	logger     *zap.Logger
}

// NewRetentionWorker creates a new retention worker. locks may be nil.
func NewRetentionWorker(cleaner Cleaner, locks *redisclient.Client, cfg config.PipelineConfig) *RetentionWorker {
	return &RetentionWorker{
		cleaner:    cleaner,
		locks:      locks,
		interval:   cfg.RetentionInterval,
		retainDays: cfg.RetentionDays,
		logger:     util.GetLogger(),
	}
}

// Start runs cleanup passes until the context is cancelled.
func (w *RetentionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting retention worker",
		zap.Duration("interval", w.interval),
		zap.Int("retain_days", w.retainDays))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Retention worker context cancelled, stopping")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RetentionWorker) runOnce(ctx context.Context) {
	if w.locks != nil {
		acquired, err := w.locks.AcquireLock(ctx, retentionLockKey, w.interval/2)
		if err != nil {
			w.logger.Warn("Retention lock check failed", zap.Error(err))
			return
		}
		if !acquired {
			w.logger.Debug("Retention pass already running on another replica")
			return
		}
		defer func() {
			if err := w.locks.ReleaseLock(ctx, retentionLockKey); err != nil {
				w.logger.Warn("Failed to release retention lock", zap.Error(err))
			}
		}()
	}

	ordersDeleted, customersDeleted, err := w.cleaner.Cleanup(ctx, w.retainDays)
	if err != nil {
		w.logger.Error("Retention pass failed", zap.Error(err))
		return
	}

	w.logger.Info("Retention pass completed",
		zap.Int64("orders_deleted", ordersDeleted),
		zap.Int64("customers_deleted", customersDeleted))
}

// CacheInvalidator drops cached KPI results when a pipeline run completes,
// so the read API never serves stale numbers past the run that superseded
// them.
type CacheInvalidator struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	cache        *redisclient.Client
	logger       *zap.Logger
}

// NewCacheInvalidator creates a new cache invalidator worker.
func NewCacheInvalidator(consumer *broker.Consumer, cache *redisclient.Client) *CacheInvalidator {
	w := &CacheInvalidator{
		consumer: consumer,
		cache:    cache,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnPipelineCompleted(w.handlePipelineCompleted)
	w.eventHandler = eventHandler

	return w
}

func (w *CacheInvalidator) handlePipelineCompleted(ctx context.Context, event *models.PipelineCompletedEvent) error {
	removed, err := w.cache.InvalidateKPIResults(ctx, event.Engine)
	if err != nil {
		return fmt.Errorf("failed to invalidate kpi cache: %w", err)
	}

	w.logger.Info("Invalidated cached KPI results",
		zap.String("engine", event.Engine),
		zap.String("run_id", event.RunID),
		zap.Int64("keys_removed", removed))
	return nil
}

// Start starts consuming pipeline events.
func (w *CacheInvalidator) Start(ctx context.Context) error {
	w.logger.Info("Starting cache invalidator")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker.
func (w *CacheInvalidator) Stop() error {
	w.logger.Info("Stopping cache invalidator")
	return w.consumer.Close()
}
