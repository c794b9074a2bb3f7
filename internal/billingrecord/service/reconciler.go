package service

import (
	"context"
	"time"

	"github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
	"github.com/smallbiznis/tokenledger/internal/config"
	"github.com/smallbiznis/tokenledger/internal/observability/metrics"
	"go.uber.org/zap"
)

// ReconcileConfig controls the reconcile loop.
type ReconcileConfig struct {
	Interval  time.Duration
	BatchSize int
	Timeout   time.Duration
}

func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Interval:  time.Minute,
		BatchSize: 200,
		Timeout:   30 * time.Second,
	}
}

func (c ReconcileConfig) withDefaults() ReconcileConfig {
	defaults := DefaultReconcileConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	return c
}

func ProvideReconcileConfig(cfg config.Config) ReconcileConfig {
	return ReconcileConfig{
		Interval:  cfg.Reconcile.Interval,
		BatchSize: cfg.Reconcile.BatchSize,
		Timeout:   cfg.Reconcile.Timeout,
	}.withDefaults()
}

// Reconciler retries failed usage records and backfills any accepted
// ledger entry that still has none.
type Reconciler struct {
	svc *Service
	log *zap.Logger
	cfg ReconcileConfig
}

type RunStats struct {
	Retried    int
	Requeued   int
	Dropped    int
	Backfilled int
}

func NewReconciler(svc *Service, cfg ReconcileConfig) *Reconciler {
	return &Reconciler{
		svc: svc,
		log: svc.log.Named("reconciler"),
		cfg: cfg.withDefaults(),
	}
}

func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("billing reconcile run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) RunOnce(parentCtx context.Context) (RunStats, error) {
	ctx, cancel := context.WithTimeout(parentCtx, r.cfg.Timeout)
	defer cancel()

	worker := r.svc.worker
	worker.IncJobRun(metrics.JobBillingReconcile)
	start := time.Now()
	defer func() {
		worker.ObserveJobDuration(metrics.JobBillingReconcile, time.Since(start))
	}()

	stats := r.retryDue(ctx)

	backfilled, err := r.backfill(ctx)
	stats.Backfilled = backfilled
	worker.AddBatchProcessed(metrics.JobBillingReconcile, stats.Retried+stats.Backfilled)
	worker.SetQueueDepth(metrics.JobBillingRetry, r.svc.queue.Len())
	if err != nil {
		worker.IncJobError(metrics.JobBillingReconcile, err)
		return stats, err
	}
	return stats, nil
}

func (r *Reconciler) retryDue(ctx context.Context) RunStats {
	var stats RunStats
	now := r.svc.clock.Now()

	for _, item := range r.svc.queue.Due(now) {
		if err := r.svc.writeUsage(ctx, item.req); err != nil {
			r.svc.worker.IncJobError(metrics.JobBillingRetry, err)
			if r.svc.queue.Reschedule(item, now) {
				stats.Requeued++
				r.svc.metrics.RecordBillingRetry(ctx, "requeued")
				continue
			}
			stats.Dropped++
			r.svc.metrics.RecordBillingRetry(ctx, "dropped")
			r.log.Warn("billing record retry exhausted",
				zap.String("ledger_entry_id", item.req.LedgerEntryID.String()),
				zap.Int("attempts", item.attempts+1),
				zap.Error(err),
			)
			continue
		}
		stats.Retried++
		r.svc.metrics.RecordBillingRetry(ctx, "success")
	}
	return stats
}

func (r *Reconciler) backfill(ctx context.Context) (int, error) {
	rows, err := r.svc.repo.ListUnbilled(ctx, r.svc.db, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, row := range rows {
		err := r.svc.writeUsage(ctx, domain.UsageRecordRequest{
			UserID:        row.UserID,
			LedgerEntryID: row.ID,
			ModelName:     row.ModelName,
			Amount:        row.TotalCredits,
		})
		if err != nil {
			r.log.Warn("billing record backfill failed",
				zap.String("ledger_entry_id", row.ID.String()),
				zap.Error(err),
			)
			continue
		}
		written++
	}
	if written > 0 {
		r.log.Info("backfilled billing records", zap.Int("count", written))
	}
	return written, nil
}
