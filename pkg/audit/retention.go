package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/qagate/qagate/pkg/metrics"
)

// RetentionWorker purges audit events older than the retention window.
type RetentionWorker struct {
	store  *Store
	keep   time.Duration
	every  time.Duration
	logger *slog.Logger
	clock  func() time.Time
}

// NewRetentionWorker keeps retentionDays of events and purges once a day.
// retentionDays <= 0 disables purging.
func NewRetentionWorker(store *Store, retentionDays int, logger *slog.Logger) *RetentionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionWorker{
		store:  store,
		keep:   time.Duration(retentionDays) * 24 * time.Hour,
		every:  24 * time.Hour,
		logger: logger,
		clock:  time.Now,
	}
}

func (w *RetentionWorker) retentionDays() int {
	return int(w.keep / (24 * time.Hour))
}

// Run purges immediately and then on every tick until ctx is cancelled.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.store == nil || w.keep <= 0 {
		w.logger.Info("audit retention disabled", "retentionDays", w.retentionDays())
		return
	}
	w.logger.Info("audit retention running", "retentionDays", w.retentionDays(), "every", w.every.String())

	_, _ = w.Purge(ctx)
	ticker := time.NewTicker(w.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Purge(ctx)
		}
	}
}

// Purge deletes events created before the retention cutoff and returns how
// many went.
func (w *RetentionWorker) Purge(ctx context.Context) (int64, error) {
	cutoff := w.clock().Add(-w.keep)
	n, err := w.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		w.logger.Warn("audit purge failed", "cutoff", cutoff.Format(time.RFC3339), "error", err)
		return 0, err
	}
	metrics.AuditEventsPurged.Add(float64(n))
	if n > 0 {
		w.logger.Info("audit events purged", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}
