package waiver

import (
	"context"
	"log/slog"
	"time"
)

// SweepWorker periodically sweeps expired waivers.
type SweepWorker struct {
	service  *Service
	interval time.Duration
	remove   bool
	logger   *slog.Logger
}

// NewSweepWorker creates a worker that sweeps every interval. When remove is
// false expired waivers are only reported.
func NewSweepWorker(service *Service, interval time.Duration, remove bool, logger *slog.Logger) *SweepWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepWorker{
		service:  service,
		interval: interval,
		remove:   remove,
		logger:   logger,
	}
}

// Run sweeps on every tick until the context is cancelled.
func (w *SweepWorker) Run(ctx context.Context) {
	if w.service == nil || w.interval <= 0 {
		w.logger.Info("waiver sweep worker disabled", "interval", w.interval.String())
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("waiver sweep worker started",
		"interval", w.interval.String(),
		"delete", w.remove)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("waiver sweep worker stopped")
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *SweepWorker) sweepOnce(ctx context.Context) *SweepResult {
	now := w.service.Clock()
	res, err := w.service.Sweep(ctx, now, w.remove)
	if err != nil {
		w.logger.Error("waiver sweep failed", "error", err)
		return res
	}
	if len(res.Expired) > 0 {
		w.logger.Info("waiver sweep completed",
			"expired", len(res.Expired),
			"deleted", res.Deleted,
			"now", now.Format(time.RFC3339))
	}
	return res
}
