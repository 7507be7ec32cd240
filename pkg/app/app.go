// Package app wires the qagate stores and services together.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/qagate/qagate/pkg/api"
	"github.com/qagate/qagate/pkg/approval"
	"github.com/qagate/qagate/pkg/artifact"
	"github.com/qagate/qagate/pkg/audit"
	"github.com/qagate/qagate/pkg/db"
	"github.com/qagate/qagate/pkg/gate"
	"github.com/qagate/qagate/pkg/release"
	"github.com/qagate/qagate/pkg/requirements"
	"github.com/qagate/qagate/pkg/results"
	"github.com/qagate/qagate/pkg/revision"
	"github.com/qagate/qagate/pkg/waiver"
)

// Options select behavior that differs between deployments.
type Options struct {
	Variant    revision.Variant
	Conditions []gate.Condition
	// AuditEnabled records domain events in the audit table.
	AuditEnabled bool
}

// App holds every service over one database.
type App struct {
	DB         *gorm.DB
	AuditStore *audit.Store

	Artifacts    *artifact.Service
	Releases     *release.Service
	Results      *results.Service
	Requirements *requirements.Service
	Waivers      *waiver.Service
	Approvals    *approval.Store
	Signals      *gate.Aggregator
	Gate         *gate.Evaluator

	logger *slog.Logger
}

// New builds the services. The schema must already be migrated.
func New(gormDB *gorm.DB, opts Options, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Variant == "" {
		opts.Variant = revision.Strict
	}

	auditStore := audit.NewStore(gormDB)
	var sink audit.Sink = audit.Discard{}
	if opts.AuditEnabled {
		sink = audit.NewRecorder(auditStore, logger)
	}

	artStore := artifact.NewStore(gormDB)
	relStore := release.NewStore(gormDB)
	resStore := results.NewStore(gormDB)
	reqStore := requirements.NewStore(gormDB)
	approvals := approval.NewStore(gormDB)

	waivers := waiver.NewService(waiver.NewStore(gormDB), relStore, sink, logger)
	src := release.NewGateSource(relStore, sink, logger)
	signals := gate.NewAggregator(src, artStore, resStore, reqStore)
	evaluator := gate.NewEvaluator(src, signals, waivers, opts.Conditions, sink, logger)

	return &App{
		DB:           gormDB,
		AuditStore:   auditStore,
		Artifacts:    artifact.NewService(artStore, revision.NewMachine(opts.Variant), sink, logger),
		Releases:     release.NewService(relStore, artStore, evaluator, approvals, sink, logger),
		Results:      results.NewService(resStore, relStore, artStore),
		Requirements: requirements.NewService(reqStore, artStore),
		Waivers:      waivers,
		Approvals:    approvals,
		Signals:      signals,
		Gate:         evaluator,
		logger:       logger,
	}
}

// Services returns the API view of the app.
func (a *App) Services() api.Services {
	return api.Services{
		Artifacts:    a.Artifacts,
		Releases:     a.Releases,
		Gate:         a.Gate,
		Signals:      a.Signals,
		Waivers:      a.Waivers,
		Requirements: a.Requirements,
		Results:      a.Results,
		Audit:        a.AuditStore,
		Health: func(ctx context.Context) error {
			return db.Ping(ctx, a.DB)
		},
	}
}

// WorkerConfig controls the background workers.
type WorkerConfig struct {
	SweepInterval      time.Duration
	DeleteExpired      bool
	AuditRetentionDays int
}

// RunWorkers starts the waiver sweeper and audit retention worker and blocks
// until ctx is cancelled and both have returned.
func (a *App) RunWorkers(ctx context.Context, cfg WorkerConfig) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		waiver.NewSweepWorker(a.Waivers, cfg.SweepInterval, cfg.DeleteExpired, a.logger).Run(ctx)
	}()
	go func() {
		defer wg.Done()
		audit.NewRetentionWorker(a.AuditStore, cfg.AuditRetentionDays, a.logger).Run(ctx)
	}()
	wg.Wait()
}
