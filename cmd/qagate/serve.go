package main

import (
	"context"
	"errors"
	goflag "flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/qagate/qagate/pkg/api"
	"github.com/qagate/qagate/pkg/app"
	"github.com/qagate/qagate/pkg/config"
	"github.com/qagate/qagate/pkg/db"
	"github.com/qagate/qagate/pkg/gate"
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Initialize glog for startup failures
			_ = goflag.Set("logtostderr", "true")

			cfg, err := config.Load(configPath)
			if err != nil {
				glog.Fatalf("Failed to load config: %v", err)
			}
			if listenAddr != "" {
				cfg.Server.Addr = listenAddr
			}
			runServer(cmd.Context(), cfg)
			return nil
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "Address to listen on (overrides server.addr)")
	return cmd
}

func runServer(parent context.Context, cfg *config.Config) {
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting qagate server",
		"listen", cfg.Server.Addr,
		"database", cfg.Database.Dialect,
		"transitions", cfg.Variant())

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close(gormDB)

	if err := db.Migrate(ctx, gormDB, cfg.Database.MigrationLock, logger); err != nil {
		glog.Fatalf("Failed to migrate database: %v", err)
	}

	conditions, err := gate.LoadConditions(cfg.Gate.ConditionsFile)
	if err != nil {
		glog.Fatalf("Failed to load gate conditions: %v", err)
	}

	a := app.New(gormDB, app.Options{
		Variant:      cfg.Variant(),
		Conditions:   conditions,
		AuditEnabled: cfg.Audit.Enabled,
	}, logger)

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.RunWorkers(ctx, app.WorkerConfig{
			SweepInterval:      cfg.Waivers.SweepInterval,
			DeleteExpired:      cfg.Waivers.DeleteExpired,
			AuditRetentionDays: cfg.Audit.RetentionDays,
		})
	}()

	server := api.NewServer(a.Services(), cfg.Server.CORSOrigins, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("qagate server ready", "listen", cfg.Server.Addr, "conditions", len(conditions))

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	<-workersDone

	logger.Info("qagate server stopped")
}
