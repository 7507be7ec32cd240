package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/qagate/qagate/pkg/app"
	"github.com/qagate/qagate/pkg/config"
	"github.com/qagate/qagate/pkg/db"
	"github.com/qagate/qagate/pkg/gate"
)

// localEnv is the app opened over the configured database for one command.
type localEnv struct {
	cfg    *config.Config
	db     *gorm.DB
	app    *app.App
	logger *slog.Logger
}

// openLocal loads the config and opens the database. Logs go to the
// command's stderr so table output stays clean.
func openLocal(cmd *cobra.Command) (*localEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	conditions, err := gate.LoadConditions(cfg.Gate.ConditionsFile)
	if err != nil {
		_ = db.Close(gormDB)
		return nil, err
	}

	a := app.New(gormDB, app.Options{
		Variant:      cfg.Variant(),
		Conditions:   conditions,
		AuditEnabled: cfg.Audit.Enabled,
	}, logger)
	return &localEnv{cfg: cfg, db: gormDB, app: a, logger: logger}, nil
}

func (e *localEnv) Close() error {
	return db.Close(e.db)
}

// withLocal runs fn against an opened localEnv and closes it afterwards.
func withLocal(cmd *cobra.Command, fn func(e *localEnv) error) error {
	e, err := openLocal(cmd)
	if err != nil {
		return fmt.Errorf("open qagate: %w", err)
	}
	defer e.Close()
	return fn(e)
}
