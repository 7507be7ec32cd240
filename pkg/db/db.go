// Package db opens the backing database and migrates the qagate schema.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qagate/qagate/pkg/approval"
	"github.com/qagate/qagate/pkg/artifact"
	"github.com/qagate/qagate/pkg/audit"
	"github.com/qagate/qagate/pkg/release"
	"github.com/qagate/qagate/pkg/requirements"
	"github.com/qagate/qagate/pkg/results"
	"github.com/qagate/qagate/pkg/waiver"
)

// Supported dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// Config selects and tunes the database connection.
type Config struct {
	Dialect         string        `mapstructure:"dialect"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationLock   bool          `mapstructure:"migration_lock"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

// DefaultConfig returns a Config for a local SQLite file.
func DefaultConfig() Config {
	return Config{
		Dialect:         DialectSQLite,
		DSN:             "qagate.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		MigrationLock:   true,
	}
}

func dialector(dialect, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(dialect) {
	case DialectSQLite, "":
		return sqlite.Open(dsn), nil
	case DialectPostgres, "postgresql":
		return postgres.Open(dsn), nil
	case DialectMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database dialect %q (expected sqlite, postgres, or mysql)", dialect)
	}
}

// Open connects to the configured database.
func Open(cfg Config) (*gorm.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	d, err := dialector(cfg.Dialect, cfg.DSN)
	if err != nil {
		return nil, err
	}

	level := logger.Silent
	if cfg.LogQueries {
		level = logger.Info
	}
	gormDB, err := gorm.Open(d, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Dialect, err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if gormDB.Dialector.Name() == DialectSQLite {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return gormDB, nil
}

// Close releases the underlying connection pool.
func Close(gormDB *gorm.DB) error {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection.
func Ping(ctx context.Context, gormDB *gorm.DB) error {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type migrator interface {
	AutoMigrate() error
}

// Migrate creates or updates every qagate table. With lock set, concurrent
// replicas serialize on the migration lock.
func Migrate(ctx context.Context, gormDB *gorm.DB, lock bool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	stores := []migrator{
		artifact.NewStore(gormDB),
		release.NewStore(gormDB),
		results.NewStore(gormDB),
		requirements.NewStore(gormDB),
		waiver.NewStore(gormDB),
		approval.NewStore(gormDB),
		audit.NewStore(gormDB),
	}

	run := func() error {
		for _, s := range stores {
			if err := s.AutoMigrate(); err != nil {
				return err
			}
		}
		return nil
	}

	start := time.Now()
	var err error
	if lock {
		err = NewMigrationLocker(gormDB).WithLock(ctx, run)
	} else {
		err = run()
	}
	if err != nil {
		return err
	}
	logger.Info("database migrated", "dialect", gormDB.Dialector.Name(), "duration", time.Since(start))
	return nil
}
