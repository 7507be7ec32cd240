// Package config loads qagate settings from a YAML file and QAGATE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/qagate/qagate/pkg/audit"
	"github.com/qagate/qagate/pkg/db"
	"github.com/qagate/qagate/pkg/revision"
)

// EnvPrefix prefixes every environment override, e.g. QAGATE_DATABASE_DSN.
const EnvPrefix = "QAGATE"

// Config is the full qagate configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  db.Config       `mapstructure:"database"`
	Revisions RevisionsConfig `mapstructure:"revisions"`
	Gate      GateConfig      `mapstructure:"gate"`
	Waivers   WaiversConfig   `mapstructure:"waivers"`
	Audit     audit.Config    `mapstructure:"audit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Format string `mapstructure:"format"` // text or json
	Level  string `mapstructure:"level"`  // debug, info, warn, error
}

// RevisionsConfig selects the revision transition table.
type RevisionsConfig struct {
	Transitions string `mapstructure:"transitions"` // strict or permissive
}

// GateConfig points at the gate condition file.
type GateConfig struct {
	ConditionsFile string `mapstructure:"conditions_file"`
}

// WaiversConfig controls the expired-waiver sweeper.
type WaiversConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // 0 disables the sweeper
	DeleteExpired bool          `mapstructure:"delete_expired"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Log:       LogConfig{Format: "text", Level: "info"},
		Database:  db.DefaultConfig(),
		Revisions: RevisionsConfig{Transitions: string(revision.Strict)},
		Waivers:   WaiversConfig{SweepInterval: time.Hour},
		Audit:     audit.DefaultConfig(),
	}
}

// setDefaults registers every key so environment overrides apply even when
// the file omits them.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("database.dialect", d.Database.Dialect)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.migration_lock", d.Database.MigrationLock)
	v.SetDefault("database.log_queries", d.Database.LogQueries)
	v.SetDefault("revisions.transitions", d.Revisions.Transitions)
	v.SetDefault("gate.conditions_file", d.Gate.ConditionsFile)
	v.SetDefault("waivers.sweep_interval", d.Waivers.SweepInterval)
	v.SetDefault("waivers.delete_expired", d.Waivers.DeleteExpired)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.retention_days", d.Audit.RetentionDays)
}

// Load reads path (optional) and applies QAGATE_* environment overrides.
// Nested keys use underscores: server.addr is QAGATE_SERVER_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if _, err := revision.ParseVariant(c.Revisions.Transitions); err != nil {
		return fmt.Errorf("revisions.transitions: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: %q is invalid (valid values: text, json)", c.Log.Format)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Database.Dialect) {
	case db.DialectSQLite, db.DialectPostgres, "postgresql", db.DialectMySQL:
	default:
		return fmt.Errorf("database.dialect: %q is invalid (valid values: sqlite, postgres, mysql)", c.Database.Dialect)
	}
	if c.Waivers.SweepInterval < 0 {
		return fmt.Errorf("waivers.sweep_interval: must not be negative")
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days: must not be negative")
	}
	return nil
}

// Variant returns the configured revision transition table.
func (c *Config) Variant() revision.Variant {
	v, _ := revision.ParseVariant(c.Revisions.Transitions)
	return v
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level: %q is invalid (valid values: debug, info, warn, error)", s)
	}
}

// NewLogger builds the slog logger described by c, writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
