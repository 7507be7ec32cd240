package audit

// Config controls audit behavior.
type Config struct {
	Enabled       bool `mapstructure:"enabled"`        // Whether services record events
	RetentionDays int  `mapstructure:"retention_days"` // Default 90; 0 disables the retention worker
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		RetentionDays: 90,
	}
}
