package config

import (
	"strings"

	"github.com/vtakmakov/takmachat/internal/protocol/jim"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = jim.DefaultPort
	}

	applyDatabaseDefaults(&cfg.Database)
	applyAdminDefaults(&cfg.Admin)
	applyLoggingDefaults(&cfg.Logging)
	applyLimitsDefaults(&cfg.Limits)
}

// applyDatabaseDefaults sets server store defaults.
func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.Type == "" {
		cfg.Type = "sqlite"
	}
	if cfg.Path == "" {
		cfg.Path = "."
	}
	if cfg.File == "" {
		cfg.File = "serverdb.sqlite3"
	}
	if cfg.Type == "postgres" {
		if cfg.Postgres.Port == 0 {
			cfg.Postgres.Port = 5432
		}
		if cfg.Postgres.SSLMode == "" {
			cfg.Postgres.SSLMode = "disable"
		}
	}
}

// applyAdminDefaults sets admin API defaults. Enabled stays false until
// the operator opts in (usually via 'takmachatd init').
func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = "127.0.0.1:7780"
	}
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
}

// applyLoggingDefaults sets logging defaults and normalizes the level.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyLimitsDefaults sets resource limit defaults.
func applyLimitsDefaults(cfg *LimitsConfig) {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 100
	}
	// IdleTimeout defaults to 0: idle clients stay connected.
}

// GetDefaultConfig returns a Config with all default values applied.
// Useful for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
