// Package config loads the takmachat server daemon configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (TAKMACHAT_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vtakmakov/takmachat/pkg/server/store"
)

// Config represents the takmachat server configuration.
type Config struct {
	// ListenAddress is the IP address the broker binds to.
	// Empty string binds to all interfaces.
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`

	// Port is the broker's TCP port. Must be in (1023, 65536).
	Port int `mapstructure:"port" validate:"required,gt=1023,lt=65536" yaml:"port"`

	// Database configures the server store (SQLite or PostgreSQL).
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Admin configures the operator HTTP API.
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Limits bounds per-server resource usage.
	Limits LimitsConfig `mapstructure:"limits" yaml:"limits"`
}

// DatabaseConfig selects and configures the server store backend. The
// SQLite file lives at <path>/<file>.
type DatabaseConfig struct {
	// Path is the directory holding the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`

	// File is the SQLite database file name.
	File string `mapstructure:"file" yaml:"file"`

	// Type selects the backend: "sqlite" (default) or "postgres".
	Type string `mapstructure:"type" validate:"omitempty,oneof=sqlite postgres" yaml:"type"`

	// Postgres holds the connection parameters when Type is "postgres".
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres,omitempty"`
}

// PostgresConfig contains PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode,omitempty"`
}

// StoreConfig converts the database section into the store's own
// configuration type.
func (c *DatabaseConfig) StoreConfig() *store.Config {
	return &store.Config{
		Type: store.DatabaseType(c.Type),
		SQLite: store.SQLiteConfig{
			Path: filepath.Join(c.Path, c.File),
		},
		Postgres: store.PostgresConfig{
			Host:     c.Postgres.Host,
			Port:     c.Postgres.Port,
			User:     c.Postgres.User,
			Password: c.Postgres.Password,
			Database: c.Postgres.DBName,
			SSLMode:  c.Postgres.SSLMode,
		},
	}
}

// AdminConfig configures the operator HTTP API. The API is
// loopback-oriented: it serves registration, removal and statistics to
// takmachatctl.
type AdminConfig struct {
	// Enabled controls whether the admin API is served at all.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddress is the host:port the admin API binds to.
	// Default: 127.0.0.1:7780
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`

	// Username is the operator login name.
	Username string `mapstructure:"username" yaml:"username"`

	// PasswordHash is the bcrypt hash of the operator password,
	// written by 'takmachatd init'.
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash,omitempty"`

	// JWTSecret signs admin API tokens. At least 32 characters.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is where logs go: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// LimitsConfig bounds per-server resource usage.
type LimitsConfig struct {
	// MaxConnections caps concurrent client connections. Default: 100.
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// IdleTimeout disconnects clients that send nothing for this long.
	// Zero (the default) disables the limit.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file
// is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  takmachatd init\n\n"+
				"Or specify a custom config file:\n"+
				"  takmachatd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  takmachatd init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to path as YAML. The file is
// created with owner-only permissions: it carries the operator password
// hash and the JWT secret.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variables and config file lookup.
// Environment variables use the TAKMACHAT_ prefix with underscores, for
// example TAKMACHAT_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("TAKMACHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is acceptable: defaults apply.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the combined decode hook for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s" or "5m" to
// time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path. Uses
// XDG_CONFIG_HOME if set, otherwise ~/.config, falling back to the
// current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "takmachat")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "takmachat")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
