package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// minJWTSecretLen is the minimum length of the admin JWT signing secret.
const minJWTSecretLen = 32

// Validate checks the configuration for consistency. Struct tags cover
// the field-level rules; cross-field rules follow explicitly.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Database.StoreConfig().Validate(); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}

	if cfg.Admin.Enabled {
		if cfg.Admin.PasswordHash == "" {
			return fmt.Errorf("admin API enabled but admin.password_hash is empty; run 'takmachatd init'")
		}
		if len(cfg.Admin.JWTSecret) < minJWTSecretLen {
			return fmt.Errorf("admin.jwt_secret must be at least %d characters", minJWTSecretLen)
		}
	}

	return nil
}
