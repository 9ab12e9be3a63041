package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/vtakmakov/takmachat/internal/cli/prompt"
	"github.com/vtakmakov/takmachat/pkg/config"
)

var (
	initForce   bool
	initNoAdmin bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a takmachatd configuration file.

By default the file is created at $XDG_CONFIG_HOME/takmachat/config.yaml.
Unless --no-admin is given, an operator password is prompted and stored
as a bcrypt hash, and a random JWT secret is generated for the admin API.

Examples:
  # Initialize with default location
  takmachatd init

  # Initialize with custom path
  takmachatd init --config /etc/takmachat/config.yaml

  # Broker only, no admin API
  takmachatd init --no-admin`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().BoolVar(&initNoAdmin, "no-admin", false, "Disable the admin API in the generated config")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()

	port, err := prompt.InputPort("Broker port", cfg.Port)
	if err != nil {
		if prompt.IsAborted(err) {
			return fmt.Errorf("aborted")
		}
		return err
	}
	cfg.Port = port

	if initNoAdmin {
		cfg.Admin.Enabled = false
	} else {
		password, err := prompt.PasswordWithConfirmation("Operator password", "Confirm password", 8)
		if err != nil {
			if prompt.IsAborted(err) {
				return fmt.Errorf("aborted")
			}
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash operator password: %w", err)
		}

		secret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("failed to generate JWT secret: %w", err)
		}

		cfg.Admin.Enabled = true
		cfg.Admin.PasswordHash = string(hash)
		cfg.Admin.JWTSecret = secret
	}

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: takmachatd start")
	fmt.Printf("  3. Or specify custom config: takmachatd start --config %s\n", configPath)
	if !initNoAdmin {
		fmt.Println("\nSecurity note:")
		fmt.Println("  A random JWT secret has been generated. To rotate it, use an")
		fmt.Println("  environment variable instead of the file:")
		fmt.Println("    export TAKMACHAT_ADMIN_JWT_SECRET=$(openssl rand -hex 32)")
	}

	return nil
}

// randomSecret returns 32 random bytes hex-encoded (64 characters).
func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
