package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vtakmakov/takmachat/internal/logger"
	"github.com/vtakmakov/takmachat/pkg/admin"
	"github.com/vtakmakov/takmachat/pkg/config"
	"github.com/vtakmakov/takmachat/pkg/server"
	"github.com/vtakmakov/takmachat/pkg/server/metrics"
	"github.com/vtakmakov/takmachat/pkg/server/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the takmachat broker",
	Long: `Start the takmachat message broker with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/takmachat/config.yaml. A .env file
in the working directory is loaded before the config is read, so every
TAKMACHAT_* override can live there.

Examples:
  # Start with default config location
  takmachatd start

  # Start with custom config file
  takmachatd start --config /etc/takmachat/config.yaml

  # Start with environment variable overrides
  TAKMACHAT_LOGGING_LEVEL=DEBUG takmachatd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("configuration loaded", "source", configSource(GetConfigFile()))

	st, err := store.New(cfg.Database.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to open server store: %w", err)
	}
	defer func() { _ = st.Close() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	broker, err := server.New(server.Config{
		ListenAddress:  cfg.ListenAddress,
		Port:           cfg.Port,
		MaxConnections: cfg.Limits.MaxConnections,
		IdleTimeout:    cfg.Limits.IdleTimeout,
	}, st, m)
	if err != nil {
		return fmt.Errorf("failed to create broker: %w", err)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- broker.Serve(ctx)
	}()

	adminDone := make(chan error, 1)
	if cfg.Admin.Enabled {
		adminServer, err := admin.NewServer(admin.Config{
			ListenAddress: cfg.Admin.ListenAddress,
			Username:      cfg.Admin.Username,
			PasswordHash:  cfg.Admin.PasswordHash,
			JWTSecret:     cfg.Admin.JWTSecret,
		}, broker, registry)
		if err != nil {
			return fmt.Errorf("failed to create admin API: %w", err)
		}
		go func() {
			adminDone <- adminServer.Start(ctx)
		}()
	} else {
		logger.Info("admin API disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("broker shutdown error", "error", err)
			return err
		}
		logger.Info("server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		cancel()
		if err != nil {
			logger.Error("broker error", "error", err)
			return err
		}
		logger.Info("server stopped")

	case err := <-adminDone:
		signal.Stop(sigChan)
		cancel()
		<-serverDone
		if err != nil {
			logger.Error("admin API error", "error", err)
			return err
		}
	}

	return nil
}

// configSource describes where the config was loaded from.
func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
