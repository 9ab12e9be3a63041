// Package admin exposes the takmachat operator surface as a
// loopback-oriented REST API: account registration and removal, password
// resets, live sessions, login history and message counters. It fronts
// the broker's control surface; every mutation goes through the engine
// goroutine, so evictions and roster broadcasts stay ordered with
// message routing.
package admin

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vtakmakov/takmachat/internal/logger"
	"github.com/vtakmakov/takmachat/pkg/server"
)

// Config holds the admin API server settings.
type Config struct {
	// ListenAddress is the host:port to bind. Default: 127.0.0.1:7780.
	ListenAddress string

	// Username is the operator login name.
	Username string

	// PasswordHash is the bcrypt hash of the operator password.
	PasswordHash string

	// JWTSecret signs API tokens. At least 32 characters.
	JWTSecret string

	// HTTP server timeouts.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = "127.0.0.1:7780"
	}
	if c.Username == "" {
		c.Username = "admin"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// Server is the admin HTTP server. Create with NewServer, run with
// Start, stop with Stop.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// NewServer creates the admin API server over the broker's control
// surface. A nil registry serves the default Prometheus gatherer on
// /metrics.
func NewServer(config Config, broker *server.Server, registry *prometheus.Registry) (*Server, error) {
	config.applyDefaults()

	router, err := NewRouter(config, broker, registry)
	if err != nil {
		return nil, err
	}

	return &Server{
		server: &http.Server{
			Addr:         config.ListenAddress,
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
	}, nil
}

// NewRouter builds the chi router with all middleware and routes. It is
// exported so tests can serve the API through httptest.
func NewRouter(config Config, broker *server.Server, registry *prometheus.Registry) (http.Handler, error) {
	config.applyDefaults()

	jwtService, err := NewJWTService(JWTConfig{Secret: config.JWTSecret})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	h := &handler{
		broker:       broker,
		jwt:          jwtService,
		username:     config.Username,
		passwordHash: config.PasswordHash,
	}

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Unauthenticated probes.
	r.Get("/health", h.Health)
	r.Handle("/metrics", metricsHandler(registry))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", h.Login)
		r.Post("/auth/refresh", h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth(jwtService))

			r.Get("/users", h.ListUsers)
			r.Post("/users", h.CreateUser)
			r.Delete("/users/{login}", h.DeleteUser)
			r.Post("/users/{login}/password", h.ResetPassword)

			r.Get("/sessions", h.Sessions)
			r.Get("/history", h.History)
			r.Get("/counters", h.Counters)
		})
	})

	return r, nil
}

// metricsHandler serves the Prometheus exposition format.
func metricsHandler(registry *prometheus.Registry) http.Handler {
	if registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Start runs the server and blocks until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("admin API listening", "addr", s.config.ListenAddress)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("admin API shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("admin API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("admin API shutdown error: %w", err)
			logger.Error("admin API shutdown error", "error", err)
		} else {
			logger.Info("admin API stopped")
		}
	})
	return shutdownErr
}
