// Package server implements the takmachat message broker: the TCP accept
// loop, the per-connection protocol state machine, challenge/response
// authentication and message routing between authenticated sessions.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vtakmakov/takmachat/internal/logger"
	"github.com/vtakmakov/takmachat/internal/protocol/jim"
	"github.com/vtakmakov/takmachat/pkg/server/metrics"
	"github.com/vtakmakov/takmachat/pkg/server/store"
)

// ErrServerClosed is returned by control operations once the engine has
// shut down.
var ErrServerClosed = errors.New("server closed")

// Config holds the broker's listening parameters.
//
// Default values (applied by New if zero):
//   - Port: 7777
//   - MaxConnections: 100
//   - WriteTimeout: 30s
//   - ShutdownTimeout: 10s
type Config struct {
	// ListenAddress is the IP address to bind to.
	// Empty string binds to all interfaces.
	ListenAddress string

	// Port is the TCP port to listen on. Nonzero values must satisfy
	// jim.ValidPort; 0 asks the OS for an ephemeral port (tests).
	Port int

	// MaxConnections limits concurrent client connections.
	MaxConnections int

	// WriteTimeout bounds every frame write toward a client.
	WriteTimeout time.Duration

	// IdleTimeout disconnects clients that send nothing for this long.
	// Zero disables the limit.
	IdleTimeout time.Duration

	// ShutdownTimeout is the maximum duration to wait for reader
	// goroutines to drain during graceful shutdown.
	ShutdownTimeout time.Duration
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.MaxConnections == 0 {
		c.MaxConnections = 100
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// validate checks that the configuration is acceptable.
func (c *Config) validate() error {
	if c.Port != 0 && !jim.ValidPort(c.Port) {
		return fmt.Errorf("invalid port %d: must be in (1023, 65536)", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	return nil
}

// Server is the message broker. Create with New, run with Serve, stop
// with Stop. The control surface (RegisterUser, RemoveUser, ...) is safe
// for concurrent use while Serve runs; each call executes on the engine
// goroutine so operator actions serialize with routing.
type Server struct {
	config  Config
	store   *store.Store
	metrics *metrics.Metrics

	// events feeds the engine goroutine; see engine.go.
	events chan event

	// sessions and live are owned by the engine goroutine.
	sessions map[string]*conn
	live     map[*conn]struct{}

	listener      net.Listener
	listenerMu    sync.RWMutex
	listenerReady chan struct{}

	shutdown     chan struct{}
	shutdownOnce sync.Once
	engineDone   chan struct{}

	readers       sync.WaitGroup
	connCount     atomic.Int32
	connSemaphore chan struct{}
	nextConnID    atomic.Uint64
}

// New creates a broker over the given store. A nil m disables metrics.
func New(config Config, st *store.Store, m *metrics.Metrics) (*Server, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	var semaphore chan struct{}
	if config.MaxConnections > 0 {
		semaphore = make(chan struct{}, config.MaxConnections)
	}

	return &Server{
		config:        config,
		store:         st,
		metrics:       m,
		events:        make(chan event, 256),
		sessions:      make(map[string]*conn),
		live:          make(map[*conn]struct{}),
		listenerReady: make(chan struct{}),
		shutdown:      make(chan struct{}),
		engineDone:    make(chan struct{}),
		connSemaphore: semaphore,
	}, nil
}

// Serve binds the listening socket and accepts connections until the
// context is cancelled or Stop is called. It returns nil on graceful
// shutdown.
func (s *Server) Serve(ctx context.Context) error {
	listenAddr := fmt.Sprintf("%s:%d", s.config.ListenAddress, s.config.Port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.listenerReady)

	logger.Info("server listening", "addr", listener.Addr())

	go s.runEngine()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received", "error", ctx.Err())
		s.initiateShutdown()
	}()

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.awaitShutdown()
			}
		}

		sock, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			select {
			case <-s.shutdown:
				return s.awaitShutdown()
			default:
				logger.Debug("accept failed", "error", err)
				continue
			}
		}

		if tcp, ok := sock.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("failed to set TCP_NODELAY", "error", err)
			}
		}

		c := &conn{
			id:          s.nextConnID.Add(1),
			sock:        sock,
			state:       stateUnauth,
			idleTimeout: s.config.IdleTimeout,
		}

		s.connCount.Add(1)
		s.metrics.RecordConnectionOpened()
		logger.Debug("connection accepted", "conn", c.id, "addr", sock.RemoteAddr(), "active", s.connCount.Load())

		s.events <- connectEvent{c: c}

		s.readers.Add(1)
		go func() {
			defer func() {
				s.readers.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}
				s.metrics.RecordConnectionClosed()
			}()
			c.readLoop(s.events)
		}()
	}
}

// initiateShutdown closes the shutdown channel and the listener. Safe to
// call multiple times.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("listener close failed", "error", err)
			}
		}
		s.listenerMu.Unlock()
	})
}

// awaitShutdown waits for the engine to finish draining after shutdown.
func (s *Server) awaitShutdown() error {
	select {
	case <-s.engineDone:
		logger.Info("server stopped")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		return fmt.Errorf("shutdown timeout after %s", s.config.ShutdownTimeout)
	}
}

// Stop initiates graceful shutdown and waits for the engine to exit or
// the context to expire. Safe to call multiple times and concurrently
// with Serve.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()
	select {
	case <-s.engineDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListenerAddr returns the bound listener address. It blocks until the
// listener is ready, making it safe for tests binding port 0.
func (s *Server) ListenerAddr() string {
	<-s.listenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ActiveConnections returns the current number of open connections.
func (s *Server) ActiveConnections() int32 {
	return s.connCount.Load()
}
