// Package client implements the takmachat client networking core: the
// connection lifecycle, the client side of the JSON frame protocol, the
// per-login local store and event delivery to an embedding UI.
//
// The core is UI-agnostic. An embedding creates a Client over an open
// local store, consumes Events, and drives it through the request
// methods; message bodies cross the wire RSA-encrypted and reach the
// embedding as plaintext.
package client

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vtakmakov/takmachat/internal/logger"
	"github.com/vtakmakov/takmachat/internal/protocol/jim"
	"github.com/vtakmakov/takmachat/pkg/client/store"
	"github.com/vtakmakov/takmachat/pkg/keys"
)

// Config holds the client's identity and timing parameters.
//
// Default values (applied by New if zero):
//   - Port: 7777
//   - DialAttempts: 5
//   - DialRetryDelay: 1s
//   - DialTimeout: 5s
//   - ReadTimeout: 5s
//   - PollTimeout: 500ms
//   - LoopPause: 1s
//   - EventBuffer: 16
type Config struct {
	// Address is the server host. Empty means localhost.
	Address string

	// Port is the server TCP port. Must satisfy jim.ValidPort.
	Port int

	// Login is this client's account name.
	Login string

	// PasswordHash is the PBKDF2 credential from keys.PasswordHash. The
	// plaintext password never reaches this package.
	PasswordHash string

	// Key is the client's RSA keypair. The public half goes out with
	// presence; the private half decrypts inbound message bodies.
	Key *rsa.PrivateKey

	// DialAttempts is how many times Connect tries to reach the server
	// before giving up.
	DialAttempts int

	// DialRetryDelay separates consecutive dial attempts.
	DialRetryDelay time.Duration

	// DialTimeout bounds each individual dial.
	DialTimeout time.Duration

	// ReadTimeout bounds reads that expect a reply.
	ReadTimeout time.Duration

	// PollTimeout is the short read deadline the receive loop uses while
	// holding the socket, so callers are never starved.
	PollTimeout time.Duration

	// LoopPause separates receive-loop iterations.
	LoopPause time.Duration

	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = jim.DefaultPort
	}
	if c.DialAttempts == 0 {
		c.DialAttempts = 5
	}
	if c.DialRetryDelay == 0 {
		c.DialRetryDelay = time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 500 * time.Millisecond
	}
	if c.LoopPause == 0 {
		c.LoopPause = time.Second
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 16
	}
}

// validate checks that the configuration is acceptable.
func (c *Config) validate() error {
	if !jim.ValidPort(c.Port) {
		return fmt.Errorf("invalid port %d: must be in (1023, 65536)", c.Port)
	}
	if c.Login == "" {
		return fmt.Errorf("login must not be empty")
	}
	if c.PasswordHash == "" {
		return fmt.Errorf("password hash must not be empty")
	}
	if c.Key == nil {
		return fmt.Errorf("rsa key must not be nil")
	}
	return nil
}

// Client is the networking core for one login. Create with New, start
// with Connect, stop with Disconnect. Request methods are safe for
// concurrent use with each other and with the receive loop: a mutex
// serialises access to the socket.
type Client struct {
	config Config
	store  *store.Store
	pubPEM string

	sockMu sync.Mutex
	sock   net.Conn

	running  atomic.Bool
	events   chan Event
	recvDone chan struct{}
}

// New creates a client over an open local store.
func New(config Config, st *store.Store) (*Client, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	pubPEM, err := keys.PublicKeyPEM(&config.Key.PublicKey)
	if err != nil {
		return nil, err
	}

	return &Client{
		config:   config,
		store:    st,
		pubPEM:   pubPEM,
		events:   make(chan Event, config.EventBuffer),
		recvDone: make(chan struct{}),
	}, nil
}

// Events returns the channel the receive goroutine delivers events on.
// Bind a consumer before Connect; a full channel drops events.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connect dials the server, authenticates and populates the local store,
// then starts the receive goroutine. Connection-level failures come back
// as *ServerError with a user-facing text.
func (c *Client) Connect(ctx context.Context) error {
	sock, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.sock = sock

	if err := c.authenticate(); err != nil {
		_ = sock.Close()
		c.sock = nil
		return err
	}

	logger.Info("authenticated", "login", c.config.Login, "server", sock.RemoteAddr())

	// The store must hold the server's roster before the UI starts; a
	// dead socket here means the connection never really came up.
	if err := c.RequestContacts(); err != nil {
		logger.Error("initial contact fetch failed", "error", err)
		_ = sock.Close()
		c.sock = nil
		return err
	}
	if err := c.RequestUsers(); err != nil {
		logger.Error("initial user fetch failed", "error", err)
		_ = sock.Close()
		c.sock = nil
		return err
	}

	c.running.Store(true)
	go c.receiveLoop()

	return nil
}

// dial tries to reach the server, retrying on failure.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", c.config.Address, c.config.Port)

	for attempt := 1; attempt <= c.config.DialAttempts; attempt++ {
		sock, err := net.DialTimeout("tcp", addr, c.config.DialTimeout)
		if err == nil {
			if tcp, ok := sock.(*net.TCPConn); ok {
				if err := tcp.SetNoDelay(true); err != nil {
					logger.Debug("failed to set TCP_NODELAY", "error", err)
				}
			}
			return sock, nil
		}

		logger.Debug("dial failed", "addr", addr, "attempt", attempt, "error", err)

		if attempt == c.config.DialAttempts {
			break
		}
		select {
		case <-time.After(c.config.DialRetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, serverErr(MsgConnectFailed)
}

// authenticate runs the presence / challenge / answer exchange.
func (c *Client) authenticate() error {
	if err := c.writeFrame(jim.NewPresence(c.config.Login, c.pubPEM)); err != nil {
		return serverErr(MsgAuthConnectionLost)
	}

	reply, err := c.readFrame(c.config.ReadTimeout)
	if err != nil {
		return serverErr(MsgAuthConnectionLost)
	}
	if err := replyError(reply); err != nil {
		return err
	}

	code, _ := reply.Response()
	if code != jim.CodeAuth {
		return serverErr(fmt.Sprintf("unexpected reply %v to presence", reply))
	}
	challenge, ok := reply.Str(jim.KeyData)
	if !ok {
		return serverErr("challenge frame without bin field")
	}

	answer := keys.ChallengeAnswer(c.config.PasswordHash, challenge)
	if err := c.writeFrame(jim.NewAuth(answer)); err != nil {
		return serverErr(MsgAuthConnectionLost)
	}

	reply, err = c.readFrame(c.config.ReadTimeout)
	if err != nil {
		return serverErr(MsgAuthConnectionLost)
	}
	if err := replyError(reply); err != nil {
		return err
	}
	if code, _ := reply.Response(); code != jim.CodeOK {
		return serverErr(fmt.Sprintf("unexpected reply %v to challenge answer", reply))
	}
	return nil
}

// Disconnect stops the receive loop and closes the connection. The exit
// frame is best effort: the socket closes regardless. Safe to call after
// a lost connection and more than once.
func (c *Client) Disconnect() {
	wasRunning := c.running.Swap(false)

	if c.sock == nil {
		return
	}

	c.sockMu.Lock()
	if err := jim.WriteFrame(c.sock, jim.NewExit(c.config.Login)); err != nil {
		logger.Debug("exit frame write failed", "error", err)
	}
	c.sockMu.Unlock()

	// Give the server a moment to read the exit frame before the close
	// tears the stream down.
	time.Sleep(100 * time.Millisecond)
	_ = c.sock.Close()

	if wasRunning {
		<-c.recvDone
	}
	logger.Info("disconnected", "login", c.config.Login)
}

// Contacts returns the local contact list.
func (c *Client) Contacts() ([]string, error) {
	return c.store.Contacts()
}

// KnownUsers returns the mirrored server roster.
func (c *Client) KnownUsers() ([]string, error) {
	return c.store.KnownUsers()
}

// HistoryWith returns the stored conversation with peer.
func (c *Client) HistoryWith(peer string) ([]*store.HistoryEntry, error) {
	return c.store.HistoryWith(peer)
}

// writeFrame sends one frame. Callers hold sockMu or run before the
// receive loop starts.
func (c *Client) writeFrame(f jim.Frame) error {
	return jim.WriteFrame(c.sock, f)
}

// readFrame reads one frame under the given deadline.
func (c *Client) readFrame(timeout time.Duration) (jim.Frame, error) {
	if err := c.sock.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	return jim.ReadFrame(c.sock)
}

// replyError converts a {response:400} frame into a *ServerError.
func replyError(f jim.Frame) error {
	code, ok := f.Response()
	if !ok || code != jim.CodeError {
		return nil
	}
	text, _ := f.Str(jim.KeyError)
	return serverErr(text)
}
