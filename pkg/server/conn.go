package server

import (
	"net"
	"strconv"
	"time"

	"github.com/vtakmakov/takmachat/internal/logger"
	"github.com/vtakmakov/takmachat/internal/protocol/jim"
)

// connState is the per-connection protocol stage.
type connState int

const (
	stateUnauth connState = iota
	stateChallengeSent
	stateAuthenticated
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateUnauth:
		return "UNAUTH"
	case stateChallengeSent:
		return "CHALLENGE_SENT"
	case stateAuthenticated:
		return "AUTHENTICATED"
	case stateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// conn is one client connection. All fields except sock are owned by the
// engine goroutine; the reader goroutine only reads frames from the socket
// and forwards them as events. Closing sock is safe from either side and
// is how the engine interrupts a blocked reader.
type conn struct {
	id   uint64
	sock net.Conn

	state connState

	// login is bound at presence time and confirmed at challenge time.
	login string

	// challenge is the outstanding hex challenge while CHALLENGE_SENT.
	challenge string

	// pendingKey is the public key PEM announced in the presence frame,
	// persisted once the challenge is answered correctly.
	pendingKey string

	// idleTimeout bounds the gap between frames; zero means no limit.
	idleTimeout time.Duration
}

// peerAddr splits the remote address into host and numeric port.
func (c *conn) peerAddr() (string, int) {
	host, portStr, err := net.SplitHostPort(c.sock.RemoteAddr().String())
	if err != nil {
		return c.sock.RemoteAddr().String(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// readLoop reads frames until the socket fails and forwards each one to
// the engine. It runs on its own goroutine, one per connection. The
// terminating error (EOF included) is reported as a disconnect event;
// the engine decides whether the conn is still live.
func (c *conn) readLoop(events chan<- event) {
	for {
		if c.idleTimeout > 0 {
			if err := c.sock.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
				events <- disconnectEvent{c: c, err: err}
				return
			}
		}
		frame, err := jim.ReadFrame(c.sock)
		if err != nil {
			events <- disconnectEvent{c: c, err: err}
			return
		}
		events <- frameEvent{c: c, frame: frame}
	}
}

// writeFrame sends one frame to the client with a bounded deadline.
// A failed write means the connection is unusable; callers evict.
func (c *conn) writeFrame(f jim.Frame, timeout time.Duration) error {
	if timeout > 0 {
		if err := c.sock.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	if err := jim.WriteFrame(c.sock, f); err != nil {
		return err
	}
	if timeout > 0 {
		if err := c.sock.SetWriteDeadline(time.Time{}); err != nil {
			logger.Debug("failed to clear write deadline", "conn", c.id, "error", err)
		}
	}
	return nil
}
