package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these consistently
// across the server, client, and admin API so log lines can be grepped
// and aggregated by key.
const (
	// Accounts and sessions
	KeyLogin = "login" // account name bound to a connection
	KeyPeer  = "peer"  // the other account in a message exchange
	KeyState = "state" // connection protocol state

	// Wire protocol
	KeyAction   = "action"   // request action code (presence, message, ...)
	KeyResponse = "response" // numeric response code (200, 400, ...)
	KeyFrameLen = "frame_len"

	// Transport
	KeyAddr       = "addr"        // remote address as host:port
	KeyListenAddr = "listen_addr" // local bind address
	KeyPort       = "port"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAttempt    = "attempt"
)

// Login returns a slog.Attr for an account name.
func Login(login string) slog.Attr {
	return slog.String(KeyLogin, login)
}

// Peer returns a slog.Attr for the peer account in an exchange.
func Peer(login string) slog.Attr {
	return slog.String(KeyPeer, login)
}

// Action returns a slog.Attr for a protocol action code.
func Action(action string) slog.Attr {
	return slog.String(KeyAction, action)
}

// Response returns a slog.Attr for a numeric response code.
func Response(code int) slog.Attr {
	return slog.Int(KeyResponse, code)
}

// Addr returns a slog.Attr for a remote address.
func Addr(addr string) slog.Attr {
	return slog.String(KeyAddr, addr)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or an empty attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
