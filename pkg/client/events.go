package client

import (
	"fmt"
	"time"

	"github.com/vtakmakov/takmachat/internal/logger"
)

// Event is delivered on the channel returned by Events. Concrete types:
// MessageEvent, RosterChangedEvent, ConnectionLostEvent.
type Event interface {
	event()
}

// MessageEvent carries one decrypted inbound message.
type MessageEvent struct {
	From string
	Text string
	When time.Time
}

// RosterChangedEvent signals that the server pushed a roster update; the
// local contact and known-user tables have already been refreshed.
type RosterChangedEvent struct{}

// ConnectionLostEvent signals that the receive loop ended on a transport
// error. The client is no longer usable; the embedding should surface
// MsgConnectionLost and exit or reconnect.
type ConnectionLostEvent struct{}

func (MessageEvent) event()        {}
func (RosterChangedEvent) event()  {}
func (ConnectionLostEvent) event() {}

// emit delivers e without blocking the receive goroutine. The embedding
// binds a consumer before Connect; a full channel drops the event.
func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	default:
		logger.Warn("event channel full, dropping event", "event", fmt.Sprintf("%T", e))
	}
}
