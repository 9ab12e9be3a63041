package client

import (
	"errors"
	"net"
	"time"

	"github.com/vtakmakov/takmachat/internal/logger"
	"github.com/vtakmakov/takmachat/internal/protocol/jim"
	"github.com/vtakmakov/takmachat/pkg/client/store"
	"github.com/vtakmakov/takmachat/pkg/keys"
)

// receiveLoop polls the socket for pushed frames. Each iteration takes
// the socket mutex, reads with a short poll deadline so callers are
// never starved, restores the long deadline and releases before
// dispatching. Transport errors and malformed frames end the loop with
// a ConnectionLostEvent.
func (c *Client) receiveLoop() {
	defer close(c.recvDone)

	for c.running.Load() {
		c.sockMu.Lock()
		f, err := c.readFrame(c.config.PollTimeout)
		if derr := c.sock.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); derr != nil {
			logger.Debug("failed to restore read deadline", "error", derr)
		}
		c.sockMu.Unlock()

		switch {
		case err == nil:
			c.dispatch(f)
		case isPollTimeout(err):
			// Nothing arrived this tick.
		default:
			// Swap so a Disconnect-triggered close does not double as a
			// lost connection.
			if c.running.Swap(false) {
				logger.Warn("connection lost", "login", c.config.Login, "error", err)
				c.emit(ConnectionLostEvent{})
			}
			return
		}

		time.Sleep(c.config.LoopPause)
	}
}

// dispatch routes one pushed frame.
func (c *Client) dispatch(f jim.Frame) {
	if code, ok := f.Response(); ok {
		switch code {
		case jim.CodeOK:
			// Stray confirmation, nothing to do.
		case jim.CodeRosterChanged:
			c.handleRosterPush()
		case jim.CodeError:
			text, _ := f.Str(jim.KeyError)
			logger.Warn("server reported error", "error", text)
		default:
			logger.Debug("ignoring pushed reply", "code", code)
		}
		return
	}
	c.handleAction(f)
}

// handleAction processes a pushed action frame. Only inbound messages
// addressed to this login are meaningful; everything else is dropped.
func (c *Client) handleAction(f jim.Frame) {
	action, ok := f.Action()
	if !ok || action != jim.ActionMessage {
		logger.Debug("dropping unexpected frame", "action", action)
		return
	}

	to, _ := f.Str(jim.KeyTo)
	from, _ := f.Str(jim.KeyFrom)
	body, _ := f.Str(jim.KeyMessageText)
	if to != c.config.Login || from == "" {
		logger.Debug("dropping message for another login", "to", to)
		return
	}

	plain, err := keys.Decrypt(c.config.Key, body)
	if err != nil {
		logger.Warn("cannot decrypt message, dropping", "from", from, "error", err)
		return
	}

	if err := c.store.AppendHistory(from, store.DirectionIn, string(plain)); err != nil {
		logger.Warn("failed to record inbound message", "error", err)
	}
	c.emit(MessageEvent{From: from, Text: string(plain), When: time.Now()})
}

// handleRosterPush refreshes the local roster mirror after a
// {response:205} and notifies the embedding.
func (c *Client) handleRosterPush() {
	if err := c.RequestContacts(); err != nil {
		logger.Warn("contact refresh failed", "error", err)
	}
	if err := c.RequestUsers(); err != nil {
		logger.Warn("user refresh failed", "error", err)
	}
	c.emit(RosterChangedEvent{})
}

// isPollTimeout reports whether err is the poll deadline expiring rather
// than a real transport failure.
func isPollTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
