package server

import (
	"context"
	"errors"
	"time"

	"github.com/vtakmakov/takmachat/internal/logger"
	"github.com/vtakmakov/takmachat/internal/protocol/jim"
	"github.com/vtakmakov/takmachat/pkg/keys"
	"github.com/vtakmakov/takmachat/pkg/server/metrics"
	"github.com/vtakmakov/takmachat/pkg/server/store"
)

// The engine goroutine owns the session table, every conn's protocol
// state and all store writes. Reader goroutines and the control surface
// talk to it exclusively through the event channel, so routing and
// broadcasts are totally ordered and no lock guards server state.

// event is one unit of work for the engine goroutine.
type event interface{}

// connectEvent announces an accepted connection.
type connectEvent struct {
	c *conn
}

// frameEvent carries one decoded frame from a reader goroutine.
type frameEvent struct {
	c     *conn
	frame jim.Frame
}

// disconnectEvent reports a reader's terminating error.
type disconnectEvent struct {
	c   *conn
	err error
}

// controlEvent runs an operator closure on the engine goroutine.
type controlEvent struct {
	fn func()
}

// runEngine is the engine goroutine body. It processes events until the
// shutdown channel closes, then closes every socket and keeps draining
// events so no reader blocks on its way out.
func (s *Server) runEngine() {
	defer close(s.engineDone)

	for {
		select {
		case ev := <-s.events:
			s.handleEvent(ev)
		case <-s.shutdown:
			for c := range s.live {
				_ = c.sock.Close()
			}
			s.drainEvents()
			return
		}
	}
}

// drainEvents consumes leftover events until every reader goroutine has
// exited.
func (s *Server) drainEvents() {
	readersDone := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(readersDone)
	}()
	for {
		select {
		case <-s.events:
		case <-readersDone:
			return
		}
	}
}

// handleEvent dispatches one event on the engine goroutine.
func (s *Server) handleEvent(ev event) {
	switch e := ev.(type) {
	case connectEvent:
		s.live[e.c] = struct{}{}
	case frameEvent:
		if _, ok := s.live[e.c]; !ok {
			return // already evicted, frame raced the eviction
		}
		s.handleFrame(e.c, e.frame)
	case disconnectEvent:
		if _, ok := s.live[e.c]; !ok {
			return
		}
		logger.Debug("connection dropped", "conn", e.c.id, "state", e.c.state, "error", e.err)
		s.evict(e.c)
	case controlEvent:
		e.fn()
	}
}

// handleFrame advances one connection's protocol state machine.
func (s *Server) handleFrame(c *conn, f jim.Frame) {
	switch c.state {
	case stateUnauth:
		if action, ok := f.Action(); ok && action == jim.ActionPresence && f.Has(jim.KeyTime) {
			s.handlePresence(c, f)
			return
		}
		// Anything but a presence before authentication drops the
		// connection without a reply.
		logger.Debug("non-presence frame before auth", "conn", c.id)
		s.evict(c)

	case stateChallengeSent:
		s.handleChallengeAnswer(c, f)

	case stateAuthenticated:
		s.handleAuthenticated(c, f)

	case stateClosed:
		// Frame raced the close; drop it.
	}
}

// handlePresence starts the challenge/response exchange.
func (s *Server) handlePresence(c *conn, f jim.Frame) {
	user, ok := f.User()
	if !ok {
		s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
		return
	}
	login, ok := user.Str(jim.KeyAccountName)
	if !ok || login == "" {
		s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
		return
	}
	pubkey, _ := user.Str(jim.KeyPublicKey)

	if _, taken := s.sessions[login]; taken {
		logger.Warn("presence for a name already online", "login", login, "conn", c.id)
		s.metrics.RecordAuth(metrics.AuthResultNameTaken)
		_ = c.writeFrame(jim.NewError(jim.ErrTextNameTaken), s.config.WriteTimeout)
		s.evict(c)
		return
	}

	registered, err := s.store.UserExists(context.Background(), login)
	if err != nil {
		logger.Error("user lookup failed", "login", login, "error", err)
		s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
		return
	}
	if !registered {
		// The connection stays open: the operator may register the
		// name while the client retries.
		logger.Warn("presence for unregistered name", "login", login, "conn", c.id)
		s.metrics.RecordAuth(metrics.AuthResultNotRegistered)
		s.replyOrEvict(c, jim.NewError(jim.ErrTextNotRegistered))
		return
	}

	challenge, err := keys.NewChallenge()
	if err != nil {
		logger.Error("challenge generation failed", "error", err)
		s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
		return
	}

	c.login = login
	c.challenge = challenge
	c.pendingKey = pubkey
	c.state = stateChallengeSent

	logger.Debug("challenge sent", "login", login, "conn", c.id)
	s.replyOrEvict(c, jim.NewAuth(challenge))
}

// handleChallengeAnswer verifies the HMAC reply to an outstanding
// challenge. Anything but a correct {response:511, bin} closes the
// connection with a bad-password error.
func (s *Server) handleChallengeAnswer(c *conn, f jim.Frame) {
	fail := func() {
		s.metrics.RecordAuth(metrics.AuthResultBadPassword)
		_ = c.writeFrame(jim.NewError(jim.ErrTextBadPassword), s.config.WriteTimeout)
		s.evict(c)
	}

	code, ok := f.Response()
	if !ok || code != jim.CodeAuth {
		fail()
		return
	}
	answer, ok := f.Str(jim.KeyData)
	if !ok {
		fail()
		return
	}

	user, err := s.store.GetUser(context.Background(), c.login)
	if err != nil {
		logger.Error("credential lookup failed", "login", c.login, "error", err)
		fail()
		return
	}
	if !keys.VerifyAnswer(user.PasswordHash, c.challenge, answer) {
		logger.Warn("bad password", "login", c.login, "conn", c.id)
		fail()
		return
	}

	// Another connection may have finished authenticating this login
	// while the challenge was outstanding; the presence-time check
	// alone cannot see that interleaving.
	if _, taken := s.sessions[c.login]; taken {
		logger.Warn("login taken during challenge", "login", c.login, "conn", c.id)
		s.metrics.RecordAuth(metrics.AuthResultNameTaken)
		_ = c.writeFrame(jim.NewError(jim.ErrTextNameTaken), s.config.WriteTimeout)
		s.evict(c)
		return
	}

	host, port := c.peerAddr()
	now := time.Now()
	ctx := context.Background()
	if err := s.store.OpenSession(ctx, c.login, host, port, now); err != nil {
		logger.Error("session record failed", "login", c.login, "error", err)
		fail()
		return
	}
	if err := s.store.SetPublicKey(ctx, c.login, c.pendingKey); err != nil {
		logger.Error("public key update failed", "login", c.login, "error", err)
	}

	c.state = stateAuthenticated
	c.challenge = ""
	s.sessions[c.login] = c
	s.metrics.RecordAuth(metrics.AuthResultOK)
	s.metrics.SetActiveSessions(len(s.sessions))

	logger.Info("user authenticated", "login", c.login, "addr", host, "port", port)
	s.replyOrEvict(c, jim.NewResponse(jim.CodeOK))
}

// handleAuthenticated dispatches one frame on a logged-in connection.
// Every request's claimed identity must resolve to this very connection
// in the session table; a mismatch is answered like any malformed frame.
func (s *Server) handleAuthenticated(c *conn, f jim.Frame) {
	action, ok := f.Action()
	if !ok {
		s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
		return
	}
	s.metrics.RecordFrame(action)

	switch action {
	case jim.ActionMessage:
		from, okFrom := f.Str(jim.KeyFrom)
		_, okTo := f.Str(jim.KeyTo)
		if !okFrom || !okTo || !f.Has(jim.KeyMessageText) || !f.Has(jim.KeyTime) || s.sessions[from] != c {
			s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
			return
		}
		s.routeMessage(c, f)

	case jim.ActionExit:
		s.evict(c)

	case jim.ActionGetContacts:
		owner, ok := f.UserName()
		if !ok || s.sessions[owner] != c {
			s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
			return
		}
		contacts, err := s.store.ListContacts(context.Background(), owner)
		if err != nil {
			logger.Error("contact list failed", "login", owner, "error", err)
			s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
			return
		}
		s.replyOrEvict(c, jim.NewList(contacts))

	case jim.ActionGetUsers:
		claimant, ok := f.Str(jim.KeyAccountName)
		if !ok || s.sessions[claimant] != c {
			s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
			return
		}
		logins, err := s.store.ListLogins(context.Background())
		if err != nil {
			logger.Error("user list failed", "error", err)
			s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
			return
		}
		s.replyOrEvict(c, jim.NewList(logins))

	case jim.ActionAddContact:
		owner, okOwner := f.UserName()
		contact, okContact := f.Str(jim.KeyAccountName)
		if !okOwner || !okContact || s.sessions[owner] != c {
			s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
			return
		}
		// The contact is not checked against the registry; the roster
		// may hold names the server has never seen.
		if err := s.store.AddContact(context.Background(), owner, contact); err != nil {
			logger.Error("add contact failed", "login", owner, "contact", contact, "error", err)
		}
		s.replyOrEvict(c, jim.NewResponse(jim.CodeOK))

	case jim.ActionDelContact:
		owner, okOwner := f.UserName()
		contact, okContact := f.Str(jim.KeyAccountName)
		if !okOwner || !okContact || s.sessions[owner] != c {
			s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
			return
		}
		if err := s.store.RemoveContact(context.Background(), owner, contact); err != nil {
			logger.Error("remove contact failed", "login", owner, "contact", contact, "error", err)
		}
		s.replyOrEvict(c, jim.NewResponse(jim.CodeOK))

	case jim.ActionPublicKeyReq:
		// The account_name here is the lookup target, not the claimant,
		// so no identity check applies.
		target, ok := f.Str(jim.KeyAccountName)
		if !ok {
			s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
			return
		}
		pem, err := s.store.PublicKey(context.Background(), target)
		if err != nil && !errors.Is(err, store.ErrUserNotFound) {
			logger.Error("public key lookup failed", "target", target, "error", err)
		}
		if pem == "" {
			s.replyOrEvict(c, jim.NewError(jim.ErrTextNoPublicKey))
			return
		}
		s.replyOrEvict(c, jim.NewAuth(pem))

	default:
		// Includes a repeated presence on a logged-in connection.
		s.replyOrEvict(c, jim.NewError(jim.ErrTextBadRequest))
	}
}

// routeMessage forwards a message frame verbatim to the recipient's
// session. The sender gets 200 once the message is on its way; a dead
// recipient socket evicts the recipient but does not fail the sender.
func (s *Server) routeMessage(c *conn, f jim.Frame) {
	from, _ := f.Str(jim.KeyFrom)
	to, _ := f.Str(jim.KeyTo)

	target, online := s.sessions[to]
	if !online {
		// Offline and unknown recipients are indistinguishable on the
		// wire; the error text is part of the protocol.
		s.metrics.RecordMessageDropped()
		s.replyOrEvict(c, jim.NewError(jim.ErrTextUserOffline))
		return
	}

	if err := target.writeFrame(f, s.config.WriteTimeout); err != nil {
		logger.Warn("recipient write failed, evicting", "login", to, "error", err)
		s.evict(target)
	}
	if err := s.store.RecordMessage(context.Background(), from, to); err != nil {
		logger.Error("counter update failed", "from", from, "to", to, "error", err)
	}
	s.metrics.RecordMessageRouted()
	logger.Debug("message routed", "from", from, "to", to)
	s.replyOrEvict(c, jim.NewResponse(jim.CodeOK))
}

// replyOrEvict writes one frame to c and evicts it when the write fails.
func (s *Server) replyOrEvict(c *conn, f jim.Frame) {
	if err := c.writeFrame(f, s.config.WriteTimeout); err != nil {
		logger.Debug("reply write failed", "conn", c.id, "error", err)
		s.evict(c)
	}
}

// evict removes a connection: session table, ActiveSession row, socket.
// Safe to call for connections in any state; repeated eviction is a
// no-op because the conn leaves the live set on the first call.
func (s *Server) evict(c *conn) {
	if _, ok := s.live[c]; !ok {
		return
	}
	delete(s.live, c)

	if c.state == stateAuthenticated {
		// Only the connection the session table maps to may tear the
		// entry down; an evicted duplicate must not take the live
		// session's entry and DB row with it.
		if cur, ok := s.sessions[c.login]; ok && cur == c {
			delete(s.sessions, c.login)
			if err := s.store.CloseSession(context.Background(), c.login); err != nil {
				logger.Error("session row delete failed", "login", c.login, "error", err)
			}
			s.metrics.SetActiveSessions(len(s.sessions))
			logger.Info("user disconnected", "login", c.login)
		}
	}

	c.state = stateClosed
	_ = c.sock.Close()
}

// broadcastRosterChanged sends {response:205} to every authenticated
// session so clients refresh their rosters. A failed write evicts the
// stale session.
func (s *Server) broadcastRosterChanged() {
	s.metrics.RecordBroadcast()
	for login, c := range s.sessions {
		if err := c.writeFrame(jim.NewResponse(jim.CodeRosterChanged), s.config.WriteTimeout); err != nil {
			logger.Warn("broadcast write failed, evicting", "login", login, "error", err)
			s.evict(c)
		}
	}
}
