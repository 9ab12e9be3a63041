package server

import (
	"context"

	"github.com/vtakmakov/takmachat/pkg/server/store"
)

// Operator control surface. Every operation executes on the engine
// goroutine so that evictions and roster broadcasts serialize with
// message routing. The admin API and the ctl are the callers.

// run schedules fn on the engine goroutine and waits for it.
func (s *Server) run(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := controlEvent{fn: func() {
		defer close(done)
		fn()
	}}

	select {
	case s.events <- wrapped:
	case <-s.engineDone:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-s.engineDone:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterUser creates an account from a login and its derived password
// hash (see keys.PasswordHash).
func (s *Server) RegisterUser(ctx context.Context, login, passwordHash string) error {
	var err error
	if runErr := s.run(ctx, func() {
		err = s.store.RegisterUser(ctx, login, passwordHash)
	}); runErr != nil {
		return runErr
	}
	return err
}

// RemoveUser deletes an account and everything referencing it, evicts
// its live session if any, and broadcasts a roster refresh to everyone
// still connected.
func (s *Server) RemoveUser(ctx context.Context, login string) error {
	var err error
	if runErr := s.run(ctx, func() {
		if c, online := s.sessions[login]; online {
			s.evict(c)
		}
		if err = s.store.RemoveUser(ctx, login); err != nil {
			return
		}
		s.broadcastRosterChanged()
	}); runErr != nil {
		return runErr
	}
	return err
}

// ChangePassword replaces login's stored password hash, evicts its live
// session so the stale credential cannot keep a connection alive, and
// broadcasts a roster refresh.
func (s *Server) ChangePassword(ctx context.Context, login, passwordHash string) error {
	var err error
	if runErr := s.run(ctx, func() {
		if err = s.store.UpdatePassword(ctx, login, passwordHash); err != nil {
			return
		}
		if c, online := s.sessions[login]; online {
			s.evict(c)
		}
		s.broadcastRosterChanged()
	}); runErr != nil {
		return runErr
	}
	return err
}

// BroadcastRosterChanged pushes {response:205} to every authenticated
// session.
func (s *Server) BroadcastRosterChanged(ctx context.Context) error {
	return s.run(ctx, func() {
		s.broadcastRosterChanged()
	})
}

// ListActiveUsers returns every live session row.
func (s *Server) ListActiveUsers(ctx context.Context) ([]*store.ActiveSession, error) {
	var (
		sessions []*store.ActiveSession
		err      error
	)
	if runErr := s.run(ctx, func() {
		sessions, err = s.store.ListSessions(ctx)
	}); runErr != nil {
		return nil, runErr
	}
	return sessions, err
}

// ListAllUsers returns every registered account.
func (s *Server) ListAllUsers(ctx context.Context) ([]*store.User, error) {
	var (
		users []*store.User
		err   error
	)
	if runErr := s.run(ctx, func() {
		users, err = s.store.ListUsers(ctx)
	}); runErr != nil {
		return nil, runErr
	}
	return users, err
}

// LoginHistory returns the authentication history, filtered to one login
// when login is non-empty.
func (s *Server) LoginHistory(ctx context.Context, login string) ([]*store.LoginHistory, error) {
	var (
		entries []*store.LoginHistory
		err     error
	)
	if runErr := s.run(ctx, func() {
		entries, err = s.store.History(ctx, login)
	}); runErr != nil {
		return nil, runErr
	}
	return entries, err
}

// MessageCounters returns every per-user sent/received counter row.
func (s *Server) MessageCounters(ctx context.Context) ([]*store.Counter, error) {
	var (
		counters []*store.Counter
		err      error
	)
	if runErr := s.run(ctx, func() {
		counters, err = s.store.ListCounters(ctx)
	}); runErr != nil {
		return nil, runErr
	}
	return counters, err
}
