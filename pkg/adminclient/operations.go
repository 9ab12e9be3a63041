package adminclient

import (
	"fmt"
	"net/url"
	"time"

	"github.com/vtakmakov/takmachat/pkg/server/store"
)

// TokenPair mirrors the admin API's token response.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Login authenticates the operator and stores the access token for
// subsequent requests. The token pair is returned so callers can keep
// the refresh token.
func (c *Client) Login(username, password string) (*TokenPair, error) {
	var pair TokenPair
	err := c.post("/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &pair)
	if err != nil {
		return nil, err
	}
	c.token = pair.AccessToken
	return &pair, nil
}

// Refresh exchanges a refresh token for a new token pair and stores the
// new access token.
func (c *Client) Refresh(refreshToken string) (*TokenPair, error) {
	var pair TokenPair
	err := c.post("/api/v1/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, &pair)
	if err != nil {
		return nil, err
	}
	c.token = pair.AccessToken
	return &pair, nil
}

// ListUsers returns every registered account.
func (c *Client) ListUsers() ([]*store.User, error) {
	var users []*store.User
	if err := c.get("/api/v1/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// RegisterUser creates a messenger account. The plaintext password is
// hashed server-side with the client-compatible scheme.
func (c *Client) RegisterUser(login, password string) error {
	return c.post("/api/v1/users", map[string]string{
		"login":    login,
		"password": password,
	}, nil)
}

// RemoveUser deletes an account, evicting its live session if any.
func (c *Client) RemoveUser(login string) error {
	return c.delete("/api/v1/users/"+url.PathEscape(login), nil)
}

// ResetPassword replaces an account's password.
func (c *Client) ResetPassword(login, password string) error {
	return c.post(fmt.Sprintf("/api/v1/users/%s/password", url.PathEscape(login)), map[string]string{
		"password": password,
	}, nil)
}

// Sessions returns the currently connected users.
func (c *Client) Sessions() ([]*store.ActiveSession, error) {
	var sessions []*store.ActiveSession
	if err := c.get("/api/v1/sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// History returns the login history, filtered to one login when login is
// non-empty.
func (c *Client) History(login string) ([]*store.LoginHistory, error) {
	path := "/api/v1/history"
	if login != "" {
		path += "?login=" + url.QueryEscape(login)
	}
	var entries []*store.LoginHistory
	if err := c.get(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Health holds the unauthenticated liveness probe response.
type Health struct {
	ActiveConnections int `json:"active_connections"`
}

// Health probes the server's /health endpoint.
func (c *Client) Health() (*Health, error) {
	var h Health
	if err := c.get("/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Counters returns the per-user message counters.
func (c *Client) Counters() ([]*store.Counter, error) {
	var counters []*store.Counter
	if err := c.get("/api/v1/counters", &counters); err != nil {
		return nil, err
	}
	return counters, nil
}
