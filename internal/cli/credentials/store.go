// Package credentials stores the takmachatctl login state: the admin
// API address and the operator's token pair.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultConfigDir is the directory under $XDG_CONFIG_HOME.
	DefaultConfigDir = "takmachatctl"
	// FileName is the credentials file name.
	FileName = "credentials.json"
	// FilePermissions for the credentials file (owner only).
	FilePermissions = 0600
	// DirPermissions for the config directory.
	DirPermissions = 0700
)

// ErrNotLoggedIn indicates no stored credentials exist.
var ErrNotLoggedIn = errors.New("not logged in - run 'takmachatctl login' first")

// Credentials is the stored login state for one admin API.
type Credentials struct {
	ServerURL    string    `json:"server_url"`
	Username     string    `json:"username,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the access token is expired or about to
// expire within the next minute.
func (c *Credentials) IsExpired() bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Add(time.Minute).After(c.ExpiresAt)
}

// HasRefreshToken reports whether a refresh token is available.
func (c *Credentials) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// Store reads and writes the credentials file.
type Store struct {
	path string
}

// NewStore creates a store over the default credentials path.
func NewStore() (*Store, error) {
	path, err := defaultPath()
	if err != nil {
		return nil, err
	}
	return &Store{path: path}, nil
}

// NewStoreAt creates a store over an explicit path. Used by tests.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

func defaultPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, DefaultConfigDir, FileName), nil
}

// Load returns the stored credentials, or ErrNotLoggedIn when the file
// does not exist.
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("corrupt credentials file %s: %w", s.path, err)
	}
	return &creds, nil
}

// Save writes the credentials with owner-only permissions.
func (s *Store) Save(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), DirPermissions); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, FilePermissions)
}

// UpdateTokens replaces the token pair of the stored credentials.
func (s *Store) UpdateTokens(accessToken, refreshToken string, expiresAt time.Time) error {
	creds, err := s.Load()
	if err != nil {
		return err
	}
	creds.AccessToken = accessToken
	creds.RefreshToken = refreshToken
	creds.ExpiresAt = expiresAt
	return s.Save(creds)
}

// Clear removes the credentials file. Missing files are not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
