// Package store persists the server-side state of the messenger: the user
// registry, the table of live sessions, login history, contact lists and
// per-user message counters. It is backed by GORM with SQLite (single-node,
// default) or PostgreSQL.
package store

import "time"

// User is a registered account. The password hash is the PBKDF2 credential
// derived on the client; the plaintext password never reaches the server.
type User struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Login        string     `gorm:"uniqueIndex;not null;size:255" json:"login"`
	PasswordHash string     `gorm:"not null" json:"-"`
	PublicKey    string     `json:"public_key,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// ActiveSession is one row per user currently online. The table is wiped
// when the store opens: liveness never survives a server restart.
type ActiveSession struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Login     string    `gorm:"uniqueIndex;not null;size:255" json:"login"`
	Address   string    `gorm:"size:64" json:"address"`
	Port      int       `json:"port"`
	LoginTime time.Time `json:"login_time"`
}

// TableName returns the table name for ActiveSession.
func (ActiveSession) TableName() string {
	return "active_sessions"
}

// LoginHistory is an append-only record of successful authentications.
type LoginHistory struct {
	ID      string    `gorm:"primaryKey;size:36" json:"id"`
	Login   string    `gorm:"index;not null;size:255" json:"login"`
	Address string    `gorm:"size:64" json:"address"`
	Port    int       `json:"port"`
	When    time.Time `gorm:"column:login_time" json:"when"`
}

// TableName returns the table name for LoginHistory.
func (LoginHistory) TableName() string {
	return "login_history"
}

// Contact is a directed roster edge: owner lists contact. The pair is
// unique; adding the same contact twice is a no-op.
type Contact struct {
	ID      string `gorm:"primaryKey;size:36" json:"id"`
	Owner   string `gorm:"uniqueIndex:idx_contact_pair;not null;size:255" json:"owner"`
	Contact string `gorm:"uniqueIndex:idx_contact_pair;not null;size:255" json:"contact"`
}

// TableName returns the table name for Contact.
func (Contact) TableName() string {
	return "contacts"
}

// Counter accumulates per-user message totals, bumped once per routed
// message on each side.
type Counter struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Login    string `gorm:"uniqueIndex;not null;size:255" json:"login"`
	Sent     uint64 `gorm:"default:0" json:"sent"`
	Received uint64 `gorm:"default:0" json:"received"`
}

// TableName returns the table name for Counter.
func (Counter) TableName() string {
	return "message_counters"
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&User{},
		&ActiveSession{},
		&LoginHistory{},
		&Contact{},
		&Counter{},
	}
}
