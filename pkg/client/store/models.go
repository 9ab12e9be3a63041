// Package store persists the client-side state of one messenger login:
// the mirror of the server's user roster, the local contact list and the
// message history. It is backed by GORM over a per-login SQLite file.
package store

import "time"

// Direction of a history entry relative to this client.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// KnownUser mirrors one login of the server's roster. The table is fully
// replaced on every user-list refresh.
type KnownUser struct {
	ID    string `gorm:"primaryKey;size:36"`
	Login string `gorm:"uniqueIndex;not null;size:255"`
}

// TableName returns the table name for KnownUser.
func (KnownUser) TableName() string {
	return "known_users"
}

// Contact is one entry of the local contact list. Cleared at open and
// before each refresh from the server.
type Contact struct {
	ID    string `gorm:"primaryKey;size:36"`
	Login string `gorm:"uniqueIndex;not null;size:255"`
}

// TableName returns the table name for Contact.
func (Contact) TableName() string {
	return "contacts"
}

// HistoryEntry is one sent or received message. Append-only.
type HistoryEntry struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Peer      string    `gorm:"index;not null;size:255"`
	Direction Direction `gorm:"not null;size:3"`
	Body      string    `gorm:"not null"`
	When      time.Time `gorm:"column:sent_at"`
}

// TableName returns the table name for HistoryEntry.
func (HistoryEntry) TableName() string {
	return "message_history"
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&KnownUser{},
		&Contact{},
		&HistoryEntry{},
	}
}
