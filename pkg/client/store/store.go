package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// FileName returns the on-disk database file for login under dir.
func FileName(dir, login string) string {
	return filepath.Join(dir, fmt.Sprintf("client_%s.sqlite3", login))
}

// Store is one login's local database. Writes arrive from both the
// caller's goroutine and the receive goroutine; the single underlying
// SQLite connection serialises them, and every call commits on return.
type Store struct {
	db *gorm.DB
}

// Open opens (and if necessary creates) the local database for login in
// dir. The contact table is emptied on open: contacts the server no
// longer knows must not survive a restart, and the first roster fetch
// repopulates it.
func Open(dir, login string) (*Store, error) {
	dsn := FileName(dir, login) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open client database: %w", err)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to run client database migration: %w", err)
	}

	s := &Store{db: db}
	if err := s.ClearContacts(); err != nil {
		return nil, fmt.Errorf("failed to reset contact table: %w", err)
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

// AddContact inserts one contact login. Idempotent.
func (s *Store) AddContact(login string) error {
	err := s.db.Create(&Contact{ID: uuid.New().String(), Login: login}).Error
	if err != nil && isUniqueConstraintError(err) {
		return nil
	}
	return err
}

// DeleteContact removes one contact login. Idempotent.
func (s *Store) DeleteContact(login string) error {
	return s.db.Where("login = ?", login).Delete(&Contact{}).Error
}

// ClearContacts empties the contact table.
func (s *Store) ClearContacts() error {
	return s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Contact{}).Error
}

// Contacts returns the contact logins, ordered.
func (s *Store) Contacts() ([]string, error) {
	return pluckLogins(s.db, &Contact{})
}

// HasContact reports whether login is in the local contact list.
func (s *Store) HasContact(login string) (bool, error) {
	return loginExists(s.db, &Contact{}, login)
}

// ReplaceKnownUsers swaps the whole known-user table for logins, in one
// transaction.
func (s *Store) ReplaceKnownUsers(logins []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&KnownUser{}).Error; err != nil {
			return err
		}
		for _, login := range logins {
			if err := tx.Create(&KnownUser{ID: uuid.New().String(), Login: login}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// KnownUsers returns the mirrored roster logins, ordered.
func (s *Store) KnownUsers() ([]string, error) {
	return pluckLogins(s.db, &KnownUser{})
}

// HasUser reports whether login is in the mirrored roster.
func (s *Store) HasUser(login string) (bool, error) {
	return loginExists(s.db, &KnownUser{}, login)
}

// AppendHistory records one message with the wall clock as timestamp.
func (s *Store) AppendHistory(peer string, direction Direction, body string) error {
	return s.db.Create(&HistoryEntry{
		ID:        uuid.New().String(),
		Peer:      peer,
		Direction: direction,
		Body:      body,
		When:      time.Now(),
	}).Error
}

// HistoryWith returns the conversation with peer in chronological order.
// Display consumers truncate to the last entries themselves.
func (s *Store) HistoryWith(peer string) ([]*HistoryEntry, error) {
	var entries []*HistoryEntry
	if err := s.db.Where("peer = ?", peer).Order("sent_at").Find(&entries).Error; err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*HistoryEntry{}
	}
	return entries, nil
}

// pluckLogins lists the login column of model, ordered.
func pluckLogins(db *gorm.DB, model any) ([]string, error) {
	var logins []string
	if err := db.Model(model).Order("login").Pluck("login", &logins).Error; err != nil {
		return nil, err
	}
	if logins == nil {
		logins = []string{}
	}
	return logins, nil
}

// loginExists reports whether a row of model carries login.
func loginExists(db *gorm.DB, model any, login string) (bool, error) {
	var count int64
	if err := db.Model(model).Where("login = ?", login).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
