package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ============================================
// SESSION & HISTORY OPERATIONS
// ============================================

// OpenSession records a successful authentication: it inserts the live
// session row, appends to login history and stamps the user's last login.
// Any stale session row for the same login is replaced.
func (s *Store) OpenSession(ctx context.Context, login, address string, port int, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("login = ?", login).Delete(&ActiveSession{}).Error; err != nil {
			return err
		}

		session := &ActiveSession{
			Login:     login,
			Address:   address,
			Port:      port,
			LoginTime: at,
		}
		if _, err := createWithID(tx, ctx, session, func(v *ActiveSession, id string) { v.ID = id }, "", ErrDuplicateUser); err != nil {
			return err
		}

		entry := &LoginHistory{
			Login:   login,
			Address: address,
			Port:    port,
			When:    at,
		}
		if _, err := createWithID(tx, ctx, entry, func(v *LoginHistory, id string) { v.ID = id }, "", ErrDuplicateUser); err != nil {
			return err
		}

		result := tx.Model(&User{}).Where("login = ?", login).Update("last_login", at)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

// CloseSession drops login's live session row. Closing a session that is
// already gone is not an error: disconnects and exits may race.
func (s *Store) CloseSession(ctx context.Context, login string) error {
	return deleteByField[ActiveSession](s.db, ctx, "login", login, nil)
}

// ClearActiveSessions empties the live session table.
func (s *Store) ClearActiveSessions(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&ActiveSession{}).Error
}

// ListSessions returns every live session, ordered by login.
func (s *Store) ListSessions(ctx context.Context) ([]*ActiveSession, error) {
	return listAll[ActiveSession](s.db, ctx, "login")
}

// History returns login's authentication history, oldest first. An empty
// login returns the history of every account.
func (s *Store) History(ctx context.Context, login string) ([]*LoginHistory, error) {
	var entries []*LoginHistory
	q := s.db.WithContext(ctx).Order("login_time")
	if login != "" {
		q = q.Where("login = ?", login)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*LoginHistory{}
	}
	return entries, nil
}
