package store

import (
	"context"

	"gorm.io/gorm"
)

// ============================================
// MESSAGE COUNTER OPERATIONS
// ============================================

// RecordMessage bumps the per-user totals for one routed message: the
// sender's sent count and the recipient's received count, in a single
// transaction. Counter rows are created at registration, but a missing
// row is tolerated and created on first use.
func (s *Store) RecordMessage(ctx context.Context, from, to string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bumpCounter(ctx, tx, from, "sent"); err != nil {
			return err
		}
		return bumpCounter(ctx, tx, to, "received")
	})
}

// bumpCounter increments one column of login's counter row, inserting the
// row if registration predates the counters table.
func bumpCounter(ctx context.Context, tx *gorm.DB, login, column string) error {
	result := tx.Model(&Counter{}).
		Where("login = ?", login).
		Update(column, gorm.Expr(column+" + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	counter := &Counter{Login: login}
	switch column {
	case "sent":
		counter.Sent = 1
	case "received":
		counter.Received = 1
	}
	_, err := createWithID(tx, ctx, counter, func(c *Counter, id string) { c.ID = id }, "", ErrDuplicateUser)
	return err
}

// GetCounter returns login's counter row.
func (s *Store) GetCounter(ctx context.Context, login string) (*Counter, error) {
	return getByField[Counter](s.db, ctx, "login", login, ErrUserNotFound)
}

// ListCounters returns every counter row, ordered by login.
func (s *Store) ListCounters(ctx context.Context) ([]*Counter, error) {
	return listAll[Counter](s.db, ctx, "login")
}
