package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ============================================
// USER OPERATIONS
// ============================================

// GetUser returns the account registered under login.
func (s *Store) GetUser(ctx context.Context, login string) (*User, error) {
	return getByField[User](s.db, ctx, "login", login, ErrUserNotFound)
}

// UserExists reports whether login is registered.
func (s *Store) UserExists(ctx context.Context, login string) (bool, error) {
	_, err := s.GetUser(ctx, login)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	return false, err
}

// ListUsers returns every registered account, ordered by login.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	return listAll[User](s.db, ctx, "login")
}

// ListLogins returns the login of every registered account, ordered.
// This is the payload of a get_users reply.
func (s *Store) ListLogins(ctx context.Context) ([]string, error) {
	var logins []string
	if err := s.db.WithContext(ctx).
		Model(&User{}).
		Order("login").
		Pluck("login", &logins).Error; err != nil {
		return nil, err
	}
	if logins == nil {
		logins = []string{}
	}
	return logins, nil
}

// CreateUser inserts a new account record.
func (s *Store) CreateUser(ctx context.Context, user *User) (string, error) {
	user.CreatedAt = time.Now()
	return createWithID(s.db, ctx, user, func(u *User, id string) { u.ID = id }, user.ID, ErrDuplicateUser)
}

// RegisterUser creates an account from its login and derived password
// hash, together with its zeroed counter row. It is the operator-facing
// registration entry point.
func (s *Store) RegisterUser(ctx context.Context, login, passwordHash string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user := &User{
			Login:        login,
			PasswordHash: passwordHash,
			CreatedAt:    time.Now(),
		}
		if _, err := createWithID(tx, ctx, user, func(u *User, id string) { u.ID = id }, "", ErrDuplicateUser); err != nil {
			return err
		}
		_, err := createWithID(tx, ctx, &Counter{Login: login}, func(c *Counter, id string) { c.ID = id }, "", ErrDuplicateUser)
		return err
	})
}

// UpdatePassword replaces login's stored password hash.
func (s *Store) UpdatePassword(ctx context.Context, login, passwordHash string) error {
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("login = ?", login).
		Update("password_hash", passwordHash)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetPublicKey stores the public key announced in login's latest presence.
func (s *Store) SetPublicKey(ctx context.Context, login, publicKeyPEM string) error {
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("login = ?", login).
		Update("public_key", publicKeyPEM)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// PublicKey returns login's stored public key PEM. An empty string means
// the user has never announced one.
func (s *Store) PublicKey(ctx context.Context, login string) (string, error) {
	user, err := s.GetUser(ctx, login)
	if err != nil {
		return "", err
	}
	return user.PublicKey, nil
}

// RemoveUser deletes an account and everything that referenced it: its
// live session, its login history, its counters, and every contact edge
// it appears in, on either side.
func (s *Store) RemoveUser(ctx context.Context, login string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.Where("login = ?", login).First(&user).Error; err != nil {
			return convertNotFoundError(err, ErrUserNotFound)
		}

		if err := tx.Where("login = ?", login).Delete(&ActiveSession{}).Error; err != nil {
			return err
		}
		if err := tx.Where("login = ?", login).Delete(&LoginHistory{}).Error; err != nil {
			return err
		}
		if err := tx.Where("login = ?", login).Delete(&Counter{}).Error; err != nil {
			return err
		}
		if err := tx.Where("owner = ? OR contact = ?", login, login).Delete(&Contact{}).Error; err != nil {
			return err
		}

		return tx.Delete(&user).Error
	})
}
