package store

import (
	"context"
)

// ============================================
// CONTACT OPERATIONS
// ============================================

// AddContact inserts the (owner, contact) roster edge. Adding an edge that
// already exists is a no-op. The contact login is not checked against the
// user table: the protocol allows adding names the server has never seen.
func (s *Store) AddContact(ctx context.Context, owner, contact string) error {
	_, err := createWithID(s.db, ctx, &Contact{
		Owner:   owner,
		Contact: contact,
	}, func(c *Contact, id string) { c.ID = id }, "", nil)
	if err == nil {
		return nil
	}
	// createWithID maps a unique-constraint hit to the dupErr argument,
	// nil here, so a duplicate edge surfaces as a nil error already.
	return err
}

// RemoveContact deletes the (owner, contact) edge. Removing an edge that
// does not exist is a no-op.
func (s *Store) RemoveContact(ctx context.Context, owner, contact string) error {
	return s.db.WithContext(ctx).
		Where("owner = ? AND contact = ?", owner, contact).
		Delete(&Contact{}).Error
}

// ListContacts returns the logins owner has added, ordered. This is the
// payload of a get_contacts reply.
func (s *Store) ListContacts(ctx context.Context, owner string) ([]string, error) {
	var contacts []string
	if err := s.db.WithContext(ctx).
		Model(&Contact{}).
		Where("owner = ?", owner).
		Order("contact").
		Pluck("contact", &contacts).Error; err != nil {
		return nil, err
	}
	if contacts == nil {
		contacts = []string{}
	}
	return contacts, nil
}

// HasContact reports whether the (owner, contact) edge exists.
func (s *Store) HasContact(ctx context.Context, owner, contact string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Contact{}).
		Where("owner = ? AND contact = ?", owner, contact).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
