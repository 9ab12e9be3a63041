package store

import "errors"

// Domain errors for server store operations.
var (
	// User errors
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user already exists")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// Contact errors
	ErrContactNotFound = errors.New("contact not found")
	ErrSelfContact     = errors.New("cannot add self as contact")
)
