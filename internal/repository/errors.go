package repository

import (
	"errors"
	"strings"
)

// Common repository errors that can be checked with errors.Is()
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an insert or update violates a
	// uniqueness constraint. For server records this is the signal that
	// another request claimed the same IP address first.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation
	ErrInvalidEntity = errors.New("invalid entity")
)

// isUniqueViolation reports whether err is a sqlite uniqueness constraint
// failure. modernc.org/sqlite surfaces these as plain errors carrying the
// "UNIQUE constraint failed" message from the engine.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
