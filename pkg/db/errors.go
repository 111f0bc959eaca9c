package db

import (
	"errors"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"gorm.io/gorm"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a unique constraint failure. When constraintName is
// provided, the constraint must also appear in the error text.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" && !strings.Contains(msg, constraintName) {
		return false
	}
	if pkgerrors.PGCode(err) == uniqueViolationCode {
		return true
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsNotFound reports whether err is gorm's missing-row sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// Classify maps a persistence failure onto the storefront error taxonomy. Errors that already
// carry a code pass through untouched.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case IsNotFound(err):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, message)
	case IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, message)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, message)
	}
}
