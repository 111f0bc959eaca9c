package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by the storefront repositories so every query is bound to the caller's context.
type Base struct {
	db *gorm.DB
}

// NewBase wraps a GORM connection (or an open transaction).
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx when one is supplied.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Transaction runs fn inside a transaction on the underlying connection.
func (b Base) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.DB(ctx).Transaction(fn)
}
