// Package repo holds the query helpers shared by the repositories built on
// gorm (menu, kitchen queue, delivery board).
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

// Base carries the connection a repository queries through.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// WithTx rebinds the base to tx. A nil tx keeps the current connection.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// DB returns the connection bound to ctx (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// StatusIn limits an orders query to the given statuses.
func StatusIn(statuses ...enums.OrderStatus) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status IN ?", statuses)
	}
}

// WithItems preloads order lines in checkout order.
func WithItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") })
}

// WithHistory preloads the status history in sequence order.
func WithHistory(db *gorm.DB) *gorm.DB {
	return db.Preload("StatusHistory", func(tx *gorm.DB) *gorm.DB { return tx.Order("seq ASC") })
}

// Affected reports whether an update touched any row.
func Affected(res *gorm.DB) (bool, error) {
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
