package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

type Category struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"column:description" json:"description"`
	Image       *string   `gorm:"column:image" json:"image"`
	SortOrder   int       `gorm:"column:sort_order;not null;default:0" json:"sort_order"`
	IsActive    bool      `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// MenuItem is a sellable dish. Options carry per-choice price deltas.
type MenuItem struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CategoryID  uuid.UUID          `gorm:"column:category_id;type:uuid;not null;index" json:"category_id"`
	Name        string             `gorm:"column:name;not null" json:"name"`
	Description string             `gorm:"column:description" json:"description"`
	Price       decimal.Decimal    `gorm:"column:price;type:numeric(10,2);not null" json:"price"`
	Image       *string            `gorm:"column:image" json:"image"`
	Options     []types.MenuOption `gorm:"column:options;type:jsonb;serializer:json" json:"options"`
	PrepTime    int                `gorm:"column:prep_time_minutes;not null;default:15" json:"prep_time"`
	Available   bool               `gorm:"column:available;not null" json:"available"`
	Featured    bool               `gorm:"column:featured;not null;default:false" json:"featured"`
	SpicyLevel  int                `gorm:"column:spicy_level;not null;default:0" json:"spicy_level"`
	Vegan       bool               `gorm:"column:vegan;not null;default:false" json:"vegan"`
	Vegetarian  bool               `gorm:"column:vegetarian;not null;default:false" json:"vegetarian"`
	SortOrder   int                `gorm:"column:sort_order;not null;default:0" json:"sort_order"`
	Tags        []string           `gorm:"column:tags;type:jsonb;serializer:json" json:"tags"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
