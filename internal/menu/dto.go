package menu

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

const (
	defaultPrepTime = 15
	featuredLimit   = 8
)

type CategoryInput struct {
	Name        string  `json:"name" validate:"required,max=80"`
	Description string  `json:"description" validate:"max=500"`
	Image       *string `json:"image" validate:"omitempty,url"`
	SortOrder   int     `json:"sort_order"`
	IsActive    *bool   `json:"is_active"`
}

type UpdateCategoryInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=80"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Image       *string `json:"image" validate:"omitempty,url"`
	SortOrder   *int    `json:"sort_order"`
	IsActive    *bool   `json:"is_active"`
}

type ItemInput struct {
	CategoryID  uuid.UUID          `json:"category_id" validate:"required"`
	Name        string             `json:"name" validate:"required,max=120"`
	Description string             `json:"description" validate:"max=1000"`
	Price       decimal.Decimal    `json:"price"`
	Image       *string            `json:"image" validate:"omitempty,url"`
	Options     []types.MenuOption `json:"options"`
	PrepTime    int                `json:"prep_time" validate:"gte=0"`
	Available   *bool              `json:"available"`
	Featured    bool               `json:"featured"`
	SpicyLevel  int                `json:"spicy_level" validate:"gte=0,lte=5"`
	Vegan       bool               `json:"vegan"`
	Vegetarian  bool               `json:"vegetarian"`
	SortOrder   int                `json:"sort_order"`
	Tags        []string           `json:"tags"`
}

// UpdateItemInput leaves nil fields untouched.
type UpdateItemInput struct {
	CategoryID  *uuid.UUID          `json:"category_id"`
	Name        *string             `json:"name" validate:"omitempty,min=1,max=120"`
	Description *string             `json:"description" validate:"omitempty,max=1000"`
	Price       *decimal.Decimal    `json:"price"`
	Image       *string             `json:"image" validate:"omitempty,url"`
	Options     *[]types.MenuOption `json:"options"`
	PrepTime    *int                `json:"prep_time" validate:"omitempty,gte=1"`
	Available   *bool               `json:"available"`
	Featured    *bool               `json:"featured"`
	SpicyLevel  *int                `json:"spicy_level" validate:"omitempty,gte=0,lte=5"`
	Vegan       *bool               `json:"vegan"`
	Vegetarian  *bool               `json:"vegetarian"`
	SortOrder   *int                `json:"sort_order"`
	Tags        *[]string           `json:"tags"`
}

// ItemFilter narrows the browse listing. Public callers always get
// AvailableOnly.
type ItemFilter struct {
	CategoryID    *uuid.UUID
	AvailableOnly bool
	Query         string
}
