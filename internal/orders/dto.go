package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/pkg/auth"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/pagination"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

// CreateOrderOption names a choice of one of the menu item's options.
type CreateOrderOption struct {
	Name   string `json:"name" validate:"required"`
	Choice string `json:"choice" validate:"required"`
}

type CreateOrderItem struct {
	MenuItemID          uuid.UUID           `json:"menu_item_id" validate:"required"`
	Quantity            int                 `json:"quantity" validate:"required,min=1"`
	Options             []CreateOrderOption `json:"options" validate:"dive"`
	SpecialInstructions string              `json:"special_instructions" validate:"max=500"`
}

// CreateOrderInput is a customer's checkout request.
type CreateOrderInput struct {
	UserID              uuid.UUID              `json:"-"`
	Items               []CreateOrderItem      `json:"items" validate:"required,min=1,dive"`
	DeliveryMethod      enums.DeliveryMethod   `json:"delivery_method" validate:"required"`
	DeliveryAddress     *types.DeliveryAddress `json:"delivery_address"`
	DeliveryTime        *time.Time             `json:"delivery_time"`
	PaymentMethod       enums.PaymentMethod    `json:"payment_method" validate:"required"`
	SpecialInstructions string                 `json:"special_instructions" validate:"max=1000"`
	RedeemPoints        int                    `json:"redeem_points" validate:"min=0"`
	CouponCode          string                 `json:"coupon_code"`
}

// TransitionInput drives a single status change.
//
// Guard runs on the freshly loaded order before anything changes; InTx runs
// after the versioned write, inside the same transaction.
type TransitionInput struct {
	OrderID         uuid.UUID
	To              enums.OrderStatus
	Note            string
	Actor           auth.Actor
	ExpectedVersion *int
	DeliveryAgentID *uuid.UUID
	Guard           func(order *models.Order) error
	InTx            func(ctx context.Context, tx *gorm.DB, order *models.Order) error
}

type CancelInput struct {
	OrderID uuid.UUID
	Actor   auth.Actor
	Reason  string
}

type RateInput struct {
	OrderID uuid.UUID
	Actor   auth.Actor
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// ListFilter narrows order listings. Zero values mean no filter.
type ListFilter struct {
	UserID   *uuid.UUID
	Statuses []enums.OrderStatus
	From     *time.Time
	To       *time.Time
	Page     pagination.Params
}
