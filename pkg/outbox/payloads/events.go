package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once an order and its items are persisted.
type OrderCreatedEvent struct {
	OrderID        uuid.UUID            `json:"order_id"`
	UserID         uuid.UUID            `json:"user_id"`
	DeliveryMethod enums.DeliveryMethod `json:"delivery_method"`
	PaymentMethod  enums.PaymentMethod  `json:"payment_method"`
	ItemCount      int                  `json:"item_count"`
	Subtotal       decimal.Decimal      `json:"subtotal"`
	DeliveryFee    decimal.Decimal      `json:"delivery_fee"`
	Discount       decimal.Decimal      `json:"discount"`
	TotalPrice     decimal.Decimal      `json:"total_price"`
	CreatedAt      time.Time            `json:"created_at"`
}

// OrderStatusChangedEvent is emitted for every accepted status transition.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID            `json:"order_id"`
	UserID         uuid.UUID            `json:"user_id"`
	From           enums.OrderStatus    `json:"from"`
	To             enums.OrderStatus    `json:"to"`
	Note           string               `json:"note,omitempty"`
	DeliveryMethod enums.DeliveryMethod `json:"delivery_method"`
	TotalPrice     decimal.Decimal      `json:"total_price"`
	Version        int                  `json:"version"`
	ChangedAt      time.Time            `json:"changed_at"`
}

// PaymentStatusChangedEvent mirrors a payment record moving between states.
type PaymentStatusChangedEvent struct {
	PaymentID      uuid.UUID           `json:"payment_id"`
	OrderID        uuid.UUID           `json:"order_id"`
	From           enums.PaymentStatus `json:"from"`
	To             enums.PaymentStatus `json:"to"`
	Amount         decimal.Decimal     `json:"amount"`
	RefundedAmount decimal.Decimal     `json:"refunded_amount"`
	ChangedAt      time.Time           `json:"changed_at"`
}

// LoyaltyPointsAddedEvent reports points credited for an order.
type LoyaltyPointsAddedEvent struct {
	UserID          uuid.UUID             `json:"user_id"`
	OrderID         *uuid.UUID            `json:"order_id,omitempty"`
	Points          int                   `json:"points"`
	Balance         int                   `json:"balance"`
	MembershipLevel enums.MembershipLevel `json:"membership_level"`
}
