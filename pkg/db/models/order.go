package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

// Order is the root aggregate of the ordering flow. Version is bumped on
// every status write and guards concurrent updates.
type Order struct {
	ID                       uuid.UUID                `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID                   uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	DeliveryMethod           enums.DeliveryMethod     `gorm:"column:delivery_method;type:text;not null" json:"delivery_method"`
	DeliveryAddress          *types.DeliveryAddress   `gorm:"column:delivery_address;type:jsonb;serializer:json" json:"delivery_address"`
	DeliveryFee              decimal.Decimal          `gorm:"column:delivery_fee;type:numeric(10,2);not null" json:"delivery_fee"`
	DeliveryAgentID          *uuid.UUID               `gorm:"column:delivery_agent_id;type:uuid;index" json:"delivery_agent_id"`
	DeliveryTime             *time.Time               `gorm:"column:delivery_time" json:"delivery_time"`
	PaymentMethod            enums.PaymentMethod      `gorm:"column:payment_method;type:text;not null" json:"payment_method"`
	PaymentStatus            enums.OrderPaymentStatus `gorm:"column:payment_status;type:text;not null" json:"payment_status"`
	PaymentTransactionID     *string                  `gorm:"column:payment_transaction_id" json:"payment_transaction_id"`
	Subtotal                 decimal.Decimal          `gorm:"column:subtotal;type:numeric(10,2);not null" json:"subtotal"`
	Discount                 decimal.Decimal          `gorm:"column:discount;type:numeric(10,2);not null" json:"discount"`
	TotalPrice               decimal.Decimal          `gorm:"column:total_price;type:numeric(10,2);not null" json:"total_price"`
	Status                   enums.OrderStatus        `gorm:"column:status;type:text;not null;index" json:"status"`
	SpecialInstructions      string                   `gorm:"column:special_instructions" json:"special_instructions"`
	EstimatedPreparationTime *time.Time               `gorm:"column:estimated_preparation_time" json:"estimated_preparation_time"`
	DeliveredAt              *time.Time               `gorm:"column:delivered_at" json:"delivered_at"`
	LoyaltyPointsEarned      int                      `gorm:"column:loyalty_points_earned;not null;default:0" json:"loyalty_points_earned"`
	PointsRedeemed           int                      `gorm:"column:points_redeemed;not null;default:0" json:"points_redeemed"`
	CouponCode               *string                  `gorm:"column:coupon_code" json:"coupon_code"`
	Rating                   *int                     `gorm:"column:rating" json:"rating"`
	RatingComment            *string                  `gorm:"column:rating_comment" json:"rating_comment"`
	RatedAt                  *time.Time               `gorm:"column:rated_at" json:"rated_at"`
	Version                  int                      `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt                time.Time                `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt                time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Items         []OrderItem          `gorm:"foreignKey:OrderID" json:"items"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID" json:"status_history"`
}

type OrderItem struct {
	ID                  uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID             uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	Position            int                    `gorm:"column:position;not null" json:"position"`
	MenuItemID          uuid.UUID              `gorm:"column:menu_item_id;type:uuid;not null" json:"menu_item_id"`
	Name                string                 `gorm:"column:name;not null" json:"name"`
	Quantity            int                    `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice           decimal.Decimal        `gorm:"column:unit_price;type:numeric(10,2);not null" json:"unit_price"`
	TotalPrice          decimal.Decimal        `gorm:"column:total_price;type:numeric(10,2);not null" json:"total_price"`
	Options             []types.SelectedOption `gorm:"column:options;type:jsonb;serializer:json" json:"options"`
	SpecialInstructions string                 `gorm:"column:special_instructions" json:"special_instructions"`
}

// OrderStatusHistory rows are insert-only; Seq orders them within an order.
type OrderStatusHistory struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_order_history_seq" json:"order_id"`
	Seq       int               `gorm:"column:seq;not null;uniqueIndex:idx_order_history_seq" json:"seq"`
	Status    enums.OrderStatus `gorm:"column:status;type:text;not null" json:"status"`
	Note      string            `gorm:"column:note" json:"note"`
	ActorID   *uuid.UUID        `gorm:"column:actor_id;type:uuid" json:"actor_id"`
	Timestamp time.Time         `gorm:"column:timestamp;not null" json:"timestamp"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
