package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

// Payment tracks the gateway side of a non-cash order.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID        uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex" json:"order_id"`
	UserID         uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(10,2);not null" json:"amount"`
	Currency       string              `gorm:"column:currency;not null" json:"currency"`
	PaymentMethod  enums.PaymentMethod `gorm:"column:payment_method;type:text;not null" json:"payment_method"`
	Status         enums.PaymentStatus `gorm:"column:status;type:text;not null;index" json:"status"`
	SessionID      *string             `gorm:"column:session_id;uniqueIndex" json:"session_id"`
	TransactionID  *string             `gorm:"column:transaction_id" json:"transaction_id"`
	ErrorMessage   *string             `gorm:"column:error_message" json:"error_message"`
	RefundedAmount decimal.Decimal     `gorm:"column:refunded_amount;type:numeric(10,2);not null" json:"refunded_amount"`
	RefundID       *string             `gorm:"column:refund_id" json:"refund_id"`
	RefundReason   *string             `gorm:"column:refund_reason" json:"refund_reason"`
	ExpiresAt      *time.Time          `gorm:"column:expires_at" json:"expires_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
