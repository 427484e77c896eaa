package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

// LoyaltyEntry is one earn or redeem movement on a user's point balance.
type LoyaltyEntry struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	OrderID     *uuid.UUID             `gorm:"column:order_id;type:uuid" json:"order_id"`
	Type        enums.LoyaltyEntryType `gorm:"column:type;type:text;not null" json:"type"`
	Points      int                    `gorm:"column:points;not null" json:"points"`
	Description string                 `gorm:"column:description" json:"description"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
