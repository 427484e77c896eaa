package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

// User is a customer or staff member. Loyalty balances live on the row.
type User struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Name              string                `gorm:"column:name;not null"`
	TelegramID        *string               `gorm:"column:telegram_id;uniqueIndex"`
	Username          *string               `gorm:"column:username;uniqueIndex"`
	PasswordHash      *string               `gorm:"column:password_hash"`
	Email             *string               `gorm:"column:email;uniqueIndex"`
	Phone             *string               `gorm:"column:phone"`
	Avatar            *string               `gorm:"column:avatar"`
	Role              enums.UserRole        `gorm:"column:role;type:text;not null"`
	IsActive          bool                  `gorm:"column:is_active;not null"`
	LoyaltyPoints     int                   `gorm:"column:loyalty_points;not null;default:0"`
	TotalPointsEarned int                   `gorm:"column:total_points_earned;not null;default:0"`
	MembershipLevel   enums.MembershipLevel `gorm:"column:membership_level;type:text;not null"`
	NotifyChat        bool                  `gorm:"column:notify_chat;not null"`
	NotifyEmail       bool                  `gorm:"column:notify_email;not null;default:false"`
	Addresses         []types.SavedAddress  `gorm:"column:addresses;type:jsonb;serializer:json"`
	LastLoginAt       *time.Time            `gorm:"column:last_login_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
