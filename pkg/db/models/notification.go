package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

// Notification is a user inbox entry. ReadAt and DeliveredAt are stamped once.
type Notification struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID                 `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Type          enums.NotificationType    `gorm:"column:type;type:text;not null" json:"type"`
	Title         string                    `gorm:"column:title;not null" json:"title"`
	Message       string                    `gorm:"column:message;not null" json:"message"`
	RelatedID     *uuid.UUID                `gorm:"column:related_id;type:uuid" json:"related_id"`
	RelatedModel  *string                   `gorm:"column:related_model" json:"related_model"`
	Action        *types.NotificationAction `gorm:"column:action;type:jsonb;serializer:json" json:"action"`
	Read          bool                      `gorm:"column:read;not null;default:false" json:"read"`
	ReadAt        *time.Time                `gorm:"column:read_at" json:"read_at"`
	Delivered     bool                      `gorm:"column:delivered;not null;default:false" json:"delivered"`
	DeliveredAt   *time.Time                `gorm:"column:delivered_at" json:"delivered_at"`
	ChatMessageID *string                   `gorm:"column:chat_message_id" json:"chat_message_id"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}
