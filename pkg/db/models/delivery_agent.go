package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

type DeliveryAgent struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID             uuid.UUID         `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	Name               string            `gorm:"column:name;not null" json:"name"`
	Phone              string            `gorm:"column:phone;not null" json:"phone"`
	VehicleType        enums.VehicleType `gorm:"column:vehicle_type;type:text;not null" json:"vehicle_type"`
	VehicleNumber      *string           `gorm:"column:vehicle_number" json:"vehicle_number"`
	LicenseNumber      *string           `gorm:"column:license_number" json:"license_number"`
	IsActive           bool              `gorm:"column:is_active;not null" json:"is_active"`
	IsOnline           bool              `gorm:"column:is_online;not null;default:false" json:"is_online"`
	Lat                *float64          `gorm:"column:lat" json:"lat"`
	Lng                *float64          `gorm:"column:lng" json:"lng"`
	LastLocationUpdate *time.Time        `gorm:"column:last_location_update" json:"last_location_update"`
	CurrentOrders      int               `gorm:"column:current_orders;not null;default:0" json:"current_orders"`
	CompletedOrders    int               `gorm:"column:completed_orders;not null;default:0" json:"completed_orders"`
	Rating             float64           `gorm:"column:rating;not null;default:0" json:"rating"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
