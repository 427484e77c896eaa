package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/pagination"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

// UserDTO is the transport shape that omits credentials.
type UserDTO struct {
	ID                uuid.UUID             `json:"id"`
	Name              string                `json:"name"`
	Username          *string               `json:"username,omitempty"`
	Email             *string               `json:"email,omitempty"`
	Phone             *string               `json:"phone,omitempty"`
	Avatar            *string               `json:"avatar,omitempty"`
	TelegramLinked    bool                  `json:"telegram_linked"`
	Role              enums.UserRole        `json:"role"`
	IsActive          bool                  `json:"is_active"`
	LoyaltyPoints     int                   `json:"loyalty_points"`
	TotalPointsEarned int                   `json:"total_points_earned"`
	MembershipLevel   enums.MembershipLevel `json:"membership_level"`
	NotifyChat        bool                  `json:"notify_chat"`
	NotifyEmail       bool                  `json:"notify_email"`
	Addresses         []types.SavedAddress  `json:"addresses"`
	LastLoginAt       *time.Time            `json:"last_login_at,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	addresses := append([]types.SavedAddress{}, u.Addresses...)
	return &UserDTO{
		ID:                u.ID,
		Name:              u.Name,
		Username:          u.Username,
		Email:             u.Email,
		Phone:             u.Phone,
		Avatar:            u.Avatar,
		TelegramLinked:    u.TelegramID != nil,
		Role:              u.Role,
		IsActive:          u.IsActive,
		LoyaltyPoints:     u.LoyaltyPoints,
		TotalPointsEarned: u.TotalPointsEarned,
		MembershipLevel:   u.MembershipLevel,
		NotifyChat:        u.NotifyChat,
		NotifyEmail:       u.NotifyEmail,
		Addresses:         addresses,
		LastLoginAt:       u.LastLoginAt,
		CreatedAt:         u.CreatedAt,
	}
}

// UpdateProfileInput carries optional profile fields; nil leaves a field as is.
type UpdateProfileInput struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=120"`
	Phone *string `json:"phone" validate:"omitempty,phone"`
	Email *string `json:"email" validate:"omitempty,email"`
}

type AddressInput struct {
	Label           string        `json:"label" validate:"required,max=60"`
	Address         string        `json:"address" validate:"required,max=300"`
	Coordinates     *types.LatLng `json:"coordinates"`
	BuildingNumber  string        `json:"building_number" validate:"max=20"`
	FloorNumber     string        `json:"floor_number" validate:"max=20"`
	ApartmentNumber string        `json:"apartment_number" validate:"max=20"`
	IsDefault       bool          `json:"is_default"`
}

type PreferencesInput struct {
	NotifyChat  *bool `json:"notify_chat"`
	NotifyEmail *bool `json:"notify_email"`
}

type FavoriteItem struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
}

// Stats summarises a customer's order history. Spending and favourites
// only count completed orders.
type Stats struct {
	TotalOrders     int             `json:"total_orders"`
	CompletedOrders int             `json:"completed_orders"`
	CancelledOrders int             `json:"cancelled_orders"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	FavoriteItems   []FavoriteItem  `json:"favorite_items"`
}

type ListFilter struct {
	Role *enums.UserRole
	Page pagination.Params
}
