package auth

import (
	"strconv"
	"time"

	"github.com/angelmondragon/restaurant-backend/internal/users"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

// TelegramLoginRequest is the payload produced by the Telegram login widget.
type TelegramLoginRequest struct {
	ID        int64  `json:"id" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
	AuthDate  int64  `json:"auth_date" validate:"required"`
	Hash      string `json:"hash" validate:"required"`
}

// Fields rebuilds the widget key/value set used in the hash check. Empty
// optional fields are left out the same way the widget omits them.
func (r TelegramLoginRequest) Fields() map[string]string {
	fields := map[string]string{
		"id":         strconv.FormatInt(r.ID, 10),
		"first_name": r.FirstName,
		"auth_date":  strconv.FormatInt(r.AuthDate, 10),
		"hash":       r.Hash,
	}
	if r.LastName != "" {
		fields["last_name"] = r.LastName
	}
	if r.Username != "" {
		fields["username"] = r.Username
	}
	if r.PhotoURL != "" {
		fields["photo_url"] = r.PhotoURL
	}
	return fields
}

// LoginRequest captures staff credentials. Login is a username or e-mail.
type LoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string         `json:"access_token"`
	ExpiresAt   time.Time      `json:"expires_at"`
	User        *users.UserDTO `json:"user"`
}

// RegisterStaffRequest creates a password-backed staff account.
type RegisterStaffRequest struct {
	Name     string         `json:"name" validate:"required"`
	Username string         `json:"username" validate:"required,min=3,max=60"`
	Email    *string        `json:"email" validate:"omitempty,email"`
	Password string         `json:"password" validate:"required,min=8"`
	Role     enums.UserRole `json:"role" validate:"required"`
}
