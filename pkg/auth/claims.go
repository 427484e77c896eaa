package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	// AgentID is set for delivery staff so handlers can skip a lookup.
	AgentID *uuid.UUID
	JTI     string
}

// AccessTokenClaims is the JWT body issued at login.
type AccessTokenClaims struct {
	UserID  uuid.UUID      `json:"user_id"`
	Role    enums.UserRole `json:"role"`
	AgentID *uuid.UUID     `json:"agent_id,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass, on both mint and parse.
func (c AccessTokenClaims) Validate() error {
	switch {
	case c.UserID == uuid.Nil:
		return errors.New("user id is required")
	case !c.Role.IsValid():
		return fmt.Errorf("unknown role %q", c.Role)
	case c.AgentID != nil && c.Role != enums.RoleDelivery:
		return fmt.Errorf("agent id is only valid for the %s role", enums.RoleDelivery)
	case c.Subject != "" && c.Subject != c.UserID.String():
		return errors.New("subject does not match user id")
	}
	return nil
}

// Actor is the authenticated caller as seen by domain services.
type Actor struct {
	UserID  uuid.UUID
	Role    enums.UserRole
	AgentID *uuid.UUID
}

func (c AccessTokenClaims) Actor() Actor {
	return Actor{UserID: c.UserID, Role: c.Role, AgentID: c.AgentID}
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.RoleAdmin
}

// IsStaff covers every non-customer role.
func (a Actor) IsStaff() bool {
	return a.Role == enums.RoleAdmin || a.Role == enums.RoleKitchen || a.Role == enums.RoleDelivery
}

// Owns reports whether the actor may act on a resource owned by userID.
// Admins own everything.
func (a Actor) Owns(userID uuid.UUID) bool {
	return a.IsAdmin() || (a.UserID != uuid.Nil && a.UserID == userID)
}
