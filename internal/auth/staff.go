package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/restaurant-backend/internal/users"
	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/security"
)

// StaffService creates password-backed accounts for restaurant staff.
type StaffService interface {
	Register(ctx context.Context, req RegisterStaffRequest) (*users.UserDTO, error)
}

type staffCreator interface {
	Create(ctx context.Context, user *models.User) error
}

type StaffServiceParams struct {
	UserRepo       staffCreator
	PasswordConfig config.PasswordConfig
}

type staffService struct {
	users       staffCreator
	passwordCfg config.PasswordConfig
}

func NewStaffService(params StaffServiceParams) (StaffService, error) {
	if params.UserRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user repository is required")
	}
	return &staffService{users: params.UserRepo, passwordCfg: params.PasswordConfig}, nil
}

func (s *staffService) Register(ctx context.Context, req RegisterStaffRequest) (*users.UserDTO, error) {
	if req.Role == enums.RoleCustomer || !req.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be a staff role")
	}
	name := strings.TrimSpace(req.Name)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if name == "" || username == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name and username are required")
	}
	if len(req.Password) < 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user := &models.User{
		ID:              uuid.New(),
		Name:            name,
		Username:        &username,
		PasswordHash:    &hash,
		Role:            req.Role,
		IsActive:        true,
		MembershipLevel: enums.MembershipBronze,
	}
	if req.Email != nil {
		user.Email = optional(strings.ToLower(*req.Email))
	}
	if err := s.users.Create(ctx, user); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "username or email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}
	return users.FromModel(user), nil
}
