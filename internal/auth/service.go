package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/users"
	pkgAuth "github.com/angelmondragon/restaurant-backend/pkg/auth"
	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service issues access tokens for customers (Telegram) and staff (password).
type Service interface {
	TelegramLogin(ctx context.Context, req TelegramLoginRequest) (*LoginResponse, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Me(ctx context.Context, actor pkgAuth.Actor) (*users.UserDTO, error)
}

type userRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByTelegramID(ctx context.Context, telegramID string) (*models.User, error)
	FindByLogin(ctx context.Context, login string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type agentLookup interface {
	FindAgentByUser(ctx context.Context, userID uuid.UUID) (*models.DeliveryAgent, error)
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	Agents         agentLookup
	JWTConfig      config.JWTConfig
	TelegramConfig config.TelegramConfig
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
}

type service struct {
	users    userRepository
	agents   agentLookup
	jwtCfg   config.JWTConfig
	telegram config.TelegramConfig
	password config.PasswordConfig
	logg     *logger.Logger
	now      func() time.Time
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user repository is required")
	}
	if params.Agents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "delivery agent lookup is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		users:    params.UserRepo,
		agents:   params.Agents,
		jwtCfg:   params.JWTConfig,
		telegram: params.TelegramConfig,
		password: params.PasswordConfig,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// TelegramLogin verifies the widget payload and signs the customer in,
// creating the account on first login.
func (s *service) TelegramLogin(ctx context.Context, req TelegramLoginRequest) (*LoginResponse, error) {
	now := s.now().UTC()
	if err := security.VerifyTelegramLogin(s.telegram.BotToken, req.Fields(), s.telegram.LoginMaxAge, now); err != nil {
		if errors.Is(err, security.ErrTelegramHashMismatch) || errors.Is(err, security.ErrTelegramAuthExpired) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid telegram login")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify telegram login")
	}

	telegramID := strconv.FormatInt(req.ID, 10)
	name := strings.TrimSpace(strings.TrimSpace(req.FirstName) + " " + strings.TrimSpace(req.LastName))

	user, err := s.users.FindByTelegramID(ctx, telegramID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = &models.User{
			ID:              uuid.New(),
			Name:            name,
			TelegramID:      &telegramID,
			Username:        optional(req.Username),
			Avatar:          optional(req.PhotoURL),
			Role:            enums.RoleCustomer,
			IsActive:        true,
			MembershipLevel: enums.MembershipBronze,
			NotifyChat:      true,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}
		s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "telegram user registered")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup telegram user")
	default:
		updates := map[string]any{"name": name}
		if req.PhotoURL != "" {
			updates["avatar"] = req.PhotoURL
		}
		if err := s.users.Update(ctx, user.ID, updates); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh telegram profile")
		}
		user.Name = name
		if req.PhotoURL != "" {
			user.Avatar = &req.PhotoURL
		}
	}

	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account disabled")
	}
	return s.issue(ctx, user, now)
}

// Login authenticates password-backed accounts, normally staff.
func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	login := strings.ToLower(strings.TrimSpace(req.Login))
	if login == "" || req.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	if user.PasswordHash == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	valid, err := security.VerifyPassword(req.Password, *user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if security.NeedsRehash(*user.PasswordHash, s.password) {
		s.upgradeHash(ctx, user, req.Password)
	}
	return s.issue(ctx, user, s.now().UTC())
}

// upgradeHash re-encodes a staff password under the current argon2 settings.
// Failure only costs a retry on the next login.
func (s *service) upgradeHash(ctx context.Context, user *models.User, password string) {
	hash, err := security.HashPassword(password, s.password)
	if err == nil {
		err = s.users.Update(ctx, user.ID, map[string]any{"password_hash": hash})
	}
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "user_id", user.ID.String()), "password rehash failed: "+err.Error())
		return
	}
	user.PasswordHash = &hash
}

func (s *service) Me(ctx context.Context, actor pkgAuth.Actor) (*users.UserDTO, error) {
	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	return users.FromModel(user), nil
}

func (s *service) issue(ctx context.Context, user *models.User, now time.Time) (*LoginResponse, error) {
	payload := pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    uuid.NewString(),
	}
	if user.Role == enums.RoleDelivery {
		agent, err := s.agents.FindAgentByUser(ctx, user.ID)
		switch {
		case err == nil:
			payload.AgentID = &agent.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup delivery agent")
		}
	}

	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &now

	return &LoginResponse{
		AccessToken: token,
		ExpiresAt:   now.Add(time.Duration(s.jwtCfg.ExpirationMinutes) * time.Minute),
		User:        users.FromModel(user),
	}, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
