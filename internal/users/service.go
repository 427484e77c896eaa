package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/address"
	"github.com/angelmondragon/restaurant-backend/pkg/db"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/pagination"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

const favoriteLimit = 5

// Service covers the customer profile, the address book and admin listing.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*UserDTO, error)
	AddAddress(ctx context.Context, userID uuid.UUID, input AddressInput) ([]types.SavedAddress, error)
	RemoveAddress(ctx context.Context, userID, addressID uuid.UUID) ([]types.SavedAddress, error)
	SetDefaultAddress(ctx context.Context, userID, addressID uuid.UUID) ([]types.SavedAddress, error)
	UpdatePreferences(ctx context.Context, userID uuid.UUID, input PreferencesInput) (*UserDTO, error)
	Stats(ctx context.Context, userID uuid.UUID) (*Stats, error)
	List(ctx context.Context, filter ListFilter) (*pagination.Page[UserDTO], error)
}

type repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	SaveAddresses(ctx context.Context, id uuid.UUID, addresses []types.SavedAddress) error
	List(ctx context.Context, filter ListFilter) ([]models.User, error)
	OrderCounts(ctx context.Context, userID uuid.UUID) ([]orderCounts, error)
	FavoriteItems(ctx context.Context, userID uuid.UUID, limit int) ([]FavoriteItem, error)
}

type ServiceParams struct {
	Repository repository
	// Locator fills in coordinates for addresses saved without them. Optional.
	Locator address.Service
	Logger  *logger.Logger
}

type service struct {
	repo    repository
	locator address.Service
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: params.Repository, locator: params.Locator, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*UserDTO, error) {
	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Phone != nil {
		updates["phone"] = nullable(*input.Phone)
	}
	if input.Email != nil {
		updates["email"] = nullable(strings.ToLower(*input.Email))
	}
	if len(updates) == 0 {
		return s.Get(ctx, userID)
	}

	if err := s.repo.Update(ctx, userID, updates); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already in use")
		}
		return nil, mapUserError(err)
	}
	return s.Get(ctx, userID)
}

func (s *service) AddAddress(ctx context.Context, userID uuid.UUID, input AddressInput) ([]types.SavedAddress, error) {
	label := strings.TrimSpace(input.Label)
	text := strings.TrimSpace(input.Address)
	if label == "" || text == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "label and address are required")
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	entry := types.SavedAddress{
		ID:              uuid.New(),
		Label:           label,
		Address:         text,
		Coordinates:     input.Coordinates,
		BuildingNumber:  input.BuildingNumber,
		FloorNumber:     input.FloorNumber,
		ApartmentNumber: input.ApartmentNumber,
		IsDefault:       input.IsDefault || len(user.Addresses) == 0,
	}
	if entry.Coordinates == nil && s.locator != nil {
		loc, err := s.locator.Locate(ctx, text)
		if err != nil {
			// the address is still saved; delivery falls back to the flat fee
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"user_id": userID.String(),
				"error":   err.Error(),
			}), "address geocoding failed")
		} else {
			coords := loc.Coordinates
			entry.Coordinates = &coords
		}
	}

	addresses := append([]types.SavedAddress{}, user.Addresses...)
	if entry.IsDefault {
		clearDefault(addresses)
	}
	addresses = append(addresses, entry)
	if err := s.repo.SaveAddresses(ctx, userID, addresses); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save addresses")
	}
	return addresses, nil
}

func (s *service) RemoveAddress(ctx context.Context, userID, addressID uuid.UUID) ([]types.SavedAddress, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := indexOf(user.Addresses, addressID)
	if idx < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}

	removed := user.Addresses[idx]
	addresses := make([]types.SavedAddress, 0, len(user.Addresses)-1)
	addresses = append(addresses, user.Addresses[:idx]...)
	addresses = append(addresses, user.Addresses[idx+1:]...)
	if removed.IsDefault && len(addresses) > 0 {
		addresses[0].IsDefault = true
	}
	if err := s.repo.SaveAddresses(ctx, userID, addresses); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save addresses")
	}
	return addresses, nil
}

func (s *service) SetDefaultAddress(ctx context.Context, userID, addressID uuid.UUID) ([]types.SavedAddress, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := indexOf(user.Addresses, addressID)
	if idx < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	addresses := append([]types.SavedAddress{}, user.Addresses...)
	clearDefault(addresses)
	addresses[idx].IsDefault = true
	if err := s.repo.SaveAddresses(ctx, userID, addresses); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save addresses")
	}
	return addresses, nil
}

func (s *service) UpdatePreferences(ctx context.Context, userID uuid.UUID, input PreferencesInput) (*UserDTO, error) {
	updates := map[string]any{}
	if input.NotifyChat != nil {
		updates["notify_chat"] = *input.NotifyChat
	}
	if input.NotifyEmail != nil {
		updates["notify_email"] = *input.NotifyEmail
	}
	if len(updates) > 0 {
		if err := s.repo.Update(ctx, userID, updates); err != nil {
			return nil, mapUserError(err)
		}
	}
	return s.Get(ctx, userID)
}

func (s *service) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	if _, err := s.load(ctx, userID); err != nil {
		return nil, err
	}
	counts, err := s.repo.OrderCounts(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count orders")
	}

	stats := &Stats{TotalSpent: decimal.Zero, FavoriteItems: []FavoriteItem{}}
	for _, row := range counts {
		stats.TotalOrders += row.Count
		switch row.Status {
		case enums.OrderStatusDelivered, enums.OrderStatusPickedUp:
			stats.CompletedOrders += row.Count
			stats.TotalSpent = stats.TotalSpent.Add(row.Total)
		case enums.OrderStatusCancelled:
			stats.CancelledOrders += row.Count
		}
	}

	favorites, err := s.repo.FavoriteItems(ctx, userID, favoriteLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load favourite items")
	}
	if favorites != nil {
		stats.FavoriteItems = favorites
	}
	return stats, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*pagination.Page[UserDTO], error) {
	if filter.Role != nil && !filter.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role filter")
	}
	if _, err := pagination.ParseCursor(filter.Page.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	rows, next := pagination.Trim(rows, filter.Page.Limit, func(u models.User) pagination.Cursor {
		return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
	})
	items := make([]UserDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return &pagination.Page[UserDTO]{Items: items, NextCursor: next}, nil
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, mapUserError(err)
	}
	return user, nil
}

func mapUserError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
}

func indexOf(addresses []types.SavedAddress, id uuid.UUID) int {
	for i := range addresses {
		if addresses[i].ID == id {
			return i
		}
	}
	return -1
}

func clearDefault(addresses []types.SavedAddress) {
	for i := range addresses {
		addresses[i].IsDefault = false
	}
}

func nullable(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
