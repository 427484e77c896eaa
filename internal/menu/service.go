package menu

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/pkg/db"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

// Service exposes the public menu and its admin management.
type Service interface {
	ListCategories(ctx context.Context, includeInactive bool) ([]models.Category, error)
	CreateCategory(ctx context.Context, input CategoryInput) (*models.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, input UpdateCategoryInput) (*models.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	ListItems(ctx context.Context, filter ItemFilter) ([]models.MenuItem, error)
	GetItem(ctx context.Context, id uuid.UUID) (*models.MenuItem, error)
	Featured(ctx context.Context) ([]models.MenuItem, error)
	CreateItem(ctx context.Context, input ItemInput) (*models.MenuItem, error)
	UpdateItem(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*models.MenuItem, error)
	DeleteItem(ctx context.Context, id uuid.UUID) error
}

type ServiceParams struct {
	Repository Repository
	Logger     *logger.Logger
}

type service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "menu repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: params.Repository, logg: logg}, nil
}

func (s *service) ListCategories(ctx context.Context, includeInactive bool) ([]models.Category, error) {
	rows, err := s.repo.ListCategories(ctx, !includeInactive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return rows, nil
}

func (s *service) CreateCategory(ctx context.Context, input CategoryInput) (*models.Category, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category name is required")
	}
	category := &models.Category{
		ID:          uuid.New(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Image:       input.Image,
		SortOrder:   input.SortOrder,
		IsActive:    input.IsActive == nil || *input.IsActive,
	}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, mapWriteError(err, "create category")
	}
	s.logg.Info(s.logg.WithField(ctx, "category_id", category.ID.String()), "menu category created")
	return category, nil
}

func (s *service) UpdateCategory(ctx context.Context, id uuid.UUID, input UpdateCategoryInput) (*models.Category, error) {
	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "category name is required")
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Image != nil {
		updates["image"] = input.Image
	}
	if input.SortOrder != nil {
		updates["sort_order"] = *input.SortOrder
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) > 0 {
		if err := s.repo.UpdateCategory(ctx, id, updates); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
			}
			return nil, mapWriteError(err, "update category")
		}
	}
	return s.category(ctx, id)
}

// DeleteCategory refuses while items still reference the category.
func (s *service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	n, err := s.repo.CountItems(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count category items")
	}
	if n > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "category still has menu items").
			WithDetails(map[string]any{"items": n})
	}
	ok, err := s.repo.DeleteCategory(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete category")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
	}
	return nil
}

func (s *service) ListItems(ctx context.Context, filter ItemFilter) ([]models.MenuItem, error) {
	if filter.CategoryID != nil {
		if _, err := s.category(ctx, *filter.CategoryID); err != nil {
			return nil, err
		}
	}
	rows, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list menu items")
	}
	return rows, nil
}

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*models.MenuItem, error) {
	item, err := s.repo.FindItem(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu item")
	}
	return item, nil
}

func (s *service) Featured(ctx context.Context) ([]models.MenuItem, error) {
	rows, err := s.repo.Featured(ctx, featuredLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list featured items")
	}
	return rows, nil
}

func (s *service) CreateItem(ctx context.Context, input ItemInput) (*models.MenuItem, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if err := validatePrice(input.Price); err != nil {
		return nil, err
	}
	if err := ValidateOptions(input.Options); err != nil {
		return nil, err
	}
	if _, err := s.category(ctx, input.CategoryID); err != nil {
		return nil, err
	}

	prep := input.PrepTime
	if prep <= 0 {
		prep = defaultPrepTime
	}
	item := &models.MenuItem{
		ID:          uuid.New(),
		CategoryID:  input.CategoryID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Price:       input.Price.Round(2),
		Image:       input.Image,
		Options:     input.Options,
		PrepTime:    prep,
		Available:   input.Available == nil || *input.Available,
		Featured:    input.Featured,
		SpicyLevel:  input.SpicyLevel,
		Vegan:       input.Vegan,
		Vegetarian:  input.Vegetarian || input.Vegan,
		SortOrder:   input.SortOrder,
		Tags:        normalizeTags(input.Tags),
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, mapWriteError(err, "create menu item")
	}
	return item, nil
}

func (s *service) UpdateItem(ctx context.Context, id uuid.UUID, input UpdateItemInput) (*models.MenuItem, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.CategoryID != nil && *input.CategoryID != item.CategoryID {
		if _, err := s.category(ctx, *input.CategoryID); err != nil {
			return nil, err
		}
		item.CategoryID = *input.CategoryID
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
		}
		item.Name = name
	}
	if input.Description != nil {
		item.Description = strings.TrimSpace(*input.Description)
	}
	if input.Price != nil {
		if err := validatePrice(*input.Price); err != nil {
			return nil, err
		}
		item.Price = input.Price.Round(2)
	}
	if input.Image != nil {
		item.Image = input.Image
	}
	if input.Options != nil {
		if err := ValidateOptions(*input.Options); err != nil {
			return nil, err
		}
		item.Options = *input.Options
	}
	if input.PrepTime != nil {
		if *input.PrepTime < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "prep time must be at least one minute")
		}
		item.PrepTime = *input.PrepTime
	}
	if input.Available != nil {
		item.Available = *input.Available
	}
	if input.Featured != nil {
		item.Featured = *input.Featured
	}
	if input.SpicyLevel != nil {
		item.SpicyLevel = *input.SpicyLevel
	}
	if input.Vegan != nil {
		item.Vegan = *input.Vegan
	}
	if input.Vegetarian != nil {
		item.Vegetarian = *input.Vegetarian
	}
	if input.SortOrder != nil {
		item.SortOrder = *input.SortOrder
	}
	if input.Tags != nil {
		item.Tags = normalizeTags(*input.Tags)
	}

	if err := s.repo.SaveItem(ctx, item); err != nil {
		return nil, mapWriteError(err, "update menu item")
	}
	return item, nil
}

func (s *service) DeleteItem(ctx context.Context, id uuid.UUID) error {
	ok, err := s.repo.DeleteItem(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete menu item")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
	}
	return nil
}

func (s *service) category(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	category, err := s.repo.FindCategory(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}
	return category, nil
}

// ValidateOptions rejects unnamed options, duplicate choices and negative
// price deltas.
func ValidateOptions(options []types.MenuOption) error {
	seen := make(map[string]struct{}, len(options))
	for _, opt := range options {
		name := strings.TrimSpace(opt.Name)
		if name == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "option name is required")
		}
		if _, dup := seen[name]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate option "+name)
		}
		seen[name] = struct{}{}
		if len(opt.Choices) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "option "+name+" has no choices")
		}
		choices := make(map[string]struct{}, len(opt.Choices))
		for _, choice := range opt.Choices {
			if strings.TrimSpace(choice.Name) == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "choice name is required")
			}
			if _, dup := choices[choice.Name]; dup {
				return pkgerrors.New(pkgerrors.CodeValidation, "duplicate choice "+choice.Name)
			}
			choices[choice.Name] = struct{}{}
			if choice.Price.IsNegative() {
				return pkgerrors.New(pkgerrors.CodeValidation, "choice price cannot be negative")
			}
		}
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func mapWriteError(err error, msg string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "category name already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
