package menu

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/repo"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
)

type Repository interface {
	ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error)
	FindCategory(ctx context.Context, id uuid.UUID) (*models.Category, error)
	CreateCategory(ctx context.Context, category *models.Category) error
	UpdateCategory(ctx context.Context, id uuid.UUID, updates map[string]any) error
	DeleteCategory(ctx context.Context, id uuid.UUID) (bool, error)
	CountItems(ctx context.Context, categoryID uuid.UUID) (int64, error)

	ListItems(ctx context.Context, filter ItemFilter) ([]models.MenuItem, error)
	Featured(ctx context.Context, limit int) ([]models.MenuItem, error)
	FindItem(ctx context.Context, id uuid.UUID) (*models.MenuItem, error)
	CreateItem(ctx context.Context, item *models.MenuItem) error
	SaveItem(ctx context.Context, item *models.MenuItem) error
	DeleteItem(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	q := r.DB(ctx).Order("sort_order ASC").Order("name ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []models.Category
	err := q.Find(&rows).Error
	return rows, err
}

func (r *repository) FindCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := r.DB(ctx).First(&category, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *repository) CreateCategory(ctx context.Context, category *models.Category) error {
	return r.DB(ctx).Create(category).Error
}

func (r *repository) UpdateCategory(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.DB(ctx).Model(&models.Category{}).Where("id = ?", id).Updates(updates)
	ok, err := repo.Affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) DeleteCategory(ctx context.Context, id uuid.UUID) (bool, error) {
	return repo.Affected(r.DB(ctx).Delete(&models.Category{}, "id = ?", id))
}

func (r *repository) CountItems(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.MenuItem{}).Where("category_id = ?", categoryID).Count(&n).Error
	return n, err
}

func (r *repository) ListItems(ctx context.Context, filter ItemFilter) ([]models.MenuItem, error) {
	q := r.DB(ctx).Model(&models.MenuItem{})
	if filter.CategoryID != nil {
		q = q.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.AvailableOnly {
		q = q.Where("available = ?", true)
	}
	if term := strings.TrimSpace(filter.Query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	var rows []models.MenuItem
	err := q.Order("sort_order ASC").Order("name ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) Featured(ctx context.Context, limit int) ([]models.MenuItem, error) {
	var rows []models.MenuItem
	err := r.DB(ctx).
		Where("featured = ? AND available = ?", true, true).
		Order("sort_order ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindItem(ctx context.Context, id uuid.UUID) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.DB(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) CreateItem(ctx context.Context, item *models.MenuItem) error {
	return r.DB(ctx).Create(item).Error
}

// SaveItem writes every column, including zero values.
func (r *repository) SaveItem(ctx context.Context, item *models.MenuItem) error {
	return r.DB(ctx).Save(item).Error
}

func (r *repository) DeleteItem(ctx context.Context, id uuid.UUID) (bool, error) {
	return repo.Affected(r.DB(ctx).Delete(&models.MenuItem{}, "id = ?", id))
}
