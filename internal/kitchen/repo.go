package kitchen

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/repo"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

// Repository reads the kitchen's view of orders.
type Repository interface {
	ListByStatus(ctx context.Context, statuses ...enums.OrderStatus) ([]models.Order, error)
	MembershipLevels(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]enums.MembershipLevel, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	SetEstimate(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	CreatedSince(ctx context.Context, since time.Time) ([]models.Order, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

// ListByStatus returns matching orders oldest first with their lines.
func (r *repository) ListByStatus(ctx context.Context, statuses ...enums.OrderStatus) ([]models.Order, error) {
	var orders []models.Order
	err := r.DB(ctx).
		Scopes(repo.StatusIn(statuses...), repo.WithItems).
		Order("created_at ASC").Order("id ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repository) MembershipLevels(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]enums.MembershipLevel, error) {
	levels := make(map[uuid.UUID]enums.MembershipLevel, len(userIDs))
	if len(userIDs) == 0 {
		return levels, nil
	}
	var users []models.User
	err := r.DB(ctx).
		Select("id", "membership_level").
		Where("id IN ?", userIDs).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		levels[u.ID] = u.MembershipLevel
	}
	return levels, nil
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).Scopes(repo.WithItems).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// SetEstimate only touches orders the kitchen is still working on.
func (r *repository) SetEstimate(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Scopes(repo.StatusIn(enums.OrderStatusPending, enums.OrderStatusConfirmed, enums.OrderStatusPreparing)).
		UpdateColumns(map[string]any{"estimated_preparation_time": at, "updated_at": time.Now().UTC()})
	return repo.Affected(res)
}

func (r *repository) CreatedSince(ctx context.Context, since time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := r.DB(ctx).
		Scopes(repo.WithHistory).
		Where("created_at >= ?", since).
		Find(&orders).Error
	return orders, err
}
