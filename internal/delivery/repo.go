package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/repo"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindAgent(ctx context.Context, id uuid.UUID) (*models.DeliveryAgent, error)
	FindAgentByUser(ctx context.Context, userID uuid.UUID) (*models.DeliveryAgent, error)
	CreateAgent(ctx context.Context, agent *models.DeliveryAgent) error
	ListAgents(ctx context.Context, activeOnly bool) ([]models.DeliveryAgent, error)
	AdjustCounts(ctx context.Context, agentID uuid.UUID, current, completed int) error
	UpdateLocation(ctx context.Context, agentID uuid.UUID, lat, lng float64, at time.Time) error
	PromoteUser(ctx context.Context, userID uuid.UUID) (bool, error)
	ListReady(ctx context.Context) ([]models.Order, error)
	ListForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Order, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) FindAgent(ctx context.Context, id uuid.UUID) (*models.DeliveryAgent, error) {
	var agent models.DeliveryAgent
	if err := r.DB(ctx).First(&agent, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *repository) FindAgentByUser(ctx context.Context, userID uuid.UUID) (*models.DeliveryAgent, error) {
	var agent models.DeliveryAgent
	if err := r.DB(ctx).First(&agent, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *repository) CreateAgent(ctx context.Context, agent *models.DeliveryAgent) error {
	return r.DB(ctx).Create(agent).Error
}

func (r *repository) ListAgents(ctx context.Context, activeOnly bool) ([]models.DeliveryAgent, error) {
	var agents []models.DeliveryAgent
	q := r.DB(ctx).Order("current_orders ASC").Order("name ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&agents).Error
	return agents, err
}

// AdjustCounts shifts the agent's workload counters. The current count
// never drops below zero.
func (r *repository) AdjustCounts(ctx context.Context, agentID uuid.UUID, current, completed int) error {
	res := r.DB(ctx).
		Model(&models.DeliveryAgent{}).
		Where("id = ?", agentID).
		UpdateColumns(map[string]any{
			"current_orders":   gorm.Expr("CASE WHEN current_orders + ? < 0 THEN 0 ELSE current_orders + ? END", current, current),
			"completed_orders": gorm.Expr("completed_orders + ?", completed),
			"updated_at":       time.Now().UTC(),
		})
	ok, err := repo.Affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) UpdateLocation(ctx context.Context, agentID uuid.UUID, lat, lng float64, at time.Time) error {
	res := r.DB(ctx).
		Model(&models.DeliveryAgent{}).
		Where("id = ?", agentID).
		UpdateColumns(map[string]any{
			"lat":                  lat,
			"lng":                  lng,
			"last_location_update": at,
			"is_online":            true,
			"updated_at":           at,
		})
	ok, err := repo.Affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// PromoteUser gives an existing account the delivery role.
func (r *repository) PromoteUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]any{"role": enums.RoleDelivery, "updated_at": time.Now().UTC()})
	return repo.Affected(res)
}

// ListReady returns delivery orders waiting for an agent, oldest first.
func (r *repository) ListReady(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := r.DB(ctx).
		Scopes(repo.StatusIn(enums.OrderStatusReady), repo.WithItems).
		Where("delivery_method = ?", enums.DeliveryMethodDelivery).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repository) ListForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.DB(ctx).
		Scopes(repo.StatusIn(enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered), repo.WithItems).
		Where("delivery_agent_id = ?", agentID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}
