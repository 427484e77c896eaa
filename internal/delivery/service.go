// Package delivery binds ready orders to delivery agents and lets agents
// close them out.
package delivery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/orders"
	"github.com/angelmondragon/restaurant-backend/pkg/auth"
	"github.com/angelmondragon/restaurant-backend/pkg/db"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type transitioner interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error)
}

type AssignInput struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
	AgentID uuid.UUID `json:"agent_id" validate:"required"`
	Actor   auth.Actor
}

type AgentStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus `json:"status" validate:"required"`
	Note    string            `json:"note" validate:"max=500"`
	Actor   auth.Actor
}

type LocationInput struct {
	Lat   float64 `json:"latitude" validate:"required,latitude"`
	Lng   float64 `json:"longitude" validate:"required,longitude"`
	Actor auth.Actor
}

type RegisterAgentInput struct {
	UserID        uuid.UUID         `json:"user_id" validate:"required"`
	Name          string            `json:"name" validate:"required,max=120"`
	Phone         string            `json:"phone" validate:"required,phone"`
	VehicleType   enums.VehicleType `json:"vehicle_type" validate:"required"`
	VehicleNumber string            `json:"vehicle_number" validate:"max=32"`
	LicenseNumber string            `json:"license_number" validate:"max=64"`
}

type Service interface {
	AssignAgent(ctx context.Context, input AssignInput) (*models.Order, error)
	AgentUpdateStatus(ctx context.Context, input AgentStatusInput) (*models.Order, error)
	ListAvailable(ctx context.Context) ([]models.Order, error)
	ListAgentOrders(ctx context.Context, agentID uuid.UUID, actor auth.Actor) ([]models.Order, error)
	UpdateLocation(ctx context.Context, input LocationInput) error
	RegisterAgent(ctx context.Context, input RegisterAgentInput) (*models.DeliveryAgent, error)
	ListAgents(ctx context.Context, activeOnly bool) ([]models.DeliveryAgent, error)
}

type ServiceParams struct {
	Repository Repository
	DB         txRunner
	Orders     transitioner
	Logger     *logger.Logger
}

type service struct {
	repo   Repository
	tx     txRunner
	orders transitioner
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "delivery repository required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: params.Repository, tx: params.DB, orders: params.Orders, logg: logg, now: time.Now}, nil
}

// AssignAgent hands a ready delivery order to an active agent and moves it
// out for delivery. The agent's workload is bumped in the same transaction
// as the status write.
func (s *service) AssignAgent(ctx context.Context, input AssignInput) (*models.Order, error) {
	agent, err := s.repo.FindAgent(ctx, input.AgentID)
	if err != nil {
		return nil, mapAgentError(err)
	}
	if !agent.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery agent not found")
	}

	order, err := s.orders.Transition(ctx, orders.TransitionInput{
		OrderID:         input.OrderID,
		To:              enums.OrderStatusOutForDelivery,
		Note:            "تم تعيين المندوب " + agent.Name,
		Actor:           input.Actor,
		DeliveryAgentID: &agent.ID,
		Guard: func(order *models.Order) error {
			if order.Status != enums.OrderStatusReady || order.DeliveryMethod != enums.DeliveryMethodDelivery {
				return pkgerrors.New(pkgerrors.CodeNotEligible, "order is not eligible for delivery").
					WithDetails(map[string]any{"status": order.Status, "delivery_method": order.DeliveryMethod})
			}
			return nil
		},
		InTx: func(ctx context.Context, tx *gorm.DB, order *models.Order) error {
			if err := s.repo.WithTx(tx).AdjustCounts(ctx, agent.ID, 1, 0); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent workload")
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"agent_id": agent.ID.String(),
	}), "delivery agent assigned")
	return order, nil
}

// AgentUpdateStatus lets the assigned agent mark the order delivered.
func (s *service) AgentUpdateStatus(ctx context.Context, input AgentStatusInput) (*models.Order, error) {
	if input.Status != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agents can only mark orders delivered")
	}
	agent, err := s.agentFor(ctx, input.Actor)
	if err != nil {
		return nil, err
	}

	return s.orders.Transition(ctx, orders.TransitionInput{
		OrderID: input.OrderID,
		To:      input.Status,
		Note:    input.Note,
		Actor:   input.Actor,
		Guard: func(order *models.Order) error {
			if order.DeliveryAgentID == nil || *order.DeliveryAgentID != agent.ID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order is assigned to another agent")
			}
			return nil
		},
		InTx: func(ctx context.Context, tx *gorm.DB, order *models.Order) error {
			if err := s.repo.WithTx(tx).AdjustCounts(ctx, agent.ID, -1, 1); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent workload")
			}
			return nil
		},
	})
}

func (s *service) ListAvailable(ctx context.Context) ([]models.Order, error) {
	rows, err := s.repo.ListReady(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ready deliveries")
	}
	if rows == nil {
		rows = []models.Order{}
	}
	return rows, nil
}

// ListAgentOrders returns an agent's current and completed deliveries.
// Agents only see their own; admins may look up anyone.
func (s *service) ListAgentOrders(ctx context.Context, agentID uuid.UUID, actor auth.Actor) ([]models.Order, error) {
	if !actor.IsAdmin() {
		own, err := s.agentFor(ctx, actor)
		if err != nil {
			return nil, err
		}
		if agentID == uuid.Nil {
			agentID = own.ID
		}
		if agentID != own.ID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to view another agent's orders")
		}
	}
	if _, err := s.repo.FindAgent(ctx, agentID); err != nil {
		return nil, mapAgentError(err)
	}
	rows, err := s.repo.ListForAgent(ctx, agentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agent orders")
	}
	if rows == nil {
		rows = []models.Order{}
	}
	return rows, nil
}

func (s *service) UpdateLocation(ctx context.Context, input LocationInput) error {
	if input.Lat < -90 || input.Lat > 90 || input.Lng < -180 || input.Lng > 180 {
		return pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}
	agent, err := s.agentFor(ctx, input.Actor)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateLocation(ctx, agent.ID, input.Lat, input.Lng, s.now().UTC()); err != nil {
		return mapAgentError(err)
	}
	return nil
}

// RegisterAgent turns an existing account into a delivery agent.
func (s *service) RegisterAgent(ctx context.Context, input RegisterAgentInput) (*models.DeliveryAgent, error) {
	if input.UserID == uuid.Nil || strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Phone) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user, name and phone are required")
	}
	if !input.VehicleType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown vehicle type")
	}

	agent := &models.DeliveryAgent{
		ID:            uuid.New(),
		UserID:        input.UserID,
		Name:          strings.TrimSpace(input.Name),
		Phone:         strings.TrimSpace(input.Phone),
		VehicleType:   input.VehicleType,
		VehicleNumber: optional(input.VehicleNumber),
		LicenseNumber: optional(input.LicenseNumber),
		IsActive:      true,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		promoted, err := repo.PromoteUser(ctx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user role")
		}
		if !promoted {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		if err := repo.CreateAgent(ctx, agent); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "user is already a delivery agent")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delivery agent")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agent, nil
}

func (s *service) ListAgents(ctx context.Context, activeOnly bool) ([]models.DeliveryAgent, error) {
	agents, err := s.repo.ListAgents(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list delivery agents")
	}
	if agents == nil {
		agents = []models.DeliveryAgent{}
	}
	return agents, nil
}

// agentFor resolves the caller's agent record from the token or the user id.
func (s *service) agentFor(ctx context.Context, actor auth.Actor) (*models.DeliveryAgent, error) {
	if actor.Role != enums.RoleDelivery {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "delivery role required")
	}
	var (
		agent *models.DeliveryAgent
		err   error
	)
	if actor.AgentID != nil {
		agent, err = s.repo.FindAgent(ctx, *actor.AgentID)
	} else {
		agent, err = s.repo.FindAgentByUser(ctx, actor.UserID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "no delivery agent profile for this account")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery agent")
	}
	if agent.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "agent does not belong to this account")
	}
	return agent, nil
}

func mapAgentError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "delivery agent not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery agent")
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
