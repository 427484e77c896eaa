// Package kitchen serves the kitchen screen: the prioritized queue, status
// updates, preparation estimates and the daily counters.
package kitchen

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/notifications"
	"github.com/angelmondragon/restaurant-backend/internal/orders"
	"github.com/angelmondragon/restaurant-backend/pkg/auth"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
)

// statuses the kitchen screen may set; delivery moves belong to agents.
var kitchenStatuses = map[enums.OrderStatus]bool{
	enums.OrderStatusConfirmed: true,
	enums.OrderStatusPreparing: true,
	enums.OrderStatusReady:     true,
	enums.OrderStatusPickedUp:  true,
	enums.OrderStatusCancelled: true,
}

type transitioner interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*models.Order, error)
}

type notifier interface {
	Dispatch(ctx context.Context, userID uuid.UUID, msg notifications.Message) (notifications.DispatchResult, error)
	Log(ctx context.Context, result notifications.DispatchResult, err error)
}

type StatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus `json:"status" validate:"required"`
	Note    string            `json:"note" validate:"max=500"`
	Actor   auth.Actor
}

// Stats summarises the orders created since the start of the day.
type Stats struct {
	Counts             map[enums.OrderStatus]int `json:"counts"`
	Total              int                       `json:"total"`
	Revenue            decimal.Decimal           `json:"revenue"`
	AveragePrepMinutes int                       `json:"avg_prep_minutes"`
}

type Service interface {
	ActiveQueue(ctx context.Context) ([]ScoredOrder, error)
	ReadyOrders(ctx context.Context) ([]models.Order, error)
	UpdateStatus(ctx context.Context, input StatusInput) (*models.Order, error)
	SetEstimatedTime(ctx context.Context, orderID uuid.UUID, minutes int) (*models.Order, error)
	Stats(ctx context.Context) (*Stats, error)
}

type ServiceParams struct {
	Repository Repository
	Orders     transitioner
	Notifier   notifier
	Location   *time.Location
	Logger     *logger.Logger
}

type service struct {
	repo     Repository
	orders   transitioner
	notifier notifier
	loc      *time.Location
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "kitchen repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order service required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifier required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repository,
		orders:   params.Orders,
		notifier: params.Notifier,
		loc:      loc,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) ActiveQueue(ctx context.Context) ([]ScoredOrder, error) {
	active, err := s.repo.ListByStatus(ctx, enums.OrderStatusPending, enums.OrderStatusConfirmed, enums.OrderStatusPreparing)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active orders")
	}
	ids := make([]uuid.UUID, 0, len(active))
	for _, o := range active {
		ids = append(ids, o.UserID)
	}
	levels, err := s.repo.MembershipLevels(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership levels")
	}

	entries := make([]QueueEntry, 0, len(active))
	for _, o := range active {
		level, ok := levels[o.UserID]
		if !ok {
			level = enums.MembershipBronze
		}
		entries = append(entries, QueueEntry{Order: o, Membership: level})
	}
	return Prioritize(entries, s.now()), nil
}

func (s *service) ReadyOrders(ctx context.Context) ([]models.Order, error) {
	ready, err := s.repo.ListByStatus(ctx, enums.OrderStatusReady)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ready orders")
	}
	if ready == nil {
		ready = []models.Order{}
	}
	return ready, nil
}

// UpdateStatus hands the move to the order state machine, which owns
// legality, history, refunds and customer notifications.
func (s *service) UpdateStatus(ctx context.Context, input StatusInput) (*models.Order, error) {
	if !kitchenStatuses[input.Status] {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status cannot be set from the kitchen").
			WithDetails(map[string]any{"status": input.Status})
	}
	return s.orders.Transition(ctx, orders.TransitionInput{
		OrderID: input.OrderID,
		To:      input.Status,
		Note:    input.Note,
		Actor:   input.Actor,
	})
}

func (s *service) SetEstimatedTime(ctx context.Context, orderID uuid.UUID, minutes int) (*models.Order, error) {
	if minutes < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "estimated minutes must be at least 1")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	at := s.now().UTC().Add(time.Duration(minutes) * time.Minute)
	ok, err := s.repo.SetEstimate(ctx, orderID, at)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store estimate")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "order is no longer in the kitchen").
			WithDetails(map[string]any{"status": order.Status})
	}
	order.EstimatedPreparationTime = &at

	res, err := s.notifier.Dispatch(ctx, order.UserID, notifications.EstimatedTimeMessage(order, minutes))
	s.notifier.Log(ctx, res, err)
	return order, nil
}

// Stats covers orders created since local midnight. Revenue counts ready
// and delivered orders; the average runs from creation to the first ready
// entry over the orders that have one.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	now := s.now().In(s.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	rows, err := s.repo.CreatedSince(ctx, midnight.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load today's orders")
	}

	stats := &Stats{Counts: map[enums.OrderStatus]int{}, Revenue: decimal.Zero}
	var prepTotal time.Duration
	prepCount := 0
	for _, o := range rows {
		stats.Counts[o.Status]++
		stats.Total++
		if o.Status == enums.OrderStatusReady || o.Status == enums.OrderStatusDelivered {
			stats.Revenue = stats.Revenue.Add(o.TotalPrice)
		}
		for _, h := range o.StatusHistory {
			if h.Status == enums.OrderStatusReady {
				prepTotal += h.Timestamp.Sub(o.CreatedAt)
				prepCount++
				break
			}
		}
	}
	if prepCount > 0 {
		stats.AveragePrepMinutes = int((prepTotal / time.Duration(prepCount)).Round(time.Minute) / time.Minute)
	}
	return stats, nil
}
