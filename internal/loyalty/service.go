package loyalty

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/notifications"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/restaurant-backend/pkg/pagination"
)

// Service owns balance mutations and the read side of the loyalty program.
// Mutations run inside the caller's transaction; notifications go out
// separately once that transaction has committed.
type Service interface {
	AddPointsForOrder(ctx context.Context, tx *gorm.DB, input AddPointsInput) (AddResult, error)
	RedeemPoints(ctx context.Context, tx *gorm.DB, input RedeemInput) (RedeemResult, error)
	NotifyEarned(ctx context.Context, result AddResult)
	NotifyRedeemed(ctx context.Context, result RedeemResult)
	GetUserLoyalty(ctx context.Context, userID uuid.UUID) (*Summary, error)
	History(ctx context.Context, userID uuid.UUID, page pagination.Params) (*pagination.Page[models.LoyaltyEntry], error)
	AvailableCoupons(ctx context.Context, userID uuid.UUID) ([]Coupon, error)
}

type notifier interface {
	Dispatch(ctx context.Context, userID uuid.UUID, msg notifications.Message) (notifications.DispatchResult, error)
	Log(ctx context.Context, result notifications.DispatchResult, err error)
}

// AddPointsInput credits points for a paid amount.
type AddPointsInput struct {
	UserID  uuid.UUID
	OrderID *uuid.UUID
	Amount  decimal.Decimal
}

// AddResult describes a credit. Points is zero when nothing was written.
type AddResult struct {
	UserID        uuid.UUID             `json:"user_id"`
	OrderID       *uuid.UUID            `json:"order_id,omitempty"`
	Points        int                   `json:"points"`
	Balance       int                   `json:"balance"`
	TotalEarned   int                   `json:"total_points_earned"`
	Level         enums.MembershipLevel `json:"membership_level"`
	PreviousLevel enums.MembershipLevel `json:"previous_level"`
}

// LevelChanged reports a promotion caused by this credit.
func (r AddResult) LevelChanged() bool {
	return r.PreviousLevel != "" && r.Level != r.PreviousLevel
}

// RedeemInput spends points, usually against an order being created.
type RedeemInput struct {
	UserID  uuid.UUID
	OrderID *uuid.UUID
	Points  int
}

type RedeemResult struct {
	UserID   uuid.UUID       `json:"user_id"`
	OrderID  *uuid.UUID      `json:"order_id,omitempty"`
	Points   int             `json:"points"`
	Discount decimal.Decimal `json:"discount"`
	Balance  int             `json:"balance"`
}

// Summary is the customer-facing view of their loyalty account.
type Summary struct {
	CurrentPoints     int                    `json:"current_points"`
	TotalPointsEarned int                    `json:"total_points_earned"`
	MembershipLevel   enums.MembershipLevel  `json:"membership_level"`
	NextLevel         *enums.MembershipLevel `json:"next_level"`
	PointsToNextLevel int                    `json:"points_to_next_level"`
	Benefits          []string               `json:"benefits"`
}

type ServiceParams struct {
	Repository Repository
	Outbox     outbox.Emitter
	Notifier   notifier
	Logger     *logger.Logger
}

type service struct {
	repo     Repository
	outbox   outbox.Emitter
	notifier notifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the loyalty service. Notifier may be nil, in which case
// credits and redemptions are silent.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "loyalty repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repository,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) AddPointsForOrder(ctx context.Context, tx *gorm.DB, input AddPointsInput) (AddResult, error) {
	if tx == nil {
		return AddResult{}, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.UserID == uuid.Nil {
		return AddResult{}, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	repo := s.repo.WithTx(tx)
	user, err := repo.FindUser(ctx, input.UserID)
	if err != nil {
		return AddResult{}, mapLookupError(err)
	}

	result := AddResult{
		UserID:        user.ID,
		OrderID:       input.OrderID,
		Balance:       user.LoyaltyPoints,
		TotalEarned:   user.TotalPointsEarned,
		Level:         user.MembershipLevel,
		PreviousLevel: user.MembershipLevel,
	}
	points := PointsFor(input.Amount, user.MembershipLevel)
	if points == 0 {
		return result, nil
	}

	if err := repo.Credit(ctx, user.ID, points); err != nil {
		return AddResult{}, mapLookupError(err)
	}
	result.Points = points
	result.Balance += points
	result.TotalEarned += points
	result.Level = LevelFor(result.TotalEarned)
	if result.Level != user.MembershipLevel {
		if err := repo.SetLevel(ctx, user.ID, result.Level); err != nil {
			return AddResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update membership level")
		}
	}

	entry := &models.LoyaltyEntry{
		UserID:      user.ID,
		OrderID:     input.OrderID,
		Type:        enums.LoyaltyEntryEarned,
		Points:      points,
		Description: entryDescription("طلب #", "نقاط ولاء", input.OrderID),
	}
	if err := repo.InsertEntry(ctx, entry); err != nil {
		return AddResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record loyalty entry")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventLoyaltyPointsAdded,
		AggregateType: enums.AggregateUser,
		AggregateID:   user.ID,
		Data: payloads.LoyaltyPointsAddedEvent{
			UserID:          user.ID,
			OrderID:         input.OrderID,
			Points:          points,
			Balance:         result.Balance,
			MembershipLevel: result.Level,
		},
		OccurredAt: s.now().UTC(),
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return AddResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit loyalty event")
	}
	return result, nil
}

func (s *service) RedeemPoints(ctx context.Context, tx *gorm.DB, input RedeemInput) (RedeemResult, error) {
	if tx == nil {
		return RedeemResult{}, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.UserID == uuid.Nil {
		return RedeemResult{}, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.Points <= 0 {
		return RedeemResult{}, pkgerrors.New(pkgerrors.CodeValidation, "points must be positive")
	}

	repo := s.repo.WithTx(tx)
	ok, err := repo.Debit(ctx, input.UserID, input.Points)
	if err != nil {
		return RedeemResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit loyalty points")
	}
	user, err := repo.FindUser(ctx, input.UserID)
	if err != nil {
		return RedeemResult{}, mapLookupError(err)
	}
	if !ok {
		return RedeemResult{}, pkgerrors.New(pkgerrors.CodeInsufficientPoints, "not enough loyalty points").
			WithDetails(map[string]int{"available": user.LoyaltyPoints, "requested": input.Points})
	}

	entry := &models.LoyaltyEntry{
		UserID:      input.UserID,
		OrderID:     input.OrderID,
		Type:        enums.LoyaltyEntryRedeemed,
		Points:      input.Points,
		Description: entryDescription("خصم على طلب #", "استبدال نقاط", input.OrderID),
	}
	if err := repo.InsertEntry(ctx, entry); err != nil {
		return RedeemResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record loyalty entry")
	}

	return RedeemResult{
		UserID:   input.UserID,
		OrderID:  input.OrderID,
		Points:   input.Points,
		Discount: DiscountFor(input.Points),
		Balance:  user.LoyaltyPoints,
	}, nil
}

func (s *service) NotifyEarned(ctx context.Context, result AddResult) {
	if s.notifier == nil || result.Points <= 0 {
		return
	}
	res, err := s.notifier.Dispatch(ctx, result.UserID, notifications.LoyaltyEarnedMessage(result.Points, result.OrderID))
	s.notifier.Log(ctx, res, err)
}

func (s *service) NotifyRedeemed(ctx context.Context, result RedeemResult) {
	if s.notifier == nil || result.Points <= 0 {
		return
	}
	res, err := s.notifier.Dispatch(ctx, result.UserID, notifications.LoyaltyRedeemedMessage(result.Points, result.Discount))
	s.notifier.Log(ctx, res, err)
}

func (s *service) GetUserLoyalty(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	summary := &Summary{
		CurrentPoints:     user.LoyaltyPoints,
		TotalPointsEarned: user.TotalPointsEarned,
		MembershipLevel:   user.MembershipLevel,
		Benefits:          Benefits(user.MembershipLevel),
	}
	if next, threshold, ok := NextLevel(user.MembershipLevel); ok {
		summary.NextLevel = &next
		if remaining := threshold - user.TotalPointsEarned; remaining > 0 {
			summary.PointsToNextLevel = remaining
		}
	}
	return summary, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, page pagination.Params) (*pagination.Page[models.LoyaltyEntry], error) {
	if _, err := pagination.ParseCursor(page.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListEntries(ctx, userID, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loyalty history")
	}
	items, next := pagination.Trim(rows, page.Limit, func(e models.LoyaltyEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	if items == nil {
		items = []models.LoyaltyEntry{}
	}
	return &pagination.Page[models.LoyaltyEntry]{Items: items, NextCursor: next}, nil
}

func (s *service) AvailableCoupons(ctx context.Context, userID uuid.UUID) ([]Coupon, error) {
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return CouponsFor(user.MembershipLevel, s.now().UTC()), nil
}

func entryDescription(prefix, fallback string, orderID *uuid.UUID) string {
	if orderID == nil {
		return fallback
	}
	return prefix + notifications.ShortID(*orderID)
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loyalty account")
}
