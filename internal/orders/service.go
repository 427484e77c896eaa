// Package orders owns the order lifecycle: checkout, status transitions,
// cancellation and ratings.
package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/loyalty"
	"github.com/angelmondragon/restaurant-backend/internal/notifications"
	"github.com/angelmondragon/restaurant-backend/pkg/auth"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/metrics"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/restaurant-backend/pkg/pagination"
)

const (
	defaultCancelNote = "تم إلغاء الطلب من قبل العميل"
	refundReason      = "إلغاء الطلب"
)

// Service defines order operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	Rate(ctx context.Context, input RateInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error)
	ListMine(ctx context.Context, userID uuid.UUID, page pagination.Params) (*pagination.Page[models.Order], error)
	ListAll(ctx context.Context, filter ListFilter) (*pagination.Page[models.Order], error)
}

type ServiceParams struct {
	Repository Repository
	DB         txRunner
	Outbox     outboxPublisher
	Loyalty    LoyaltyLedger
	Payments   PaymentReconciler
	Notifier   Notifier
	Fees       FeeSchedule
	Metrics    *metrics.OrderMetrics
	Logger     *logger.Logger
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	loyalty  LoyaltyLedger
	payments PaymentReconciler
	notifier Notifier
	fees     FeeSchedule
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox publisher required")
	}
	if params.Loyalty == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "loyalty ledger required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment reconciler required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifier required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repository,
		tx:       params.DB,
		outbox:   params.Outbox,
		loyalty:  params.Loyalty,
		payments: params.Payments,
		notifier: params.Notifier,
		fees:     params.Fees,
		metrics:  params.Metrics,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// Create prices a checkout request against the live menu and persists the
// order, its payment record and its loyalty movements in one transaction.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	user, err := s.repo.FindUser(ctx, input.UserID)
	if err != nil {
		return nil, mapFindError(err, "user not found")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is disabled")
	}
	fee, err := s.fees.Fee(input.DeliveryMethod, input.DeliveryAddress)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:                  uuid.New(),
		UserID:              user.ID,
		DeliveryMethod:      input.DeliveryMethod,
		DeliveryFee:         fee,
		DeliveryTime:        input.DeliveryTime,
		PaymentMethod:       input.PaymentMethod,
		PaymentStatus:       enums.OrderPaymentProcessing,
		Status:              enums.OrderStatusPending,
		SpecialInstructions: input.SpecialInstructions,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if !input.PaymentMethod.IsOnline() {
		order.PaymentStatus = enums.OrderPaymentPending
	}
	if input.DeliveryMethod == enums.DeliveryMethodDelivery {
		address := *input.DeliveryAddress
		order.DeliveryAddress = &address
	}

	var (
		earned   loyalty.AddResult
		redeemed loyalty.RedeemResult
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		items, err := s.priceItems(ctx, repo, order.ID, input.Items)
		if err != nil {
			return err
		}
		order.Items = items
		subtotal, _ := Totals(items, fee, decimal.Zero)

		discount := decimal.Zero
		if code := strings.TrimSpace(input.CouponCode); code != "" {
			coupon, ok := loyalty.FindCoupon(user.MembershipLevel, code, now)
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, "coupon is not available for this account")
			}
			discount = subtotal.Mul(decimal.NewFromInt(int64(coupon.Percent))).Div(decimal.NewFromInt(100)).Round(2)
			order.CouponCode = &coupon.Code
		}
		if input.RedeemPoints > 0 {
			pointsDiscount := loyalty.DiscountFor(input.RedeemPoints)
			if discount.Add(pointsDiscount).GreaterThan(subtotal.Add(fee)) {
				return pkgerrors.New(pkgerrors.CodeValidation, "redeemed points exceed the order total")
			}
			redeemed, err = s.loyalty.RedeemPoints(ctx, tx, loyalty.RedeemInput{
				UserID:  user.ID,
				OrderID: &order.ID,
				Points:  input.RedeemPoints,
			})
			if err != nil {
				return err
			}
			discount = discount.Add(redeemed.Discount)
			order.PointsRedeemed = input.RedeemPoints
		}

		order.Subtotal, order.TotalPrice = Totals(items, fee, discount)
		order.Discount = discount
		order.StatusHistory = newHistory(order.ID, &user.ID, now)
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if order.PaymentMethod.IsOnline() {
			if _, err := s.payments.OpenForOrder(ctx, tx, order); err != nil {
				return err
			}
		}

		earned, err = s.loyalty.AddPointsForOrder(ctx, tx, loyalty.AddPointsInput{
			UserID:  user.ID,
			OrderID: &order.ID,
			Amount:  order.TotalPrice,
		})
		if err != nil {
			return err
		}
		if earned.Points > 0 {
			if err := repo.SetLoyaltyEarned(ctx, order.ID, earned.Points); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record earned points")
			}
			order.LoyaltyPointsEarned = earned.Points
		}
		return s.emitCreated(ctx, tx, order, now)
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeValidation) {
			s.metrics.IncRejected("validation")
		}
		return nil, err
	}

	s.metrics.IncCreated()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"user_id":  order.UserID.String(),
		"total":    order.TotalPrice.String(),
		"points":   order.LoyaltyPointsEarned,
	}), "order created")

	res, dispatchErr := s.notifier.Dispatch(ctx, order.UserID, notifications.OrderConfirmation(order))
	s.notifier.Log(ctx, res, dispatchErr)
	subject, html := notifications.KitchenNewOrderEmail(order, user.Name, s.notifier.KitchenAppURL())
	s.notifier.LogChannel(ctx, s.notifier.NotifyKitchen(ctx, subject, html))
	s.loyalty.NotifyEarned(ctx, earned)
	s.loyalty.NotifyRedeemed(ctx, redeemed)
	return order, nil
}

func validateCreate(input CreateOrderInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	for i, item := range input.Items {
		if item.MenuItemID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "menu item id required").
				WithDetails(map[string]int{"index": i})
		}
		if item.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]int{"index": i})
		}
	}
	if !input.DeliveryMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery method")
	}
	hasAddress := input.DeliveryAddress != nil && !input.DeliveryAddress.IsZero()
	if input.DeliveryMethod == enums.DeliveryMethodDelivery && !hasAddress {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery address required for delivery orders")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	if input.RedeemPoints < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "redeem points cannot be negative")
	}
	return nil
}

func (s *service) priceItems(ctx context.Context, repo Repository, orderID uuid.UUID, lines []CreateOrderItem) ([]models.OrderItem, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.MenuItemID)
	}
	menu, err := repo.FindMenuItems(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu items")
	}
	byID := make(map[uuid.UUID]*models.MenuItem, len(menu))
	for i := range menu {
		byID[menu[i].ID] = &menu[i]
	}

	items := make([]models.OrderItem, 0, len(lines))
	for i, line := range lines {
		item, ok := byID[line.MenuItemID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found").
				WithDetails(map[string]string{"menu_item_id": line.MenuItemID.String()})
		}
		if !item.Available {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, item.Name+" is not available right now")
		}
		priced, err := priceLine(item, line, i+1)
		if err != nil {
			return nil, err
		}
		priced.ID = uuid.New()
		priced.OrderID = orderID
		items = append(items, priced)
	}
	return items, nil
}

func (s *service) emitCreated(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: string(enums.RoleCustomer)},
		Data: payloads.OrderCreatedEvent{
			OrderID:        order.ID,
			UserID:         order.UserID,
			DeliveryMethod: order.DeliveryMethod,
			PaymentMethod:  order.PaymentMethod,
			ItemCount:      len(order.Items),
			Subtotal:       order.Subtotal,
			DeliveryFee:    order.DeliveryFee,
			Discount:       order.Discount,
			TotalPrice:     order.TotalPrice,
			CreatedAt:      now,
		},
		OccurredAt: now,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
	}
	return nil
}

// Transition loads the order, applies the move and persists it with a
// version check. Cancelling a paid card or wallet order refunds it in the
// same transaction. Notifications go out after commit.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	var (
		order *models.Order
		from  enums.OrderStatus
	)
	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return mapFindError(err, "order not found")
		}
		order = loaded
		if input.Guard != nil {
			if err := input.Guard(order); err != nil {
				return err
			}
		}
		if input.ExpectedVersion != nil && *input.ExpectedVersion != order.Version {
			return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
		}

		from = order.Status
		version := order.Version
		hadDeliveredAt := order.DeliveredAt != nil
		entry, err := Apply(order, input.To, input.Note, actorID(input.Actor), now)
		if err != nil {
			return err
		}

		updates := map[string]any{"status": input.To, "updated_at": now}
		if !hadDeliveredAt && order.DeliveredAt != nil {
			updates["delivered_at"] = *order.DeliveredAt
		}
		if input.DeliveryAgentID != nil {
			order.DeliveryAgentID = input.DeliveryAgentID
			updates["delivery_agent_id"] = *input.DeliveryAgentID
		}
		ok, err := repo.UpdateVersioned(ctx, order.ID, version, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
		}
		order.Version = version + 1
		order.UpdatedAt = now
		if err := repo.InsertHistory(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
		}

		if needsRefund(order) {
			payment, err := s.payments.RefundForOrder(ctx, tx, order, refundReason)
			if err != nil {
				return err
			}
			if payment != nil && payment.Status == enums.PaymentStatusRefunded {
				order.PaymentStatus = enums.OrderPaymentRefunded
			}
		}
		if input.InTx != nil {
			if err := input.InTx(ctx, tx, order); err != nil {
				return err
			}
		}
		return s.emitStatusChanged(ctx, tx, order, from, input.Note, input.Actor, now)
	})
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeInvalidTransition) {
			s.metrics.IncRejected("invalid_transition")
		} else if pkgerrors.Is(err, pkgerrors.CodeConflict) {
			s.metrics.IncRejected("conflict")
		}
		return nil, err
	}

	s.metrics.IncTransition(string(from), string(order.Status))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"from":     from,
		"to":       order.Status,
		"version":  order.Version,
	}), "order status changed")
	s.notifyTransition(ctx, order)
	return order, nil
}

func needsRefund(order *models.Order) bool {
	return order.Status == enums.OrderStatusCancelled &&
		order.PaymentStatus == enums.OrderPaymentPaid &&
		order.PaymentMethod.IsOnline()
}

// Cancel is the customer-facing cancellation: owner or admin, and only
// before the kitchen starts cooking.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	note := input.Reason
	if note == "" {
		note = defaultCancelNote
	}
	return s.Transition(ctx, TransitionInput{
		OrderID: input.OrderID,
		To:      enums.OrderStatusCancelled,
		Note:    note,
		Actor:   input.Actor,
		Guard: func(order *models.Order) error {
			if !input.Actor.Owns(order.UserID) {
				return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to cancel this order")
			}
			if order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusConfirmed {
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order can no longer be cancelled").
					WithDetails(map[string]any{"status": order.Status})
			}
			return nil
		},
	})
}

func (s *service) Rate(ctx context.Context, input RateInput) (*models.Order, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, mapFindError(err, "order not found")
	}
	if order.UserID != input.Actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the customer can rate an order")
	}
	if order.Status != enums.OrderStatusDelivered && order.Status != enums.OrderStatusPickedUp {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only completed orders can be rated")
	}

	var comment *string
	if input.Comment != "" {
		comment = &input.Comment
	}
	now := s.now().UTC()
	ok, err := s.repo.SetRating(ctx, order.ID, input.Rating, comment, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store rating")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already rated")
	}
	order.Rating = &input.Rating
	order.RatingComment = comment
	order.RatedAt = &now
	return order, nil
}

// Get returns the order to its owner or to staff.
func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapFindError(err, "order not found")
	}
	if !actor.IsStaff() && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to view this order")
	}
	return order, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, page pagination.Params) (*pagination.Page[models.Order], error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.list(ctx, ListFilter{UserID: &userID, Page: page})
}

func (s *service) ListAll(ctx context.Context, filter ListFilter) (*pagination.Page[models.Order], error) {
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status "+string(status))
		}
	}
	return s.list(ctx, filter)
}

func (s *service) list(ctx context.Context, filter ListFilter) (*pagination.Page[models.Order], error) {
	if _, err := pagination.ParseCursor(filter.Page.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	items, next := pagination.Trim(rows, filter.Page.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	if items == nil {
		items = []models.Order{}
	}
	return &pagination.Page[models.Order]{Items: items, NextCursor: next}, nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus, note string, actor auth.Actor, now time.Time) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:        order.ID,
			UserID:         order.UserID,
			From:           from,
			To:             order.Status,
			Note:           note,
			DeliveryMethod: order.DeliveryMethod,
			TotalPrice:     order.TotalPrice,
			Version:        order.Version,
			ChangedAt:      now,
		},
		OccurredAt: now,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
	}
	return nil
}

func (s *service) notifyTransition(ctx context.Context, order *models.Order) {
	res, err := s.notifier.Dispatch(ctx, order.UserID, notifications.StatusMessage(order))
	s.notifier.Log(ctx, res, err)

	if order.Status == enums.OrderStatusCancelled {
		subject, html := notifications.KitchenCancellationEmail(order, s.customerName(ctx, order.UserID), s.notifier.KitchenAppURL())
		s.notifier.LogChannel(ctx, s.notifier.NotifyKitchen(ctx, subject, html))
	}
}

func (s *service) customerName(ctx context.Context, userID uuid.UUID) string {
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "user_id", userID.String()), "customer lookup for kitchen e-mail failed")
		return ""
	}
	return user.Name
}

func actorID(actor auth.Actor) *uuid.UUID {
	if actor.UserID == uuid.Nil {
		return nil
	}
	id := actor.UserID
	return &id
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

func mapFindError(err error, notFound string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, notFound)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
