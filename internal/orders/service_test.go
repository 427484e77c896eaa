package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/loyalty"
	"github.com/angelmondragon/restaurant-backend/internal/notifications"
	"github.com/angelmondragon/restaurant-backend/internal/payments"
	"github.com/angelmondragon/restaurant-backend/pkg/auth"
	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db"
	"github.com/angelmondragon/restaurant-backend/pkg/db/dbtest"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox"
	"github.com/angelmondragon/restaurant-backend/pkg/pagination"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

type recordingNotifier struct {
	messages []notifications.Message
	kitchen  []string
}

func (r *recordingNotifier) Dispatch(ctx context.Context, userID uuid.UUID, msg notifications.Message) (notifications.DispatchResult, error) {
	r.messages = append(r.messages, msg)
	return notifications.DispatchResult{NotificationID: uuid.New(), Delivered: true}, nil
}

func (r *recordingNotifier) NotifyKitchen(ctx context.Context, subject, html string) notifications.ChannelResult {
	r.kitchen = append(r.kitchen, subject)
	return notifications.ChannelResult{Channel: enums.NotificationChannelEmail}
}

func (r *recordingNotifier) KitchenAppURL() string { return "http://kitchen.test" }

func (r *recordingNotifier) Log(ctx context.Context, result notifications.DispatchResult, err error) {}

func (r *recordingNotifier) LogChannel(ctx context.Context, result notifications.ChannelResult) {}

type refundingGateway struct {
	*payments.SimulatedGateway
	refundErr error
}

func (g *refundingGateway) Refund(ctx context.Context, req payments.RefundRequest) (payments.RefundResult, error) {
	if g.refundErr != nil {
		return payments.RefundResult{}, g.refundErr
	}
	return g.SimulatedGateway.Refund(ctx, req)
}

type fixture struct {
	db       *gorm.DB
	svc      Service
	notifier *recordingNotifier
	gateway  *refundingGateway
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	runner := db.NewFromConn(conn)

	ledger, err := loyalty.NewService(loyalty.ServiceParams{
		Repository: loyalty.NewRepository(conn),
		Outbox:     emitter,
	})
	require.NoError(t, err)

	gw := &refundingGateway{SimulatedGateway: payments.NewSimulatedGateway("http://app.test")}
	reconciler, err := payments.NewService(payments.ServiceParams{
		DB:         runner,
		Repository: payments.NewRepository(conn),
		Gateway:    gw,
		Outbox:     emitter,
		Config:     config.PaymentsConfig{SessionTTL: 15 * time.Minute},
		Currency:   "SAR",
	})
	require.NoError(t, err)

	fees, err := NewFeeSchedule(config.DeliveryConfig{FlatFee: "10"})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		DB:         runner,
		Outbox:     emitter,
		Loyalty:    ledger,
		Payments:   reconciler,
		Notifier:   notifier,
		Fees:       fees,
	})
	require.NoError(t, err)
	return fixture{db: conn, svc: svc, notifier: notifier, gateway: gw}
}

func seedCustomer(t *testing.T, conn *gorm.DB, balance, total int, level enums.MembershipLevel) models.User {
	t.Helper()
	user := models.User{
		ID:                uuid.New(),
		Name:              "Sara",
		Role:              enums.RoleCustomer,
		IsActive:          true,
		LoyaltyPoints:     balance,
		TotalPointsEarned: total,
		MembershipLevel:   level,
		NotifyChat:        true,
	}
	require.NoError(t, conn.Create(&user).Error)
	return user
}

func seedMenuItem(t *testing.T, conn *gorm.DB, name string, price int64, available bool) models.MenuItem {
	t.Helper()
	item := models.MenuItem{
		ID:         uuid.New(),
		CategoryID: uuid.New(),
		Name:       name,
		Price:      decimal.NewFromInt(price),
		PrepTime:   15,
		Available:  available,
	}
	require.NoError(t, conn.Create(&item).Error)
	return item
}

func customer(user models.User) auth.Actor {
	return auth.Actor{UserID: user.ID, Role: enums.RoleCustomer}
}

func kitchenStaff() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.RoleKitchen}
}

func pickupCashOrder(t *testing.T, f fixture, user models.User) *models.Order {
	t.Helper()
	burger := seedMenuItem(t, f.db, "Burger", 30, true)
	fries := seedMenuItem(t, f.db, "Fries", 25, true)
	order, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID: user.ID,
		Items: []CreateOrderItem{
			{MenuItemID: burger.ID, Quantity: 1},
			{MenuItemID: fries.ID, Quantity: 2},
		},
		DeliveryMethod: enums.DeliveryMethodPickup,
		PaymentMethod:  enums.PaymentMethodCash,
	})
	require.NoError(t, err)
	return order
}

func paidCardOrder(t *testing.T, f fixture, user models.User) *models.Order {
	t.Helper()
	item := seedMenuItem(t, f.db, "Mandi", 60, true)
	order, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:         user.ID,
		Items:          []CreateOrderItem{{MenuItemID: item.ID, Quantity: 1}},
		DeliveryMethod: enums.DeliveryMethodPickup,
		PaymentMethod:  enums.PaymentMethodCard,
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Payment{}).Where("order_id = ?", order.ID).
		UpdateColumns(map[string]any{"status": enums.PaymentStatusSucceeded, "transaction_id": "txn_test"}).Error)
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", order.ID).
		UpdateColumn("payment_status", enums.OrderPaymentPaid).Error)
	return order
}

func reloadOrder(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	err := conn.
		Preload("StatusHistory", func(tx *gorm.DB) *gorm.DB { return tx.Order("seq ASC") }).
		First(&order, "id = ?", id).Error
	require.NoError(t, err)
	return order
}

func countEvents(t *testing.T, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestCreatePickupCashOrder(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)

	order := pickupCashOrder(t, f, user)

	require.True(t, order.DeliveryFee.IsZero())
	require.True(t, order.TotalPrice.Equal(decimal.NewFromInt(80)))
	require.Equal(t, enums.OrderPaymentPending, order.PaymentStatus)
	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.Equal(t, 8, order.LoyaltyPointsEarned)

	stored := reloadOrder(t, f.db, order.ID)
	require.Len(t, stored.StatusHistory, 1)
	require.Equal(t, enums.OrderStatusPending, stored.StatusHistory[0].Status)
	require.Equal(t, 8, stored.LoyaltyPointsEarned)

	var balance models.User
	require.NoError(t, f.db.First(&balance, "id = ?", user.ID).Error)
	require.Equal(t, 8, balance.LoyaltyPoints)

	var payments int64
	require.NoError(t, f.db.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&payments).Error)
	require.Zero(t, payments)

	require.EqualValues(t, 1, countEvents(t, f.db, enums.EventOrderCreated))
	require.Len(t, f.notifier.messages, 1)
	require.Len(t, f.notifier.kitchen, 1)
}

func TestCreateCardDeliveryWithCouponAndPoints(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 200, 2500, enums.MembershipSilver)
	item := seedMenuItem(t, f.db, "Kabsa", 50, true)

	order, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:          user.ID,
		Items:           []CreateOrderItem{{MenuItemID: item.ID, Quantity: 2}},
		DeliveryMethod:  enums.DeliveryMethodDelivery,
		DeliveryAddress: &types.DeliveryAddress{Address: "King Fahd Rd"},
		PaymentMethod:   enums.PaymentMethodCard,
		RedeemPoints:    100,
		CouponCode:      "silver15",
	})
	require.NoError(t, err)

	require.True(t, order.Subtotal.Equal(decimal.NewFromInt(100)))
	require.True(t, order.DeliveryFee.Equal(decimal.NewFromInt(10)))
	require.True(t, order.Discount.Equal(decimal.NewFromInt(25)))
	require.True(t, order.TotalPrice.Equal(decimal.NewFromInt(85)))
	require.Equal(t, enums.OrderPaymentProcessing, order.PaymentStatus)
	require.Equal(t, 100, order.PointsRedeemed)
	require.Equal(t, 9, order.LoyaltyPointsEarned)

	var payment models.Payment
	require.NoError(t, f.db.First(&payment, "order_id = ?", order.ID).Error)
	require.Equal(t, enums.PaymentStatusPending, payment.Status)
	require.True(t, payment.Amount.Equal(decimal.NewFromInt(85)))

	var stored models.User
	require.NoError(t, f.db.First(&stored, "id = ?", user.ID).Error)
	require.Equal(t, 109, stored.LoyaltyPoints)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)
	item := seedMenuItem(t, f.db, "Falafel", 12, true)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateOrderInput{
		UserID:         user.ID,
		DeliveryMethod: enums.DeliveryMethodPickup,
		PaymentMethod:  enums.PaymentMethodCash,
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, CreateOrderInput{
		UserID:         user.ID,
		Items:          []CreateOrderItem{{MenuItemID: item.ID, Quantity: 1}},
		DeliveryMethod: enums.DeliveryMethodDelivery,
		PaymentMethod:  enums.PaymentMethodCash,
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, CreateOrderInput{
		UserID:         user.ID,
		Items:          []CreateOrderItem{{MenuItemID: item.ID, Quantity: 0}},
		DeliveryMethod: enums.DeliveryMethodPickup,
		PaymentMethod:  enums.PaymentMethodCash,
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, CreateOrderInput{
		UserID:         user.ID,
		Items:          []CreateOrderItem{{MenuItemID: uuid.New(), Quantity: 1}},
		DeliveryMethod: enums.DeliveryMethodPickup,
		PaymentMethod:  enums.PaymentMethodCash,
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	soldOut := seedMenuItem(t, f.db, "Kunafa", 18, false)
	_, err = f.svc.Create(ctx, CreateOrderInput{
		UserID:         user.ID,
		Items:          []CreateOrderItem{{MenuItemID: soldOut.ID, Quantity: 1}},
		DeliveryMethod: enums.DeliveryMethodPickup,
		PaymentMethod:  enums.PaymentMethodCash,
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, CreateOrderInput{
		UserID:         user.ID,
		Items:          []CreateOrderItem{{MenuItemID: item.ID, Quantity: 1}},
		DeliveryMethod: enums.DeliveryMethodPickup,
		PaymentMethod:  enums.PaymentMethodCash,
		CouponCode:     "PLATINUM25",
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	var n int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestCreateInsufficientPointsRollsBack(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 5, 5, enums.MembershipBronze)
	item := seedMenuItem(t, f.db, "Mansaf", 70, true)

	_, err := f.svc.Create(context.Background(), CreateOrderInput{
		UserID:         user.ID,
		Items:          []CreateOrderItem{{MenuItemID: item.ID, Quantity: 1}},
		DeliveryMethod: enums.DeliveryMethodPickup,
		PaymentMethod:  enums.PaymentMethodCash,
		RedeemPoints:   50,
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientPoints))

	var n int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&n).Error)
	require.Zero(t, n)

	var stored models.User
	require.NoError(t, f.db.First(&stored, "id = ?", user.ID).Error)
	require.Equal(t, 5, stored.LoyaltyPoints)
}

func TestTransitionAdvancesAndRecordsHistory(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)
	order := pickupCashOrder(t, f, user)
	staff := kitchenStaff()
	ctx := context.Background()

	for _, next := range []enums.OrderStatus{
		enums.OrderStatusConfirmed,
		enums.OrderStatusPreparing,
		enums.OrderStatusReady,
		enums.OrderStatusPickedUp,
	} {
		updated, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: next, Actor: staff})
		require.NoError(t, err)
		require.Equal(t, next, updated.Status)
	}

	stored := reloadOrder(t, f.db, order.ID)
	require.Equal(t, enums.OrderStatusPickedUp, stored.Status)
	require.Equal(t, 5, stored.Version)
	require.Len(t, stored.StatusHistory, 5)
	require.EqualValues(t, 4, countEvents(t, f.db, enums.EventOrderStatusChanged))
	// confirmation plus one message per transition
	require.Len(t, f.notifier.messages, 5)
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)
	order := pickupCashOrder(t, f, user)

	_, err := f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		To:      enums.OrderStatusDelivered,
		Actor:   kitchenStaff(),
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidTransition))

	stored := reloadOrder(t, f.db, order.ID)
	require.Equal(t, enums.OrderStatusPending, stored.Status)
	require.Equal(t, 1, stored.Version)
	require.Len(t, stored.StatusHistory, 1)
}

func TestTransitionDetectsStaleVersion(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)
	order := pickupCashOrder(t, f, user)
	ctx := context.Background()

	stale := order.Version
	_, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: enums.OrderStatusConfirmed, Actor: kitchenStaff()})
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, TransitionInput{
		OrderID:         order.ID,
		To:              enums.OrderStatusCancelled,
		Actor:           kitchenStaff(),
		ExpectedVersion: &stale,
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
	require.Equal(t, enums.OrderStatusConfirmed, reloadOrder(t, f.db, order.ID).Status)
}

func TestUpdateVersionedRefusesStaleWriter(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)
	order := pickupCashOrder(t, f, user)
	repo := NewRepository(f.db)
	ctx := context.Background()

	ok, err := repo.UpdateVersioned(ctx, order.ID, 1, map[string]any{"status": enums.OrderStatusConfirmed})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.UpdateVersioned(ctx, order.ID, 1, map[string]any{"status": enums.OrderStatusCancelled})
	require.NoError(t, err)
	require.False(t, ok)

	stored := reloadOrder(t, f.db, order.ID)
	require.Equal(t, enums.OrderStatusConfirmed, stored.Status)
	require.Equal(t, 2, stored.Version)
}

func TestCancelRefundsPaidCardOrder(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)
	order := paidCardOrder(t, f, user)

	cancelled, err := f.svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, Actor: customer(user)})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, enums.OrderPaymentRefunded, cancelled.PaymentStatus)

	var payment models.Payment
	require.NoError(t, f.db.First(&payment, "order_id = ?", order.ID).Error)
	require.Equal(t, enums.PaymentStatusRefunded, payment.Status)
	require.True(t, payment.RefundedAmount.Equal(payment.Amount))

	stored := reloadOrder(t, f.db, order.ID)
	require.Equal(t, enums.OrderStatusCancelled, stored.Status)
	require.Equal(t, enums.OrderPaymentRefunded, stored.PaymentStatus)
	require.Equal(t, defaultCancelNote, stored.StatusHistory[len(stored.StatusHistory)-1].Note)
	// new-order and cancellation e-mails
	require.Len(t, f.notifier.kitchen, 2)
}

func TestCancelRefundFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)
	order := paidCardOrder(t, f, user)
	f.gateway.refundErr = errors.New("gateway down")

	_, err := f.svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, Actor: customer(user)})
	require.Error(t, err)

	stored := reloadOrder(t, f.db, order.ID)
	require.Equal(t, enums.OrderStatusPending, stored.Status)
	require.Equal(t, enums.OrderPaymentPaid, stored.PaymentStatus)
	require.Equal(t, 1, stored.Version)
	require.Len(t, stored.StatusHistory, 1)
	require.Zero(t, countEvents(t, f.db, enums.EventOrderStatusChanged))
}

func TestCancelGuards(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)
	stranger := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)
	order := pickupCashOrder(t, f, user)
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: customer(stranger)})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	for _, next := range []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusPreparing} {
		_, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: next, Actor: kitchenStaff()})
		require.NoError(t, err)
	}
	_, err = f.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: customer(user)})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidTransition))
}

func TestRateCompletedOrderOnce(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)
	order := pickupCashOrder(t, f, user)
	ctx := context.Background()

	_, err := f.svc.Rate(ctx, RateInput{OrderID: order.ID, Actor: customer(user), Rating: 5})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	for _, next := range []enums.OrderStatus{
		enums.OrderStatusConfirmed,
		enums.OrderStatusPreparing,
		enums.OrderStatusReady,
		enums.OrderStatusPickedUp,
	} {
		_, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, To: next, Actor: kitchenStaff()})
		require.NoError(t, err)
	}

	_, err = f.svc.Rate(ctx, RateInput{OrderID: order.ID, Actor: customer(user), Rating: 6})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	rated, err := f.svc.Rate(ctx, RateInput{OrderID: order.ID, Actor: customer(user), Rating: 4, Comment: "hot and fresh"})
	require.NoError(t, err)
	require.Equal(t, 4, *rated.Rating)

	_, err = f.svc.Rate(ctx, RateInput{OrderID: order.ID, Actor: customer(user), Rating: 2})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))

	stored := reloadOrder(t, f.db, order.ID)
	require.Equal(t, 4, *stored.Rating)
	require.Equal(t, "hot and fresh", *stored.RatingComment)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	user := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)
	other := seedCustomer(t, f.db, 0, 0, enums.MembershipBronze)
	ctx := context.Background()

	first := pickupCashOrder(t, f, user)
	pickupCashOrder(t, f, user)
	pickupCashOrder(t, f, other)

	_, err := f.svc.Get(ctx, first.ID, customer(other))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
	got, err := f.svc.Get(ctx, first.ID, kitchenStaff())
	require.NoError(t, err)
	require.Len(t, got.Items, 2)

	page, err := f.svc.ListMine(ctx, user.ID, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextCursor)

	rest, err := f.svc.ListMine(ctx, user.ID, pagination.Params{Limit: 1, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	require.NotEqual(t, page.Items[0].ID, rest.Items[0].ID)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: first.ID, To: enums.OrderStatusConfirmed, Actor: kitchenStaff()})
	require.NoError(t, err)
	confirmed, err := f.svc.ListAll(ctx, ListFilter{
		Statuses: []enums.OrderStatus{enums.OrderStatusConfirmed},
		Page:     pagination.Params{Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, confirmed.Items, 1)
	require.Equal(t, first.ID, confirmed.Items[0].ID)

	_, err = f.svc.ListAll(ctx, ListFilter{Statuses: []enums.OrderStatus{"baking"}})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
