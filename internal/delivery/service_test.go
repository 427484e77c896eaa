package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/loyalty"
	"github.com/angelmondragon/restaurant-backend/internal/notifications"
	"github.com/angelmondragon/restaurant-backend/internal/orders"
	"github.com/angelmondragon/restaurant-backend/pkg/auth"
	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db"
	"github.com/angelmondragon/restaurant-backend/pkg/db/dbtest"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

type quietNotifier struct {
	sent int
}

func (n *quietNotifier) Dispatch(ctx context.Context, userID uuid.UUID, msg notifications.Message) (notifications.DispatchResult, error) {
	n.sent++
	return notifications.DispatchResult{}, nil
}

func (n *quietNotifier) NotifyKitchen(ctx context.Context, subject, html string) notifications.ChannelResult {
	return notifications.ChannelResult{}
}

func (n *quietNotifier) KitchenAppURL() string { return "" }

func (n *quietNotifier) Log(ctx context.Context, result notifications.DispatchResult, err error) {}

func (n *quietNotifier) LogChannel(ctx context.Context, result notifications.ChannelResult) {}

type noLedger struct{}

func (noLedger) AddPointsForOrder(ctx context.Context, tx *gorm.DB, input loyalty.AddPointsInput) (loyalty.AddResult, error) {
	return loyalty.AddResult{}, nil
}

func (noLedger) RedeemPoints(ctx context.Context, tx *gorm.DB, input loyalty.RedeemInput) (loyalty.RedeemResult, error) {
	return loyalty.RedeemResult{}, nil
}

func (noLedger) NotifyEarned(ctx context.Context, result loyalty.AddResult) {}

func (noLedger) NotifyRedeemed(ctx context.Context, result loyalty.RedeemResult) {}

type noPayments struct{}

func (noPayments) OpenForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Payment, error) {
	return nil, nil
}

func (noPayments) RefundForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, reason string) (*models.Payment, error) {
	return nil, nil
}

type fixture struct {
	db       *gorm.DB
	svc      Service
	notifier *quietNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	runner := db.NewFromConn(conn)
	fees, err := orders.NewFeeSchedule(config.DeliveryConfig{FlatFee: "10"})
	require.NoError(t, err)

	notifier := &quietNotifier{}
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(conn),
		DB:         runner,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Loyalty:    noLedger{},
		Payments:   noPayments{},
		Notifier:   notifier,
		Fees:       fees,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{Repository: NewRepository(conn), DB: runner, Orders: orderSvc})
	require.NoError(t, err)
	return fixture{db: conn, svc: svc, notifier: notifier}
}

func seedUser(t *testing.T, conn *gorm.DB, role enums.UserRole) models.User {
	t.Helper()
	user := models.User{ID: uuid.New(), Name: "Khalid", Role: role, IsActive: true, MembershipLevel: enums.MembershipBronze}
	require.NoError(t, conn.Create(&user).Error)
	return user
}

func seedAgent(t *testing.T, f fixture, active bool) (models.DeliveryAgent, auth.Actor) {
	t.Helper()
	user := seedUser(t, f.db, enums.RoleCustomer)
	agent, err := f.svc.RegisterAgent(context.Background(), RegisterAgentInput{
		UserID:      user.ID,
		Name:        "Yousef",
		Phone:       "+966500000000",
		VehicleType: enums.VehicleMotorcycle,
	})
	require.NoError(t, err)
	if !active {
		require.NoError(t, f.db.Model(&models.DeliveryAgent{}).Where("id = ?", agent.ID).Update("is_active", false).Error)
	}
	return *agent, auth.Actor{UserID: user.ID, Role: enums.RoleDelivery}
}

func seedOrder(t *testing.T, conn *gorm.DB, status enums.OrderStatus, method enums.DeliveryMethod) models.Order {
	t.Helper()
	customer := seedUser(t, conn, enums.RoleCustomer)
	id := uuid.New()
	created := time.Now().UTC().Add(-30 * time.Minute)
	order := models.Order{
		ID:             id,
		UserID:         customer.ID,
		DeliveryMethod: method,
		DeliveryFee:    decimal.NewFromInt(10),
		PaymentMethod:  enums.PaymentMethodCash,
		PaymentStatus:  enums.OrderPaymentPending,
		Subtotal:       decimal.NewFromInt(40),
		Discount:       decimal.Zero,
		TotalPrice:     decimal.NewFromInt(50),
		Status:         status,
		Version:        1,
		CreatedAt:      created,
		StatusHistory: []models.OrderStatusHistory{{
			ID: uuid.New(), OrderID: id, Seq: 1, Status: enums.OrderStatusPending, Timestamp: created,
		}},
	}
	if method == enums.DeliveryMethodDelivery {
		order.DeliveryAddress = &types.DeliveryAddress{Address: "Tahlia St"}
	}
	require.NoError(t, conn.Create(&order).Error)
	return order
}

func reloadAgent(t *testing.T, conn *gorm.DB, id uuid.UUID) models.DeliveryAgent {
	t.Helper()
	var agent models.DeliveryAgent
	require.NoError(t, conn.First(&agent, "id = ?", id).Error)
	return agent
}

func admin() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
}

func TestAssignAgentMovesOrderOutForDelivery(t *testing.T) {
	f := newFixture(t)
	agent, _ := seedAgent(t, f, true)
	order := seedOrder(t, f.db, enums.OrderStatusReady, enums.DeliveryMethodDelivery)

	updated, err := f.svc.AssignAgent(context.Background(), AssignInput{OrderID: order.ID, AgentID: agent.ID, Actor: admin()})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusOutForDelivery, updated.Status)
	require.Equal(t, agent.ID, *updated.DeliveryAgentID)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusOutForDelivery, stored.Status)
	require.NotNil(t, stored.DeliveryAgentID)
	require.Equal(t, 2, stored.Version)

	require.Equal(t, 1, reloadAgent(t, f.db, agent.ID).CurrentOrders)
	require.Equal(t, 1, f.notifier.sent)
}

func TestAssignAgentEligibility(t *testing.T) {
	f := newFixture(t)
	agent, _ := seedAgent(t, f, true)
	inactive, _ := seedAgent(t, f, false)
	ctx := context.Background()

	pickup := seedOrder(t, f.db, enums.OrderStatusReady, enums.DeliveryMethodPickup)
	_, err := f.svc.AssignAgent(ctx, AssignInput{OrderID: pickup.ID, AgentID: agent.ID, Actor: admin()})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotEligible))

	cooking := seedOrder(t, f.db, enums.OrderStatusPreparing, enums.DeliveryMethodDelivery)
	_, err = f.svc.AssignAgent(ctx, AssignInput{OrderID: cooking.ID, AgentID: agent.ID, Actor: admin()})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotEligible))

	ready := seedOrder(t, f.db, enums.OrderStatusReady, enums.DeliveryMethodDelivery)
	_, err = f.svc.AssignAgent(ctx, AssignInput{OrderID: ready.ID, AgentID: uuid.New(), Actor: admin()})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	_, err = f.svc.AssignAgent(ctx, AssignInput{OrderID: ready.ID, AgentID: inactive.ID, Actor: admin()})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	require.Zero(t, reloadAgent(t, f.db, agent.ID).CurrentOrders)
	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", ready.ID).Error)
	require.Equal(t, enums.OrderStatusReady, stored.Status)
	require.Nil(t, stored.DeliveryAgentID)
}

func TestAgentMarksOwnOrderDelivered(t *testing.T) {
	f := newFixture(t)
	agent, agentActor := seedAgent(t, f, true)
	_, otherActor := seedAgent(t, f, true)
	order := seedOrder(t, f.db, enums.OrderStatusReady, enums.DeliveryMethodDelivery)
	ctx := context.Background()

	_, err := f.svc.AssignAgent(ctx, AssignInput{OrderID: order.ID, AgentID: agent.ID, Actor: admin()})
	require.NoError(t, err)

	_, err = f.svc.AgentUpdateStatus(ctx, AgentStatusInput{OrderID: order.ID, Status: enums.OrderStatusDelivered, Actor: otherActor})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = f.svc.AgentUpdateStatus(ctx, AgentStatusInput{OrderID: order.ID, Status: enums.OrderStatusCancelled, Actor: agentActor})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	delivered, err := f.svc.AgentUpdateStatus(ctx, AgentStatusInput{OrderID: order.ID, Status: enums.OrderStatusDelivered, Note: "left at door", Actor: agentActor})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	stored := reloadAgent(t, f.db, agent.ID)
	require.Zero(t, stored.CurrentOrders)
	require.Equal(t, 1, stored.CompletedOrders)

	mine, err := f.svc.ListAgentOrders(ctx, uuid.Nil, agentActor)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	_, err = f.svc.ListAgentOrders(ctx, agent.ID, otherActor)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
}

func TestListAvailableOnlyShowsReadyDeliveries(t *testing.T) {
	f := newFixture(t)
	want := seedOrder(t, f.db, enums.OrderStatusReady, enums.DeliveryMethodDelivery)
	seedOrder(t, f.db, enums.OrderStatusReady, enums.DeliveryMethodPickup)
	seedOrder(t, f.db, enums.OrderStatusPreparing, enums.DeliveryMethodDelivery)

	rows, err := f.svc.ListAvailable(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, want.ID, rows[0].ID)
}

func TestRegisterAgentAndLocation(t *testing.T) {
	f := newFixture(t)
	agent, actor := seedAgent(t, f, true)
	ctx := context.Background()

	var user models.User
	require.NoError(t, f.db.First(&user, "id = ?", actor.UserID).Error)
	require.Equal(t, enums.RoleDelivery, user.Role)

	_, err := f.svc.RegisterAgent(ctx, RegisterAgentInput{UserID: actor.UserID, Name: "Again", Phone: "1", VehicleType: enums.VehicleCar})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))

	_, err = f.svc.RegisterAgent(ctx, RegisterAgentInput{UserID: uuid.New(), Name: "Ghost", Phone: "1", VehicleType: enums.VehicleCar})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	require.True(t, pkgerrors.Is(f.svc.UpdateLocation(ctx, LocationInput{Lat: 120, Lng: 46, Actor: actor}), pkgerrors.CodeValidation))
	require.True(t, pkgerrors.Is(f.svc.UpdateLocation(ctx, LocationInput{Lat: 24.7, Lng: 46.7, Actor: admin()}), pkgerrors.CodeForbidden))
	require.NoError(t, f.svc.UpdateLocation(ctx, LocationInput{Lat: 24.7, Lng: 46.7, Actor: actor}))

	stored := reloadAgent(t, f.db, agent.ID)
	require.NotNil(t, stored.Lat)
	require.InDelta(t, 24.7, *stored.Lat, 1e-9)
	require.True(t, stored.IsOnline)

	agents, err := f.svc.ListAgents(ctx, true)
	require.NoError(t, err)
	require.Len(t, agents, 1)
}
