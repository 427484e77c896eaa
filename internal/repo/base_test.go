package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/restaurant-backend/pkg/db/dbtest"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

func TestBaseDBBindsContext(t *testing.T) {
	conn := dbtest.Open(t)
	base := NewBase(conn)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")
	require.Equal(t, ctx, base.DB(ctx).Statement.Context)
	require.Same(t, conn, base.DB(nil))
	require.Same(t, conn, base.WithTx(nil).DB(nil))
}

func TestStatusInAndAffected(t *testing.T) {
	conn := dbtest.Open(t)
	base := NewBase(conn)
	ctx := context.Background()

	for _, status := range []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusReady, enums.OrderStatusCancelled} {
		order := models.Order{
			ID:             uuid.New(),
			UserID:         uuid.New(),
			DeliveryMethod: enums.DeliveryMethodPickup,
			PaymentMethod:  enums.PaymentMethodCash,
			PaymentStatus:  enums.OrderPaymentPending,
			Subtotal:       decimal.NewFromInt(10),
			Discount:       decimal.Zero,
			TotalPrice:     decimal.NewFromInt(10),
			Status:         status,
			Version:        1,
		}
		require.NoError(t, conn.Create(&order).Error)
	}

	var active []models.Order
	require.NoError(t, base.DB(ctx).Scopes(StatusIn(enums.OrderStatusPending, enums.OrderStatusReady)).Find(&active).Error)
	require.Len(t, active, 2)

	changed, err := Affected(base.DB(ctx).Model(&models.Order{}).
		Where("status = ?", enums.OrderStatusDelivered).
		Update("special_instructions", "x"))
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = Affected(base.DB(ctx).Model(&models.Order{}).
		Where("status = ?", enums.OrderStatusReady).
		Update("special_instructions", "ring twice"))
	require.NoError(t, err)
	require.True(t, changed)
}
