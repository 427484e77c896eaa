package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/restaurant-backend/internal/analytics/types"
	"github.com/angelmondragon/restaurant-backend/pkg/bigquery"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox/payloads"
)

type fakeWriter struct {
	rows []bigquery.OrderEventRow
	err  error
}

func (f *fakeWriter) InsertOrderEvents(_ context.Context, rows []bigquery.OrderEventRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, rows...)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard})
}

func envelopeFor(t *testing.T, eventType enums.OutboxEventType, payload any) types.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return types.Envelope{
		EventID:       uuid.NewString(),
		Version:       1,
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.NewString(),
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload:       raw,
	}
}

func TestRouterWritesOrderCreatedRow(t *testing.T) {
	writer := &fakeWriter{}
	r, err := NewRouter(writer, testLogger(), nil)
	require.NoError(t, err)

	event := payloads.OrderCreatedEvent{
		OrderID:        uuid.New(),
		UserID:         uuid.New(),
		DeliveryMethod: enums.DeliveryMethodDelivery,
		PaymentMethod:  enums.PaymentMethodCash,
		ItemCount:      3,
		TotalPrice:     decimal.RequireFromString("57.50"),
	}
	env := envelopeFor(t, enums.EventOrderCreated, event)

	require.NoError(t, r.Handle(context.Background(), env))
	require.Len(t, writer.rows, 1)
	row := writer.rows[0]
	require.Equal(t, env.EventID, row.EventID)
	require.Equal(t, event.OrderID.String(), row.OrderID)
	require.Equal(t, int64(3), row.ItemCount)
	require.InDelta(t, 57.5, row.TotalPrice, 0.001)
	require.Equal(t, env.OccurredAt, row.OccurredAt)
}

func TestRouterWritesStatusTransitionRow(t *testing.T) {
	writer := &fakeWriter{}
	r, err := NewRouter(writer, testLogger(), nil)
	require.NoError(t, err)

	event := payloads.OrderStatusChangedEvent{
		OrderID: uuid.New(),
		UserID:  uuid.New(),
		From:    enums.OrderStatusPreparing,
		To:      enums.OrderStatusReady,
	}
	require.NoError(t, r.Handle(context.Background(), envelopeFor(t, enums.EventOrderStatusChanged, event)))
	require.Len(t, writer.rows, 1)
	require.Equal(t, string(enums.OrderStatusPreparing), writer.rows[0].FromStatus)
	require.Equal(t, string(enums.OrderStatusReady), writer.rows[0].ToStatus)
}

func TestRouterPaymentRowIsNetOfRefunds(t *testing.T) {
	writer := &fakeWriter{}
	r, err := NewRouter(writer, testLogger(), nil)
	require.NoError(t, err)

	event := payloads.PaymentStatusChangedEvent{
		PaymentID:      uuid.New(),
		OrderID:        uuid.New(),
		Amount:         decimal.NewFromInt(100),
		RefundedAmount: decimal.NewFromInt(40),
	}
	require.NoError(t, r.Handle(context.Background(), envelopeFor(t, enums.EventPaymentStatusChanged, event)))
	require.InDelta(t, 60.0, writer.rows[0].TotalPrice, 0.001)
}

func TestRouterRejectsUnsupportedEvent(t *testing.T) {
	r, err := NewRouter(&fakeWriter{}, testLogger(), nil)
	require.NoError(t, err)
	require.False(t, r.Handles(enums.EventLoyaltyPointsAdded))

	err = r.Handle(context.Background(), envelopeFor(t, enums.EventLoyaltyPointsAdded, payloads.LoyaltyPointsAddedEvent{}))
	require.ErrorIs(t, err, ErrUnsupportedEventType)
}

func TestRouterPropagatesWriterError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("bq down")}
	r, err := NewRouter(writer, testLogger(), nil)
	require.NoError(t, err)

	err = r.Handle(context.Background(), envelopeFor(t, enums.EventOrderCreated, payloads.OrderCreatedEvent{OrderID: uuid.New()}))
	require.Error(t, err)
}

func TestRouterOverrideReplacesHandler(t *testing.T) {
	called := false
	override := HandlerFunc(func(context.Context, types.Envelope, any) error {
		called = true
		return nil
	})
	r, err := NewRouter(&fakeWriter{}, testLogger(), map[enums.OutboxEventType]Handler{
		enums.EventOrderCreated: override,
	})
	require.NoError(t, err)

	require.NoError(t, r.Handle(context.Background(), envelopeFor(t, enums.EventOrderCreated, payloads.OrderCreatedEvent{})))
	require.True(t, called)
}
