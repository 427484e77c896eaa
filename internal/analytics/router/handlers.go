package router

import (
	"context"
	"fmt"

	"github.com/angelmondragon/restaurant-backend/internal/analytics/types"
	"github.com/angelmondragon/restaurant-backend/pkg/bigquery"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox/payloads"
)

type rowHandler struct {
	writer Writer
	logg   *logger.Logger
	build  func(envelope types.Envelope, payload any) (bigquery.OrderEventRow, map[string]any, error)
}

func (h *rowHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	row, fields, err := h.build(envelope, payload)
	if err != nil {
		return err
	}
	fields["event_type"] = envelope.EventType
	logCtx := h.logg.WithFields(ctx, fields)

	if err := h.writer.InsertOrderEvents(logCtx, []bigquery.OrderEventRow{row}); err != nil {
		h.logg.Error(logCtx, "failed to insert order event row", err)
		return err
	}
	h.logg.Info(logCtx, "order event row inserted")
	return nil
}

func newOrderCreatedHandler(writer Writer, logg *logger.Logger) Handler {
	return &rowHandler{writer: writer, logg: logg, build: buildOrderCreatedRow}
}

func newOrderStatusHandler(writer Writer, logg *logger.Logger) Handler {
	return &rowHandler{writer: writer, logg: logg, build: buildOrderStatusRow}
}

func newPaymentStatusHandler(writer Writer, logg *logger.Logger) Handler {
	return &rowHandler{writer: writer, logg: logg, build: buildPaymentStatusRow}
}

func buildOrderCreatedRow(envelope types.Envelope, payload any) (bigquery.OrderEventRow, map[string]any, error) {
	event, ok := payload.(*payloads.OrderCreatedEvent)
	if !ok {
		return bigquery.OrderEventRow{}, nil, fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row := bigquery.OrderEventRow{
		EventID:        envelope.EventID,
		EventType:      string(envelope.EventType),
		OrderID:        event.OrderID.String(),
		UserID:         event.UserID.String(),
		ToStatus:       string(enums.OrderStatusPending),
		DeliveryMethod: string(event.DeliveryMethod),
		PaymentMethod:  string(event.PaymentMethod),
		ItemCount:      int64(event.ItemCount),
		TotalPrice:     event.TotalPrice.InexactFloat64(),
		OccurredAt:     envelope.OccurredAt,
	}
	return row, map[string]any{"order_id": event.OrderID}, nil
}

func buildOrderStatusRow(envelope types.Envelope, payload any) (bigquery.OrderEventRow, map[string]any, error) {
	event, ok := payload.(*payloads.OrderStatusChangedEvent)
	if !ok {
		return bigquery.OrderEventRow{}, nil, fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row := bigquery.OrderEventRow{
		EventID:        envelope.EventID,
		EventType:      string(envelope.EventType),
		OrderID:        event.OrderID.String(),
		UserID:         event.UserID.String(),
		FromStatus:     string(event.From),
		ToStatus:       string(event.To),
		DeliveryMethod: string(event.DeliveryMethod),
		TotalPrice:     event.TotalPrice.InexactFloat64(),
		OccurredAt:     envelope.OccurredAt,
	}
	return row, map[string]any{"order_id": event.OrderID, "from": event.From, "to": event.To}, nil
}

// Payment rows share the order table; the statuses are payment statuses and
// total_price carries the captured amount net of refunds.
func buildPaymentStatusRow(envelope types.Envelope, payload any) (bigquery.OrderEventRow, map[string]any, error) {
	event, ok := payload.(*payloads.PaymentStatusChangedEvent)
	if !ok {
		return bigquery.OrderEventRow{}, nil, fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row := bigquery.OrderEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OrderID:    event.OrderID.String(),
		FromStatus: string(event.From),
		ToStatus:   string(event.To),
		TotalPrice: event.Amount.Sub(event.RefundedAmount).InexactFloat64(),
		OccurredAt: envelope.OccurredAt,
	}
	return row, map[string]any{"order_id": event.OrderID, "payment_id": event.PaymentID}, nil
}
