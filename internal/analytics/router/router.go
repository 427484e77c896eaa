package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/restaurant-backend/internal/analytics/types"
	"github.com/angelmondragon/restaurant-backend/pkg/bigquery"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers order fact rows. *bigquery.Client satisfies it.
type Writer interface {
	InsertOrderEvents(ctx context.Context, rows []bigquery.OrderEventRow) error
}

// Handler receives an envelope plus its decoded payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, envelope types.Envelope, payload any) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	return fn(ctx, envelope, payload)
}

// Router dispatches analytics envelopes to the handler registered for the
// event type. Payloads are decoded with the outbox decoder registry so the
// worker and the publisher agree on schema versions.
type Router struct {
	handlers map[enums.OutboxEventType]Handler
	decoders *registry.DecoderRegistry
	logg     *logger.Logger
}

// NewRouter wires the default handlers; overrides replace a handler for one
// event type.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	handlers := map[enums.OutboxEventType]Handler{
		enums.EventOrderCreated:         newOrderCreatedHandler(writer, logg),
		enums.EventOrderStatusChanged:   newOrderStatusHandler(writer, logg),
		enums.EventPaymentStatusChanged: newPaymentStatusHandler(writer, logg),
	}
	for event, custom := range overrides {
		if custom != nil {
			handlers[event] = custom
		}
	}

	return &Router{
		handlers: handlers,
		decoders: registry.NewDefaultDecoderRegistry(),
		logg:     logg,
	}, nil
}

// Handles reports whether the router has a handler for eventType.
func (r *Router) Handles(eventType enums.OutboxEventType) bool {
	_, ok := r.handlers[eventType]
	return ok
}

// Handle decodes the payload and dispatches it.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	handler, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	version := envelope.Version
	if version == 0 {
		version = 1
	}
	payload, err := r.decoders.Decode(envelope.EventType, version, json.RawMessage(envelope.Payload))
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return handler.Handle(ctx, envelope, payload)
}
