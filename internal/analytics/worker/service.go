package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/restaurant-backend/internal/analytics/router"
	"github.com/angelmondragon/restaurant-backend/internal/analytics/types"
	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/kafka"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox"
)

// Handler processes normalized analytics envelopes.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// eventGuard is satisfied by *idempotency.Guard.
type eventGuard interface {
	Claim(ctx context.Context, eventID uuid.UUID) (bool, error)
	Complete(ctx context.Context, eventID uuid.UUID) error
	Release(ctx context.Context, eventID uuid.UUID) error
}

// Service turns broker messages into analytics rows exactly once per event
// id, using Redis to remember what has been handled.
type Service struct {
	handler Handler
	guard   eventGuard
	logg    *logger.Logger
}

func NewService(handler Handler, guard eventGuard, logg *logger.Logger) (*Service, error) {
	if handler == nil {
		return nil, errors.New("analytics handler is required")
	}
	if guard == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{handler: handler, guard: guard, logg: logg}, nil
}

type processResult struct {
	retry bool
}

// RunPubSub receives from subscription until ctx is canceled.
func (s *Service) RunPubSub(ctx context.Context, subscription *gcppubsub.Subscriber) error {
	if subscription == nil {
		return errors.New("analytics subscription is required")
	}
	return subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		res := s.process(innerCtx, types.Message{ID: msg.ID, Data: msg.Data, Attributes: msg.Attributes})
		if res.retry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// RunKafka consumes every topic as part of groupID. A retryable failure
// leaves the offset uncommitted so the message is redelivered.
func (s *Service) RunKafka(ctx context.Context, cfg config.KafkaConfig, groupID string, topics []string) error {
	if len(topics) == 0 {
		return errors.New("at least one topic is required")
	}
	errs := make(chan error, len(topics))
	for _, topic := range topics {
		go func(topic string) {
			errs <- kafka.Consume(ctx, cfg, topic, groupID, s.logg, func(msgCtx context.Context, msg kafkago.Message) error {
				if s.process(msgCtx, kafkaMessage(msg)).retry {
					return fmt.Errorf("retry %s offset %d", msg.Topic, msg.Offset)
				}
				return nil
			})
		}(topic)
	}
	return <-errs
}

func kafkaMessage(msg kafkago.Message) types.Message {
	attrs := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		attrs[h.Key] = kafka.Header(msg, h.Key)
	}
	return types.Message{
		ID:         msg.Topic + "/" + strconv.Itoa(msg.Partition) + "/" + strconv.FormatInt(msg.Offset, 10),
		Data:       msg.Value,
		Attributes: attrs,
	}
}

func (s *Service) process(ctx context.Context, msg types.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}
	logCtx := s.logg.WithFields(ctx, fields)

	envelope, err := buildEnvelope(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "invalid analytics envelope")
		return processResult{}
	}
	fields["event_id"] = envelope.EventID
	fields["event_type"] = envelope.EventType
	fields["aggregate_id"] = envelope.AggregateID
	logCtx = s.logg.WithFields(ctx, fields)

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}

	claimed, err := s.guard.Claim(logCtx, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency claim failed", err)
		return processResult{retry: true}
	}
	if !claimed {
		s.logg.Info(logCtx, "event already processed or in flight")
		return processResult{}
	}

	err = s.handler.Handle(logCtx, *envelope)
	if err != nil && !errors.Is(err, router.ErrUnsupportedEventType) {
		s.logg.Error(logCtx, "handler error", err)
		if relErr := s.guard.Release(logCtx, eventID); relErr != nil {
			s.logg.Error(logCtx, "release idempotency claim", relErr)
		}
		return processResult{retry: true}
	}
	if err := s.guard.Complete(logCtx, eventID); err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "mark event complete failed")
	}
	return processResult{}
}

func buildEnvelope(msg types.Message) (*types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(strings.TrimSpace(msg.Attributes["aggregate_type"]))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := strings.TrimSpace(msg.Attributes["aggregate_id"])
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(msg.Attributes["created_at"])); err == nil {
			occurredAt = parsed
		}
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	return &types.Envelope{
		EventID:       eventID,
		Version:       stored.Version,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}
