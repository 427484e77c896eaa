package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/metrics"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox/registry"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

// broker is satisfied by both the Pub/Sub client and the Kafka publisher.
type broker interface {
	Ping(context.Context) error
	Publish(ctx context.Context, topic, key string, data []byte, attrs map[string]string) (string, error)
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, attempts int) error
}

type dlqRepository interface {
	DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, at time.Time) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Settings tunes the publish loop. Zero fields take the defaults below.
type Settings struct {
	BatchSize      int
	MaxAttempts    int
	PollInterval   time.Duration
	PublishTimeout time.Duration
	MaxBackoff     time.Duration
}

func SettingsFromConfig(cfg config.OutboxConfig) Settings {
	return Settings{
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
}

func (s Settings) withDefaults() Settings {
	if s.BatchSize <= 0 {
		s.BatchSize = 50
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 10
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 500 * time.Millisecond
	}
	if s.PublishTimeout <= 0 {
		s.PublishTimeout = 15 * time.Second
	}
	if s.MaxBackoff < s.PollInterval {
		s.MaxBackoff = max(10*time.Second, s.PollInterval)
	}
	return s
}

type ServiceParams struct {
	Settings      Settings
	Logger        *logger.Logger
	DB            dbClient
	Broker        broker
	BrokerName    string
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	Metrics       *metrics.OutboxMetrics
}

// Service drains the outbox table into the broker. Each batch is claimed
// and settled in one transaction, so a crash mid-batch republishes rather
// than loses events.
type Service struct {
	settings   Settings
	logg       *logger.Logger
	db         dbClient
	repo       outboxRepository
	broker     broker
	brokerName string
	registry   registryResolver
	dlq        dlqRepository
	metrics    *metrics.OutboxMetrics
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("broker is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}
	name := params.BrokerName
	if name == "" {
		name = "broker"
	}
	return &Service{
		settings:   params.Settings.withDefaults(),
		logg:       params.Logger,
		db:         params.DB,
		repo:       params.Repository,
		broker:     params.Broker,
		brokerName: name,
		registry:   params.Registry,
		dlq:        params.DLQRepository,
		metrics:    params.Metrics,
		now:        time.Now,
	}, nil
}

type batchStats struct {
	claimed      int
	published    int
	retried      int
	deadLettered int
}

func (b *batchStats) count(outcome string) {
	switch outcome {
	case metrics.OutcomePublished:
		b.published++
	case metrics.OutcomeRetry:
		b.retried++
	case metrics.OutcomeDeadLettered:
		b.deadLettered++
	}
}

type pacing int

const (
	paceImmediate pacing = iota
	pacePoll
	paceBackoff
)

// pace picks the wait after a batch. Only a full batch that moved rows out
// of the outbox skips the wait; a batch where every row was retried means
// the broker is failing and backs off like an error.
func pace(stats batchStats, err error, batchSize int) pacing {
	switch {
	case err != nil:
		return paceBackoff
	case stats.claimed > 0 && stats.published+stats.deadLettered == 0:
		return paceBackoff
	case stats.claimed >= batchSize:
		return paceImmediate
	default:
		return pacePoll
	}
}

// Run polls until ctx is canceled. A full batch that made progress is
// followed immediately by the next one; failing batches back off with
// jitter up to MaxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.broker.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping: %w", s.brokerName, err)
	}

	backoff := s.newBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox batch failed", err)
		}
		wait := s.settings.PollInterval
		switch pace(stats, err, s.settings.BatchSize) {
		case paceBackoff:
			wait, _ = backoff.Next()
		case paceImmediate:
			backoff = s.newBackoff()
			continue
		default:
			backoff = s.newBackoff()
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Service) newBackoff() retry.Backoff {
	b := retry.NewExponential(s.settings.PollInterval)
	b = retry.WithJitterPercent(25, b)
	return retry.WithCappedDuration(s.settings.MaxBackoff, b)
}

func (s *Service) processBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.settings.BatchSize, s.settings.MaxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		stats.claimed = len(events)
		for _, event := range events {
			outcome, err := s.handleEvent(ctx, tx, event)
			if err != nil {
				return err
			}
			stats.count(outcome)
			s.metrics.ObserveEvent(string(event.EventType), outcome)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	s.metrics.ObserveBatch(stats.claimed)
	if stats.claimed > 0 {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"claimed":       stats.claimed,
			"published":     stats.published,
			"retried":       stats.retried,
			"dead_lettered": stats.deadLettered,
		}), "outbox batch settled")
	}
	return stats, nil
}

// handleEvent only returns errors from bookkeeping writes, which abort the
// batch. Publish failures are settled on the row.
func (s *Service) handleEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (string, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		reason := enums.OutboxDLQReasonNonRetryable
		if errors.Is(err, registry.ErrUnknownEvent) {
			reason = enums.OutboxDLQReasonUnknownEvent
		}
		return s.deadLetter(ctx, tx, event, reason, err, s.eventFields(event, nil))
	}

	fields := s.eventFields(event, resolved)
	err = s.publish(ctx, event, resolved)
	var permanent registry.NonRetryableError
	switch {
	case err == nil:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return metrics.OutcomePublished, nil
	case errors.As(err, &permanent):
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	case event.AttemptCount+1 >= s.settings.MaxAttempts:
		fields["attempt_count"] = event.AttemptCount + 1
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err), fields)
	}

	fields["attempt_count"] = event.AttemptCount + 1
	fields["error"] = err.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed, will retry")
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return "", fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	return metrics.OutcomeRetry, nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) (string, error) {
	fields["dlq_reason"] = reason
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event dead-lettered")

	if err := s.dlq.DeadLetterTx(tx, event, reason, cause, s.now()); err != nil {
		return "", fmt.Errorf("dead-letter %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, s.settings.MaxAttempts); err != nil {
		return "", fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return metrics.OutcomeDeadLettered, nil
}

// publish keys messages by aggregate so one order's events stay in order on
// partitioned brokers.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	if topic == "" {
		return registry.NewNonRetryableError(fmt.Errorf("no topic for %s", event.EventType))
	}
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.settings.PublishTimeout)
	defer cancel()
	started := s.now()
	_, err := s.broker.Publish(publishCtx, topic, event.AggregateID.String(), event.Payload, attrs)
	s.metrics.ObservePublish(topic, s.now().Sub(started))
	return err
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
		"broker":         s.brokerName,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
