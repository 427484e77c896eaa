package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/restaurant-backend/internal/analytics/router"
	"github.com/angelmondragon/restaurant-backend/internal/analytics/worker"
	"github.com/angelmondragon/restaurant-backend/pkg/bigquery"
	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/restaurant-backend/pkg/pubsub"
	"github.com/angelmondragon/restaurant-backend/pkg/redis"
)

const serviceKind = "analytics-worker"

func main() {
	broker := flag.String("broker", "", "override RESTAURANT_EVENT_BROKER (pubsub or kafka)")
	flag.Parse()

	_ = godotenv.Load()

	logg := logger.New(logger.Options{ServiceName: serviceKind})
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "load config", err)
		os.Exit(1)
	}
	if *broker != "" {
		cfg.Eventing.Broker = *broker
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), "analytics worker stopped", err)
		os.Exit(1)
	}
}

// run owns every client it opens; they are closed on return and their close
// errors are folded into the result.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(redisClient))

	warehouse, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(warehouse))

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = warehouse.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("bigquery ping: %w", err)
	}

	guard, err := idempotency.NewGuard(redisClient, "analytics", cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency guard: %w", err)
	}
	routes, err := router.NewRouter(warehouse, logg, nil)
	if err != nil {
		return fmt.Errorf("analytics router: %w", err)
	}
	service, err := worker.NewService(routes, guard, logg)
	if err != nil {
		return fmt.Errorf("analytics worker: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"broker":      cfg.Eventing.Broker,
		"dataset":     cfg.BigQuery.Dataset,
	})
	logg.Info(ctx, "analytics worker ready")

	switch cfg.Eventing.Broker {
	case config.BrokerKafka:
		return service.RunKafka(ctx, cfg.Kafka, cfg.PubSub.AnalyticsSubscription, analyticsTopics(cfg.PubSub))
	case config.BrokerPubSub, "":
		client, psErr := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg, cfg.PubSub.AnalyticsSubscription)
		if psErr != nil {
			return fmt.Errorf("pubsub: %w", psErr)
		}
		defer multierr.AppendInvoke(&err, multierr.Close(client))
		return service.RunPubSub(ctx, client.AnalyticsSubscription())
	default:
		return fmt.Errorf("unsupported event broker %q", cfg.Eventing.Broker)
	}
}

// analyticsTopics lists the streams whose events land in the warehouse.
// Loyalty events are not analysed.
func analyticsTopics(cfg config.PubSubConfig) []string {
	return []string{cfg.OrdersTopic, cfg.PaymentsTopic}
}
