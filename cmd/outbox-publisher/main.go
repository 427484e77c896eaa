package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db"
	"github.com/angelmondragon/restaurant-backend/pkg/kafka"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/metrics"
	"github.com/angelmondragon/restaurant-backend/pkg/migrate"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox/registry"
	"github.com/angelmondragon/restaurant-backend/pkg/pubsub"
)

type closableBroker interface {
	broker
	io.Closer
}

func main() {
	var dlq dlqCommand
	flag.StringVar(&dlq.action, "dlq", "", "inspect dead letters instead of publishing: list or requeue")
	flag.StringVar(&dlq.id, "id", "", "dead-letter id for -dlq requeue")
	flag.StringVar(&dlq.reason, "reason", "", "filter -dlq list by reason")
	flag.IntVar(&dlq.limit, "limit", 50, "maximum rows for -dlq list")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	if dlq.action != "" {
		if err := dlq.run(context.Background(), outbox.NewDLQRepository(dbClient.DB()), os.Stdout); err != nil {
			logg.Error(context.Background(), "dead-letter command failed", err)
			os.Exit(1)
		}
		return
	}

	eventBroker, err := newBroker(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap event broker", err)
		os.Exit(1)
	}
	defer func() {
		if err := eventBroker.Close(); err != nil {
			logg.Error(context.Background(), "error closing event broker", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(registry.Topics{
		Orders:   cfg.PubSub.OrdersTopic,
		Payments: cfg.PubSub.PaymentsTopic,
		Loyalty:  cfg.PubSub.LoyaltyTopic,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Settings:      SettingsFromConfig(cfg.Outbox),
		Logger:        logg,
		DB:            dbClient,
		Broker:        eventBroker,
		BrokerName:    cfg.Eventing.Broker,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"broker":      cfg.Eventing.Broker,
		"topics":      eventRegistry.Topics(),
	})
	logg.Info(ctx, "starting outbox publisher")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	group.Go(func() error {
		return metrics.Serve(groupCtx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg)
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func newBroker(ctx context.Context, cfg *config.Config, logg *logger.Logger) (closableBroker, error) {
	if cfg.Eventing.Broker == config.BrokerKafka {
		return kafka.NewPublisher(cfg.Kafka, logg)
	}
	return pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
}
