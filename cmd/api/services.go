package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/restaurant-backend/api/routes"
	"github.com/angelmondragon/restaurant-backend/internal/address"
	"github.com/angelmondragon/restaurant-backend/internal/auth"
	"github.com/angelmondragon/restaurant-backend/internal/delivery"
	"github.com/angelmondragon/restaurant-backend/internal/kitchen"
	"github.com/angelmondragon/restaurant-backend/internal/loyalty"
	"github.com/angelmondragon/restaurant-backend/internal/menu"
	"github.com/angelmondragon/restaurant-backend/internal/notifications"
	"github.com/angelmondragon/restaurant-backend/internal/orders"
	"github.com/angelmondragon/restaurant-backend/internal/payments"
	"github.com/angelmondragon/restaurant-backend/internal/users"
	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db"
	"github.com/angelmondragon/restaurant-backend/pkg/email"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/maps"
	"github.com/angelmondragon/restaurant-backend/pkg/metrics"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox"
	"github.com/angelmondragon/restaurant-backend/pkg/redis"
	"github.com/angelmondragon/restaurant-backend/pkg/telegram"
)

// buildDeps constructs every domain service in dependency order. Optional
// integrations (maps, Telegram, e-mail) are skipped with a warning when their
// credentials are missing.
func buildDeps(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg *prometheus.Registry) (routes.Deps, error) {
	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	var chat notifications.ChatSender
	if tg, err := telegram.NewClient(cfg.Telegram.BotToken,
		telegram.WithBaseURL(cfg.Telegram.BaseURL),
		telegram.WithHTTPClient(&http.Client{Timeout: cfg.Telegram.RequestTimeout}),
	); err != nil {
		logg.Warn(ctx, "telegram notifications disabled: "+err.Error())
	} else {
		chat = tg
	}

	var mailer notifications.EmailSender
	if client, err := email.NewClient(cfg.Email); err != nil {
		logg.Warn(ctx, "email notifications disabled: "+err.Error())
	} else {
		mailer = client
	}

	notificationRepo := notifications.NewRepository(conn)
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Repository: notificationRepo,
		Chat:       chat,
		Email:      mailer,
		Kitchen:    cfg.Kitchen,
		Metrics:    metrics.NewNotificationMetrics(reg),
		Logger:     logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("notification dispatcher: %w", err)
	}
	notificationSvc, err := notifications.NewService(notificationRepo)
	if err != nil {
		return routes.Deps{}, fmt.Errorf("notification service: %w", err)
	}

	var addressSvc address.Service
	if geocoder, err := maps.NewClient(cfg.GoogleMaps.APIKey); err != nil {
		logg.Warn(ctx, "address lookup disabled: "+err.Error())
	} else if addressSvc, err = address.NewService(address.ServiceParams{
		Geocoder: geocoder,
		Cache:    redisClient,
		Logger:   logg,
	}); err != nil {
		return routes.Deps{}, fmt.Errorf("address service: %w", err)
	}

	userRepo := users.NewRepository(conn)
	userSvc, err := users.NewService(users.ServiceParams{
		Repository: userRepo,
		Locator:    addressSvc,
		Logger:     logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("user service: %w", err)
	}

	menuSvc, err := menu.NewService(menu.ServiceParams{
		Repository: menu.NewRepository(conn),
		Logger:     logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("menu service: %w", err)
	}

	loyaltySvc, err := loyalty.NewService(loyalty.ServiceParams{
		Repository: loyalty.NewRepository(conn),
		Outbox:     emitter,
		Notifier:   dispatcher,
		Logger:     logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("loyalty service: %w", err)
	}

	gateway, err := payments.GatewayFromConfig(ctx, cfg, logg)
	if err != nil {
		return routes.Deps{}, fmt.Errorf("payment gateway: %w", err)
	}
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		DB:         dbClient,
		Repository: payments.NewRepository(conn),
		Gateway:    gateway,
		Outbox:     emitter,
		Deduper:    redisClient,
		Config:     cfg.Payments,
		Currency:   cfg.App.Currency,
		Logger:     logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("payment service: %w", err)
	}

	fees, err := orders.NewFeeSchedule(cfg.Delivery)
	if err != nil {
		return routes.Deps{}, fmt.Errorf("delivery fees: %w", err)
	}
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(conn),
		DB:         dbClient,
		Outbox:     emitter,
		Loyalty:    loyaltySvc,
		Payments:   paymentSvc,
		Notifier:   dispatcher,
		Fees:       fees,
		Metrics:    metrics.NewOrderMetrics(reg),
		Logger:     logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("order service: %w", err)
	}

	kitchenSvc, err := kitchen.NewService(kitchen.ServiceParams{
		Repository: kitchen.NewRepository(conn),
		Orders:     orderSvc,
		Notifier:   dispatcher,
		Logger:     logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("kitchen service: %w", err)
	}

	deliveryRepo := delivery.NewRepository(conn)
	deliverySvc, err := delivery.NewService(delivery.ServiceParams{
		Repository: deliveryRepo,
		DB:         dbClient,
		Orders:     orderSvc,
		Logger:     logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("delivery service: %w", err)
	}

	authSvc, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		Agents:         deliveryRepo,
		JWTConfig:      cfg.JWT,
		TelegramConfig: cfg.Telegram,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("auth service: %w", err)
	}
	staffSvc, err := auth.NewStaffService(auth.StaffServiceParams{
		UserRepo:       userRepo,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("staff service: %w", err)
	}

	return routes.Deps{
		DB:            dbClient,
		Redis:         redisClient,
		Auth:          authSvc,
		Staff:         staffSvc,
		Users:         userSvc,
		Address:       addressSvc,
		Menu:          menuSvc,
		Orders:        orderSvc,
		Kitchen:       kitchenSvc,
		Delivery:      deliverySvc,
		Payments:      paymentSvc,
		Loyalty:       loyaltySvc,
		Notifications: notificationSvc,
		Gatherer:      reg,
		HTTPMetrics:   metrics.NewHTTPMetrics(reg),
	}, nil
}
