package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/restaurant-backend/api/controllers"
	deliverycontrollers "github.com/angelmondragon/restaurant-backend/api/controllers/delivery"
	kitchencontrollers "github.com/angelmondragon/restaurant-backend/api/controllers/kitchen"
	ordercontrollers "github.com/angelmondragon/restaurant-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/restaurant-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/restaurant-backend/api/controllers/webhooks"
	"github.com/angelmondragon/restaurant-backend/api/middleware"
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
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/restaurant-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs. Nil services make their
// handlers answer 500; a nil Redis disables idempotency and rate limiting.
type Deps struct {
	DB    controllers.Pinger
	Redis *pkgredis.Client

	Auth          auth.Service
	Staff         auth.StaffService
	Users         users.Service
	Address       address.Service
	Menu          menu.Service
	Orders        orders.Service
	Kitchen       kitchen.Service
	Delivery      delivery.Service
	Payments      payments.Service
	Loyalty       loyalty.Service
	Notifications notifications.Service

	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		replayStore  middleware.ReplayStore
		limiterStore *pkgredis.Client
		readiness    = map[string]controllers.Pinger{"db": deps.DB}
	)
	if deps.Redis != nil {
		replayStore = deps.Redis
		limiterStore = deps.Redis
		readiness["redis"] = deps.Redis
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginUserLimit,
	)
	telegramPolicy := middleware.NewAuthRateLimitPolicy(
		"telegram",
		cfg.AuthRateLimit.TelegramWindow,
		cfg.AuthRateLimit.TelegramIPLimit,
		cfg.AuthRateLimit.LoginUserLimit,
	)
	rateLimit := func(policy middleware.AuthRateLimitPolicy) func(http.Handler) http.Handler {
		if limiterStore == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.AuthRateLimit(policy, limiterStore, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.With(rateLimit(telegramPolicy)).Post("/telegram", controllers.AuthTelegram(deps.Auth, logg))
		r.With(rateLimit(loginPolicy)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.With(middleware.Auth(cfg.JWT, logg)).Get("/me", controllers.AuthMe(deps.Auth, logg))
	})

	r.Route("/api/menu", func(r chi.Router) {
		r.Get("/categories", controllers.MenuCategories(deps.Menu, false, logg))
		r.Get("/items", controllers.MenuItems(deps.Menu, true, logg))
		r.Get("/items/{itemId}", controllers.MenuItem(deps.Menu, logg))
		r.Get("/featured", controllers.MenuFeatured(deps.Menu, logg))
	})

	// signed by the gateway, not by a user token
	r.Post("/api/payment/webhook", webhookcontrollers.PaymentWebhook(deps.Payments, cfg.Payments.WebhookSecret, logg))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(replayStore, logg))

		r.Get("/address/locate", controllers.AddressLocate(deps.Address, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Get("/me", ordercontrollers.ListMine(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.Post("/{orderId}/rating", ordercontrollers.Rate(deps.Orders, logg))
		})

		r.Route("/kitchen", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleKitchen))
			r.Get("/orders/active", kitchencontrollers.ActiveOrders(deps.Kitchen, logg))
			r.Get("/orders/ready", kitchencontrollers.ReadyOrders(deps.Kitchen, logg))
			r.Get("/stats", kitchencontrollers.Stats(deps.Kitchen, logg))
			r.Put("/order/{orderId}/status", kitchencontrollers.UpdateStatus(deps.Kitchen, logg))
			r.Put("/order/{orderId}/estimated-time", kitchencontrollers.EstimatedTime(deps.Kitchen, logg))
		})

		r.Route("/delivery", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.RoleKitchen)).Post("/assign", deliverycontrollers.Assign(deps.Delivery, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RoleDelivery))
				r.Get("/orders", deliverycontrollers.AvailableOrders(deps.Delivery, logg))
				r.Get("/agent/orders", deliverycontrollers.AgentOrders(deps.Delivery, logg))
				r.Put("/order/{orderId}/status", deliverycontrollers.UpdateStatus(deps.Delivery, logg))
				r.Put("/location", deliverycontrollers.UpdateLocation(deps.Delivery, logg))
			})
		})

		r.Route("/payment", func(r chi.Router) {
			r.Post("/session", paymentcontrollers.CreateSession(deps.Payments, logg))
			r.Post("/charge", paymentcontrollers.Charge(deps.Payments, logg))
		})
		r.Route("/payments", func(r chi.Router) {
			r.Get("/me", paymentcontrollers.ListMine(deps.Payments, logg))
			r.Get("/{paymentId}", paymentcontrollers.Get(deps.Payments, logg))
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Get("/", controllers.UserProfile(deps.Users, logg))
			r.Put("/", controllers.UserUpdateProfile(deps.Users, logg))
			r.Put("/preferences", controllers.UserUpdatePreferences(deps.Users, logg))
			r.Post("/addresses", controllers.UserAddAddress(deps.Users, logg))
			r.Delete("/addresses/{addressId}", controllers.UserRemoveAddress(deps.Users, logg))
			r.Put("/addresses/{addressId}/default", controllers.UserDefaultAddress(deps.Users, logg))
			r.Get("/stats", controllers.UserStats(deps.Users, logg))
			r.Get("/loyalty", controllers.UserLoyalty(deps.Loyalty, logg))
			r.Get("/loyalty/history", controllers.UserLoyaltyHistory(deps.Loyalty, logg))
			r.Get("/loyalty/coupons", controllers.UserCoupons(deps.Loyalty, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))

			r.Post("/staff", controllers.AdminRegisterStaff(deps.Staff, logg))
			r.Get("/users", controllers.AdminListUsers(deps.Users, logg))

			r.Route("/menu", func(r chi.Router) {
				r.Get("/categories", controllers.MenuCategories(deps.Menu, true, logg))
				r.Post("/categories", controllers.AdminCreateCategory(deps.Menu, logg))
				r.Put("/categories/{categoryId}", controllers.AdminUpdateCategory(deps.Menu, logg))
				r.Delete("/categories/{categoryId}", controllers.AdminDeleteCategory(deps.Menu, logg))
				r.Get("/items", controllers.MenuItems(deps.Menu, false, logg))
				r.Post("/items", controllers.AdminCreateItem(deps.Menu, logg))
				r.Put("/items/{itemId}", controllers.AdminUpdateItem(deps.Menu, logg))
				r.Delete("/items/{itemId}", controllers.AdminDeleteItem(deps.Menu, logg))
			})

			r.Get("/orders", ordercontrollers.AdminList(deps.Orders, logg))
			r.Put("/orders/{orderId}/status", ordercontrollers.AdminUpdateStatus(deps.Orders, logg))

			r.Post("/payments/{paymentId}/refund", paymentcontrollers.Refund(deps.Payments, logg))

			r.Get("/delivery/agents", deliverycontrollers.ListAgents(deps.Delivery, logg))
			r.Post("/delivery/agents", deliverycontrollers.RegisterAgent(deps.Delivery, logg))
		})
	})

	return r
}
