package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/internal/loyalty"
	"github.com/angelmondragon/restaurant-backend/internal/notifications"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Notifier is the slice of the notification dispatcher orders need.
type Notifier interface {
	Dispatch(ctx context.Context, userID uuid.UUID, msg notifications.Message) (notifications.DispatchResult, error)
	NotifyKitchen(ctx context.Context, subject, html string) notifications.ChannelResult
	KitchenAppURL() string
	Log(ctx context.Context, result notifications.DispatchResult, err error)
	LogChannel(ctx context.Context, result notifications.ChannelResult)
}

// LoyaltyLedger credits and debits points inside the order transaction.
type LoyaltyLedger interface {
	AddPointsForOrder(ctx context.Context, tx *gorm.DB, input loyalty.AddPointsInput) (loyalty.AddResult, error)
	RedeemPoints(ctx context.Context, tx *gorm.DB, input loyalty.RedeemInput) (loyalty.RedeemResult, error)
	NotifyEarned(ctx context.Context, result loyalty.AddResult)
	NotifyRedeemed(ctx context.Context, result loyalty.RedeemResult)
}

// PaymentReconciler opens and refunds the payment tied to an order.
type PaymentReconciler interface {
	OpenForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Payment, error)
	RefundForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, reason string) (*models.Payment, error)
}
