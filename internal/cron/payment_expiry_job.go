package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/restaurant-backend/pkg/logger"
)

type paymentExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

type PaymentExpiryJobParams struct {
	Logger   *logger.Logger
	Payments paymentExpirer
}

// NewPaymentExpiryJob builds the job that fails payment sessions left in
// processing past their TTL.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	return &paymentExpiryJob{logg: params.Logger, payments: params.Payments}, nil
}

type paymentExpiryJob struct {
	logg     *logger.Logger
	payments paymentExpirer
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	expired, err := j.payments.ExpireStale(ctx)
	if err != nil {
		return fmt.Errorf("payment expiry: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "expired", expired), "payment expiry complete")
	return nil
}
