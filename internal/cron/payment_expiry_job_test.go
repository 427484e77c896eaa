package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/restaurant-backend/pkg/logger"
)

type fakeExpirer struct {
	expired int
	err     error
	calls   int
}

func (f *fakeExpirer) ExpireStale(context.Context) (int, error) {
	f.calls++
	return f.expired, f.err
}

func TestPaymentExpiryJobRunsExpirer(t *testing.T) {
	expirer := &fakeExpirer{expired: 3}
	job, err := NewPaymentExpiryJob(PaymentExpiryJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Payments: expirer,
	})
	if err != nil {
		t.Fatalf("NewPaymentExpiryJob: %v", err)
	}
	if job.Name() != "payment-expiry" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.calls != 1 {
		t.Fatalf("expected one call, got %d", expirer.calls)
	}
}

func TestPaymentExpiryJobPropagatesError(t *testing.T) {
	job, err := NewPaymentExpiryJob(PaymentExpiryJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Payments: &fakeExpirer{err: errors.New("db down")},
	})
	if err != nil {
		t.Fatalf("NewPaymentExpiryJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewPaymentExpiryJobRequiresService(t *testing.T) {
	if _, err := NewPaymentExpiryJob(PaymentExpiryJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without payments service")
	}
}
