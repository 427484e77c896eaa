// Package square is the thin wrapper the payments gateway uses to charge and
// refund cards through Square. Every call is logged with sensitive fields
// masked, and SDK failures come back as typed pkg/errors codes.
package square

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
)

const defaultCurrency = "SAR"

var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

type Client struct {
	sdk        *sqclient.Client
	env        string
	locationID string
	currency   string
	logg       *logger.Logger
}

// NewClient validates cfg and builds an authenticated SDK client. currency is
// used for requests that do not name one.
func NewClient(ctx context.Context, cfg config.SquareConfig, currency string, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square: logger is required")
	}
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("square: environment must be sandbox or production, got %q", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square: access token is required")
	}
	location := strings.TrimSpace(cfg.LocationID)
	if location == "" {
		return nil, errors.New("square: location id is required")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = defaultCurrency
	}

	logg.Info(logg.WithFields(ctx, map[string]any{"square_env": env, "currency": currency}), "square client ready")
	return &Client{
		sdk:        sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(token)),
		env:        env,
		locationID: location,
		currency:   currency,
		logg:       logg,
	}, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.env
}

// CreatePayment charges a card nonce or stored card and completes it at once.
func (c *Client) CreatePayment(ctx context.Context, p ChargeParams) (*sq.Payment, error) {
	req := c.chargeRequest(p, idempotencyKey("charge", p.IdempotencyKey))
	resp, err := call(ctx, c, "create_payment", map[string]any{
		"location_id":  deref(req.LocationID),
		"reference_id": p.ReferenceID,
		"amount_minor": p.AmountMinor,
		"source_id":    p.SourceID,
	}, func() (*sq.CreatePaymentResponse, error) {
		return c.sdk.Payments.Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	payment := resp.GetPayment()
	c.trace(ctx, "create_payment", map[string]any{
		"payment_id": deref(payment.GetID()),
		"status":     deref(payment.GetStatus()),
	})
	return payment, nil
}

// RefundPayment refunds part or all of a completed Square payment.
func (c *Client) RefundPayment(ctx context.Context, p RefundParams) (*sq.PaymentRefund, error) {
	req := c.refundRequest(p, idempotencyKey("refund", p.IdempotencyKey))
	resp, err := call(ctx, c, "refund_payment", map[string]any{
		"payment_id":   p.PaymentID,
		"amount_minor": p.AmountMinor,
	}, func() (*sq.RefundPaymentResponse, error) {
		return c.sdk.Refunds.RefundPayment(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	refund := resp.GetRefund()
	c.trace(ctx, "refund_payment", map[string]any{
		"refund_id": refund.GetID(),
		"status":    refund.GetStatus(),
	})
	return refund, nil
}

// call runs one SDK request with timing and error mapping around it.
func call[T any](ctx context.Context, c *Client, op string, fields map[string]any, fn func() (T, error)) (T, error) {
	started := time.Now()
	out, err := fn()
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		mapped := mapError(err, op)
		c.logg.Error(c.logg.WithFields(ctx, masked(op, fields)), "square call failed", mapped)
		return out, mapped
	}
	c.logg.Debug(c.logg.WithFields(ctx, masked(op, fields)), "square call succeeded")
	return out, nil
}

func (c *Client) trace(ctx context.Context, op string, fields map[string]any) {
	c.logg.Info(c.logg.WithFields(ctx, masked(op, fields)), "square "+strings.ReplaceAll(op, "_", " "))
}

// idempotencyKey keeps a caller-chosen key so retries of the same payment
// reuse it; otherwise every call gets a fresh one.
func idempotencyKey(prefix, provided string) string {
	if key := strings.TrimSpace(provided); key != "" {
		return key
	}
	return prefix + "-" + uuid.NewString()
}

var sensitiveKeys = []string{"card", "nonce", "token", "cvv", "cvc", "secret", "source", "email", "phone"}

func masked(op string, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	out["square_op"] = op
	for key, value := range fields {
		out[key] = value
		lower := strings.ToLower(key)
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				out[key] = "[REDACTED]"
				break
			}
		}
	}
	return out
}
