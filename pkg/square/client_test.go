package square

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	sqcore "github.com/square/square-go-sdk/core"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
)

func TestNewClientValidatesConfig(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "square-test"})
	ctx := context.Background()
	valid := config.SquareConfig{AccessToken: "EAAA-token", LocationID: "L1", Env: "Sandbox"}

	c, err := NewClient(ctx, valid, " sar ", logg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Environment() != "sandbox" || c.currency != "SAR" {
		t.Fatalf("env=%s currency=%s", c.Environment(), c.currency)
	}

	broken := []config.SquareConfig{
		{LocationID: "L1"},
		{AccessToken: "EAAA-token"},
		{AccessToken: "EAAA-token", LocationID: "L1", Env: "staging"},
	}
	for _, cfg := range broken {
		if _, err := NewClient(ctx, cfg, "SAR", logg); err == nil {
			t.Fatalf("expected %+v to be rejected", cfg)
		}
	}
	if _, err := NewClient(ctx, valid, "SAR", nil); err == nil {
		t.Fatal("expected a logger to be required")
	}
}

func TestIdempotencyKey(t *testing.T) {
	if got := idempotencyKey("charge", " payment-42 "); got != "payment-42" {
		t.Fatalf("caller key not kept: %q", got)
	}
	a, b := idempotencyKey("refund", ""), idempotencyKey("refund", "")
	if !strings.HasPrefix(a, "refund-") || a == b {
		t.Fatalf("generated keys %q %q", a, b)
	}
}

func TestMaskedHidesCardData(t *testing.T) {
	out := masked("create_payment", map[string]any{"source_id": "cnon:abc", "customer_email": "a@b.c", "amount_minor": 4550})
	if out["source_id"] != "[REDACTED]" || out["customer_email"] != "[REDACTED]" {
		t.Fatalf("sensitive fields leaked: %v", out)
	}
	if out["amount_minor"] != 4550 || out["square_op"] != "create_payment" {
		t.Fatalf("safe fields changed: %v", out)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   pkgerrors.Code
		reason string
	}{
		{"declined", http.StatusPaymentRequired, `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_DECLINED"}]}`, pkgerrors.CodePaymentFailed, "CARD_DECLINED"},
		{"decline on 400", http.StatusBadRequest, `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"INSUFFICIENT_FUNDS"}]}`, pkgerrors.CodePaymentFailed, "INSUFFICIENT_FUNDS"},
		{"key reused", http.StatusConflict, `{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`, pkgerrors.CodeIdempotency, ""},
		{"bad credentials", http.StatusUnauthorized, `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`, pkgerrors.CodeDependency, ""},
		{"unknown payment", http.StatusNotFound, `{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"NOT_FOUND"}]}`, pkgerrors.CodeNotFound, ""},
		{"throttled", http.StatusTooManyRequests, `not json`, pkgerrors.CodeRateLimit, ""},
		{"outage", http.StatusBadGateway, ``, pkgerrors.CodeDependency, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := pkgerrors.As(mapError(sqcore.NewAPIError(tc.status, errors.New(tc.body)), "create_payment"))
			if mapped == nil || mapped.Code() != tc.want {
				t.Fatalf("got %v, want %s", mapped, tc.want)
			}
			details, _ := mapped.Details().(map[string]string)
			if details["reason"] != tc.reason {
				t.Fatalf("reason = %q, want %q", details["reason"], tc.reason)
			}
		})
	}

	plain := mapError(errors.New("dial tcp: i/o timeout"), "refund_payment")
	if pkgerrors.CodeOf(plain) != pkgerrors.CodeDependency {
		t.Fatalf("transport error mapped to %s", pkgerrors.CodeOf(plain))
	}
}

func TestChargeRequestDefaults(t *testing.T) {
	c := &Client{locationID: "L-MAIN", currency: "SAR"}

	req := c.chargeRequest(ChargeParams{AmountMinor: 4550, SourceID: "cnon:ok", ReferenceID: "ORD-1", Note: "  "}, "k1")
	if req.AmountMoney == nil || *req.AmountMoney.Amount != 4550 || string(*req.AmountMoney.Currency) != "SAR" {
		t.Fatalf("money = %+v", req.AmountMoney)
	}
	if deref(req.LocationID) != "L-MAIN" || req.Note != nil || deref(req.ReferenceID) != "ORD-1" {
		t.Fatalf("request = %+v", req)
	}

	refund := c.refundRequest(RefundParams{PaymentID: "sq_1", AmountMinor: 1000, Currency: "usd"}, "k2")
	if string(*refund.AmountMoney.Currency) != "USD" || deref(refund.PaymentID) != "sq_1" || refund.Reason != nil {
		t.Fatalf("refund = %+v", refund)
	}
	if c.money(0, "SAR") != nil {
		t.Fatal("zero amount should send no money object")
	}
}
