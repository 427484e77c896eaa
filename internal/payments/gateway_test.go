package payments

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/square"
)

type stubSquare struct {
	created  square.ChargeParams
	refunded square.RefundParams
	status   string
}

func (s *stubSquare) CreatePayment(ctx context.Context, params square.ChargeParams) (*sq.Payment, error) {
	s.created = params
	id := "sq_pay_1"
	status := s.status
	return &sq.Payment{ID: &id, Status: &status}, nil
}

func (s *stubSquare) RefundPayment(ctx context.Context, params square.RefundParams) (*sq.PaymentRefund, error) {
	s.refunded = params
	return &sq.PaymentRefund{}, nil
}

func TestHostedSessionFormat(t *testing.T) {
	h := hostedSessions{appURL: "https://shop.example/", now: func() time.Time { return time.UnixMilli(1700000000123) }}
	session := h.create()
	if session.ID != "sess_1700000000123" {
		t.Fatalf("unexpected session id %s", session.ID)
	}
	if session.RedirectURL != "https://shop.example/checkout/payment?session=sess_1700000000123" {
		t.Fatalf("unexpected redirect %s", session.RedirectURL)
	}
}

func TestSquareGatewayChargeUsesMinorUnits(t *testing.T) {
	stub := &stubSquare{status: "COMPLETED"}
	gw, err := NewSquareGateway(stub, "https://shop.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := gw.Charge(context.Background(), ChargeRequest{
		PaymentID: "p1",
		OrderID:   "o1",
		SourceID:  "cnon:ok",
		Amount:    decimal.RequireFromString("42.50"),
		Currency:  "SAR",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TransactionID != "sq_pay_1" {
		t.Fatalf("unexpected transaction %s", res.TransactionID)
	}
	if stub.created.AmountMinor != 4250 || stub.created.IdempotencyKey != "payment-p1" || stub.created.ReferenceID != "o1" {
		t.Fatalf("unexpected square params %+v", stub.created)
	}
}

func TestSquareGatewayFailedStatus(t *testing.T) {
	gw, _ := NewSquareGateway(&stubSquare{status: "FAILED"}, "")
	_, err := gw.Charge(context.Background(), ChargeRequest{SourceID: "cnon:x", Amount: decimal.NewFromInt(1)})
	if !pkgerrors.Is(err, pkgerrors.CodePaymentFailed) {
		t.Fatalf("expected payment failed, got %v", err)
	}
}

func TestSquareGatewayRefundNeedsTransaction(t *testing.T) {
	gw, _ := NewSquareGateway(&stubSquare{}, "")
	_, err := gw.Refund(context.Background(), RefundRequest{Amount: decimal.NewFromInt(5)})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMinorUnitsRounds(t *testing.T) {
	if got := minorUnits(decimal.RequireFromString("10.005")); got != 1001 {
		t.Fatalf("expected 1001, got %d", got)
	}
}
