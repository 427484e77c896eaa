package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/square"
)

// Gateway is the card processor behind the reconciler.
type Gateway interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// GatewayFromConfig returns the simulated gateway when payments are simulated
// and a Square-backed gateway otherwise.
func GatewayFromConfig(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Gateway, error) {
	if cfg.FeatureFlags.SimulatePayment {
		return NewSimulatedGateway(cfg.App.URL), nil
	}
	client, err := square.NewClient(ctx, cfg.Square, cfg.App.Currency, logg)
	if err != nil {
		return nil, err
	}
	return NewSquareGateway(client, cfg.App.URL)
}

type SessionRequest struct {
	PaymentID string
	OrderID   string
	Amount    decimal.Decimal
	Currency  string
}

type Session struct {
	ID          string
	RedirectURL string
}

type ChargeRequest struct {
	PaymentID string
	OrderID   string
	SourceID  string
	Amount    decimal.Decimal
	Currency  string
}

type ChargeResult struct {
	TransactionID string
	Status        string
}

type RefundRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	Reason        string
}

type RefundResult struct {
	RefundID string
	Status   string
}

// hostedSessions issues checkout sessions served by our own payment page.
type hostedSessions struct {
	appURL string
	now    func() time.Time
}

func (h hostedSessions) create() Session {
	id := fmt.Sprintf("sess_%d", h.now().UnixMilli())
	return Session{
		ID:          id,
		RedirectURL: strings.TrimRight(h.appURL, "/") + "/checkout/payment?session=" + url.QueryEscape(id),
	}
}

// SimulatedGateway approves every charge and refund. It backs local
// development and the SIMULATE_PAYMENT flag.
type SimulatedGateway struct {
	sessions hostedSessions
}

func NewSimulatedGateway(appURL string) *SimulatedGateway {
	return &SimulatedGateway{sessions: hostedSessions{appURL: appURL, now: time.Now}}
}

func (g *SimulatedGateway) Name() string { return "simulated" }

func (g *SimulatedGateway) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	return g.sessions.create(), nil
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if strings.TrimSpace(req.SourceID) == "" {
		return ChargeResult{}, pkgerrors.New(pkgerrors.CodeValidation, "payment source required")
	}
	return ChargeResult{
		TransactionID: fmt.Sprintf("txn_%d", g.sessions.now().UnixMilli()),
		Status:        "COMPLETED",
	}, nil
}

func (g *SimulatedGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	return RefundResult{
		RefundID: fmt.Sprintf("ref_%d", g.sessions.now().UnixMilli()),
		Status:   "COMPLETED",
	}, nil
}

type squarePayments interface {
	CreatePayment(ctx context.Context, params square.ChargeParams) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundParams) (*sq.PaymentRefund, error)
}

// SquareGateway charges card nonces collected by the hosted checkout page.
type SquareGateway struct {
	client   squarePayments
	sessions hostedSessions
}

func NewSquareGateway(client squarePayments, appURL string) (*SquareGateway, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square client required")
	}
	return &SquareGateway{client: client, sessions: hostedSessions{appURL: appURL, now: time.Now}}, nil
}

func (g *SquareGateway) Name() string { return "square" }

func (g *SquareGateway) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	return g.sessions.create(), nil
}

func (g *SquareGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if strings.TrimSpace(req.SourceID) == "" {
		return ChargeResult{}, pkgerrors.New(pkgerrors.CodeValidation, "payment source required")
	}
	payment, err := g.client.CreatePayment(ctx, square.ChargeParams{
		AmountMinor:    minorUnits(req.Amount),
		Currency:       req.Currency,
		SourceID:       req.SourceID,
		IdempotencyKey: "payment-" + req.PaymentID,
		ReferenceID:    req.OrderID,
	})
	if err != nil {
		return ChargeResult{}, err
	}
	if payment == nil {
		return ChargeResult{}, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment")
	}
	result := ChargeResult{TransactionID: text(payment.GetID()), Status: text(payment.GetStatus())}
	if result.TransactionID == "" {
		return ChargeResult{}, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment id")
	}
	if result.Status == "FAILED" || result.Status == "CANCELED" {
		return result, pkgerrors.New(pkgerrors.CodePaymentFailed, "card charge "+strings.ToLower(result.Status))
	}
	return result, nil
}

func (g *SquareGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeValidation, "payment has no gateway transaction")
	}
	refund, err := g.client.RefundPayment(ctx, square.RefundParams{
		PaymentID:   req.TransactionID,
		AmountMinor: minorUnits(req.Amount),
		Currency:    req.Currency,
		Reason:      req.Reason,
	})
	if err != nil {
		return RefundResult{}, err
	}
	if refund == nil {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeDependency, "square returned no refund")
	}
	return RefundResult{RefundID: text(refund.GetID()), Status: text(refund.GetStatus())}, nil
}

// text flattens the SDK's mix of required and optional string fields.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *string:
		if t != nil {
			return *t
		}
	}
	return ""
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
