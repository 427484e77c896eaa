// Package payments reconciles gateway outcomes with orders and payment rows.
package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/restaurant-backend/pkg/auth"
	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db"
	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/restaurant-backend/pkg/errors"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/restaurant-backend/pkg/pagination"
)

const (
	sessionExpiredMessage = "payment session expired"
	expiryBatchSize       = 100
)

// Service is the payment reconciler.
type Service interface {
	OpenForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Payment, error)
	CreateSession(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*SessionResult, error)
	ApplyGatewayUpdate(ctx context.Context, update Webhook) (*ApplyResult, error)
	Charge(ctx context.Context, input ChargeInput) (*models.Payment, error)
	Refund(ctx context.Context, input RefundInput) (*models.Payment, error)
	RefundForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, reason string) (*models.Payment, error)
	ExpireStale(ctx context.Context) (int, error)
	Get(ctx context.Context, paymentID uuid.UUID, actor auth.Actor) (*models.Payment, error)
	ListForUser(ctx context.Context, userID uuid.UUID, page pagination.Params) (*pagination.Page[models.Payment], error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// webhookDeduper is satisfied by the Redis client.
type webhookDeduper interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookKey(provider, eventID string) string
}

type SessionResult struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	SessionID   string    `json:"session_id"`
	RedirectURL string    `json:"redirect_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Webhook is a gateway callback after signature verification.
type Webhook struct {
	SessionID     string              `json:"session_id" validate:"required"`
	Status        enums.GatewayStatus `json:"status" validate:"required"`
	TransactionID string              `json:"transaction_id"`
	Message       string              `json:"message"`
}

type ApplyResult struct {
	Payment   *models.Payment
	Duplicate bool
	// Stale marks a callback the payment has already moved past.
	Stale bool
}

type ChargeInput struct {
	OrderID  uuid.UUID
	SourceID string
	Actor    auth.Actor
}

// RefundInput refunds Amount, or the whole remaining balance when Amount is zero.
type RefundInput struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	Reason    string
	Actor     auth.Actor
}

type ServiceParams struct {
	DB         txRunner
	Repository Repository
	Gateway    Gateway
	Outbox     outbox.Emitter
	Deduper    webhookDeduper
	Config     config.PaymentsConfig
	Currency   string
	Logger     *logger.Logger
}

type service struct {
	db       txRunner
	repo     Repository
	gateway  Gateway
	outbox   outbox.Emitter
	dedupe   webhookDeduper
	cfg      config.PaymentsConfig
	currency string
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments repository required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "SAR"
	}
	cfg := params.Config
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.WebhookDedupeTTL <= 0 {
		cfg.WebhookDedupeTTL = 72 * time.Hour
	}
	return &service{
		db:       params.DB,
		repo:     params.Repository,
		gateway:  params.Gateway,
		outbox:   params.Outbox,
		dedupe:   params.Deduper,
		cfg:      cfg,
		currency: currency,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// OpenForOrder creates the pending payment for a card or wallet order in
// the order's own transaction. Cash orders have no payment row.
func (s *service) OpenForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Payment, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !order.PaymentMethod.IsOnline() {
		return nil, nil
	}
	payment := &models.Payment{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Amount:         order.TotalPrice,
		Currency:       s.currency,
		PaymentMethod:  order.PaymentMethod,
		Status:         enums.PaymentStatusPending,
		RefundedAmount: decimal.Zero,
	}
	if err := s.repo.WithTx(tx).Create(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order already has a payment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}
	return payment, nil
}

func (s *service) CreateSession(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*SessionResult, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, mapFindError(err, "order not found")
	}
	if !actor.Owns(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	if !order.PaymentMethod.IsOnline() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cash orders are paid on delivery")
	}
	if order.PaymentStatus == enums.OrderPaymentPaid || order.PaymentStatus == enums.OrderPaymentRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid")
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is cancelled")
	}

	var result *SessionResult
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByOrderID(ctx, order.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			payment, err = s.OpenForOrder(ctx, tx, order)
		}
		if err != nil {
			return mapFindError(err, "payment not found")
		}

		session, err := s.gateway.CreateSession(ctx, SessionRequest{
			PaymentID: payment.ID.String(),
			OrderID:   order.ID.String(),
			Amount:    payment.Amount,
			Currency:  payment.Currency,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment session")
		}

		expiresAt := s.now().UTC().Add(s.cfg.SessionTTL)
		if err := repo.Update(ctx, payment.ID, map[string]any{
			"session_id":    session.ID,
			"status":        enums.PaymentStatusProcessing,
			"expires_at":    expiresAt,
			"error_message": nil,
		}); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment session collision, retry")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment session")
		}
		if err := repo.SetOrderPayment(ctx, order.ID, enums.OrderPaymentProcessing, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment status")
		}
		if err := s.emit(ctx, tx, payment, payment.Status, enums.PaymentStatusProcessing, payment.RefundedAmount, &actor); err != nil {
			return err
		}
		result = &SessionResult{
			PaymentID:   payment.ID,
			SessionID:   session.ID,
			RedirectURL: session.RedirectURL,
			ExpiresAt:   expiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyGatewayUpdate folds a gateway callback into the payment and order.
// Replays of the same (session, status) pair are acknowledged without writes.
func (s *service) ApplyGatewayUpdate(ctx context.Context, update Webhook) (*ApplyResult, error) {
	sessionID := strings.TrimSpace(update.SessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if !update.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown gateway status")
	}

	var dedupeKey string
	if s.dedupe != nil {
		dedupeKey = s.dedupe.WebhookKey(s.gateway.Name(), sessionID+":"+update.Status.String())
		fresh, err := s.dedupe.SetNX(ctx, dedupeKey, s.now().UTC().Unix(), s.cfg.WebhookDedupeTTL)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency")
		}
		if !fresh {
			payment, err := s.repo.FindBySessionID(ctx, sessionID)
			if err != nil {
				return nil, mapFindError(err, "payment not found")
			}
			return &ApplyResult{Payment: payment, Duplicate: true}, nil
		}
	}

	result, err := s.applyUpdate(ctx, sessionID, update)
	if err != nil && dedupeKey != "" {
		if delErr := s.dedupe.Del(ctx, dedupeKey); delErr != nil {
			s.logg.Error(ctx, "release webhook idempotency key", delErr)
		}
	}
	return result, err
}

func (s *service) applyUpdate(ctx context.Context, sessionID string, update Webhook) (*ApplyResult, error) {
	target, orderStatus := mapGatewayStatus(update.Status)
	result := &ApplyResult{}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindBySessionID(ctx, sessionID)
		if err != nil {
			return mapFindError(err, "payment not found")
		}
		if payment.Status == target {
			result.Payment = payment
			result.Duplicate = true
			return nil
		}
		// late callbacks must not reopen a settled or refunded payment
		if !enums.CanTransitionPayment(payment.Status, target) {
			result.Payment = payment
			result.Duplicate = true
			result.Stale = true
			return nil
		}

		updates := map[string]any{"status": target}
		var txnID *string
		if id := strings.TrimSpace(update.TransactionID); id != "" {
			txnID = &id
			updates["transaction_id"] = id
		}
		refunded := payment.RefundedAmount
		switch target {
		case enums.PaymentStatusFailed:
			msg := strings.TrimSpace(update.Message)
			if msg == "" {
				msg = "payment failed"
			}
			updates["error_message"] = msg
		case enums.PaymentStatusRefunded:
			refunded = payment.Amount
			updates["refunded_amount"] = refunded
		}
		if err := repo.Update(ctx, payment.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}
		if orderStatus != "" {
			if err := repo.SetOrderPayment(ctx, payment.OrderID, orderStatus, txnID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment status")
			}
		}
		if err := s.emit(ctx, tx, payment, payment.Status, target, refunded, nil); err != nil {
			return err
		}

		updated, err := repo.FindByID(ctx, payment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
		}
		result.Payment = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"session_id": sessionID,
		"status":     update.Status,
		"duplicate":  result.Duplicate,
		"stale":      result.Stale,
	}), "payment webhook applied")
	return result, nil
}

// Charge takes a card nonce and settles the order in one step. A declined
// card is persisted as failed before the error is returned.
func (s *service) Charge(ctx context.Context, input ChargeInput) (*models.Payment, error) {
	if strings.TrimSpace(input.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment source required")
	}
	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return nil, mapFindError(err, "order not found")
	}
	if !input.Actor.Owns(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	if !order.PaymentMethod.IsOnline() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cash orders are paid on delivery")
	}
	payment, err := s.repo.FindByOrderID(ctx, order.ID)
	if err != nil {
		return nil, mapFindError(err, "payment not found")
	}
	if payment.Status.IsSettled() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid")
	}

	charge, chargeErr := s.gateway.Charge(ctx, ChargeRequest{
		PaymentID: payment.ID.String(),
		OrderID:   order.ID.String(),
		SourceID:  input.SourceID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
	})

	target, orderStatus := enums.PaymentStatusSucceeded, enums.OrderPaymentPaid
	updates := map[string]any{"status": target, "error_message": nil}
	var txnID *string
	if chargeErr != nil {
		target, orderStatus = enums.PaymentStatusFailed, enums.OrderPaymentFailed
		updates = map[string]any{"status": target, "error_message": chargeErr.Error()}
	} else {
		txnID = &charge.TransactionID
		updates["transaction_id"] = charge.TransactionID
	}

	var updated *models.Payment
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, payment.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}
		if err := repo.SetOrderPayment(ctx, order.ID, orderStatus, txnID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment status")
		}
		if err := s.emit(ctx, tx, payment, payment.Status, target, payment.RefundedAmount, &input.Actor); err != nil {
			return err
		}
		updated, err = repo.FindByID(ctx, payment.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if chargeErr != nil {
		if pkgerrors.Is(chargeErr, pkgerrors.CodeValidation) {
			return nil, chargeErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, chargeErr, "card charge failed")
	}
	return updated, nil
}

func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Payment, error) {
	var updated *models.Payment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		payment, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, input.PaymentID)
		if err != nil {
			return mapFindError(err, "payment not found")
		}
		updated, err = s.refund(ctx, tx, payment, input.Amount, input.Reason, &input.Actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RefundForOrder refunds whatever is still captured for order inside the
// caller's transaction. It returns nil when nothing was captured.
func (s *service) RefundForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, reason string) (*models.Payment, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if order == nil || !order.PaymentMethod.IsOnline() {
		return nil, nil
	}
	payment, err := s.repo.WithTx(tx).FindByOrderID(ctx, order.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order payment")
	}
	if !payment.Status.IsRefundable() {
		return nil, nil
	}
	return s.refund(ctx, tx, payment, decimal.Zero, reason, nil)
}

func (s *service) refund(ctx context.Context, tx *gorm.DB, payment *models.Payment, amount decimal.Decimal, reason string, actor *auth.Actor) (*models.Payment, error) {
	if !payment.Status.IsRefundable() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment is not refundable in status "+payment.Status.String())
	}
	remaining := payment.Amount.Sub(payment.RefundedAmount)
	if amount.IsZero() {
		amount = remaining
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if payment.RefundedAmount.Add(amount).GreaterThan(payment.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeRefundExceedsAmount, "refund exceeds captured amount").
			WithDetails(map[string]string{"refundable": remaining.StringFixed(2)})
	}

	refund, err := s.gateway.Refund(ctx, RefundRequest{
		TransactionID: valueOr(payment.TransactionID, ""),
		Amount:        amount,
		Currency:      payment.Currency,
		Reason:        reason,
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway refund failed")
	}

	refunded := payment.RefundedAmount.Add(amount)
	target := enums.PaymentStatusPartiallyRefunded
	if refunded.Equal(payment.Amount) {
		target = enums.PaymentStatusRefunded
	}
	updates := map[string]any{
		"status":          target,
		"refunded_amount": refunded,
		"refund_id":       refund.RefundID,
	}
	if r := strings.TrimSpace(reason); r != "" {
		updates["refund_reason"] = r
	}

	repo := s.repo.WithTx(tx)
	if err := repo.Update(ctx, payment.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
	}
	if target == enums.PaymentStatusRefunded {
		if err := repo.SetOrderPayment(ctx, payment.OrderID, enums.OrderPaymentRefunded, nil); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment status")
		}
	}
	if err := s.emit(ctx, tx, payment, payment.Status, target, refunded, actor); err != nil {
		return nil, err
	}
	return repo.FindByID(ctx, payment.ID)
}

// ExpireStale fails sessions whose expiry has passed. It runs from cron.
func (s *service) ExpireStale(ctx context.Context) (int, error) {
	now := s.now().UTC()
	expired, err := s.repo.ListExpired(ctx, now, expiryBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired payments")
	}
	count := 0
	for i := range expired {
		payment := &expired[i]
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.Update(ctx, payment.ID, map[string]any{
				"status":        enums.PaymentStatusFailed,
				"error_message": sessionExpiredMessage,
			}); err != nil {
				return err
			}
			if err := repo.SetOrderPayment(ctx, payment.OrderID, enums.OrderPaymentFailed, nil); err != nil {
				return err
			}
			return s.emit(ctx, tx, payment, payment.Status, enums.PaymentStatusFailed, payment.RefundedAmount, nil)
		})
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "payment_id", payment.ID.String()), "expire payment", err)
			continue
		}
		count++
	}
	return count, nil
}

func (s *service) Get(ctx context.Context, paymentID uuid.UUID, actor auth.Actor) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, mapFindError(err, "payment not found")
	}
	if !actor.Owns(payment.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}
	return payment, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, page pagination.Params) (*pagination.Page[models.Payment], error) {
	if _, err := pagination.ParseCursor(page.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	items, next := pagination.Trim(rows, page.Limit, func(p models.Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	if items == nil {
		items = []models.Payment{}
	}
	return &pagination.Page[models.Payment]{Items: items, NextCursor: next}, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, payment *models.Payment, from, to enums.PaymentStatus, refunded decimal.Decimal, actor *auth.Actor) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventPaymentStatusChanged,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentStatusChangedEvent{
			PaymentID:      payment.ID,
			OrderID:        payment.OrderID,
			From:           from,
			To:             to,
			Amount:         payment.Amount,
			RefundedAmount: refunded,
			ChangedAt:      s.now().UTC(),
		},
	}
	if actor != nil && actor.UserID != uuid.Nil {
		event.Actor = &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment event")
	}
	return nil
}

// mapGatewayStatus returns the payment status and the order payment status a
// callback implies. Pending leaves the order untouched.
func mapGatewayStatus(status enums.GatewayStatus) (enums.PaymentStatus, enums.OrderPaymentStatus) {
	switch status {
	case enums.GatewayStatusSucceeded:
		return enums.PaymentStatusSucceeded, enums.OrderPaymentPaid
	case enums.GatewayStatusFailed:
		return enums.PaymentStatusFailed, enums.OrderPaymentFailed
	case enums.GatewayStatusRefunded:
		return enums.PaymentStatusRefunded, enums.OrderPaymentRefunded
	default:
		return enums.PaymentStatusProcessing, ""
	}
}

func mapFindError(err error, notFound string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, notFound)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment data")
}

func valueOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
