package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// ChargeParams is a one-off card charge. AmountMinor is in the currency's
// minor unit (halalas for SAR); Currency falls back to the client default.
type ChargeParams struct {
	AmountMinor    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
}

// RefundParams refunds AmountMinor of a completed Square payment.
type RefundParams struct {
	PaymentID      string
	AmountMinor    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

func (c *Client) chargeRequest(p ChargeParams, key string) *sq.CreatePaymentRequest {
	location := optional(p.LocationID)
	if location == nil {
		location = optional(c.locationID)
	}
	autocomplete := true
	return &sq.CreatePaymentRequest{
		IdempotencyKey: key,
		SourceID:       p.SourceID,
		LocationID:     location,
		Autocomplete:   &autocomplete,
		AmountMoney:    c.money(p.AmountMinor, p.Currency),
		Note:           optional(p.Note),
		ReferenceID:    optional(p.ReferenceID),
	}
}

func (c *Client) refundRequest(p RefundParams, key string) *sq.RefundPaymentRequest {
	return &sq.RefundPaymentRequest{
		IdempotencyKey: key,
		PaymentID:      optional(p.PaymentID),
		AmountMoney:    c.money(p.AmountMinor, p.Currency),
		Reason:         optional(p.Reason),
	}
}

// money returns nil for a zero amount so Square rejects the request itself.
func (c *Client) money(amountMinor int64, currency string) *sq.Money {
	if amountMinor == 0 {
		return nil
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = c.currency
	}
	cur := sq.Currency(code)
	return &sq.Money{Amount: &amountMinor, Currency: &cur}
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
