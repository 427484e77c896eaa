package enums

import "fmt"

// PaymentMethod is how a customer settles an order. Card and wallet go
// through the payment gateway; cash is collected on handover.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodWallet PaymentMethod = "wallet"
)

var paymentMethodOnline = map[PaymentMethod]bool{
	PaymentMethodCash:   false,
	PaymentMethodCard:   true,
	PaymentMethodWallet: true,
}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool {
	_, ok := paymentMethodOnline[p]
	return ok
}

// IsOnline reports whether the method needs a gateway payment record.
func (p PaymentMethod) IsOnline() bool {
	return paymentMethodOnline[p]
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	if m := PaymentMethod(value); m.IsValid() {
		return m, nil
	}
	return "", fmt.Errorf("invalid payment method %q (want cash, card or wallet)", value)
}
