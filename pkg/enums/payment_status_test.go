package enums

import "testing"

func TestParsePaymentEnums(t *testing.T) {
	if got, err := ParsePaymentStatus("partially_refunded"); err != nil || got != PaymentStatusPartiallyRefunded {
		t.Fatalf("unexpected payment status %q %v", got, err)
	}
	if _, err := ParsePaymentStatus("paid"); err == nil {
		t.Fatalf("paid belongs to the order payment status, not the payment record")
	}
	if got, err := ParseOrderPaymentStatus("paid"); err != nil || got != OrderPaymentPaid {
		t.Fatalf("unexpected order payment status %q %v", got, err)
	}
	if _, err := ParsePaymentMethod("ach"); err == nil {
		t.Fatalf("expected ach to be rejected")
	}
	if !VehicleOnFoot.IsValid() {
		t.Fatalf("on-foot should be a valid vehicle")
	}
}

func TestPaymentStatusTraits(t *testing.T) {
	for _, s := range OpenPaymentStatuses() {
		if !s.IsOpen() || s.IsSettled() {
			t.Fatalf("%s should be open and unsettled", s)
		}
	}
	if !PaymentStatusPartiallyRefunded.IsRefundable() || PaymentStatusRefunded.IsRefundable() {
		t.Fatalf("only payments with money left are refundable")
	}
	if !PaymentStatusRefunded.IsSettled() || PaymentStatusFailed.IsSettled() {
		t.Fatalf("unexpected settled flags")
	}
	if PaymentMethodCash.IsOnline() || !PaymentMethodWallet.IsOnline() || PaymentMethod("cheque").IsOnline() {
		t.Fatalf("unexpected online flags")
	}
}

func TestCanTransitionPayment(t *testing.T) {
	allowed := []struct{ from, to PaymentStatus }{
		{PaymentStatusPending, PaymentStatusProcessing},
		{PaymentStatusProcessing, PaymentStatusSucceeded},
		{PaymentStatusProcessing, PaymentStatusFailed},
		{PaymentStatusFailed, PaymentStatusProcessing},
		{PaymentStatusSucceeded, PaymentStatusRefunded},
		{PaymentStatusPartiallyRefunded, PaymentStatusRefunded},
	}
	for _, tc := range allowed {
		if !CanTransitionPayment(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}
	rejected := []struct{ from, to PaymentStatus }{
		{PaymentStatusRefunded, PaymentStatusFailed},
		{PaymentStatusRefunded, PaymentStatusSucceeded},
		{PaymentStatusSucceeded, PaymentStatusFailed},
		{PaymentStatusProcessing, PaymentStatusRefunded},
		{PaymentStatusFailed, PaymentStatusSucceeded},
		{PaymentStatus("paid"), PaymentStatusRefunded},
	}
	for _, tc := range rejected {
		if CanTransitionPayment(tc.from, tc.to) {
			t.Errorf("%s -> %s should be rejected", tc.from, tc.to)
		}
	}
}
