package enums

import (
	"fmt"
	"slices"
)

// PaymentStatus is the lifecycle of a gateway payment record:
//
//	pending -> processing -> succeeded -> partially_refunded -> refunded
//	                      \-> failed
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

type paymentStatusTraits struct {
	open       bool // waiting on the customer or the gateway
	settled    bool // money was captured at some point
	refundable bool
}

var paymentStatusInfo = map[PaymentStatus]paymentStatusTraits{
	PaymentStatusPending:           {open: true},
	PaymentStatusProcessing:        {open: true},
	PaymentStatusSucceeded:         {settled: true, refundable: true},
	PaymentStatusFailed:            {},
	PaymentStatusRefunded:          {settled: true},
	PaymentStatusPartiallyRefunded: {settled: true, refundable: true},
}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool {
	_, ok := paymentStatusInfo[p]
	return ok
}

// IsOpen is true while a session can still expire.
func (p PaymentStatus) IsOpen() bool { return paymentStatusInfo[p].open }

func (p PaymentStatus) IsSettled() bool { return paymentStatusInfo[p].settled }

// IsRefundable is true while some captured amount has not been returned.
func (p PaymentStatus) IsRefundable() bool { return paymentStatusInfo[p].refundable }

// paymentTransitions holds the moves a gateway or refund may make. A failed
// payment reopens only through a new session.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:           {PaymentStatusProcessing, PaymentStatusSucceeded, PaymentStatusFailed},
	PaymentStatusProcessing:        {PaymentStatusSucceeded, PaymentStatusFailed},
	PaymentStatusFailed:            {PaymentStatusProcessing},
	PaymentStatusSucceeded:         {PaymentStatusPartiallyRefunded, PaymentStatusRefunded},
	PaymentStatusPartiallyRefunded: {PaymentStatusPartiallyRefunded, PaymentStatusRefunded},
}

// CanTransitionPayment reports whether a payment may move from one status to
// another. Refunded is terminal and unknown values never move.
func CanTransitionPayment(from, to PaymentStatus) bool {
	return slices.Contains(paymentTransitions[from], to)
}

// OpenPaymentStatuses lists the statuses IsOpen accepts, for queries.
func OpenPaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentStatusPending, PaymentStatusProcessing}
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	if s := PaymentStatus(value); s.IsValid() {
		return s, nil
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
