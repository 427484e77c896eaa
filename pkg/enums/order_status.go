package enums

import "fmt"

// OrderStatus tracks an order through the kitchen and fulfillment lifecycle.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out-for-delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusPickedUp       OrderStatus = "picked-up"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusPickedUp,
	OrderStatusCancelled,
}

// orderTransitions lists every legal next status. Statuses absent from the
// map, and the terminal ones mapped to nil, have no way out.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:      {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:          {OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusPickedUp, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered},
	OrderStatusDelivered:      nil,
	OrderStatusPickedUp:       nil,
	OrderStatusCancelled:      nil,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s OrderStatus) IsTerminal() bool {
	return s.IsValid() && len(orderTransitions[s]) == 0
}

// IsKitchenActive reports whether the order still needs kitchen work.
func (s OrderStatus) IsKitchenActive() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing:
		return true
	default:
		return false
	}
}

// AllowedNext returns a copy of the statuses reachable from s in one step.
func (s OrderStatus) AllowedNext() []OrderStatus {
	next := orderTransitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether an order may move from one status to another.
// It is defined for every pair of values, including unknown ones.
func CanTransition(from, to OrderStatus) bool {
	for _, candidate := range orderTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// KitchenActiveStatuses returns the statuses shown in the kitchen queue.
func KitchenActiveStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing}
}
