package registry

import (
	"errors"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/outbox/payloads"
)

// family groups the events that share a broker topic.
type family int

const (
	familyOrders family = iota
	familyPayments
	familyLoyalty
)

// schema is one event type at one payload version.
type schema struct {
	eventType  enums.OutboxEventType
	aggregate  enums.OutboxAggregateType
	family     family
	version    int
	newPayload func() any
}

func schemaOf[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, fam family, version int) schema {
	return schema{
		eventType:  eventType,
		aggregate:  aggregate,
		family:     fam,
		version:    version,
		newPayload: func() any { return new(T) },
	}
}

// catalog is every event the services emit. The publisher routes by it and
// consumers decode with it, so both sides read the same table. When a
// payload changes shape, add the new version next to the old one.
var catalog = []schema{
	schemaOf[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, familyOrders, 1),
	schemaOf[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder, familyOrders, 1),
	schemaOf[payloads.PaymentStatusChangedEvent](enums.EventPaymentStatusChanged, enums.AggregatePayment, familyPayments, 1),
	schemaOf[payloads.LoyaltyPointsAddedEvent](enums.EventLoyaltyPointsAdded, enums.AggregateUser, familyLoyalty, 1),
}

// Topics names the broker destination of each event family. The same names
// serve as Pub/Sub or Kafka topics depending on the configured broker.
type Topics struct {
	Orders   string
	Payments string
	Loyalty  string
}

func (t Topics) validate() error {
	switch {
	case t.Orders == "":
		return errors.New("orders topic is required")
	case t.Payments == "":
		return errors.New("payments topic is required")
	case t.Loyalty == "":
		return errors.New("loyalty topic is required")
	}
	return nil
}

func (t Topics) of(f family) string {
	switch f {
	case familyOrders:
		return t.Orders
	case familyPayments:
		return t.Payments
	case familyLoyalty:
		return t.Loyalty
	}
	return ""
}
