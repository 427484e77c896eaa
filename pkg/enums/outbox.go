package enums

import "slices"

// OutboxAggregateType is the entity an outbox event is about. The broker
// message key is that entity's id.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
	AggregateUser    OutboxAggregateType = "user"
)

var aggregateTypes = []OutboxAggregateType{AggregateOrder, AggregatePayment, AggregateUser}

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(aggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(value, "aggregate type", aggregateTypes)
}

// OutboxEventType is "<aggregate>.<what happened>".
type OutboxEventType string

const (
	EventOrderCreated         OutboxEventType = "order.created"
	EventOrderStatusChanged   OutboxEventType = "order.status_changed"
	EventPaymentStatusChanged OutboxEventType = "payment.status_changed"
	EventLoyaltyPointsAdded   OutboxEventType = "loyalty.points_added"
)

var outboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventPaymentStatusChanged,
	EventLoyaltyPointsAdded,
}

func (e OutboxEventType) IsValid() bool { return slices.Contains(outboxEventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(value, "event type", outboxEventTypes)
}

// OutboxDLQErrorReason records why the publisher gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonUnknownEvent OutboxDLQErrorReason = "unknown_event"
)

var dlqReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonUnknownEvent,
}

func (r OutboxDLQErrorReason) String() string { return string(r) }

func (r OutboxDLQErrorReason) IsValid() bool { return slices.Contains(dlqReasons, r) }

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return parse(value, "dead-letter reason", dlqReasons)
}
