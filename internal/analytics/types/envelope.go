package types

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/restaurant-backend/pkg/enums"
)

// Envelope is a broker message normalized for analytics routing.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	Version       int                       `json:"version"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Payload       json.RawMessage           `json:"payload"`
}

// Message is the broker-neutral form of an inbound message. Pub/Sub
// attributes and Kafka headers both land in Attributes.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}
