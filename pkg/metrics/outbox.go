package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Publish outcomes recorded by OutboxMetrics.
const (
	OutcomePublished    = "published"
	OutcomeRetry        = "retry"
	OutcomeDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks cmd/outbox-publisher. Nil-safe like the cron metrics.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	batch   prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restaurant_outbox_events_total",
			Help: "Outbox rows handled, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "restaurant_outbox_publish_seconds",
			Help:    "Broker publish latency per topic.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 5, 15},
		}, []string{"topic"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "restaurant_outbox_batch_rows",
			Help:    "Rows claimed per non-empty publish batch.",
			Buckets: prometheus.LinearBuckets(5, 5, 10),
		}),
	}
	reg.MustRegister(m.events, m.latency, m.batch)
	return m
}

func (m *OutboxMetrics) ObserveEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(label(eventType), outcome).Inc()
}

func (m *OutboxMetrics) ObservePublish(topic string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(label(topic)).Observe(elapsed.Seconds())
}

func (m *OutboxMetrics) ObserveBatch(rows int) {
	if m == nil || rows == 0 {
		return
	}
	m.batch.Observe(float64(rows))
}
