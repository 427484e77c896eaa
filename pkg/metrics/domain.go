package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics counts created orders and accepted or rejected status moves.
type OrderMetrics struct {
	created     prometheus.Counter
	transitions *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "restaurant_orders_created_total",
		Help: "Orders accepted by the API.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "restaurant_order_transitions_total",
		Help: "Order status transitions persisted.",
	}, []string{"from", "to"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "restaurant_order_transitions_rejected_total",
		Help: "Order status transitions refused, by reason code.",
	}, []string{"reason"})
	reg.MustRegister(created, transitions, rejected)
	return &OrderMetrics{created: created, transitions: transitions, rejected: rejected}
}

func (m *OrderMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

func (m *OrderMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(label(from), label(to)).Inc()
}

func (m *OrderMetrics) IncRejected(reason string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(label(reason)).Inc()
}

// NotificationMetrics counts per-channel delivery outcomes.
type NotificationMetrics struct {
	sends *prometheus.CounterVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	sends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "restaurant_notification_sends_total",
		Help: "Notification channel attempts by outcome.",
	}, []string{"channel", "outcome"})
	reg.MustRegister(sends)
	return &NotificationMetrics{sends: sends}
}

// ObserveSend records one channel attempt; a nil err counts as delivered.
func (m *NotificationMetrics) ObserveSend(channel string, err error) {
	if m == nil || m.sends == nil {
		return
	}
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	m.sends.WithLabelValues(label(channel), outcome).Inc()
}
