package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics tracks the maintenance schedules run by cmd/cron-worker.
// All methods are safe on a nil receiver.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	skipped  *prometheus.CounterVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "restaurant_cron_job_duration_seconds",
			Help:    "Wall time of a cron job run.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"schedule", "job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restaurant_cron_job_runs_total",
			Help: "Cron job runs by outcome (ok or error).",
		}, []string{"schedule", "job", "outcome"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restaurant_cron_cycles_skipped_total",
			Help: "Cycles skipped because another worker held the schedule lock.",
		}, []string{"schedule"}),
	}
	reg.MustRegister(m.duration, m.runs, m.skipped)
	return m
}

// Observe records one job run.
func (m *CronJobMetrics) Observe(schedule, job string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.duration.WithLabelValues(label(schedule), label(job)).Observe(elapsed.Seconds())
	m.runs.WithLabelValues(label(schedule), label(job), outcome).Inc()
}

func (m *CronJobMetrics) IncSkipped(schedule string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(label(schedule)).Inc()
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
