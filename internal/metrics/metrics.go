// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kalambet/tdgen/internal/generation"
)

// Metrics holds the live counters updated while a pipeline runs.
type Metrics struct {
	records     *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	escalations prometheus.Counter
	rows        prometheus.Counter
	duration    prometheus.Histogram
}

// New creates the pipeline counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tdgen_records_total",
			Help: "Input records handled, by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tdgen_generation_attempts_total",
			Help: "Generation service calls, by outcome.",
		}, []string{"outcome"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tdgen_generation_escalations_total",
			Help: "Regenerations triggered by malformed replies.",
		}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tdgen_dataset_rows_written_total",
			Help: "Rows appended to the dataset store.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tdgen_record_duration_seconds",
			Help:    "Time spent carrying one record through the pipeline.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
	reg.MustRegister(m.records, m.attempts, m.escalations, m.rows, m.duration)
	return m
}

// ObserveAttempt implements generation.Observer.
func (m *Metrics) ObserveAttempt(o generation.Outcome) {
	m.attempts.WithLabelValues(o.String()).Inc()
}

// ObserveEscalation implements generation.Observer.
func (m *Metrics) ObserveEscalation() {
	m.escalations.Inc()
}

// ObserveRecord counts a finished record.
func (m *Metrics) ObserveRecord(outcome string, d time.Duration) {
	m.records.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

// ObserveRows counts rows appended to the dataset.
func (m *Metrics) ObserveRows(n int) {
	m.rows.Add(float64(n))
}
