package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kalambet/tdgen/internal/storage"
)

var eventsDesc = prometheus.NewDesc(
	"tdgen_events_total",
	"Recorded access and failure events across all runs, by kind and component.",
	[]string{"kind", "component"},
	nil,
)

// EventCounter reports persisted event totals.
type EventCounter interface {
	EventCounts() ([]storage.EventCount, error)
}

// EventCollector reads event totals from the run ledger on each scrape, so
// the numbers survive restarts.
type EventCollector struct {
	src EventCounter
}

// NewEventCollector creates a collector over src.
func NewEventCollector(src EventCounter) *EventCollector {
	return &EventCollector{src: src}
}

// Describe sends the metric descriptor to the channel.
func (c *EventCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- eventsDesc
}

// Collect queries the ledger and emits one counter per kind and component.
func (c *EventCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.src.EventCounts()
	if err != nil {
		slog.Error("failed to collect event metrics", "error", err)
		return
	}
	for _, ec := range counts {
		ch <- prometheus.MustNewConstMetric(
			eventsDesc,
			prometheus.CounterValue,
			float64(ec.Count),
			string(ec.Kind),
			ec.Component,
		)
	}
}
