// Package metrics exposes the counting system's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors on a private registry so tests can hold
// independent instances.
type Metrics struct {
	registry *prometheus.Registry

	FramesProcessed  *prometheus.CounterVec
	RecordsCollected prometheus.Counter
	CountEvents      *prometheus.CounterVec
	TasksByStatus    *prometheus.GaugeVec
	ActiveWorkers    prometheus.Gauge
	OccupancyAlerts  prometheus.Counter
}

// New creates a Metrics with its own registry, including the standard Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FramesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "footfall",
			Name:      "frames_processed_total",
			Help:      "Frames processed per task.",
		}, []string{"task_id"}),
		RecordsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "footfall",
			Name:      "records_collected_total",
			Help:      "Result records received by the aggregator.",
		}),
		CountEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "footfall",
			Name:      "count_events_total",
			Help:      "Counted midline crossings by direction.",
		}, []string{"task_id", "direction"}),
		TasksByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "footfall",
			Name:      "tasks",
			Help:      "Known tasks by status.",
		}, []string{"status"}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "footfall",
			Name:      "active_workers",
			Help:      "Workers currently running a task.",
		}),
		OccupancyAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "footfall",
			Name:      "occupancy_alerts_total",
			Help:      "Occupancy threshold alerts fired.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FramesProcessed,
		m.RecordsCollected,
		m.CountEvents,
		m.TasksByStatus,
		m.ActiveWorkers,
		m.OccupancyAlerts,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
