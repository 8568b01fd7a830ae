// Package metrics exposes Prometheus collectors for the ingestion,
// enrichment, and gateway planes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors used across the core.
type Metrics struct {
	registry *prometheus.Registry

	TasksEnqueuedTotal  *prometheus.CounterVec
	TasksProcessedTotal *prometheus.CounterVec
	TasksRetriedTotal   *prometheus.CounterVec
	TasksDLQTotal       *prometheus.CounterVec
	TaskDuration        *prometheus.HistogramVec

	DispatchDroppedTotal *prometheus.CounterVec

	QueueDepth prometheus.GaugeFunc

	GatewayConnections   prometheus.Gauge
	GatewayRoomsJoined   *prometheus.CounterVec
	GatewayBroadcasts    *prometheus.CounterVec
	GatewayDisconnects   *prometheus.CounterVec
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

var m *Metrics

// Init registers the collectors with a fresh registry under namespace.
// queueDepthFn is polled lazily whenever Prometheus scrapes /metrics.
func Init(namespace string, queueDepthFn func() float64) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &Metrics{
		registry: registry,

		TasksEnqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_enqueued_total",
			Help:      "Total number of enrichment tasks enqueued, by kind.",
		}, []string{"kind"}),

		TasksProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Total number of enrichment tasks completed, by kind and outcome.",
		}, []string{"kind", "outcome"}),

		TasksRetriedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_retried_total",
			Help:      "Total number of enrichment task retries scheduled, by kind.",
		}, []string{"kind"}),

		TasksDLQTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dlq_total",
			Help:      "Total number of enrichment tasks moved to the dead-letter queue, by kind.",
		}, []string{"kind"}),

		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_ms",
			Help:      "Enrichment task processing duration in milliseconds, by kind.",
			Buckets:   defaultBuckets,
		}, []string{"kind"}),

		DispatchDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_dropped_total",
			Help:      "Total number of raw messages dropped by the subscriber-dispatcher, by reason.",
		}, []string{"reason"}),

		GatewayConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_connections",
			Help:      "Number of currently connected gateway client sessions.",
		}),

		GatewayRoomsJoined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_rooms_joined_total",
			Help:      "Total number of room subscriptions accepted, by kind.",
		}, []string{"kind"}),

		GatewayBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_broadcasts_total",
			Help:      "Total number of events delivered to client sessions, by event.",
		}, []string{"event"}),

		GatewayDisconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_disconnects_total",
			Help:      "Total number of client disconnects, by reason.",
		}, []string{"reason"}),
	}

	if queueDepthFn != nil {
		pm.QueueDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Approximate number of tasks waiting on the task queue.",
		}, queueDepthFn)
		registry.MustRegister(pm.QueueDepth)
	}

	registry.MustRegister(
		pm.TasksEnqueuedTotal,
		pm.TasksProcessedTotal,
		pm.TasksRetriedTotal,
		pm.TasksDLQTotal,
		pm.TaskDuration,
		pm.DispatchDroppedTotal,
		pm.GatewayConnections,
		pm.GatewayRoomsJoined,
		pm.GatewayBroadcasts,
		pm.GatewayDisconnects,
	)

	m = pm
	return pm
}

// Get returns the globally initialized Metrics, or nil if Init was never
// called (callers must nil-check, matching the teacher's optional-metrics
// pattern for code paths that run without a scrape endpoint, e.g. tests).
func Get() *Metrics {
	return m
}

// Handler returns the HTTP handler Prometheus should scrape.
func (pm *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}
