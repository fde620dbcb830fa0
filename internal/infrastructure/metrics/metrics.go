package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "tbag"

// Metrics groups every Prometheus collector the service exports
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RouteDecisions  *prometheus.CounterVec

	IndexEntries         prometheus.Gauge
	IndexGeneration      prometheus.Gauge
	IndexCollisions      prometheus.Gauge
	IndexRebuilds        *prometheus.CounterVec
	IndexRebuildDuration prometheus.Histogram

	VisitEvents *prometheus.CounterVec
}

// New creates a fresh registry with all collectors registered
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RouteDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "route_decisions_total",
				Help:      "Routing decisions by action",
			},
			[]string{"action"},
		),
		IndexEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_entries",
			Help:      "Number of keys in the published file index",
		}),
		IndexGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_generation",
			Help:      "Generation number of the published file index",
		}),
		IndexCollisions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_collisions",
			Help:      "Basename collisions seen in the last successful rebuild",
		}),
		IndexRebuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_rebuilds_total",
				Help:      "Index rebuild attempts by result",
			},
			[]string{"result"},
		),
		IndexRebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_rebuild_duration_seconds",
			Help:      "Time spent scanning the content tree",
			Buckets:   prometheus.DefBuckets,
		}),
		VisitEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "visit_events_total",
				Help:      "Visit counter events by kind and result",
			},
			[]string{"kind", "result"},
		),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RouteDecisions,
		m.IndexEntries,
		m.IndexGeneration,
		m.IndexCollisions,
		m.IndexRebuilds,
		m.IndexRebuildDuration,
		m.VisitEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}
