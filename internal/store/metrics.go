package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

const metricsNamespace = "apolo"

var tracer = otel.Tracer("apolo.store")

// Metrics counts sync activity
type Metrics struct {
	commits      *prometheus.CounterVec
	rollbacks    *prometheus.CounterVec
	inflight     prometheus.Gauge
	loadDuration *prometheus.HistogramVec
}

// NewMetrics registers the sync metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sync",
			Name:      "commits_total",
			Help:      "Remote writes by operation and outcome",
		}, []string{"op", "outcome"}),
		rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sync",
			Name:      "rollbacks_total",
			Help:      "Optimistic changes reverted after a failed write",
		}, []string{"op"}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "sync",
			Name:      "inflight",
			Help:      "Commits dispatched but not finished",
		}),
		loadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "load",
			Name:      "duration_seconds",
			Help:      "Time to load the project forest",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"outcome"}),
	}
}
