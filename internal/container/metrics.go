package container

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for container operation. One
// instance is shared by every container the manager runs.
type Metrics struct {
	EventsObserved       *prometheus.CounterVec
	EventsIgnored        *prometheus.CounterVec
	PipelineErrors       *prometheus.CounterVec
	PredictionsPublished *prometheus.CounterVec
	BroadcastDropped     prometheus.Counter
	ObservationFailures  *prometheus.CounterVec
	LifecycleDuration    *prometheus.HistogramVec
	ActiveContainers     prometheus.Gauge
	registry             *prometheus.Registry
}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		EventsObserved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentat_events_observed_total",
				Help: "Total number of interaction events received from data sources",
			},
			[]string{"user_id"},
		),
		EventsIgnored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentat_events_ignored_total",
				Help: "Total number of events discarded by instructions",
			},
			[]string{"user_id"},
		),
		PipelineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentat_pipeline_errors_total",
				Help: "Total number of event pipeline failures by stage",
			},
			[]string{"user_id", "stage"},
		),
		PredictionsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentat_predictions_published_total",
				Help: "Total number of prediction results published by outcome",
			},
			[]string{"user_id", "outcome"},
		),
		BroadcastDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mentat_broadcast_dropped_total",
				Help: "Total number of prediction values dropped for lagging subscribers",
			},
		),
		ObservationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mentat_observation_failures_total",
				Help: "Total number of data source observation failures",
			},
			[]string{"user_id"},
		),
		LifecycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mentat_lifecycle_duration_seconds",
				Help:    "Duration of container lifecycle operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ActiveContainers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mentat_active_containers",
				Help: "Number of containers currently held by the manager",
			},
		),
		registry: registry,
	}

	registry.MustRegister(m.EventsObserved)
	registry.MustRegister(m.EventsIgnored)
	registry.MustRegister(m.PipelineErrors)
	registry.MustRegister(m.PredictionsPublished)
	registry.MustRegister(m.BroadcastDropped)
	registry.MustRegister(m.ObservationFailures)
	registry.MustRegister(m.LifecycleDuration)
	registry.MustRegister(m.ActiveContainers)

	return m
}

// RecordPipelineError increments the pipeline failure counter for a stage.
func (m *Metrics) RecordPipelineError(userID, stage string) {
	m.PipelineErrors.WithLabelValues(userID, stage).Inc()
}

// RecordPrediction counts a published prediction result.
func (m *Metrics) RecordPrediction(userID string, produced bool) {
	outcome := "produced"
	if !produced {
		outcome = "absent"
	}
	m.PredictionsPublished.WithLabelValues(userID, outcome).Inc()
}

// RecordLifecycle records how long a lifecycle operation took.
func (m *Metrics) RecordLifecycle(operation string, seconds float64) {
	m.LifecycleDuration.WithLabelValues(operation).Observe(seconds)
}

// Registry exposes the underlying registry so callers can attach
// additional collectors served by the same endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
