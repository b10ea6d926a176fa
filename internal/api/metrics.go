/*
Package api
File: metrics.go
Description:
    Prometheus instrumentation for the gateway, the owner loop and the
    roster. All methods are safe on a nil *Metrics so tests can skip it.
*/

package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered for one server.
type Metrics struct {
	outcomes       *prometheus.CounterVec
	queueRejects   *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	migrations     prometheus.Counter
	energySpent    *prometheus.CounterVec
	tickDuration   prometheus.Histogram
	flushFailures  prometheus.Counter
	loadedArtifact prometheus.Gauge
}

// NewMetrics registers collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid clashing with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "galaxies_mutation_outcomes_total",
			Help: "Mutation requests by kind, status and rejection reason",
		}, []string{"kind", "status", "reason"}),
		queueRejects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "galaxies_command_rejects_total",
			Help: "Requests dropped before reaching the owner loop",
		}, []string{"reason"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "galaxies_command_buffer_occupancy",
			Help: "Tasks waiting for the owner loop",
		}),
		migrations: f.NewCounter(prometheus.CounterOpts{
			Name: "galaxies_legacy_migrations_total",
			Help: "Artifacts converted from the legacy upgrade layout",
		}),
		energySpent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "galaxies_energy_spent_total",
			Help: "Energy consumed by effect systems, attributed per upgrade",
		}, []string{"upgrade"}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "galaxies_owner_tick_seconds",
			Help:    "Time spent in one owner loop step",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		flushFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "galaxies_flush_failures_total",
			Help: "Failed attempts to persist dirty artifacts",
		}),
		loadedArtifact: f.NewGauge(prometheus.GaugeOpts{
			Name: "galaxies_loaded_artifacts",
			Help: "Artifacts attached in memory",
		}),
	}
}

// ObserveOutcome counts one gateway outcome.
func (m *Metrics) ObserveOutcome(o Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(o.Kind), string(o.Status), o.Reason).Inc()
}

// Add implements the command buffer's telemetry hook.
func (m *Metrics) Add(key string, delta uint64) {
	if m == nil {
		return
	}
	switch key {
	case commandBufferOverflowMetricKey:
		m.queueRejects.WithLabelValues(ReasonQueueFull).Add(float64(delta))
	case commandBufferActorLimitKey:
		m.queueRejects.WithLabelValues(ReasonQueueLimit).Add(float64(delta))
	}
}

// Store implements the command buffer's telemetry hook.
func (m *Metrics) Store(key string, value uint64) {
	if m == nil || key != commandBufferOccupancyMetricKey {
		return
	}
	m.queueDepth.Set(float64(value))
}

// ObserveMigration counts one legacy migration.
func (m *Metrics) ObserveMigration() {
	if m == nil {
		return
	}
	m.migrations.Inc()
}

// ObserveSpent records energy attributed to upgrades.
func (m *Metrics) ObserveSpent(spent map[string]int) {
	if m == nil {
		return
	}
	for id, amount := range spent {
		m.energySpent.WithLabelValues(id).Add(float64(amount))
	}
}

// ObserveTick records one loop step duration in seconds.
func (m *Metrics) ObserveTick(seconds float64) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(seconds)
}

// ObserveFlushFailure counts a failed flush.
func (m *Metrics) ObserveFlushFailure() {
	if m == nil {
		return
	}
	m.flushFailures.Inc()
}

// SetLoaded reports the number of attached artifacts.
func (m *Metrics) SetLoaded(n int) {
	if m == nil {
		return
	}
	m.loadedArtifact.Set(float64(n))
}
