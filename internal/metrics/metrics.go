// Package metrics exposes run statistics as Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/specialistvlad/pipegrid/internal/model"
)

const namespace = "pipegrid"

// Metrics holds the collectors of one application.
type Metrics struct {
	registry *prometheus.Registry

	instances        *prometheus.CounterVec
	instanceDuration *prometheus.HistogramVec
	steps            *prometheus.CounterVec
	agentUnavailable *prometheus.CounterVec
	running          prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		instances: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_total",
			Help:      "Job instances that reached a terminal state.",
		}, []string{"job", "status"}),
		instanceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "instance_duration_seconds",
			Help:      "Wall-clock time job instances spent running.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"job"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Step results by outcome.",
		}, []string{"outcome"}),
		agentUnavailable: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_unavailable_total",
			Help:      "Dispatch attempts requeued because a pool had no free agent.",
		}, []string{"pool"}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_instances",
			Help:      "Job instances currently running.",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstanceStarted marks an instance as running.
func (m *Metrics) InstanceStarted() {
	if m == nil {
		return
	}
	m.running.Inc()
}

// InstanceFinished records the terminal state of an instance. ran tells
// whether it was running before, so the gauge stays balanced for instances
// that were skipped without starting.
func (m *Metrics) InstanceFinished(job string, status model.Status, ran bool, d time.Duration) {
	if m == nil {
		return
	}
	m.instances.WithLabelValues(job, status.String()).Inc()
	if ran {
		m.running.Dec()
		m.instanceDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

// StepFinished counts a step result.
func (m *Metrics) StepFinished(outcome model.StepOutcome) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(string(outcome)).Inc()
}

// AgentUnavailable counts a requeue caused by a busy pool.
func (m *Metrics) AgentUnavailable(pool string) {
	if m == nil {
		return
	}
	m.agentUnavailable.WithLabelValues(pool).Inc()
}
