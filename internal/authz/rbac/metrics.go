package rbac

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for RBAC operations.
type Metrics struct {
	evaluationTotal    *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	mutationTotal      *prometheus.CounterVec
	roleCount          prometheus.Gauge
	registry           *prometheus.Registry
}

// NewMetrics creates a new Metrics instance backed by its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "accessd"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.evaluationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rbac",
			Name:      "evaluation_total",
			Help:      "Total number of RBAC evaluations",
		},
		[]string{"decision"},
	)

	m.evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rbac",
			Name:      "evaluation_duration_seconds",
			Help:      "RBAC evaluation duration in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"decision"},
	)

	m.mutationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rbac",
			Name:      "role_mutation_total",
			Help:      "Total number of role assignment changes",
		},
		[]string{"operation", "result"},
	)

	m.roleCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rbac",
			Name:      "role_count",
			Help:      "Number of registered roles",
		},
	)

	m.registry.MustRegister(m.collectors()...)

	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.evaluationTotal,
		m.evaluationDuration,
		m.mutationTotal,
		m.roleCount,
	}
}

// RecordEvaluation records an RBAC evaluation.
func (m *Metrics) RecordEvaluation(decision string, duration time.Duration) {
	m.evaluationTotal.WithLabelValues(decision).Inc()
	m.evaluationDuration.WithLabelValues(decision).Observe(duration.Seconds())
}

// RecordMutation records a role assignment or removal.
func (m *Metrics) RecordMutation(operation, result string) {
	m.mutationTotal.WithLabelValues(operation, result).Inc()
}

// SetRoleCount sets the role count.
func (m *Metrics) SetRoleCount(count int) {
	m.roleCount.Set(float64(count))
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with registerer, ignoring collectors
// that are already registered.
func (m *Metrics) MustRegister(registerer prometheus.Registerer) {
	for _, c := range m.collectors() {
		if err := registerer.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}
