package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains hybrid authorization metrics.
type Metrics struct {
	// decisionTotal counts decisions by deciding engine and result.
	decisionTotal *prometheus.CounterVec

	// evaluationDuration measures end to end evaluation duration.
	evaluationDuration *prometheus.HistogramVec
}

// NewMetrics creates new authorization metrics.
// Metrics are registered with prometheus.DefaultRegisterer so they are
// automatically exposed on the default /metrics endpoint.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "accessd"
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{}

	m.decisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "decision_total",
			Help:      "Total number of hybrid authorization decisions",
		},
		[]string{"engine", "result"},
	)

	m.evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "evaluation_duration_seconds",
			Help:      "Hybrid authorization evaluation duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"engine"},
	)

	// Register all metrics with the provided registerer, reusing
	// collectors already registered by another authorizer.
	if err := registerer.Register(m.decisionTotal); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				m.decisionTotal = existing
			}
		}
	}
	if err := registerer.Register(m.evaluationDuration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				m.evaluationDuration = existing
			}
		}
	}

	return m
}

// Init pre-initializes label combinations with zero values so that
// metrics appear in /metrics output immediately after startup.
func (m *Metrics) Init() {
	if m == nil {
		return
	}
	for _, engine := range []string{EngineRBAC, EngineABAC} {
		for _, result := range []string{resultAllowed, resultDenied, resultError} {
			m.decisionTotal.WithLabelValues(engine, result)
		}
		m.evaluationDuration.WithLabelValues(engine)
	}
}

// RecordDecision records a decision made by engine.
func (m *Metrics) RecordDecision(engine, result string, duration time.Duration) {
	if m == nil || m.decisionTotal == nil {
		return
	}
	m.decisionTotal.WithLabelValues(engine, result).Inc()
	m.evaluationDuration.WithLabelValues(engine).Observe(duration.Seconds())
}
