package abac

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for ABAC operations.
type Metrics struct {
	evaluationTotal    *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	chainCount         prometheus.Gauge
	compilationErrors  prometheus.Counter
	registry           *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
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
			Subsystem: "abac",
			Name:      "evaluation_total",
			Help:      "Total number of ABAC evaluations",
		},
		[]string{"chain", "decision"},
	)

	m.evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "abac",
			Name:      "evaluation_duration_seconds",
			Help:      "ABAC evaluation duration in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"chain", "decision"},
	)

	m.chainCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "abac",
			Name:      "chain_count",
			Help:      "Number of resources guarded by an ABAC rule chain",
		},
	)

	m.compilationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "abac",
			Name:      "compilation_errors_total",
			Help:      "Total number of CEL compilation errors",
		},
	)

	m.registry.MustRegister(m.collectors()...)

	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.evaluationTotal,
		m.evaluationDuration,
		m.chainCount,
		m.compilationErrors,
	}
}

// RecordEvaluation records an ABAC evaluation.
func (m *Metrics) RecordEvaluation(chain, decision string, duration time.Duration) {
	m.evaluationTotal.WithLabelValues(chain, decision).Inc()
	m.evaluationDuration.WithLabelValues(chain, decision).Observe(duration.Seconds())
}

// SetChainCount sets the chain count.
func (m *Metrics) SetChainCount(count int) {
	m.chainCount.Set(float64(count))
}

// RecordCompilationError records a compilation error.
func (m *Metrics) RecordCompilationError() {
	m.compilationErrors.Inc()
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with registerer.
// AlreadyRegisteredError is silently ignored so that evaluators recreated
// on reload can register again.
func (m *Metrics) MustRegister(registerer prometheus.Registerer) {
	for _, c := range m.collectors() {
		if err := registerer.Register(c); err != nil {
			if !isAlreadyRegistered(err) {
				panic(err)
			}
		}
	}
}

// isAlreadyRegistered returns true if the error indicates the
// collector was already registered with the registry.
func isAlreadyRegistered(err error) bool {
	var are prometheus.AlreadyRegisteredError
	return errors.As(err, &are)
}
