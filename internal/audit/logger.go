package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/accessd/internal/observability"
)

const redactedValue = "[REDACTED]"

// Logger is the audit logger interface.
type Logger interface {
	// LogEvent logs an audit event.
	LogEvent(ctx context.Context, event *Event)

	// LogAuthorization logs an access decision.
	LogAuthorization(ctx context.Context, allowed bool, subject *Subject, resource *Resource, decision *DecisionDetails)

	// LogRoleChange logs a role assignment or removal.
	LogRoleChange(ctx context.Context, action Action, userID, roleID string, changed bool, err error)

	// LogConfigReload logs a configuration reload.
	LogConfigReload(ctx context.Context, source string, err error)

	// Close closes the logger.
	Close() error
}

// logger implements the Logger interface.
type logger struct {
	config  *Config
	writer  io.Writer
	mu      sync.Mutex
	logger  observability.Logger
	metrics *Metrics
	closer  io.Closer
}

// Metrics contains audit metrics.
type Metrics struct {
	eventsTotal *prometheus.CounterVec
}

// NewMetrics creates new audit metrics registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates new audit metrics registered with
// the provided registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "accessd"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "events_total",
				Help:      "Total number of audit events",
			},
			[]string{"type", "action", "outcome"},
		),
	}

	if err := registerer.Register(m.eventsTotal); err != nil {
		// Reuse the collector registered by a previous logger.
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				m.eventsTotal = existing
			}
		}
	}

	return m
}

// RecordEvent records an audit event metric.
func (m *Metrics) RecordEvent(eventType EventType, action Action, outcome Outcome) {
	if m == nil || m.eventsTotal == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(eventType), string(action), string(outcome)).Inc()
}

// LoggerOption is a functional option for the logger.
type LoggerOption func(*logger)

// WithLoggerLogger sets the observability logger.
func WithLoggerLogger(l observability.Logger) LoggerOption {
	return func(lg *logger) {
		lg.logger = l
	}
}

// WithLoggerMetrics sets the metrics.
func WithLoggerMetrics(metrics *Metrics) LoggerOption {
	return func(lg *logger) {
		lg.metrics = metrics
	}
}

// WithLoggerWriter sets the writer.
func WithLoggerWriter(writer io.Writer) LoggerOption {
	return func(lg *logger) {
		lg.writer = writer
	}
}

// WithLoggerRegisterer registers audit metrics with registerer instead of
// the global default.
func WithLoggerRegisterer(registerer prometheus.Registerer) LoggerOption {
	return func(lg *logger) {
		lg.metrics = NewMetricsWithRegisterer("accessd", registerer)
	}
}

// NewLogger creates a new audit logger.
func NewLogger(config *Config, opts ...LoggerOption) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	l := &logger{
		config: config,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.metrics == nil {
		l.metrics = NewMetrics("accessd")
	}

	if l.writer == nil {
		writer, closer, err := l.createWriter()
		if err != nil {
			return nil, err
		}
		l.writer = writer
		l.closer = closer
	}

	return l, nil
}

// createWriter creates the output writer based on configuration.
func (l *logger) createWriter() (io.Writer, io.Closer, error) {
	output := l.config.GetEffectiveOutput()

	switch output {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		//nolint:gosec // G304: path from config is trusted
		file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
		return file, file, nil
	}
}

// LogEvent logs an audit event.
func (l *logger) LogEvent(ctx context.Context, event *Event) {
	if !l.config.Enabled || !l.shouldAudit(event) {
		return
	}

	if event.Resource != nil && l.config.ShouldSkipResource(event.Resource.Name) {
		return
	}

	if event.RequestID == "" {
		event.RequestID = observability.RequestIDFromContext(ctx)
	}
	if event.TraceID == "" {
		event.TraceID = extractTraceID(ctx)
	}
	if event.SpanID == "" {
		event.SpanID = extractSpanID(ctx)
	}

	l.redactMetadata(event)
	l.metrics.RecordEvent(event.Type, event.Action, event.Outcome)
	l.writeEvent(event)
}

// shouldAudit checks if an event should be audited based on configuration.
func (l *logger) shouldAudit(event *Event) bool {
	switch event.Type {
	case EventTypeAuthorization:
		return l.config.ShouldAuditAuthorization()
	case EventTypeAdministrative:
		return l.config.ShouldAuditAdministrative()
	case EventTypeConfiguration:
		return l.config.ShouldAuditConfiguration()
	default:
		return true
	}
}

// redactMetadata redacts sensitive metadata.
func (l *logger) redactMetadata(event *Event) {
	if len(l.config.RedactFields) == 0 || event.Metadata == nil {
		return
	}
	for key := range event.Metadata {
		if l.shouldRedact(key) {
			event.Metadata[key] = redactedValue
		}
	}
}

// shouldRedact checks if a field should be redacted.
func (l *logger) shouldRedact(field string) bool {
	lowerField := strings.ToLower(field)
	for _, redactField := range l.config.RedactFields {
		if strings.Contains(lowerField, strings.ToLower(redactField)) {
			return true
		}
	}
	return false
}

// writeEvent writes the event to the output.
func (l *logger) writeEvent(event *Event) {
	var output []byte

	if l.config.GetEffectiveFormat() == FormatText {
		output = []byte(formatText(event))
	} else {
		data, err := json.Marshal(event)
		if err != nil {
			l.logger.Error("failed to marshal audit event", observability.Error(err))
			return
		}
		output = append(data, '\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.writer.Write(output); err != nil {
		l.logger.Error("failed to write audit event", observability.Error(err))
	}
}

// formatText formats an event as a single line.
func formatText(event *Event) string {
	var sb strings.Builder

	sb.WriteString(event.Timestamp.Format(time.RFC3339))
	sb.WriteString(" ")
	sb.WriteString(string(event.Type))
	sb.WriteString(" ")
	sb.WriteString(string(event.Action))
	sb.WriteString(" ")
	sb.WriteString(string(event.Outcome))

	if event.Subject != nil {
		sb.WriteString(" subject=")
		sb.WriteString(event.Subject.ID)
	}

	if event.Resource != nil {
		sb.WriteString(" resource=")
		sb.WriteString(event.Resource.Name)
		if event.Resource.Action != "" {
			sb.WriteString(" action=")
			sb.WriteString(event.Resource.Action)
		}
	}

	if event.Decision != nil {
		sb.WriteString(" engine=")
		sb.WriteString(event.Decision.Engine)
		sb.WriteString(fmt.Sprintf(" reason=%q", event.Decision.Reason))
		if len(event.Decision.Policies) > 0 {
			sb.WriteString(" policies=")
			sb.WriteString(strings.Join(event.Decision.Policies, ","))
		}
	}

	if role, ok := event.Metadata["role"]; ok {
		sb.WriteString(fmt.Sprintf(" role=%v", role))
	}

	if event.RequestID != "" {
		sb.WriteString(" request_id=")
		sb.WriteString(event.RequestID)
	}

	if event.TraceID != "" {
		sb.WriteString(" trace_id=")
		sb.WriteString(event.TraceID)
	}

	if event.Duration > 0 {
		sb.WriteString(" duration=")
		sb.WriteString(event.Duration.String())
	}

	if event.Error != nil {
		sb.WriteString(" error=")
		sb.WriteString(event.Error.Message)
	}

	sb.WriteString("\n")
	return sb.String()
}

// LogAuthorization logs an access decision.
func (l *logger) LogAuthorization(
	ctx context.Context,
	allowed bool,
	subject *Subject,
	resource *Resource,
	decision *DecisionDetails,
) {
	l.LogEvent(ctx, AuthorizationEvent(allowed, subject, resource, decision))
}

// LogRoleChange logs a role assignment or removal.
func (l *logger) LogRoleChange(
	ctx context.Context,
	action Action,
	userID, roleID string,
	changed bool,
	err error,
) {
	l.LogEvent(ctx, RoleEvent(action, userID, roleID, changed, err))
}

// LogConfigReload logs a configuration reload.
func (l *logger) LogConfigReload(ctx context.Context, source string, err error) {
	l.LogEvent(ctx, ConfigReloadEvent(source, err))
}

// Close closes the logger.
func (l *logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// extractTraceID extracts the trace ID from the OpenTelemetry span context.
func extractTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// extractSpanID extracts the span ID from the OpenTelemetry span context.
func extractSpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}

// noopLogger is a no-op audit logger.
type noopLogger struct{}

// NewNoopLogger creates a new no-op audit logger.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (l *noopLogger) LogEvent(_ context.Context, _ *Event) {}

func (l *noopLogger) LogAuthorization(_ context.Context, _ bool, _ *Subject, _ *Resource, _ *DecisionDetails) {
}

func (l *noopLogger) LogRoleChange(_ context.Context, _ Action, _, _ string, _ bool, _ error) {}

func (l *noopLogger) LogConfigReload(_ context.Context, _ string, _ error) {}

func (l *noopLogger) Close() error { return nil }

// Ensure implementations satisfy the interface.
var (
	_ Logger = (*logger)(nil)
	_ Logger = (*noopLogger)(nil)
)
