package audit

import (
	"context"
	"sync/atomic"
)

// AtomicAuditLogger delegates to a Logger that can be replaced at runtime
// when the audit configuration is reloaded. The authorizer and the role
// handlers hold the wrapper, so a swap reaches them without re-wiring.
type AtomicAuditLogger struct {
	current atomic.Pointer[Logger]
}

// Ensure AtomicAuditLogger satisfies the Logger interface.
var _ Logger = (*AtomicAuditLogger)(nil)

// defaultNoopLogger backs a zero-value AtomicAuditLogger.
var defaultNoopLogger Logger = &noopLogger{}

// NewAtomicAuditLogger wraps logger. A nil logger is replaced by a no-op logger.
func NewAtomicAuditLogger(logger Logger) *AtomicAuditLogger {
	if logger == nil {
		logger = NewNoopLogger()
	}
	a := &AtomicAuditLogger{}
	a.current.Store(&logger)
	return a
}

// Swap atomically replaces the inner logger and returns the previous
// one. The caller is responsible for closing the previous logger if
// needed. If newLogger is nil, a NoopLogger is stored instead.
func (a *AtomicAuditLogger) Swap(newLogger Logger) Logger {
	if newLogger == nil {
		newLogger = NewNoopLogger()
	}
	old := a.current.Swap(&newLogger)
	if old != nil {
		return *old
	}
	return nil
}

// Load returns the current inner logger, or a no-op logger for the zero value.
func (a *AtomicAuditLogger) Load() Logger {
	if ptr := a.current.Load(); ptr != nil {
		return *ptr
	}
	return defaultNoopLogger
}

// LogEvent delegates to the current inner logger.
func (a *AtomicAuditLogger) LogEvent(ctx context.Context, event *Event) {
	a.Load().LogEvent(ctx, event)
}

// LogAuthorization delegates to the current inner logger.
func (a *AtomicAuditLogger) LogAuthorization(
	ctx context.Context,
	allowed bool,
	subject *Subject,
	resource *Resource,
	decision *DecisionDetails,
) {
	a.Load().LogAuthorization(ctx, allowed, subject, resource, decision)
}

// LogRoleChange delegates to the current inner logger.
func (a *AtomicAuditLogger) LogRoleChange(
	ctx context.Context,
	action Action,
	userID, roleID string,
	changed bool,
	err error,
) {
	a.Load().LogRoleChange(ctx, action, userID, roleID, changed, err)
}

// LogConfigReload delegates to the current inner logger.
func (a *AtomicAuditLogger) LogConfigReload(ctx context.Context, source string, err error) {
	a.Load().LogConfigReload(ctx, source, err)
}

// Close closes the current inner logger.
func (a *AtomicAuditLogger) Close() error {
	return a.Load().Close()
}
