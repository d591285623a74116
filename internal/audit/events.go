package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event.
type EventType string

// Event types.
const (
	EventTypeAuthorization  EventType = "authorization"
	EventTypeAdministrative EventType = "administrative"
	EventTypeConfiguration  EventType = "configuration"
)

// Action represents the action being audited.
type Action string

// Common actions.
const (
	// Authorization actions
	ActionAccess Action = "access"
	ActionDeny   Action = "deny"

	// Administrative actions
	ActionUserCreate Action = "user_create"
	ActionRoleAssign Action = "role_assign"
	ActionRoleRevoke Action = "role_revoke"

	// Configuration actions
	ActionConfigReload Action = "config_reload"
)

// Outcome represents the outcome of an audited action.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
	OutcomeDenied  Outcome = "denied"
)

// Event represents an audit event.
type Event struct {
	// ID is a unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Action is the action being audited.
	Action Action `json:"action"`

	// Outcome is the outcome of the action.
	Outcome Outcome `json:"outcome"`

	// Subject is the user the event is about.
	Subject *Subject `json:"subject,omitempty"`

	// Resource is the resource being accessed.
	Resource *Resource `json:"resource,omitempty"`

	// Decision holds the access decision for authorization events.
	Decision *DecisionDetails `json:"decision,omitempty"`

	// Error contains error details if the action failed.
	Error *ErrorDetails `json:"error,omitempty"`

	// Metadata contains additional metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// RequestID correlates the event with an API request.
	RequestID string `json:"request_id,omitempty"`

	// TraceID is the trace ID for distributed tracing.
	TraceID string `json:"trace_id,omitempty"`

	// SpanID is the span ID for distributed tracing.
	SpanID string `json:"span_id,omitempty"`

	// Duration is how long the action took.
	Duration time.Duration `json:"duration,omitempty"`
}

// Subject represents the user an event is about.
type Subject struct {
	// ID is the user identifier.
	ID string `json:"id"`

	// Roles are the user's roles at the time of the event.
	Roles []string `json:"roles,omitempty"`
}

// Resource represents the resource being accessed.
type Resource struct {
	// Name is the resource name.
	Name string `json:"name"`

	// Action is the requested action.
	Action string `json:"action,omitempty"`
}

// DecisionDetails describes an access decision.
type DecisionDetails struct {
	// Engine is the engine that produced the decision (rbac or abac).
	Engine string `json:"engine"`

	// Reason is the human readable reason.
	Reason string `json:"reason"`

	// Policies are the policy tags applied.
	Policies []string `json:"policies,omitempty"`
}

// ErrorDetails contains details about an error.
type ErrorDetails struct {
	// Message is the error message.
	Message string `json:"message,omitempty"`
}

// NewEvent creates a new audit event with default values.
func NewEvent(eventType EventType, action Action, outcome Outcome) *Event {
	return &Event{
		ID:        generateEventID(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Action:    action,
		Outcome:   outcome,
		Metadata:  make(map[string]interface{}),
	}
}

// WithSubject sets the subject.
func (e *Event) WithSubject(subject *Subject) *Event {
	e.Subject = subject
	return e
}

// WithResource sets the resource.
func (e *Event) WithResource(resource *Resource) *Event {
	e.Resource = resource
	return e
}

// WithDecision sets the decision details.
func (e *Event) WithDecision(decision *DecisionDetails) *Event {
	e.Decision = decision
	return e
}

// WithError sets the error details from err. A nil err is ignored.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = &ErrorDetails{Message: err.Error()}
	}
	return e
}

// WithMetadata adds metadata to the event.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithTimestamp overrides the event time.
func (e *Event) WithTimestamp(ts time.Time) *Event {
	if !ts.IsZero() {
		e.Timestamp = ts.UTC()
	}
	return e
}

// WithDuration sets the duration.
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.Duration = duration
	return e
}

// generateEventID generates a unique event ID using UUID v4.
func generateEventID() string {
	return uuid.New().String()
}

// AuthorizationEvent creates an authorization audit event.
func AuthorizationEvent(allowed bool, subject *Subject, resource *Resource, decision *DecisionDetails) *Event {
	action, outcome := ActionAccess, OutcomeSuccess
	if !allowed {
		action, outcome = ActionDeny, OutcomeDenied
	}
	return NewEvent(EventTypeAuthorization, action, outcome).
		WithSubject(subject).
		WithResource(resource).
		WithDecision(decision)
}

// RoleEvent creates an administrative event for a role assignment or
// removal. changed is false when the store left the user untouched.
func RoleEvent(action Action, userID, roleID string, changed bool, err error) *Event {
	outcome := OutcomeSuccess
	switch {
	case err != nil:
		outcome = OutcomeError
	case !changed:
		outcome = OutcomeFailure
	}
	return NewEvent(EventTypeAdministrative, action, outcome).
		WithSubject(&Subject{ID: userID}).
		WithMetadata("role", roleID).
		WithError(err)
}

// UserCreatedEvent creates an administrative event for a new user.
func UserCreatedEvent(userID string, roles []string, err error) *Event {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	return NewEvent(EventTypeAdministrative, ActionUserCreate, outcome).
		WithSubject(&Subject{ID: userID, Roles: roles}).
		WithError(err)
}

// ConfigReloadEvent creates a configuration reload event.
func ConfigReloadEvent(source string, err error) *Event {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	return NewEvent(EventTypeConfiguration, ActionConfigReload, outcome).
		WithMetadata("source", source).
		WithError(err)
}
