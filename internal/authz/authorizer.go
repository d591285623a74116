package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/accessd/internal/audit"
	"github.com/vyrodovalexey/accessd/internal/authz/abac"
	"github.com/vyrodovalexey/accessd/internal/authz/rbac"
	"github.com/vyrodovalexey/accessd/internal/observability"
)

// authzTracer is the OTEL tracer used for authorization operations.
var authzTracer = otel.Tracer("accessd/authz")

// Engine names reported in decisions.
const (
	EngineRBAC = "rbac"
	EngineABAC = "abac"
)

// ReasonRBACDenied is the reason given when the role gate denies.
const ReasonRBACDenied = "Access denied by RBAC: insufficient role permissions"

const (
	resultAllowed = "allowed"
	resultDenied  = "denied"
	resultError   = "error"
)

// RBACChecker is the role based gate.
type RBACChecker interface {
	CheckAccess(ctx context.Context, userID, resource, action string) (bool, error)
}

// ABACChecker evaluates attribute rule chains.
type ABACChecker interface {
	CheckAccess(ctx context.Context, req *abac.Request) (abac.Result, error)
}

// Ensure the engines satisfy the checker interfaces.
var (
	_ RBACChecker = (*rbac.Evaluator)(nil)
	_ ABACChecker = (*abac.Evaluator)(nil)
)

// Request represents a hybrid authorization request.
type Request struct {
	// User is the subject; only ID is consulted by RBAC, Roles feed ABAC.
	User rbac.User `json:"user"`

	// Resource is the resource being accessed.
	Resource string `json:"resource" validate:"required"`

	// Action is the action being performed.
	Action string `json:"action" validate:"required"`

	// Context carries the ABAC attributes.
	Context *abac.Attributes `json:"context,omitempty"`

	// Timestamp is when the request was made. Zero means now.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Decision represents an authorization decision.
type Decision struct {
	// Allowed indicates if the request is allowed.
	Allowed bool `json:"allowed"`

	// Reason is the human readable reason for the decision.
	Reason string `json:"reason"`

	// Policies are the policy tags applied. Never nil.
	Policies []string `json:"policies"`

	// Timestamp is when the decision was made.
	Timestamp time.Time `json:"timestamp"`

	// Engine is the engine that made the decision.
	Engine string `json:"engine"`
}

// Authorizer combines the RBAC gate with ABAC rule chains. RBAC runs
// first and a denial there is final; ABAC is consulted only for requests
// the role gate allows.
type Authorizer struct {
	rbac     RBACChecker
	abac     ABACChecker
	logger   observability.Logger
	metrics  *Metrics
	audit    audit.Logger
	validate *validator.Validate
	now      func() time.Time
}

// AuthorizerOption is a functional option for the authorizer.
type AuthorizerOption func(*Authorizer)

// WithAuthorizerLogger sets the logger.
func WithAuthorizerLogger(logger observability.Logger) AuthorizerOption {
	return func(a *Authorizer) {
		a.logger = logger
	}
}

// WithAuthorizerMetrics sets the metrics.
func WithAuthorizerMetrics(metrics *Metrics) AuthorizerOption {
	return func(a *Authorizer) {
		a.metrics = metrics
	}
}

// WithAuditLogger sets the audit logger that receives one event per decision.
func WithAuditLogger(logger audit.Logger) AuthorizerOption {
	return func(a *Authorizer) {
		a.audit = logger
	}
}

// WithClock sets the clock used to timestamp decisions.
func WithClock(now func() time.Time) AuthorizerOption {
	return func(a *Authorizer) {
		a.now = now
	}
}

// New creates a new hybrid authorizer.
func New(rbacChecker RBACChecker, abacChecker ABACChecker, opts ...AuthorizerOption) (*Authorizer, error) {
	if rbacChecker == nil {
		return nil, errors.New("rbac checker is required")
	}
	if abacChecker == nil {
		return nil, errors.New("abac checker is required")
	}

	a := &Authorizer{
		rbac:     rbacChecker,
		abac:     abacChecker,
		logger:   observability.NopLogger(),
		audit:    audit.NewNoopLogger(),
		validate: validator.New(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.metrics == nil {
		a.metrics = NewMetrics("accessd")
	}

	return a, nil
}

// CheckAccess evaluates req. Denials are returned as decisions; an error
// is returned only for invalid requests and engine failures.
func (a *Authorizer) CheckAccess(ctx context.Context, req *Request) (*Decision, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if err := a.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	start := time.Now()

	ctx, span := authzTracer.Start(ctx, "authz.check_access",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("authz.subject", req.User.ID),
			attribute.String("authz.resource", req.Resource),
			attribute.String("authz.action", req.Action),
		),
	)
	defer span.End()

	decision, err := a.evaluate(ctx, req)
	if err != nil {
		var authzErr *AuthzError
		engine := EngineRBAC
		if errors.As(err, &authzErr) {
			engine = authzErr.Engine
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		span.SetAttributes(attribute.String("authz.result", resultError))
		a.metrics.RecordDecision(engine, resultError, time.Since(start))
		a.logger.Error("authorization evaluation failed",
			observability.String("user", req.User.ID),
			observability.String("resource", req.Resource),
			observability.String("action", req.Action),
			observability.Error(err),
		)
		return nil, err
	}

	result := resultDenied
	if decision.Allowed {
		result = resultAllowed
	}
	a.metrics.RecordDecision(decision.Engine, result, time.Since(start))

	span.SetAttributes(
		attribute.Bool("authz.allowed", decision.Allowed),
		attribute.String("authz.engine", decision.Engine),
		attribute.String("authz.reason", decision.Reason),
		attribute.StringSlice("authz.policies", decision.Policies),
	)

	a.logger.Debug("authorization decision",
		observability.String("user", req.User.ID),
		observability.String("resource", req.Resource),
		observability.String("action", req.Action),
		observability.Bool("allowed", decision.Allowed),
		observability.String("engine", decision.Engine),
		observability.Strings("policies", decision.Policies),
	)

	a.auditDecision(ctx, req, decision, time.Since(start))

	return decision, nil
}

// evaluate runs the RBAC gate and, when it allows, the ABAC chain.
func (a *Authorizer) evaluate(ctx context.Context, req *Request) (*Decision, error) {
	allowed, err := a.rbac.CheckAccess(ctx, req.User.ID, req.Resource, req.Action)
	if err != nil {
		return nil, newEvaluationError(EngineRBAC, req, err)
	}
	if !allowed {
		return &Decision{
			Allowed:   false,
			Reason:    ReasonRBACDenied,
			Policies:  []string{},
			Timestamp: a.now(),
			Engine:    EngineRBAC,
		}, nil
	}

	res, err := a.abac.CheckAccess(ctx, &abac.Request{
		Subject:  abac.Subject{ID: req.User.ID, Roles: req.User.Roles},
		Resource: req.Resource,
		Action:   req.Action,
		Context:  req.Context,
	})
	if err != nil {
		return nil, newEvaluationError(EngineABAC, req, err)
	}

	policies := res.Policies
	if policies == nil {
		policies = []string{}
	}

	return &Decision{
		Allowed:   res.Allowed,
		Reason:    res.Reason,
		Policies:  policies,
		Timestamp: a.now(),
		Engine:    EngineABAC,
	}, nil
}

func (a *Authorizer) auditDecision(ctx context.Context, req *Request, decision *Decision, elapsed time.Duration) {
	event := audit.AuthorizationEvent(
		decision.Allowed,
		&audit.Subject{ID: req.User.ID, Roles: req.User.Roles},
		&audit.Resource{Name: req.Resource, Action: req.Action},
		&audit.DecisionDetails{
			Engine:   decision.Engine,
			Reason:   decision.Reason,
			Policies: decision.Policies,
		},
	).WithTimestamp(decision.Timestamp).WithDuration(elapsed)

	if !req.Timestamp.IsZero() {
		event.WithMetadata("requested_at", req.Timestamp.UTC().Format(time.RFC3339Nano))
	}

	a.audit.LogEvent(ctx, event)
}
