package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/accessd/internal/observability"
)

// Mutation operations recorded in metrics and audit trails.
const (
	OperationAssign = "assign"
	OperationRemove = "remove"
)

// Evaluator resolves a user's roles to permissions and answers access checks.
// The registry snapshot can be swapped at runtime; user state lives in the
// injected UserStore.
type Evaluator struct {
	registry atomic.Pointer[Registry]
	store    UserStore
	logger   observability.Logger
	metrics  *Metrics
}

// EvaluatorOption is a functional option for the evaluator.
type EvaluatorOption func(*Evaluator)

// WithEvaluatorLogger sets the logger.
func WithEvaluatorLogger(logger observability.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithEvaluatorMetrics sets the metrics.
func WithEvaluatorMetrics(metrics *Metrics) EvaluatorOption {
	return func(e *Evaluator) {
		e.metrics = metrics
	}
}

// NewEvaluator creates an evaluator over registry and store.
func NewEvaluator(registry *Registry, store UserStore, opts ...EvaluatorOption) (*Evaluator, error) {
	if registry == nil {
		return nil, errors.New("rbac: registry is required")
	}
	if store == nil {
		return nil, errors.New("rbac: user store is required")
	}

	e := &Evaluator{
		store:  store,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics("accessd")
	}

	e.SetRegistry(registry)
	return e, nil
}

// Registry returns the current role registry.
func (e *Evaluator) Registry() *Registry {
	return e.registry.Load()
}

// SetRegistry atomically replaces the role registry.
func (e *Evaluator) SetRegistry(registry *Registry) {
	e.registry.Store(registry)
	e.metrics.SetRoleCount(registry.Len())
}

// Store returns the user store.
func (e *Evaluator) Store() UserStore {
	return e.store
}

// CheckAccess reports whether any permission granted to the user matches
// resource and action. Unknown users and unknown roles deny; errors come
// only from the store backend.
func (e *Evaluator) CheckAccess(ctx context.Context, userID, resource, action string) (bool, error) {
	start := time.Now()

	perms, err := e.UserPermissions(ctx, userID)
	if err != nil {
		e.metrics.RecordEvaluation("error", time.Since(start))
		return false, err
	}

	allowed := false
	for _, p := range perms {
		if p.Matches(resource, action) {
			allowed = true
			break
		}
	}

	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	e.metrics.RecordEvaluation(decision, time.Since(start))
	e.logger.Debug("RBAC decision",
		observability.String("user", userID),
		observability.String("resource", resource),
		observability.String("action", action),
		observability.Bool("allowed", allowed),
	)

	return allowed, nil
}

// UserPermissions returns the union of permissions over the user's roles,
// de-duplicated by permission id in first-seen order.
func (e *Evaluator) UserPermissions(ctx context.Context, userID string) ([]Permission, error) {
	user, err := e.store.User(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return []Permission{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading user %q: %w", userID, err)
	}

	registry := e.registry.Load()
	seen := make(map[string]struct{})
	perms := make([]Permission, 0)
	for _, roleID := range user.Roles {
		role, ok := registry.Role(roleID)
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			perms = append(perms, p)
		}
	}
	return perms, nil
}

// AssignRoleToUser gives roleID to userID. It returns false when either id is
// unknown and true when the user holds the role afterwards; assigning a role
// that is already held leaves the role list unchanged.
func (e *Evaluator) AssignRoleToUser(ctx context.Context, userID, roleID string) (bool, error) {
	if _, ok := e.registry.Load().Role(roleID); !ok {
		e.metrics.RecordMutation(OperationAssign, "invalid")
		return false, nil
	}
	ok, err := e.store.AddRole(ctx, userID, roleID)
	return e.recordMutation(OperationAssign, userID, roleID, ok, err)
}

// RemoveRoleFromUser takes roleID away from userID. It returns false when the
// user is unknown or does not hold the role.
func (e *Evaluator) RemoveRoleFromUser(ctx context.Context, userID, roleID string) (bool, error) {
	ok, err := e.store.RemoveRole(ctx, userID, roleID)
	return e.recordMutation(OperationRemove, userID, roleID, ok, err)
}

func (e *Evaluator) recordMutation(op, userID, roleID string, ok bool, err error) (bool, error) {
	switch {
	case err != nil:
		e.metrics.RecordMutation(op, "error")
		e.logger.Warn("role mutation failed",
			observability.String("operation", op),
			observability.String("user", userID),
			observability.String("role", roleID),
			observability.Error(err),
		)
		return false, fmt.Errorf("%s role %q for user %q: %w", op, roleID, userID, err)
	case ok:
		e.metrics.RecordMutation(op, "changed")
	default:
		e.metrics.RecordMutation(op, "invalid")
	}
	e.logger.Debug("role mutation",
		observability.String("operation", op),
		observability.String("user", userID),
		observability.String("role", roleID),
		observability.Bool("ok", ok),
	)
	return ok, nil
}

// NewStore builds the user store selected by cfg.
func NewStore(cfg StoreConfig, logger observability.Logger) (UserStore, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	switch cfg.GetEffectiveType() {
	case StoreMemory:
		return NewMemoryStore(), nil
	case StoreRedis:
		return NewRedisStore(cfg.Redis, WithRedisLogger(logger))
	case StoreBadger:
		return NewBadgerStore(cfg.Badger, logger)
	default:
		return nil, fmt.Errorf("invalid store type: %s", cfg.Type)
	}
}
