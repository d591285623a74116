package authz

import (
	"errors"
	"fmt"
)

// Common authorization errors.
var (
	// ErrInvalidRequest indicates a request missing the user, resource or action.
	ErrInvalidRequest = errors.New("invalid authorization request")

	// ErrEvaluationFailed indicates that an engine could not reach a
	// decision, typically because the user store is unavailable.
	ErrEvaluationFailed = errors.New("authorization evaluation failed")
)

// AuthzError represents an authorization error with additional context.
type AuthzError struct {
	// Err is the underlying error.
	Err error

	// Engine is the engine that failed (rbac or abac).
	Engine string

	// Subject is the user id of the request.
	Subject string

	// Resource is the resource that was being accessed.
	Resource string

	// Action is the action that was being performed.
	Action string

	// Cause is the engine error.
	Cause error
}

// Error returns the error message.
func (e *AuthzError) Error() string {
	msg := "authorization failed"
	if e.Err != nil {
		msg = fmt.Sprintf("authorization failed: %v", e.Err)
	}
	if e.Engine != "" {
		msg = fmt.Sprintf("%s (%s %s %s on %s)", msg, e.Engine, e.Subject, e.Action, e.Resource)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the sentinel and the engine error.
func (e *AuthzError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// newEvaluationError wraps an engine failure.
func newEvaluationError(engine string, req *Request, cause error) *AuthzError {
	return &AuthzError{
		Err:      ErrEvaluationFailed,
		Engine:   engine,
		Subject:  req.User.ID,
		Resource: req.Resource,
		Action:   req.Action,
		Cause:    cause,
	}
}

// IsInvalidRequest checks if an error is a request validation error.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsEvaluationFailed checks if an error is an engine failure.
func IsEvaluationFailed(err error) bool {
	return errors.Is(err, ErrEvaluationFailed)
}
