package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// TransientError represents a control-plane failure that is safe to retry:
// network errors, throttling, and server-side 5xx responses. Callers retry
// these with backoff; everything else fails fast.
type TransientError struct {
	// Op is the control-plane operation that failed (e.g. "CreateGateway").
	Op string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient control plane error: %v", e.Op, e.Err)
}

// Unwrap supports errors.Is/errors.As chains.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// ValidationError represents a request the control plane rejected as
// malformed or not permitted. Retrying the identical request cannot succeed,
// so callers surface it immediately.
type ValidationError struct {
	// Op is the control-plane operation that failed.
	Op string
	// Message is the control plane's rejection reason.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation error: %s", e.Op, e.Message)
}

// NotFoundError reports that a resource lookup missed. During adoption this
// is the normal "create it then" signal; after a delete it means the delete
// completed.
type NotFoundError struct {
	// Kind is the resource kind that was looked up.
	Kind Kind
	// Ref is the name or id used for the lookup.
	Ref string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Ref)
}

// ResourceFailedError reports that a resource reached FAILED, a terminal
// state the control plane never leaves on its own. The operator must delete
// and recreate the resource; nothing here retries it.
type ResourceFailedError struct {
	// Kind is the failed resource kind.
	Kind Kind
	// Name is the logical resource name.
	Name string
	// ID is the control-plane id, when known.
	ID string
	// Reasons are the status reasons reported by the control plane.
	Reasons []string
}

// Error implements the error interface.
func (e *ResourceFailedError) Error() string {
	msg := fmt.Sprintf("%s %q entered FAILED state; delete and recreate it", e.Kind, e.Name)
	if len(e.Reasons) > 0 {
		msg += ": " + strings.Join(e.Reasons, "; ")
	}
	return msg
}

// IsTransient checks if an error is or wraps a TransientError.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsValidation checks if an error is or wraps a ValidationError.
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

// IsNotFound checks if an error is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsResourceFailed checks if an error is or wraps a ResourceFailedError.
func IsResourceFailed(err error) bool {
	var failed *ResourceFailedError
	return errors.As(err, &failed)
}
