package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendInvocation is returned by a propagating backend whose capability failed
	ErrBackendInvocation = errors.New("backend invocation failed")

	// ErrInvalidDescriptor is returned when a backend descriptor fails validation
	ErrInvalidDescriptor = errors.New("invalid backend descriptor")

	// ErrCapabilityPanic wraps a panic raised inside a backend capability
	ErrCapabilityPanic = errors.New("backend capability panicked")

	// ErrNoLimiter is returned when a session context carries no limiter
	ErrNoLimiter = errors.New("session context has no limiter")
)

// InvocationError reports a failed call on a propagating backend.
type InvocationError struct {
	Backend  string
	Provider string
	Model    string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %s (%s/%s): %v", ErrBackendInvocation, e.Backend, e.Provider, e.Model, e.Err)
}

// Is matches ErrBackendInvocation.
func (e *InvocationError) Is(target error) bool {
	return target == ErrBackendInvocation
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
