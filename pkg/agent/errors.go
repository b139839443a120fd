package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedRole is returned when a message carries an unknown role tag
	ErrUnsupportedRole = errors.New("unsupported message role")

	// ErrContentShape is returned when assistant content is neither text nor parts
	ErrContentShape = errors.New("unsupported content shape")

	// ErrUnsupportedProvider is returned for provider identifiers the factory cannot build
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingCredentials is returned when a provider has no API key configured
	ErrMissingCredentials = errors.New("missing provider credentials")

	// ErrEmptyResponse is returned when a provider answers without any choice
	ErrEmptyResponse = errors.New("empty provider response")
)

// UnsupportedRoleError reports the offending message during classification.
type UnsupportedRoleError struct {
	Index int
	Role  Role
}

func (e *UnsupportedRoleError) Error() string {
	return fmt.Sprintf("message %d: %s %q", e.Index, ErrUnsupportedRole, e.Role)
}

func (e *UnsupportedRoleError) Unwrap() error {
	return ErrUnsupportedRole
}

// ContentShapeError reports an assistant message whose content cannot be rendered.
type ContentShapeError struct {
	Index int
	Kind  ContentKind
}

func (e *ContentShapeError) Error() string {
	return fmt.Sprintf("assistant message %d: %s (kind %d)", e.Index, ErrContentShape, int(e.Kind))
}

func (e *ContentShapeError) Unwrap() error {
	return ErrContentShape
}
