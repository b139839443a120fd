package gateway

import "errors"

var (
	// ErrInvalidFrame is returned for inbound frames that are not a prompt message
	ErrInvalidFrame = errors.New("invalid prompt frame")

	// ErrShuttingDown is returned when a connection arrives during shutdown
	ErrShuttingDown = errors.New("server is shutting down")
)
