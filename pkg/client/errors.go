package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when sending before Connect
	ErrNotConnected = errors.New("client is not connected")

	// ErrInterrupted is returned by a LineReader on Ctrl-C
	ErrInterrupted = errors.New("input interrupted")

	// ErrConnectionLost is returned by Chat when the server goes away mid-session
	ErrConnectionLost = errors.New("connection lost")
)

// TransportError reports a failed connection attempt
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("could not connect to %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
