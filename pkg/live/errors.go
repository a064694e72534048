package live

import (
	"errors"
	"fmt"
)

// Sentinel errors for the live session driver.
var (
	// ErrHandshakeFailed is returned when the initial connection budget is
	// exhausted without a successful handshake.
	ErrHandshakeFailed = errors.New("live: handshake failed")

	// ErrSessionLost is returned when the reconnect budget is exhausted
	// after a mid-session transport drop.
	ErrSessionLost = errors.New("live: session lost")

	// ErrNotActive is returned when audio is pushed outside an active session.
	ErrNotActive = errors.New("live: session not active")

	// ErrAlreadyStarted is returned by Start on a driver that is not idle.
	ErrAlreadyStarted = errors.New("live: driver already started")

	// ErrClosed is returned when the driver has been permanently closed.
	ErrClosed = errors.New("live: driver closed")
)

// ConnectionError wraps a transport failure with retry context.
type ConnectionError struct {
	// Reason describes why the connection failed.
	Reason string

	// Attempt is the attempt number that failed.
	Attempt int

	// Cause is the underlying error.
	Cause error
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("live: connection error (attempt %d): %s: %v", e.Attempt, e.Reason, e.Cause)
	}
	return fmt.Sprintf("live: connection error (attempt %d): %s", e.Attempt, e.Reason)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}
