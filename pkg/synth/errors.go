package synth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable means the backend could not be reached at all.
var ErrUnavailable = errors.New("synth: backend unavailable")

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("synth: empty text")

// APIError is a non-2xx response from a synthesis backend.
type APIError struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("synth: %s returned %d: %s", e.Backend, e.StatusCode, e.Message)
}

// WrapError annotates a backend failure with its origin.
func WrapError(backend string, err error) error {
	return fmt.Errorf("synth: %s: %w", backend, err)
}

// ChainError aggregates the failures of every backend in a chain.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("synth: all backends failed: %s", strings.Join(msgs, "; "))
}

func (e *ChainError) Unwrap() []error {
	return e.Errors
}
