package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProviderAvailable means no active provider serves the usage type.
	// It is terminal and never retried.
	ErrNoProviderAvailable = errors.New("no provider available")

	// ErrAllProvidersExhausted matches every *AllProvidersExhaustedError
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrInvalidRequest is returned for requests rejected before selection
	ErrInvalidRequest = errors.New("invalid dispatch request")

	// ErrDispatchAborted means the caller's context or the dispatch deadline
	// ended the dispatch. The error also matches the context error.
	ErrDispatchAborted = errors.New("dispatch aborted")
)

// AllProvidersExhaustedError is returned when every provider in the chain
// failed or was rate limited. It unwraps to the last failure.
type AllProvidersExhaustedError struct {
	UsageType string
	Tried     int
	Last      error
}

func (e *AllProvidersExhaustedError) Error() string {
	return fmt.Sprintf("all %d providers for %q exhausted: %v", e.Tried, e.UsageType, e.Last)
}

func (e *AllProvidersExhaustedError) Unwrap() error {
	return e.Last
}

func (e *AllProvidersExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersExhausted
}
