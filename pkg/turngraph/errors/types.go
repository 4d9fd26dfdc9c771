package errors

import (
	"errors"
	"fmt"
)

// Sentinels for failures of external services called from node handlers.
var (
	// ErrUpstreamUnavailable means the service could not be reached or
	// refused the request.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamTimeout means the service did not answer in time.
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

// UpstreamError describes a failed call to an external service such as
// the LLM provider or the analytics database.
type UpstreamError struct {
	// Service names the dependency, e.g. "llm" or "database".
	Service string
	// Op is the operation attempted, e.g. "complete" or "query".
	Op  string
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is reports ErrUpstreamTimeout for timeouts and ErrUpstreamUnavailable
// for every other transient failure.
func (e *UpstreamError) Is(target error) bool {
	var te *TimeoutError
	timedOut := errors.As(e.Err, &te)
	switch target {
	case ErrUpstreamTimeout:
		return timedOut
	case ErrUpstreamUnavailable:
		return !timedOut && Categorize(e.Err) == CategoryTransient
	}
	return false
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// OutputError indicates a model answered but the answer could not be
// used, e.g. a classifier reply outside its allowed labels.
type OutputError struct {
	Output  string
	Message string
}

// Error implements the error interface.
func (e *OutputError) Error() string {
	return fmt.Sprintf("unusable model output: %s", e.Message)
}

// TimeoutError indicates an operation timed out.
type TimeoutError struct {
	Operation string
	Duration  string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}
