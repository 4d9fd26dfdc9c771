// Package errors classifies failures of external calls made from node
// handlers and retries the transient ones with backoff.
//
// The graph engine itself never retries. A handler that calls an LLM or
// a database wraps the call in WithRetryContext; whatever error is left
// after the last attempt fails the node.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Category says whether repeating a failed call can help.
type Category int

const (
	// CategoryTransient covers rate limits, timeouts and refused
	// connections.
	CategoryTransient Category = iota
	// CategoryPermanent covers bad credentials, bad requests and the
	// caller's own cancellation.
	CategoryPermanent
	// CategoryInvalidOutput means the call worked but the model's answer
	// was unusable.
	CategoryInvalidOutput
)

var categoryNames = map[Category]string{
	CategoryTransient:     "transient",
	CategoryPermanent:     "permanent",
	CategoryInvalidOutput: "invalid_output",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// CategorizedError pins a category on an error, optionally with the
// operation it came from and how many attempts were made.
type CategorizedError struct {
	Err      error
	Category Category
	Retries  int
	Context  string
}

func (e *CategorizedError) Error() string {
	msg := fmt.Sprintf("%v (category: %s, attempts: %d)", e.Err, e.Category, e.Retries)
	if e.Context == "" {
		return msg
	}
	return e.Context + ": " + msg
}

func (e *CategorizedError) Unwrap() error { return e.Err }

// Transient marks err as worth retrying. op names the failed operation.
func Transient(err error, op string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient, Context: op}
}

// Permanent marks err as not worth retrying.
func Permanent(err error, op string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Context: op}
}

// Categorize decides how err should be handled. An explicit
// CategorizedError anywhere in the chain wins; otherwise the first
// recognised cause decides, and anything unrecognised is permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var (
		cat     *CategorizedError
		httpErr *HTTPError
		outErr  *OutputError
		tmoErr  *TimeoutError
		netErr  net.Error
	)
	switch {
	case errors.As(err, &cat):
		return cat.Category
	case errors.As(err, &httpErr):
		return statusCategory(httpErr.StatusCode)
	case errors.As(err, &outErr):
		return CategoryInvalidOutput
	case errors.As(err, &tmoErr):
		return CategoryTransient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The caller gave up; asking again would ignore that.
		return CategoryPermanent
	case errors.As(err, &netErr):
		return CategoryTransient
	}
	return CategoryPermanent
}

func statusCategory(code int) Category {
	switch {
	case code == 408, code == 429, code >= 500:
		return CategoryTransient
	default:
		return CategoryPermanent
	}
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
