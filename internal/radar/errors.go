package radar

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrJobExhausted marks a job whose attempts reached its maximum.
var ErrJobExhausted = errors.New("job attempts exhausted")

// ErrorKind classifies per-source failures.
type ErrorKind string

// Error kinds.
const (
	ErrorKindNetwork  ErrorKind = "network"
	ErrorKindHTTP     ErrorKind = "http"
	ErrorKindParse    ErrorKind = "parse"
	ErrorKindRedirect ErrorKind = "redirect"
)

// FetchError describes why fetching or parsing a source failed.
type FetchError struct {
	Kind    ErrorKind
	Status  int
	URL     string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s failure", e.Kind)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt could succeed.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case ErrorKindNetwork:
		return true
	case ErrorKindHTTP:
		return e.Status >= 500
	default:
		return false
	}
}

// NewHTTPError builds an HTTP failure for a non-success status.
func NewHTTPError(url string, status int) *FetchError {
	return &FetchError{
		Kind:    ErrorKindHTTP,
		Status:  status,
		URL:     url,
		Message: fmt.Sprintf("HTTP %d", status),
	}
}

// NewNetworkError wraps a transport failure or timeout.
func NewNetworkError(url string, cause error) *FetchError {
	return &FetchError{Kind: ErrorKindNetwork, URL: url, Message: cause.Error(), Cause: cause}
}

// NewParseError wraps a payload that could not be parsed.
func NewParseError(url string, cause error) *FetchError {
	return &FetchError{Kind: ErrorKindParse, URL: url, Message: fmt.Sprintf("parse feed: %v", cause), Cause: cause}
}

// KindOf extracts the ErrorKind of err, or "" when err is not a FetchError.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
