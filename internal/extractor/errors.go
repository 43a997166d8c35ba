package extractor

import (
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures. Timeout and NetworkError are
// transient and retried by the orchestrator; RenderError and Blocked fail
// the task immediately.
type ErrorKind string

const (
	KindTimeout      ErrorKind = "timeout"
	KindNetworkError ErrorKind = "network_error"
	KindRenderError  ErrorKind = "render_error"
	KindBlocked      ErrorKind = "blocked"
)

// ExtractError is a typed extraction failure.
type ExtractError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *ExtractError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("extract %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth another attempt.
func (e *ExtractError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindNetworkError
}

// Retryable reports whether err is a transient extraction failure.
func Retryable(err error) bool {
	var ee *ExtractError
	return errors.As(err, &ee) && ee.Retryable()
}

// KindOf returns the error kind, or "" if err is not an ExtractError.
func KindOf(err error) ErrorKind {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}
