package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a provider failure
type ErrorKind string

const (
	KindTimeout            ErrorKind = "timeout"
	KindRateLimited        ErrorKind = "rate_limited"
	KindInvalidResponse    ErrorKind = "invalid_response"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindUnknown            ErrorKind = "unknown"
)

// ClassifiedError represents a failed provider call
type ClassifiedError struct {
	// Provider that generated the error
	Provider string

	// Kind is the failure class
	Kind ErrorKind

	// StatusCode is the HTTP status code, 0 for transport failures
	StatusCode int

	// Message is the upstream or local description
	Message string

	// Retryable indicates another attempt may succeed
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// NewClassifiedError creates a provider error
func NewClassifiedError(provider string, kind ErrorKind, statusCode int, message string, retryable bool, cause error) *ClassifiedError {
	return &ClassifiedError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable reports whether err is a retryable provider failure.
// Errors that were never classified are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return true
}

// KindOf returns the failure class of err, KindUnknown if unclassified
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// ClassifyStatus maps a non-2xx HTTP status to a classified error
func ClassifyStatus(provider string, statusCode int, message string) *ClassifiedError {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewClassifiedError(provider, KindInvalidCredentials, statusCode, message, false, nil)
	case statusCode == http.StatusTooManyRequests:
		return NewClassifiedError(provider, KindRateLimited, statusCode, message, true, nil)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return NewClassifiedError(provider, KindTimeout, statusCode, message, true, nil)
	case statusCode >= 500:
		return NewClassifiedError(provider, KindUnknown, statusCode, message, true, nil)
	default:
		return NewClassifiedError(provider, KindUnknown, statusCode, message, false, nil)
	}
}

// ClassifyTransport maps an error from http.Client.Do
func ClassifyTransport(provider string, err error) *ClassifiedError {
	if errors.Is(err, context.Canceled) {
		return NewClassifiedError(provider, KindUnknown, 0, "request canceled", false, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return NewClassifiedError(provider, KindTimeout, 0, "request timed out", true, err)
	}
	return NewClassifiedError(provider, KindUnknown, 0, "HTTP request failed", true, err)
}
