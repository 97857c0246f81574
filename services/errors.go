package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeUnauthorized      ErrorType = "unauthorized"
	ErrorTypeForbidden         ErrorType = "forbidden"
	ErrorTypeAdmission         ErrorType = "admission"
	ErrorTypeBudget            ErrorType = "budget"
	ErrorTypeProviderTransient ErrorType = "provider_transient"
	ErrorTypeProviderPermanent ErrorType = "provider_permanent"
	ErrorTypeRouting           ErrorType = "routing"
	ErrorTypeCollaborator      ErrorType = "collaborator"
	ErrorTypeInternal          ErrorType = "internal"
)

// Machine-readable codes carried by answer envelopes and HTTP error bodies.
const (
	CodeTokenBudgetExceeded = "TOKEN_BUDGET_EXCEEDED"
	CodeCostBudgetExceeded  = "COST_BUDGET_EXCEEDED"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeRoutingFailed       = "LLM_ROUTING_FAILED"
	CodeInternal            = "INTERNAL_ERROR"
	CodeInvalidInput        = "INVALID_INPUT"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on error type and, when the target carries one, on code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return e.Type == t.Type
}

// WithDetail returns a copy of the error with the detail added.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	cp := *e
	cp.Details = details
	return &cp
}

// Wrap returns a copy of the error with cause attached.
func (e *DomainError) Wrap(cause error) *DomainError {
	cp := *e
	cp.Err = cause
	return &cp
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

func newCodedError(errType ErrorType, code, message string) *DomainError {
	e := NewDomainError(errType, message, nil)
	e.Code = code
	return e
}

var (
	// Validation
	ErrInvalidInput = newCodedError(ErrorTypeValidation, CodeInvalidInput, "invalid input")
	ErrEmptyPrompt  = newCodedError(ErrorTypeValidation, CodeInvalidInput, "prompt cannot be empty")

	// Boundary auth
	ErrUnauthorized            = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken            = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired            = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)
	ErrInsufficientPermissions = NewDomainError(ErrorTypeForbidden, "insufficient permissions", nil)

	// Admission and budgets
	ErrRateLimitExceeded   = newCodedError(ErrorTypeAdmission, CodeRateLimitExceeded, "rate limit exceeded")
	ErrTokenBudgetExceeded = newCodedError(ErrorTypeBudget, CodeTokenBudgetExceeded, "token budget exceeded")
	ErrCostBudgetExceeded  = newCodedError(ErrorTypeBudget, CodeCostBudgetExceeded, "cost budget exceeded")

	// Routing
	ErrRoutingFailed = newCodedError(ErrorTypeRouting, CodeRoutingFailed, "all providers skipped or exhausted")

	// Collaborators (memory store, usage journal)
	ErrCollaboratorFailed = NewDomainError(ErrorTypeCollaborator, "collaborator call failed", nil)

	// Internal
	ErrInternal      = newCodedError(ErrorTypeInternal, CodeInternal, "internal error")
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)
)

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsAdmissionError checks if an error is a rate limit denial
func IsAdmissionError(err error) bool {
	return GetErrorType(err) == ErrorTypeAdmission
}

// IsBudgetError checks if an error is a token or cost budget denial
func IsBudgetError(err error) bool {
	return GetErrorType(err) == ErrorTypeBudget
}

// IsProviderError checks if an error came from a provider, transient or permanent
func IsProviderError(err error) bool {
	t := GetErrorType(err)
	return t == ErrorTypeProviderTransient || t == ErrorTypeProviderPermanent
}

// IsRoutingError checks if an error is a routing failure
func IsRoutingError(err error) bool {
	return GetErrorType(err) == ErrorTypeRouting
}

// IsCollaboratorError checks if an error came from an external collaborator
func IsCollaboratorError(err error) bool {
	return GetErrorType(err) == ErrorTypeCollaborator
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the machine code of a domain error, or empty string.
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	e := NewDomainError(ErrorTypeInternal, message, err)
	e.Code = CodeInternal
	return e
}

// WrapCollaborator wraps a memory store or journal failure
func WrapCollaborator(message string, err error) error {
	return NewDomainError(ErrorTypeCollaborator, message, err)
}
