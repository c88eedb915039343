package services

import (
	"errors"
	"fmt"

	"github.com/medicrypt/recordvault/repositories"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeUnavailable  ErrorType = "unavailable"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
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

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
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

// Domain error variables. They are sentinels for errors.Is; build a fresh
// error with NewDomainError before attaching details.

var (
	// Not Found Errors
	ErrUserNotFound          = NewDomainError(ErrorTypeNotFound, "user not found", nil)
	ErrRecordNotFound        = NewDomainError(ErrorTypeNotFound, "record not found", nil)
	ErrAccessRequestNotFound = NewDomainError(ErrorTypeNotFound, "access request not found", nil)
	ErrBlobNotFound          = NewDomainError(ErrorTypeNotFound, "artifact content not found", nil)

	// Validation Errors
	ErrInvalidInput    = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidRole     = NewDomainError(ErrorTypeValidation, "invalid role", nil)
	ErrEmptyPayload    = NewDomainError(ErrorTypeValidation, "artifact payload cannot be empty", nil)
	ErrInvalidRecordID = NewDomainError(ErrorTypeValidation, "invalid record id", nil)
	ErrInvalidIdentity = NewDomainError(ErrorTypeValidation, "invalid wallet identity", nil)
	ErrInvalidDecision = NewDomainError(ErrorTypeValidation, "status must be APPROVED or REJECTED", nil)

	// Authentication Errors
	ErrUnauthorized      = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken      = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrInvalidSignature  = NewDomainError(ErrorTypeUnauthorized, "invalid wallet signature", nil)
	ErrUserNotRegistered = NewDomainError(ErrorTypeUnauthorized, "wallet is not registered", nil)

	// Permission Errors
	ErrForbidden = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)

	// Conflict Errors
	ErrDuplicateUser         = NewDomainError(ErrorTypeConflict, "user already registered", nil)
	ErrRequestAlreadyDecided = NewDomainError(ErrorTypeConflict, "access request already decided", nil)
	ErrDuplicateLedgerEntry  = NewDomainError(ErrorTypeConflict, "concurrent ledger append detected", nil)

	// Internal Errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrSealingFailed = NewDomainError(ErrorTypeInternal, "artifact sealing failed", nil)

	// Unavailable Errors
	ErrStorageUnavailable = NewDomainError(ErrorTypeUnavailable, "storage unavailable", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

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

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsUnavailableError checks if an error is a storage or dependency outage
func IsUnavailableError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnavailable
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
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

// GetErrorMessage returns the message of a domain error without its cause,
// or empty string if not a domain error
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapUnavailable wraps an error as a storage or dependency outage
func WrapUnavailable(message string, err error) error {
	return NewDomainError(ErrorTypeUnavailable, message, err)
}

// WrapRepository classifies a repository error. Missing rows become not
// found, key collisions become conflicts, anything else is an outage.
// Domain errors pass through unchanged.
func WrapRepository(message string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return NewDomainError(ErrorTypeNotFound, message, err)
	case errors.Is(err, repositories.ErrAlreadyExists):
		return NewDomainError(ErrorTypeConflict, message, err)
	default:
		return NewDomainError(ErrorTypeUnavailable, message, err)
	}
}
