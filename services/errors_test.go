package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/medicrypt/recordvault/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeNotFound,
				Message: "user not found",
				Err:     errors.New("db error"),
			},
			wantMsg: "not_found: user not found (db error)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
				Err:     nil,
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same error type",
			err:    NewDomainError(ErrorTypeNotFound, "not found", nil),
			target: ErrRecordNotFound,
			want:   true,
		},
		{
			name:   "different error type",
			err:    NewDomainError(ErrorTypeValidation, "validation", nil),
			target: ErrRecordNotFound,
			want:   false,
		},
		{
			name:   "not a domain error",
			err:    NewDomainError(ErrorTypeNotFound, "not found", nil),
			target: errors.New("regular error"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil)

	err.WithDetail("field", "walletAddress").WithDetail("value", "not-base58")

	assert.Equal(t, "walletAddress", err.Details["field"])
	assert.Equal(t, "not-base58", err.Details["value"])
}

func TestErrorTypeCheckers(t *testing.T) {
	typeCheckers := map[ErrorType]func(error) bool{
		ErrorTypeNotFound:     IsNotFoundError,
		ErrorTypeValidation:   IsValidationError,
		ErrorTypeUnauthorized: IsUnauthorizedError,
		ErrorTypeForbidden:    IsForbiddenError,
		ErrorTypeConflict:     IsConflictError,
		ErrorTypeInternal:     IsInternalError,
		ErrorTypeUnavailable:  IsUnavailableError,
	}

	for errType, checker := range typeCheckers {
		t.Run(string(errType), func(t *testing.T) {
			err := NewDomainError(errType, "test error", nil)
			assert.True(t, checker(err), "checker should return true for %s", errType)
			assert.True(t, checker(fmt.Errorf("wrapped: %w", err)))
			assert.False(t, checker(errors.New("regular")))
			assert.False(t, checker(nil))

			for other, otherChecker := range typeCheckers {
				if other != errType {
					assert.False(t, otherChecker(err), "%s checker matched %s", other, errType)
				}
			}
		})
	}
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"not found", ErrRecordNotFound, ErrorTypeNotFound},
		{"validation", ErrInvalidInput, ErrorTypeValidation},
		{"conflict", ErrDuplicateUser, ErrorTypeConflict},
		{"unavailable", ErrStorageUnavailable, ErrorTypeUnavailable},
		{"regular error", errors.New("regular"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorType(tt.err))
		})
	}
}

func TestGetErrorDetails(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil)
	err.WithDetail("field", "recordId").WithDetail("reason", "too long")

	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "recordId", details["field"])
	assert.Equal(t, "too long", details["reason"])

	assert.Nil(t, GetErrorDetails(errors.New("regular error")))
}

func TestGetErrorMessage(t *testing.T) {
	wrapped := NewDomainError(ErrorTypeUnavailable, "failed to load record", errors.New("dial tcp: refused"))

	assert.Equal(t, "failed to load record", GetErrorMessage(wrapped))
	assert.Equal(t, "failed to load record", GetErrorMessage(fmt.Errorf("read: %w", wrapped)))
	assert.Empty(t, GetErrorMessage(errors.New("plain")))
}

func TestWrapInternal(t *testing.T) {
	baseErr := errors.New("cipher failure")
	wrapped := WrapInternal("failed to seal", baseErr)

	assert.True(t, IsInternalError(wrapped))
	assert.Equal(t, baseErr, errors.Unwrap(wrapped))
}

func TestWrapRepository(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"missing row", fmt.Errorf("record P1: %w", repositories.ErrNotFound), ErrorTypeNotFound},
		{"duplicate key", fmt.Errorf("user W: %w", repositories.ErrAlreadyExists), ErrorTypeConflict},
		{"connection failure", errors.New("connection refused"), ErrorTypeUnavailable},
		{"domain error passes through", ErrRequestAlreadyDecided, ErrorTypeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := WrapRepository("operation failed", tt.err)
			assert.Equal(t, tt.want, GetErrorType(wrapped))
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}

	assert.NoError(t, WrapRepository("noop", nil))
}
