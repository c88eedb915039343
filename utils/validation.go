package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/medicrypt/recordvault/services/records"
	"github.com/medicrypt/recordvault/wallet"
)

var (
	// validate is the singleton validator instance
	validate *validator.Validate
)

func init() {
	validate = validator.New()

	// Report fields by their JSON names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	domainTags := map[string]validator.Func{
		// wallet: a base58 encoded ed25519 public key
		"wallet": func(fl validator.FieldLevel) bool {
			_, err := wallet.ParseAddress(fl.Field().String())
			return err == nil
		},
		// recordid: an identifier the record store accepts
		"recordid": func(fl validator.FieldLevel) bool {
			return records.ValidateRecordID(fl.Field().String()) == nil
		},
	}
	for tag, fn := range domainTags {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			panic("utils: registering " + tag + " validation failed: " + err.Error())
		}
	}
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError wraps validation errors with per-field messages
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string, len(errs))
	for _, err := range errs {
		fields[err.Field()] = fieldMessage(err.Field(), err.Tag(), err.Param())
	}

	return &ValidationError{
		Message: "Validation failed",
		Fields:  fields,
	}
}

func fieldMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "wallet":
		return fmt.Sprintf("%s must be a base58 ed25519 wallet address", field)
	case "recordid":
		return fmt.Sprintf("%s must be 1-128 characters without slashes or whitespace", field)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	default:
		return fmt.Sprintf("%s validation failed on '%s' tag", field, tag)
	}
}

// fieldError builds a single-field ValidationError
func fieldError(field, tag string) *ValidationError {
	return &ValidationError{
		Message: "Validation failed",
		Fields:  map[string]string{field: fieldMessage(field, tag, "")},
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetValidationFields extracts field errors from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}

// ParseUUIDParam parses the path parameter name as a UUID
func ParseUUIDParam(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fieldError(name, "uuid")
	}
	return id, nil
}

// ParseWalletParam checks that the path parameter name is a wallet address
func ParseWalletParam(name, raw string) (string, error) {
	if _, err := wallet.ParseAddress(raw); err != nil {
		return "", fieldError(name, "wallet")
	}
	return raw, nil
}
