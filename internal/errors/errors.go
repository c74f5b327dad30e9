// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrDataUnavailable    = errors.New("market data unavailable")
	ErrBackendUnavailable = errors.New("generative backend unavailable")
	ErrValidation         = errors.New("validation failed")
	ErrPersistence        = errors.New("persistence failure")
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrBudgetExhausted    = errors.New("ai call budget exhausted")
)

// DataError represents a price or fundamental fetch failure for one symbol.
// It always matches ErrDataUnavailable.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDataUnavailable, e.Err}
	}
	return []error{ErrDataUnavailable}
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// BackendReason classifies why a generative backend call failed.
type BackendReason string

const (
	ReasonRateLimited   BackendReason = "rate_limited"
	ReasonInvalidKey    BackendReason = "invalid_key"
	ReasonModelNotFound BackendReason = "model_not_found"
	ReasonServerError   BackendReason = "server_error"
	ReasonTimeout       BackendReason = "timeout"
	ReasonBadRequest    BackendReason = "bad_request"
	ReasonEmptyResponse BackendReason = "empty_response"
	ReasonCircuitOpen   BackendReason = "circuit_open"
	ReasonUnknown       BackendReason = "unknown"
)

// BackendError represents a failed generative backend call.
// It always matches ErrBackendUnavailable.
type BackendError struct {
	Reason     BackendReason
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend unavailable [%s]", e.Reason)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *BackendError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrBackendUnavailable, e.Err}
	}
	return []error{ErrBackendUnavailable}
}

// NewBackendError creates a new BackendError.
func NewBackendError(reason BackendReason, statusCode int, err error) *BackendError {
	return &BackendError{
		Reason:     reason,
		StatusCode: statusCode,
		Err:        err,
	}
}

// ReasonForStatus maps an HTTP-like status code to a BackendReason.
func ReasonForStatus(status int) BackendReason {
	switch {
	case status == 429:
		return ReasonRateLimited
	case status == 401 || status == 403:
		return ReasonInvalidKey
	case status == 404:
		return ReasonModelNotFound
	case status == 408 || status == 504:
		return ReasonTimeout
	case status >= 500:
		return ReasonServerError
	case status >= 400:
		return ReasonBadRequest
	default:
		return ReasonUnknown
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Persistence marks err as a store write failure.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
