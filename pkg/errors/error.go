// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Invalid fills, ledger entries, mappings
//   - Data/Resource errors (200-299): Missing accounts/trades, query failures
//   - Ledger errors (300-399): Cash-entry rule violations
//   - Position/Trade errors (500-599): Over-close, closed-trade violations
//   - Ingestion errors (600-699): Per-row normalization and rejection errors
//   - Engine errors (700-799): Maintenance-gate and invocation errors
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeZeroAmount, "ledger amount must be nonzero")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeTradeNotFound, "no trade with id %s", id)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodePersistence, "failed to append entry", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeOverClose) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// OverCloseError is returned when a closing fill asks for more quantity
// than the position currently holds. The trade state is left untouched.
type OverCloseError struct {
	TradeID   string  // trade whose position was targeted
	Attempted float64 // quantity the fill tried to close
	Available float64 // open quantity at the time of the fill
}

// NewOverCloseError creates a new OverCloseError.
func NewOverCloseError(tradeID string, attempted, available float64) *OverCloseError {
	return &OverCloseError{
		TradeID:   tradeID,
		Attempted: attempted,
		Available: available,
	}
}

// Error implements the error interface.
func (e *OverCloseError) Error() string {
	return fmt.Sprintf("cannot close %v of trade %s: only %v open", e.Attempted, e.TradeID, e.Available)
}

// IsOverCloseError checks if an error is an OverCloseError.
// It uses errors.As to check the error chain.
func IsOverCloseError(err error) bool {
	var overCloseErr *OverCloseError

	return errors.As(err, &overCloseErr)
}
