package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	ErrCodeNotFound      ErrorCode = "not_found"
	ErrCodeConflict      ErrorCode = "conflict"
	ErrCodeValidation    ErrorCode = "validation"
	ErrCodeForeignKey    ErrorCode = "foreign_key"
	ErrCodeForbidden     ErrorCode = "forbidden"
	ErrCodeQuotaExceeded ErrorCode = "quota_exceeded"
	ErrCodeInternal      ErrorCode = "internal"
	ErrCodeTimeout       ErrorCode = "timeout"
	ErrCodeCanceled      ErrorCode = "canceled"
)

// AppError is a classified, user-presentable error. It supports errors.Is and errors.As
// through its Cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending input for validation errors.
	Field string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func newf(code ErrorCode, format string, args ...any) *AppError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &AppError{Code: code, Message: msg}
}

// NotFoundf creates a NotFound error.
func NotFoundf(format string, args ...any) *AppError { return newf(ErrCodeNotFound, format, args...) }

// Conflictf creates a Conflict error.
func Conflictf(format string, args ...any) *AppError { return newf(ErrCodeConflict, format, args...) }

// Validationf creates a Validation error.
func Validationf(format string, args ...any) *AppError { return newf(ErrCodeValidation, format, args...) }

// Forbiddenf creates a Forbidden error.
func Forbiddenf(format string, args ...any) *AppError { return newf(ErrCodeForbidden, format, args...) }

// QuotaExceededf creates a QuotaExceeded error.
func QuotaExceededf(format string, args ...any) *AppError {
	return newf(ErrCodeQuotaExceeded, format, args...)
}

// ValidationField creates a Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Wrap wraps err with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with an AppError and a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// GetCode returns the ErrorCode of err, or empty string when err is not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field of err, or empty string.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return GetCode(err) == ErrCodeNotFound }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return GetCode(err) == ErrCodeConflict }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return GetCode(err) == ErrCodeValidation }

// IsForbidden checks if an error is a Forbidden error.
func IsForbidden(err error) bool { return GetCode(err) == ErrCodeForbidden }

// IsQuotaExceeded checks if an error is a QuotaExceeded error.
func IsQuotaExceeded(err error) bool { return GetCode(err) == ErrCodeQuotaExceeded }
