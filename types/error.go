package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Construction-time error codes
const (
	ErrConfigInvalid ErrorCode = "CONFIG_INVALID"
	ErrMissingField  ErrorCode = "MISSING_FIELD"
)

// Execution error codes
const (
	ErrShapeMismatch     ErrorCode = "SHAPE_MISMATCH"
	ErrDataSource        ErrorCode = "DATA_SOURCE"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrNumerical         ErrorCode = "NUMERICAL"
	ErrInternalError     ErrorCode = "INTERNAL_ERROR"
)

// I/O error codes
const (
	ErrCheckpointIO       ErrorCode = "CHECKPOINT_IO"
	ErrCheckpointNotFound ErrorCode = "CHECKPOINT_NOT_FOUND"
	ErrHistoryIO          ErrorCode = "HISTORY_IO"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithComponent records which component raised the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewConfigError 构造配置错误（构造期致命错误）
func NewConfigError(format string, args ...any) *Error {
	return NewError(ErrConfigInvalid, fmt.Sprintf(format, args...))
}

// NewShapeError 构造张量形状错误
func NewShapeError(format string, args ...any) *Error {
	return NewError(ErrShapeMismatch, fmt.Sprintf(format, args...))
}

// NewCheckpointError 构造检查点读写错误
func NewCheckpointError(message string, cause error) *Error {
	return NewError(ErrCheckpointIO, message).WithCause(cause)
}

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsConfigError reports whether err is a construction-time configuration error.
func IsConfigError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrConfigInvalid || code == ErrMissingField
}
