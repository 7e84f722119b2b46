/*
Package dynadoc – error types.
*/
package dynadoc

import (
	"errors"
	"fmt"
)

// ErrorCode is a well-known error category string.
type ErrorCode string

const (
	ErrArgument         ErrorCode = "ArgumentError"
	ErrValidation       ErrorCode = "ValidationError"
	ErrUnknownAttribute ErrorCode = "UnknownAttributeError"
	ErrCast             ErrorCode = "CastError"
	ErrMissing          ErrorCode = "MissingError"
	ErrNotFound         ErrorCode = "NotFoundError"
	ErrRuntime          ErrorCode = "RuntimeError"
)

// DocError is the general runtime error. It carries an optional Code and a
// free-form Context map for extra debugging data.
type DocError struct {
	Message string
	Code    ErrorCode
	Context map[string]any
	Cause   error
}

func (e *DocError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *DocError) Unwrap() error { return e.Cause }

// NewError constructs a DocError.
func NewError(msg string, opts ...func(*DocError)) *DocError {
	err := &DocError{Message: msg}
	for _, o := range opts {
		o(err)
	}
	return err
}

// WithCode sets the error code.
func WithCode(c ErrorCode) func(*DocError) {
	return func(e *DocError) { e.Code = c }
}

// WithContext attaches a context map.
func WithContext(ctx map[string]any) func(*DocError) {
	return func(e *DocError) { e.Context = ctx }
}

// WithCause wraps an underlying error.
func WithCause(cause error) func(*DocError) {
	return func(e *DocError) { e.Cause = cause }
}

// DocArgError is for invalid argument / declaration errors. These indicate
// programming mistakes, so declaration-time checks panic with one.
type DocArgError struct {
	Message string
	Code    ErrorCode
}

func (e *DocArgError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

// NewArgError constructs a DocArgError.
func NewArgError(msg string, code ...ErrorCode) *DocArgError {
	c := ErrArgument
	if len(code) > 0 {
		c = code[0]
	}
	return &DocArgError{Message: msg, Code: c}
}

// IsNotFound reports whether err carries the NotFoundError code.
func IsNotFound(err error) bool {
	var de *DocError
	if errors.As(err, &de) {
		return de.Code == ErrNotFound
	}
	return false
}

// IsValidation reports whether err carries the ValidationError code.
func IsValidation(err error) bool {
	var de *DocError
	if errors.As(err, &de) {
		return de.Code == ErrValidation
	}
	return false
}
