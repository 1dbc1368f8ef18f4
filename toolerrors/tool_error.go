// Package toolerrors provides structured error types for tool executor
// failures. ToolError preserves error chains and supports errors.Is/As
// while remaining serializable onto an Action Node's observation field.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError represents a structured tool failure that preserves a message
// and causal context while still implementing the standard error
// interface. Tool errors may be nested via Cause to retain diagnostics
// across retries.
type ToolError struct {
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying tool error, enabling error chains with
	// errors.Is/As.
	Cause *ToolError
	// timeout marks this error (or a cause in its chain) as a per-tool
	// invocation timeout rather than an ordinary executor failure.
	timeout bool
}

// New constructs a ToolError with the provided message. Use when the
// failure does not wrap an underlying error but still requires structured
// reporting on an Action Node.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// NewWithCause constructs a ToolError that wraps an underlying error. The
// cause is converted into a ToolError chain so it survives serialization
// while still supporting errors.Is/As through Unwrap.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{
		Message: message,
		Cause:   FromError(cause),
	}
}

// FromError converts an arbitrary error into a ToolError chain.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Errorf formats according to a format specifier and returns the result as
// a ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying tool error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Timeout constructs a ToolError carrying the elapsed duration of a
// timed-out invocation, surfaced as the Action Node's Timeout observation.
// Timeout errors are counted as executor failures but with a distinct kind
// (spec §7, error (5)); IsTimeout recovers that kind from the chain.
func Timeout(elapsedMS int64) *ToolError {
	return &ToolError{Message: fmt.Sprintf("tool invocation timed out after %dms", elapsedMS), timeout: true}
}

// IsTimeout reports whether this error (or any error in its chain) denotes
// a per-tool invocation timeout.
func IsTimeout(err error) bool {
	var te *ToolError
	if !errors.As(err, &te) {
		return false
	}
	for e := te; e != nil; e = e.Cause {
		if e.timeout {
			return true
		}
	}
	return false
}
