// Package errors provides a lightweight structured error type (OnDemandError)
// for category-based classification across the coordinator, liveness tracker
// and HTTP surfaces.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of an ondemand error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Page resolution and build errors
	CategoryResolution ErrorCategory = "resolution"
	CategoryBuild      ErrorCategory = "build"

	// Control-channel protocol errors
	CategoryProtocol ErrorCategory = "protocol"

	// Runtime and infrastructure errors
	CategoryServer   ErrorCategory = "server"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// OnDemandError is a structured error with category, retryability, and context
type OnDemandError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for OnDemandError
type ContextFields map[string]any

// Error implements the error interface
func (e *OnDemandError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *OnDemandError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *OnDemandError) WithContext(key string, value any) *OnDemandError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new OnDemandError
func New(category ErrorCategory, severity ErrorSeverity, message string) *OnDemandError {
	return &OnDemandError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new OnDemandError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *OnDemandError {
	return &OnDemandError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if ode, ok := err.(*OnDemandError); ok {
		return ode.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if ode, ok := err.(*OnDemandError); ok {
		return ode.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not an OnDemandError
func GetCategory(err error) ErrorCategory {
	if ode, ok := err.(*OnDemandError); ok {
		return ode.Category
	}
	return CategoryInternal
}
