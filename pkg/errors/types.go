// Package errors provides structured error handling for the conduit SDK.
// It defines typed errors carrying a stable code, category, and severity so
// that callers and the reconnection engine can classify failures
// programmatically instead of matching on error strings.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Category classifies an error for handling decisions
type Category string

const (
	CategoryTransport Category = "transport"
	CategoryProtocol  Category = "protocol"
	CategoryConfig    Category = "config"
	CategoryInternal  Category = "internal"
	CategoryTimeout   Category = "timeout"
	CategoryCancelled Category = "cancelled"
)

// Severity indicates how critical an error is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Context records where and when an error occurred
type Context struct {
	ClientID  string    `json:"client_id,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Sequence  int64     `json:"sequence,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`
}

// ConduitError is the interface implemented by all SDK errors
type ConduitError interface {
	error

	// Code returns the stable numeric error code
	Code() int

	// Message returns a human-readable error message
	Message() string

	// Details returns detailed technical description for debugging
	Details() string

	// Category returns the error category for classification
	Category() Category

	// Severity returns the error severity level
	Severity() Severity

	// Context returns the error context information
	Context() *Context

	// WithContext returns a copy of the error with the provided context
	WithContext(ctx *Context) ConduitError

	// WithDetail returns a copy of the error with additional detail
	WithDetail(detail string) ConduitError

	// Unwrap returns the underlying error for error chain traversal
	Unwrap() error

	// ToJSON returns the error as a JSON-serializable map
	ToJSON() map[string]interface{}
}

type baseError struct {
	code     int
	message  string
	details  string
	category Category
	severity Severity
	context  *Context
	cause    error
}

func (e *baseError) Error() string {
	if e.details != "" {
		return fmt.Sprintf("%s: %s", e.message, e.details)
	}
	return e.message
}

func (e *baseError) Code() int          { return e.code }
func (e *baseError) Message() string    { return e.message }
func (e *baseError) Details() string    { return e.details }
func (e *baseError) Category() Category { return e.category }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) Context() *Context  { return e.context }
func (e *baseError) Unwrap() error      { return e.cause }

func (e *baseError) WithContext(ctx *Context) ConduitError {
	newErr := *e
	newErr.context = ctx
	return &newErr
}

func (e *baseError) WithDetail(detail string) ConduitError {
	newErr := *e
	if newErr.details != "" {
		newErr.details = fmt.Sprintf("%s; %s", newErr.details, detail)
	} else {
		newErr.details = detail
	}
	return &newErr
}

func (e *baseError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":     e.code,
		"message":  e.message,
		"category": string(e.category),
		"severity": string(e.severity),
	}

	if e.details != "" {
		result["details"] = e.details
	}
	if e.context != nil {
		result["context"] = e.context
	}
	if e.cause != nil {
		result["cause"] = e.cause.Error()
	}

	return result
}

// MarshalJSON implements json.Marshaler for baseError
func (e *baseError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToJSON())
}

// NewError creates a new ConduitError with the specified parameters
func NewError(code int, message string, category Category, severity Severity) ConduitError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		context: &Context{
			Timestamp: time.Now(),
		},
	}
}

// NewErrorf creates a new ConduitError with a formatted message
func NewErrorf(code int, category Category, severity Severity, format string, args ...interface{}) ConduitError {
	return &baseError{
		code:     code,
		message:  fmt.Sprintf(format, args...),
		category: category,
		severity: severity,
		context: &Context{
			Timestamp: time.Now(),
		},
	}
}

// WrapError wraps an existing error as a ConduitError
func WrapError(err error, code int, message string, category Category, severity Severity) ConduitError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		cause:    err,
		context: &Context{
			Timestamp: time.Now(),
		},
	}
}

// AsConduitError extracts a ConduitError from anywhere in an error chain.
func AsConduitError(err error) (ConduitError, bool) {
	if err == nil {
		return nil, false
	}
	var cerr ConduitError
	if errors.As(err, &cerr) {
		return cerr, true
	}
	return nil, false
}

// IsCategory checks if an error is of a specific category
func IsCategory(err error, category Category) bool {
	if cerr, ok := AsConduitError(err); ok {
		return cerr.Category() == category
	}
	return false
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code int) bool {
	if cerr, ok := AsConduitError(err); ok {
		return cerr.Code() == code
	}
	return false
}
