// Package errors provides the error taxonomy shared by the risk services.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// FieldError represents a validation error for a specific field
type FieldError struct {
	Kind    string `json:"kind"`
	Field   string `json:"field"`
	Message string `json:"message,omitempty"`
}

func (f *FieldError) Error() string {
	return fmt.Sprintf("%s (%s): %s", f.Field, f.Kind, f.Message)
}

func NewFieldError(kind, field, reason string) FieldError {
	return FieldError{Kind: kind, Field: field, Message: reason}
}

// StatusCode represents an HTTP status code error
type StatusCode int

// Error implements error
func (status StatusCode) Error() string {
	return http.StatusText(int(status))
}

func Status(code int) *Error {
	return Wrap(StatusCode(code)).Reason(http.StatusText(code))
}

var (
	Invalid      *Error = Status(http.StatusBadRequest)
	Unauthorized *Error = Status(http.StatusUnauthorized)
	Forbidden    *Error = Status(http.StatusForbidden)
	NotFound     *Error = Status(http.StatusNotFound)
	Conflict     *Error = Status(http.StatusConflict)
	Unavailable  *Error = Status(http.StatusServiceUnavailable)
)

// Error is a custom error type for passing more information
type Error struct {
	// Kind is the returned error type
	Kind string `json:"kind"`
	// Message is the human readable string that indicate the error
	Message string `json:"message"`
	// Fields used when there's validation error for a field.
	Fields []FieldError `json:"fields,omitempty"`

	cause error
}

var _ error = (*Error)(nil)

func New(message string) *Error {
	return &Error{Kind: "Unknown", Message: message}
}

func Wrap(err error) *Error {
	return &Error{cause: err}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] ", e.Kind)
	if e.Message != "" {
		str += e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	return str
}

// Reason returns a copy of the error with kind set to given value
func (e *Error) Reason(kind string) *Error {
	err := *e
	err.Kind = kind
	return &err
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Wrap sets the error cause
func (e *Error) Wrap(cause error) *Error {
	err := *e
	err.cause = cause
	return &err
}

// Explain makes a copy of the error with given message
func (e *Error) Explain(message string, args ...any) *Error {
	err := *e
	err.Message = fmt.Sprintf(message, args...)
	return &err
}

func (e *Error) WithFields(fields []FieldError) *Error {
	err := *e
	err.Fields = fields
	return &err
}

// WithField returns a copy of error with the field error appended.
func (e *Error) WithField(kind, field, message string) *Error {
	err := *e
	err.Fields = append(err.Fields, NewFieldError(kind, field, message))
	return &err
}

// Is implements the needed interface for errors.Is
// It checks kind for equality
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	if e.cause != nil {
		return Is(e.cause, target)
	}
	return false
}

// HTTPStatus maps the error kind back to an HTTP status code.
func (e *Error) HTTPStatus() int {
	var status StatusCode
	if As(e, &status) {
		return int(status)
	}
	switch e.Kind {
	case http.StatusText(http.StatusBadRequest):
		return http.StatusBadRequest
	case http.StatusText(http.StatusUnauthorized):
		return http.StatusUnauthorized
	case http.StatusText(http.StatusForbidden):
		return http.StatusForbidden
	case http.StatusText(http.StatusNotFound):
		return http.StatusNotFound
	case http.StatusText(http.StatusConflict):
		return http.StatusConflict
	case http.StatusText(http.StatusServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MarshalJSON serializes the error without its internal cause chain.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"kind":    e.Kind,
		"message": e.Message,
	}
	if len(e.Fields) > 0 {
		out["fields"] = e.Fields
	}
	return json.Marshal(out)
}
