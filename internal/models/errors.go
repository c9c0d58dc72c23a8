package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is wrapped by every lookup that finds no row.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks missing, invalid or revoked credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict marks a request that collides with one still in flight.
	ErrConflict = errors.New("conflict")
)

// NonFieldErrors is the field name used for errors not tied to one input.
const NonFieldErrors = "non_field_errors"

// ValidationError is a business-rule or input violation reported to the caller.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	if field == "" {
		field = NonFieldErrors
	}
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects violations across several fields.
type ValidationErrors []*ValidationError

// Add appends a violation.
func (v *ValidationErrors) Add(field, format string, args ...interface{}) {
	*v = append(*v, NewValidationError(field, format, args...))
}

// Err returns nil when nothing was collected.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// Fields groups messages by field name.
func (v ValidationErrors) Fields() map[string][]string {
	out := make(map[string][]string, len(v))
	for _, e := range v {
		out[e.Field] = append(out[e.Field], e.Message)
	}
	return out
}

// ValidationDetails flattens err into field → messages when it is a
// validation failure.
func ValidationDetails(err error) (map[string][]string, bool) {
	var many ValidationErrors
	if errors.As(err, &many) {
		return many.Fields(), true
	}
	var one *ValidationError
	if errors.As(err, &one) {
		return map[string][]string{one.Field: {one.Message}}, true
	}
	return nil, false
}
