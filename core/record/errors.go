package record

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// NotFoundError reports the resource and key of a failed lookup.
type NotFoundError struct {
	Resource string
	Key      any
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.Key)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Base is the pseudo field for errors that concern the whole record.
const Base = "base"

// FieldError is one validation failure.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

// Full returns the message prefixed with the humanized field name.
func (e FieldError) Full() string {
	if e.Field == Base || e.Field == "" {
		return e.Message
	}
	return strings.ReplaceAll(e.Field, "_", " ") + " " + e.Message
}

// Errors collects validation failures in the order they were added.
type Errors struct {
	items []FieldError
}

// Add attaches a failure to field.
func (e *Errors) Add(field, code, message string) {
	e.items = append(e.items, FieldError{Field: field, Code: code, Message: message})
}

// On returns the messages attached to field.
func (e *Errors) On(field string) []string {
	var msgs []string
	for _, item := range e.items {
		if item.Field == field {
			msgs = append(msgs, item.Message)
		}
	}
	return msgs
}

// Has reports whether field has a failure with the given code.
func (e *Errors) Has(field, code string) bool {
	for _, item := range e.items {
		if item.Field == field && item.Code == code {
			return true
		}
	}
	return false
}

// All returns every failure.
func (e *Errors) All() []FieldError {
	return append([]FieldError(nil), e.items...)
}

// Full returns every failure as a sentence.
func (e *Errors) Full() []string {
	out := make([]string, len(e.items))
	for i, item := range e.items {
		out[i] = item.Full()
	}
	return out
}

func (e *Errors) Len() int    { return len(e.items) }
func (e *Errors) Empty() bool { return len(e.items) == 0 }
func (e *Errors) Clear()      { e.items = nil }

// Error joins the full messages.
func (e *Errors) Error() string {
	return strings.Join(e.Full(), "; ")
}
