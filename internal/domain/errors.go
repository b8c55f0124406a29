package domain

import (
	"errors"
	"strings"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound      = errors.New("domain: not found")
	ErrUnauthorized  = errors.New("domain: unauthorized")
	ErrForbidden     = errors.New("domain: forbidden")
	ErrConfiguration = errors.New("domain: invalid configuration")
	ErrPersistence   = errors.New("domain: audit entry not persisted")
	ErrInvalidEntry  = errors.New("domain: invalid audit entry")
)

// ConfigurationError reports a malformed audit policy. It is never caught by
// the capture engine and surfaces at the call site.
type ConfigurationError struct {
	Reason string
}

func NewConfigurationError(reason string) *ConfigurationError {
	return &ConfigurationError{Reason: reason}
}

func (e *ConfigurationError) Error() string {
	return "invalid audit configuration: " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// PersistenceError reports that an assembled entry could not be written.
// Messages holds the field-level validation messages, if any; Err the cause.
type PersistenceError struct {
	Messages []string
	Err      error
}

func (e *PersistenceError) Error() string {
	if len(e.Messages) > 0 {
		return "error while saving audit trail entry: " + strings.Join(e.Messages, ", ")
	}
	if e.Err != nil {
		return "error while saving audit trail entry: " + e.Err.Error()
	}
	return "error while saving audit trail entry"
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// FieldError is a single validation failure on an entry attribute.
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors collects every FieldError found on an entry.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	return strings.Join(v.Messages(), ", ")
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrInvalidEntry
}

// Messages returns the messages in the order they were found.
func (v ValidationErrors) Messages() []string {
	out := make([]string, 0, len(v))
	for _, fe := range v {
		out = append(out, fe.Message)
	}
	return out
}
