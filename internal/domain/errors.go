package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error taxonomy. Callers wrap these with %w and test with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
)

// ValidationError carries per-field messages for a rejected input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(kv ...string) *ValidationError {
	v := &ValidationError{Fields: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Fields[kv[i]] = kv[i+1]
	}
	return v
}

// Add records a message for field.
func (v *ValidationError) Add(field, msg string) {
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	v.Fields[field] = msg
}

// Empty reports whether no field failed.
func (v *ValidationError) Empty() bool {
	return v == nil || len(v.Fields) == 0
}

// OrNil returns v as an error, or nil when nothing was recorded.
func (v *ValidationError) OrNil() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError is a state error with a machine-readable reason.
type ConflictError struct {
	Reason  string
	Message string
}

// Conflict reasons
const (
	ReasonInvalidTransition = "invalid_transition"
	ReasonAlreadyFinalized  = "already_finalized"
	ReasonAbandoned         = "session_abandoned"
	ReasonAlreadyUndone     = "already_undone"
	ReasonTerminalSession   = "session_terminal"
	ReasonNotRecording      = "session_not_recording"
	ReasonConfirmRequired   = "confirm_required"
	ReasonAlreadyVoid       = "already_void"
	ReasonConcurrentUpdate  = "concurrent_update"
)

// NewConflict builds a ConflictError.
func NewConflict(reason, format string, args ...any) *ConflictError {
	return &ConflictError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func (c *ConflictError) Error() string { return c.Message }

func (c *ConflictError) Unwrap() error { return ErrConflict }
