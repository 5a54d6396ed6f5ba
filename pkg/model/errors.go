package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure of a construction, update or solve call.
type ErrorKind string

const (
	// KindDuplicateID indicates two component records share an id.
	KindDuplicateID ErrorKind = "duplicate-id"

	// KindIDNotFound indicates a reference to a nonexistent component.
	KindIDNotFound ErrorKind = "id-not-found"

	// KindVoltageMismatch indicates a line whose endpoints have differing
	// rated voltages.
	KindVoltageMismatch ErrorKind = "voltage-mismatch"

	// KindValidation indicates a record with out-of-range attributes.
	KindValidation ErrorKind = "validation"

	// KindConvergence indicates an iterative solve that exhausted its
	// iteration cap before reaching the configured tolerance.
	KindConvergence ErrorKind = "convergence"

	// KindUnderDetermined indicates a state estimation with insufficient
	// independent measurements.
	KindUnderDetermined ErrorKind = "under-determined"

	// KindNotSupported indicates a requested calculation the data model
	// cannot express.
	KindNotSupported ErrorKind = "not-supported"
)

// Error is a classified failure with component context. Every fallible
// operation in the core returns either a value or one of these.
type Error struct {
	// Kind is the failure classification.
	Kind ErrorKind

	// Message is the human-readable description.
	Message string

	// Op names the operation that failed (construction, update, solve).
	Op string

	// Component and ComponentID identify the offending record, when known.
	Component   ComponentType
	ComponentID int

	// Err is the underlying cause, if any.
	Err error

	// Details carries additional numeric context, such as the achieved
	// deviation of a failed convergence.
	Details map[string]any

	hasID bool
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.hasID {
		msg = fmt.Sprintf("%s (%s id=%d)", msg, e.Component, e.ComponentID)
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s (op=%s)", msg, e.Op)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements kind-based equality for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithComponent attaches the offending component type and id.
func (e *Error) WithComponent(ct ComponentType, id int) *Error {
	e.Component = ct
	e.ComponentID = id
	e.hasID = true
	return e
}

// WithOp attaches the failing operation name.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithErr attaches the underlying cause.
func (e *Error) WithErr(err error) *Error {
	e.Err = err
	return e
}

// WithDetail attaches a named context value.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// KindOf returns the classification of err, or an empty kind for errors that
// did not originate in this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsIDNotFound reports whether err is an unresolved-reference failure.
func IsIDNotFound(err error) bool { return KindOf(err) == KindIDNotFound }

// IsConstruction reports whether err is fatal to model construction.
func IsConstruction(err error) bool {
	switch KindOf(err) {
	case KindDuplicateID, KindIDNotFound, KindVoltageMismatch, KindValidation:
		return true
	}
	return false
}

// IsConvergence reports whether err is an iteration-cap failure.
func IsConvergence(err error) bool { return KindOf(err) == KindConvergence }

// IsUnderDetermined reports whether err is an observability failure.
func IsUnderDetermined(err error) bool { return KindOf(err) == KindUnderDetermined }
