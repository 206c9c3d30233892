package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures. The string values are the kinds
// understood by pkg/errors.FromError.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindState             ErrorKind = "state"
	KindConflict          ErrorKind = "conflict"
	KindNotFound          ErrorKind = "not_found"
	KindDependency        ErrorKind = "dependency"
)

// TypeName is the error type name used when the failure crosses a workflow
// boundary
func (k ErrorKind) TypeName() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindInvalidTransition:
		return "InvalidTransitionError"
	case KindState:
		return "StateError"
	case KindConflict:
		return "ConflictError"
	case KindNotFound:
		return "NotFoundError"
	case KindDependency:
		return "DependencyError"
	default:
		return "DomainError"
	}
}

// DomainError is the single error type returned by the batch lifecycle engine
type DomainError struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// ErrorKind implements pkg/errors.KindedError
func (e *DomainError) ErrorKind() string { return string(e.Kind) }

// FieldErrors implements pkg/errors.FieldedError
func (e *DomainError) FieldErrors() map[string]string { return e.Fields }

// NewValidationError reports malformed or out-of-range input
func NewValidationError(message string) *DomainError {
	return &DomainError{Kind: KindValidation, Message: message}
}

// NewFieldValidationError reports a single invalid field
func NewFieldValidationError(field, problem string) *DomainError {
	return &DomainError{
		Kind:    KindValidation,
		Message: fmt.Sprintf("%s %s", field, problem),
		Fields:  map[string]string{field: problem},
	}
}

// NewInvalidTransitionError reports a status edge outside the transition table
func NewInvalidTransitionError(from, to BatchStatus) *DomainError {
	return &DomainError{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot transition batch from %s to %s", from, to),
	}
}

// NewStateError reports an operation not permitted in the current status
func NewStateError(message string) *DomainError {
	return &DomainError{Kind: KindState, Message: message}
}

// NewConflictError reports a lost concurrent-modification race or a duplicate
func NewConflictError(message string) *DomainError {
	return &DomainError{Kind: KindConflict, Message: message}
}

// NewNotFoundError reports an unknown reference
func NewNotFoundError(resource, id string) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", resource, id)}
}

// NewDependencyError reports a failing or unreachable collaborator
func NewDependencyError(message string, err error) *DomainError {
	return &DomainError{Kind: KindDependency, Message: message, Err: err}
}

// KindOf returns the kind of the first DomainError in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

func isKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func IsValidation(err error) bool        { return isKind(err, KindValidation) }
func IsInvalidTransition(err error) bool { return isKind(err, KindInvalidTransition) }
func IsState(err error) bool             { return isKind(err, KindState) }
func IsConflict(err error) bool          { return isKind(err, KindConflict) }
func IsNotFound(err error) bool          { return isKind(err, KindNotFound) }
func IsDependency(err error) bool        { return isKind(err, KindDependency) }
