// Package errors is the error vocabulary of the HTTP surface. Domain errors
// classify themselves with a kind; FromError turns any error into the AppError
// sent to clients.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes sent to clients
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeInvalidState       = "INVALID_STATE"
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodeDependencyFailure  = "DEPENDENCY_FAILURE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// DependencyRetryAfter is how long clients are asked to wait after a
// collaborator failure
const DependencyRetryAfter = 30 * time.Second

type codeInfo struct {
	status     int
	retryAfter time.Duration
}

var catalog = map[string]codeInfo{
	CodeValidationError:    {status: http.StatusBadRequest},
	CodeBadRequest:         {status: http.StatusBadRequest},
	CodeNotFound:           {status: http.StatusNotFound},
	CodeConflict:           {status: http.StatusConflict},
	CodeInvalidTransition:  {status: http.StatusConflict},
	CodeInvalidState:       {status: http.StatusConflict},
	CodePreconditionFailed: {status: http.StatusPreconditionFailed},
	CodeDependencyFailure:  {status: http.StatusServiceUnavailable, retryAfter: DependencyRetryAfter},
	CodeInternalError:      {status: http.StatusInternalServerError},
}

// AppError is an error ready to be rendered as an API reply
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	// RetryAfter, when set, is advertised in the Retry-After header
	RetryAfter time.Duration `json:"-"`
	Err        error         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Wrap records the underlying cause
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewAppError creates an AppError with an explicit status, for codes outside
// the catalog
func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func newCataloged(code, message string) *AppError {
	info, ok := catalog[code]
	if !ok {
		info = catalog[CodeInternalError]
	}
	return &AppError{Code: code, Message: message, HTTPStatus: info.status, RetryAfter: info.retryAfter}
}

func ErrValidation(message string) *AppError { return newCataloged(CodeValidationError, message) }

// ErrValidationWithFields carries one message per offending field
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	err := ErrValidation(message)
	err.Details = fields
	return err
}

func ErrBadRequest(message string) *AppError { return newCataloged(CodeBadRequest, message) }

// ErrNotFound reports a missing resource by type
func ErrNotFound(resource string) *AppError {
	return newCataloged(CodeNotFound, resource+" not found")
}

// ErrNotFoundWithID reports a missing resource and its id
func ErrNotFoundWithID(resource, id string) *AppError {
	err := ErrNotFound(resource)
	err.Details = map[string]string{"id": id}
	return err
}

func ErrConflict(message string) *AppError { return newCataloged(CodeConflict, message) }

func ErrInvalidTransition(message string) *AppError {
	return newCataloged(CodeInvalidTransition, message)
}

func ErrInvalidState(message string) *AppError { return newCataloged(CodeInvalidState, message) }

// ErrPreconditionFailed reports a stale If-Match header
func ErrPreconditionFailed(message string) *AppError {
	return newCataloged(CodePreconditionFailed, message)
}

// ErrDependencyFailure reports a collaborator outage; clients may retry
func ErrDependencyFailure(message string) *AppError {
	return newCataloged(CodeDependencyFailure, message)
}

// ErrInternal hides the cause behind a generic message unless one is given
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return newCataloged(CodeInternalError, message)
}

// Kinds reported by errors implementing KindedError
const (
	KindValidation        = "validation"
	KindInvalidTransition = "invalid_transition"
	KindState             = "state"
	KindConflict          = "conflict"
	KindNotFound          = "not_found"
	KindDependency        = "dependency"
)

var kindCodes = map[string]string{
	KindValidation:        CodeValidationError,
	KindInvalidTransition: CodeInvalidTransition,
	KindState:             CodeInvalidState,
	KindConflict:          CodeConflict,
	KindNotFound:          CodeNotFound,
	KindDependency:        CodeDependencyFailure,
}

// KindedError is implemented by domain errors that classify themselves
type KindedError interface {
	error
	ErrorKind() string
}

// FieldedError is implemented by errors carrying per-field messages
type FieldedError interface {
	FieldErrors() map[string]string
}

// FromError converts err for the API. An AppError anywhere in the chain wins,
// then a KindedError; anything else becomes INTERNAL_ERROR.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var kinded KindedError
	if errors.As(err, &kinded) {
		if code, ok := kindCodes[kinded.ErrorKind()]; ok {
			appErr = newCataloged(code, kinded.Error()).Wrap(err)
			var fielded FieldedError
			if errors.As(err, &fielded) && len(fielded.FieldErrors()) > 0 {
				appErr.Details = fielded.FieldErrors()
			}
			return appErr
		}
	}

	return ErrInternal("").Wrap(err)
}
