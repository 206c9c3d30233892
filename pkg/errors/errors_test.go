package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_StatusAndCode(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"validation", ErrValidation("bad"), CodeValidationError, http.StatusBadRequest},
		{"not found", ErrNotFound("batch"), CodeNotFound, http.StatusNotFound},
		{"conflict", ErrConflict("stale"), CodeConflict, http.StatusConflict},
		{"transition", ErrInvalidTransition("nope"), CodeInvalidTransition, http.StatusConflict},
		{"state", ErrInvalidState("nope"), CodeInvalidState, http.StatusConflict},
		{"dependency", ErrDependencyFailure("down"), CodeDependencyFailure, http.StatusServiceUnavailable},
		{"precondition", ErrPreconditionFailed("etag"), CodePreconditionFailed, http.StatusPreconditionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

func TestNotFoundWithID(t *testing.T) {
	err := ErrNotFoundWithID("batch", "b-1")
	assert.Equal(t, "batch not found", err.Message)
	assert.Equal(t, "b-1", err.Details["id"])
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	wrapped := fmt.Errorf("outer: %w", ErrConflict("version mismatch"))
	appErr := FromError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, CodeConflict, appErr.Code)

	plain := errors.New("boom")
	appErr = FromError(plain)
	assert.Equal(t, CodeInternalError, appErr.Code)
	assert.ErrorIs(t, appErr, plain)
}

type kindError struct {
	kind   string
	fields map[string]string
}

func (e *kindError) Error() string                  { return "batch b-1: " + e.kind }
func (e *kindError) ErrorKind() string              { return e.kind }
func (e *kindError) FieldErrors() map[string]string { return e.fields }

func TestFromError_MapsKinds(t *testing.T) {
	tests := []struct {
		kind   string
		code   string
		status int
	}{
		{KindValidation, CodeValidationError, http.StatusBadRequest},
		{KindInvalidTransition, CodeInvalidTransition, http.StatusConflict},
		{KindState, CodeInvalidState, http.StatusConflict},
		{KindConflict, CodeConflict, http.StatusConflict},
		{KindNotFound, CodeNotFound, http.StatusNotFound},
		{KindDependency, CodeDependencyFailure, http.StatusServiceUnavailable},
		{"something-else", CodeInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			appErr := FromError(fmt.Errorf("wrapped: %w", &kindError{kind: tt.kind}))
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.HTTPStatus)
		})
	}
}

func TestFromError_CopiesFieldErrors(t *testing.T) {
	appErr := FromError(&kindError{kind: KindValidation, fields: map[string]string{"reason": "too short"}})
	assert.Equal(t, "batch b-1: validation", appErr.Message)
	assert.Equal(t, "too short", appErr.Details["reason"])
}

func TestRetryAfterOnlyForDependencyFailures(t *testing.T) {
	assert.Equal(t, DependencyRetryAfter, ErrDependencyFailure("inventory down").RetryAfter)
	assert.Equal(t, DependencyRetryAfter, FromError(&kindError{kind: KindDependency}).RetryAfter)
	assert.Zero(t, ErrConflict("stale").RetryAfter)
	assert.Zero(t, NewAppError("TEAPOT", "short and stout", http.StatusTeapot).RetryAfter)
}
