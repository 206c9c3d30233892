package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meal-program/production-service/pkg/errors"
)

// APIErrorResponse is the body of every error reply
type APIErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Timestamp string            `json:"timestamp"`
	Path      string            `json:"path"`
}

func newAPIErrorResponse(c *gin.Context, appErr *errors.AppError) APIErrorResponse {
	return APIErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: GetRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
	}
}

// ErrorResponder writes error replies for one request
type ErrorResponder struct {
	ctx    *gin.Context
	logger *slog.Logger
}

// NewErrorResponder creates a new ErrorResponder
func NewErrorResponder(ctx *gin.Context, logger *slog.Logger) *ErrorResponder {
	return &ErrorResponder{ctx: ctx, logger: logger}
}

// RespondWithError classifies err and sends the matching reply
func (r *ErrorResponder) RespondWithError(err error) {
	r.RespondWithAppError(errors.FromError(err))
}

// RespondWithAppError logs appErr and sends it
func (r *ErrorResponder) RespondWithAppError(appErr *errors.AppError) {
	r.log(appErr)
	if appErr.RetryAfter > 0 {
		r.ctx.Header("Retry-After", strconv.Itoa(int(appErr.RetryAfter.Seconds())))
	}
	r.ctx.JSON(appErr.HTTPStatus, newAPIErrorResponse(r.ctx, appErr))
}

// log writes client errors at warn and server errors at error
func (r *ErrorResponder) log(appErr *errors.AppError) {
	level := slog.LevelWarn
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	attrs := []any{
		"code", appErr.Code,
		"status", appErr.HTTPStatus,
		"method", r.ctx.Request.Method,
		"route", r.ctx.FullPath(),
		"requestId", GetRequestID(r.ctx),
	}
	if batchID := r.ctx.Param("id"); batchID != "" {
		attrs = append(attrs, "batchId", batchID)
	}
	if appErr.Err != nil {
		attrs = append(attrs, "error", appErr.Err.Error())
	}
	if len(appErr.Details) > 0 {
		attrs = append(attrs, "details", appErr.Details)
	}

	r.logger.Log(r.ctx.Request.Context(), level, appErr.Message, attrs...)
}

// AbortWithAppError aborts the request with an AppError
func AbortWithAppError(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, newAPIErrorResponse(c, appErr))
}
