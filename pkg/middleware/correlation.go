package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meal-program/production-service/pkg/errors"
	"github.com/meal-program/production-service/pkg/logging"
)

// Gin context keys
const (
	ContextKeyRequestID     = "requestId"
	ContextKeyCorrelationID = "correlationId"
	ContextKeyUserID        = "userId"
)

// HTTP header names
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderUserID        = "X-User-ID"
)

// scopedID echoes header back to the caller, generating a UUID when the
// caller sent none, and stores it in both the gin and request contexts
func scopedID(header, key string, withValue func(context.Context, string) context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(header)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(key, id)
		c.Header(header, id)
		c.Request = c.Request.WithContext(withValue(c.Request.Context(), id))
		c.Next()
	}
}

// RequestID identifies a single HTTP exchange
func RequestID() gin.HandlerFunc {
	return scopedID(HeaderRequestID, ContextKeyRequestID, logging.ContextWithRequestID)
}

// CorrelationID follows a business flow across services. It ends up on
// every outbox event written while serving the request.
func CorrelationID() gin.HandlerFunc {
	return scopedID(HeaderCorrelationID, ContextKeyCorrelationID, logging.ContextWithCorrelationID)
}

// Actor copies the acting user supplied by the identity provider into the
// request context. Authentication happens upstream.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader(HeaderUserID); userID != "" {
			c.Set(ContextKeyUserID, userID)
			c.Request = c.Request.WithContext(logging.ContextWithUserID(c.Request.Context(), userID))
		}
		c.Next()
	}
}

// AccessLog writes one line per request, leveled by status code. Probe and
// scrape endpoints are skipped.
func AccessLog(logger *slog.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"latencyMs", time.Since(start).Milliseconds(),
			"clientIP", c.ClientIP(),
			"requestId", GetRequestID(c),
			"correlationId", GetCorrelationID(c),
		}
		if userID := c.GetString(ContextKeyUserID); userID != "" {
			attrs = append(attrs, "userId", userID)
		}
		if q := c.Request.URL.RawQuery; q != "" {
			attrs = append(attrs, "query", q)
		}
		logger.Log(c.Request.Context(), level, "HTTP request", attrs...)
	}
}

// Recovery turns panics into a 500 response
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("Panic recovered",
					"panic", recovered,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"requestId", GetRequestID(c),
				)
				AbortWithAppError(c, errors.ErrInternal("An unexpected error occurred"))
			}
		}()
		c.Next()
	}
}

// GetRequestID extracts request ID from context
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}
