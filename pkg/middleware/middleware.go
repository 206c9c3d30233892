// Package middleware holds the gin middleware chain, request binding and
// error rendering shared by every HTTP handler of the service.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meal-program/production-service/pkg/errors"
)

// probePaths are left out of access logs and traces
var probePaths = []string{"/health", "/ready", "/metrics"}

// readinessTimeout bounds a single readiness probe
const readinessTimeout = 2 * time.Second

// Config holds middleware configuration
type Config struct {
	Logger      *slog.Logger
	ServiceName string
	EnableCORS  bool
}

// DefaultConfig enables CORS for browser clients of the kitchen dashboard
func DefaultConfig(serviceName string, logger *slog.Logger) *Config {
	return &Config{
		Logger:      logger,
		ServiceName: serviceName,
		EnableCORS:  true,
	}
}

// Setup installs validators and the standard chain: recovery, request scope,
// access log, sanitizer, CORS and content-type enforcement
func Setup(router *gin.Engine, config *Config) {
	InitValidator()

	router.Use(
		Recovery(config.Logger),
		RequestID(),
		CorrelationID(),
		Actor(),
		AccessLog(config.Logger, probePaths...),
		InputSanitizer(),
	)
	if config.EnableCORS {
		router.Use(CORS())
	}
	router.Use(ContentType())

	router.HandleMethodNotAllowed = true
	router.NoRoute(NoRoute())
	router.NoMethod(NoMethod())
}

// CORS allows conditional writes (If-Match) and exposes the batch ETag
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, If-Match, X-Request-ID, X-Correlation-ID, X-User-ID")
		c.Header("Access-Control-Expose-Headers", "ETag, Location, Retry-After, X-Request-ID, X-Correlation-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// HealthCheck reports liveness only
func HealthCheck(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	}
}

// ReadinessCheck reports 503 while checkFn fails
func ReadinessCheck(serviceName string, checkFn func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		if err := checkFn(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"service": serviceName,
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "service": serviceName})
	}
}

// NoRoute renders unknown paths in the standard error shape
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		AbortWithAppError(c, errors.NewAppError("ROUTE_NOT_FOUND", "The requested resource was not found", http.StatusNotFound))
	}
}

// NoMethod renders unsupported methods in the standard error shape
func NoMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		AbortWithAppError(c, errors.NewAppError("METHOD_NOT_ALLOWED", "The request method is not supported for this resource", http.StatusMethodNotAllowed))
	}
}
