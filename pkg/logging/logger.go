// Package logging is the structured JSON logger shared by the API and the
// worker. Every entry carries the service identity plus whatever request
// scope (request, correlation and acting user ids) the context holds.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is the textual level accepted in LOG_LEVEL
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// slogLevel maps the level, falling back to info for anything unknown
func (l LogLevel) slogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(string(l)))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Config holds logger configuration
type Config struct {
	Level       LogLevel
	ServiceName string
	Environment string
	Version     string
	Output      io.Writer
}

// DefaultConfig reads LOG_LEVEL, ENVIRONMENT and VERSION
func DefaultConfig(serviceName string) *Config {
	return &Config{
		Level:       LogLevel(getEnv("LOG_LEVEL", string(LevelInfo))),
		ServiceName: serviceName,
		Environment: getEnv("ENVIRONMENT", "development"),
		Version:     getEnv("VERSION", "unknown"),
		Output:      os.Stdout,
	}
}

// Logger wraps slog.Logger with service metadata
type Logger struct {
	*slog.Logger
}

// New creates a JSON logger. Timestamps are written in UTC.
func New(config *Config) *Logger {
	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: config.Level.slogLevel(),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	})

	return &Logger{Logger: slog.New(handler).With(
		"service", config.ServiceName,
		"environment", config.Environment,
		"version", config.Version,
	)}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithContext adds the request scope held by ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := scopeAttrs(ctx)
	if len(attrs) == 0 {
		return l
	}
	return l.with(attrs...)
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// WithComponent names the subsystem writing the entry
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithBatch scopes the logger to a production batch
func (l *Logger) WithBatch(batchID, batchNumber string) *Logger {
	if batchNumber == "" {
		return l.with("batchId", batchID)
	}
	return l.with("batchId", batchID, "batchNumber", batchNumber)
}

// Audit records who changed what. Details are flattened into the entry.
func (l *Logger) Audit(ctx context.Context, action, resource, resourceID, userID string, details map[string]any) {
	attrs := make([]any, 0, 8+2*len(details))
	attrs = append(attrs,
		"auditAction", action,
		"resource", resource,
		"resourceId", resourceID,
		"userId", userID,
	)
	for k, v := range details {
		attrs = append(attrs, k, v)
	}
	l.WithContext(ctx).Info("Audit event", attrs...)
}

// DatabaseQuery logs a storage operation at debug, or at error when it failed
func (l *Logger) DatabaseQuery(ctx context.Context, collection, operation string, duration time.Duration, success bool, rowsAffected int64) {
	l.outcome(ctx, "Database query", success,
		"collection", collection,
		"operation", operation,
		"durationMs", duration.Milliseconds(),
		"rowsAffected", rowsAffected,
	)
}

// KafkaPublish logs an event publish at debug, or at error when it failed
func (l *Logger) KafkaPublish(ctx context.Context, topic, eventType string, success bool, duration time.Duration) {
	l.outcome(ctx, "Kafka publish", success,
		"topic", topic,
		"eventType", eventType,
		"durationMs", duration.Milliseconds(),
	)
}

func (l *Logger) outcome(ctx context.Context, msg string, success bool, attrs ...any) {
	level := slog.LevelDebug
	if !success {
		level = slog.LevelError
	}
	l.WithContext(ctx).Log(ctx, level, msg, append(attrs, "success", success)...)
}

// SetDefault sets this logger as the default slog logger
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

type scopeKey int

const (
	requestIDKey scopeKey = iota
	correlationIDKey
	userIDKey
)

var scopeFields = []struct {
	key  scopeKey
	name string
}{
	{requestIDKey, "requestId"},
	{correlationIDKey, "correlationId"},
	{userIDKey, "userId"},
}

func scopeAttrs(ctx context.Context) []any {
	var attrs []any
	for _, f := range scopeFields {
		if v, ok := ctx.Value(f.key).(string); ok && v != "" {
			attrs = append(attrs, f.name, v)
		}
	}
	return attrs
}

func scopeValue(ctx context.Context, key scopeKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithRequestID adds request ID to context
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ContextWithCorrelationID adds correlation ID to context
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// ContextWithUserID adds the acting user ID to context
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the acting user ID, or "" when none was set
func UserIDFromContext(ctx context.Context) string {
	return scopeValue(ctx, userIDKey)
}

// CorrelationIDFromContext returns the correlation ID, or "" when none was set
func CorrelationIDFromContext(ctx context.Context) string {
	return scopeValue(ctx, correlationIDKey)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
