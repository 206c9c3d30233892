// Package tracing configures OpenTelemetry export over OTLP/gRPC and carries
// trace context across HTTP calls, MongoDB operations and outbox events.
package tracing

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceNamespace = "meal-program"

// Config holds tracing configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SampleRate     float64
	Enabled        bool
}

// DefaultConfig samples everything and exports to a local collector
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		Enabled:        true,
	}
}

// ConfigFromEnv applies OTEL_EXPORTER_OTLP_ENDPOINT, ENVIRONMENT, VERSION,
// TRACING_ENABLED and TRACING_SAMPLE_RATE on top of DefaultConfig
func ConfigFromEnv(serviceName string, lookup func(string) string) *Config {
	if lookup == nil {
		lookup = os.Getenv
	}
	cfg := DefaultConfig(serviceName)
	if v := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := lookup("ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := lookup("VERSION"); v != "" {
		cfg.ServiceVersion = v
	}
	if v := lookup("TRACING_ENABLED"); v != "" {
		cfg.Enabled = v == "true"
	}
	if v, err := strconv.ParseFloat(lookup("TRACING_SAMPLE_RATE"), 64); err == nil {
		cfg.SampleRate = v
	}
	return cfg
}

// TracerProvider owns the SDK provider so it can be flushed on shutdown
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// Initialize installs the global tracer provider and W3C propagators.
// A disabled config leaves the global no-op provider in place.
func Initialize(ctx context.Context, config *Config) (*TracerProvider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !config.Enabled {
		return &TracerProvider{}, nil
	}

	conn, err := grpc.NewClient(config.OTLPEndpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithGRPCConn(conn)))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(config.ServiceName),
		semconv.ServiceVersionKey.String(config.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(config.Environment),
		semconv.ServiceNamespaceKey.String(serviceNamespace),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(config.SampleRate))),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes pending spans
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// DatabaseSpanAttributes describes a MongoDB call
func DatabaseSpanAttributes(dbName, operation, collection string) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.DBSystemMongoDB,
		semconv.DBNameKey.String(dbName),
		semconv.DBOperationKey.String(operation),
		semconv.DBMongoDBCollectionKey.String(collection),
	}
}

// TracedOperation runs operation inside a span and records its outcome
func TracedOperation[T any](ctx context.Context, tracer trace.Tracer, spanName string, operation func(context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
	defer span.End()

	result, err := operation(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// InjectHTTPHeaders propagates the current trace context onto an outgoing request
func InjectHTTPHeaders(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

// MapCarrier carries trace context inside event envelopes
type MapCarrier map[string]string

// Get returns the value for the key
func (c MapCarrier) Get(key string) string { return c[key] }

// Set sets the value for the key
func (c MapCarrier) Set(key, value string) { c[key] = value }

// Keys returns all keys in the carrier
func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectTraceContext writes traceparent/tracestate for ctx into carrier
func InjectTraceContext(ctx context.Context, carrier MapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// LinkFromCarrier returns a link to the W3C trace context recorded in carrier,
// or false when it holds none
func LinkFromCarrier(carrier MapCarrier) (trace.Link, bool) {
	ctx := propagation.TraceContext{}.Extract(context.Background(), carrier)
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return trace.Link{}, false
	}
	return trace.Link{SpanContext: sc}, true
}
