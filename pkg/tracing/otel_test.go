package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestInitialize_Disabled(t *testing.T) {
	cfg := DefaultConfig("production-service")
	cfg.Enabled = false

	tp, err := Initialize(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4317",
		"TRACING_ENABLED":             "false",
		"TRACING_SAMPLE_RATE":         "0.25",
	}
	cfg := ConfigFromEnv("production-worker", func(k string) string { return env[k] })

	assert.Equal(t, "production-worker", cfg.ServiceName)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.Equal(t, "development", cfg.Environment)
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.5).Description(), samplerFor(0.5).Description())
}

func TestTracedOperation_RecordsStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	got, err := TracedOperation(context.Background(), tracer, "ok-op", func(ctx context.Context) (int, error) {
		assert.True(t, trace.SpanFromContext(ctx).SpanContext().HasTraceID())
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	boom := errors.New("boom")
	_, err = TracedOperation(context.Background(), tracer, "bad-op", func(ctx context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestMapCarrier(t *testing.T) {
	c := MapCarrier{}
	c.Set("traceparent", "00-abc")
	assert.Equal(t, "00-abc", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}

func TestLinkFromCarrier(t *testing.T) {
	link, ok := LinkFromCarrier(MapCarrier{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"})
	require.True(t, ok)
	assert.Equal(t, "00f067aa0ba902b7", link.SpanContext.SpanID().String())
	assert.True(t, link.SpanContext.IsRemote())

	_, ok = LinkFromCarrier(MapCarrier{"traceparent": "garbage"})
	assert.False(t, ok)
}
