package kafka

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/meal-program/production-service/pkg/cloudevents"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
	"github.com/meal-program/production-service/pkg/tracing"
)

// EventPublisher publishes a single envelope to a topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error
}

// InstrumentedProducer records a metric, a log entry and a producer span per
// publish. Outbox events are relayed long after the request that wrote them,
// so the span links back to the trace stored in the envelope.
type InstrumentedProducer struct {
	next    EventPublisher
	metrics *metrics.Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewInstrumentedProducer wraps next; m and logger may be nil
func NewInstrumentedProducer(next EventPublisher, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	return &InstrumentedProducer{
		next:    next,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("kafka-producer"),
	}
}

func spanOptions(topic string, event *cloudevents.CloudEvent) []trace.SpanStartOption {
	attrs := []attribute.KeyValue{
		semconv.MessagingSystemKey.String("kafka"),
		semconv.MessagingDestinationNameKey.String(topic),
		semconv.MessagingOperationPublish,
		semconv.MessagingMessageIDKey.String(event.ID),
		attribute.String("cloudevents.event_type", event.Type),
		attribute.String("cloudevents.event_subject", event.Subject),
	}
	if event.BatchNumber != "" {
		attrs = append(attrs, attribute.String("production.batch_number", event.BatchNumber))
	}

	opts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindProducer), trace.WithAttributes(attrs...)}
	origin := tracing.MapCarrier{"traceparent": event.TraceParent, "tracestate": event.TraceState}
	if link, ok := tracing.LinkFromCarrier(origin); ok {
		opts = append(opts, trace.WithLinks(link))
	}
	return opts
}

// PublishEvent publishes through the wrapped publisher
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) (err error) {
	ctx, span := p.tracer.Start(ctx, topic+" publish", spanOptions(topic, event)...)
	start := time.Now()
	defer func() {
		duration := time.Since(start)
		if p.metrics != nil {
			p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, duration)
		}
		if p.logger != nil {
			p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, duration)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return p.next.PublishEvent(ctx, topic, event)
}
