package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/tracing"
)

// EventFactory creates CloudEvents for a single source
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: func() time.Time { return time.Now().UTC() }}
}

// CreateEvent wraps data in an envelope. Correlation id, acting user and trace
// context are copied from ctx when present.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *CloudEvent {
	event := &CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.now(),
		DataContentType: "application/json",
		Data:            data,
		CorrelationID:   logging.CorrelationIDFromContext(ctx),
		Actor:           logging.UserIDFromContext(ctx),
	}

	carrier := tracing.MapCarrier{}
	tracing.InjectTraceContext(ctx, carrier)
	event.TraceParent = carrier.Get("traceparent")
	event.TraceState = carrier.Get("tracestate")

	return event
}

// Headers returns the binary-mode Kafka headers for the envelope
func (e *CloudEvent) Headers() map[string]string {
	headers := map[string]string{
		"ce-specversion": e.SpecVersion,
		"ce-type":        e.Type,
		"ce-source":      e.Source,
		"ce-id":          e.ID,
		"ce-time":        e.Time.Format(time.RFC3339),
		"content-type":   e.DataContentType,
	}
	if e.Subject != "" {
		headers["ce-subject"] = e.Subject
	}
	if e.CorrelationID != "" {
		headers["ce-"+ExtCorrelationID] = e.CorrelationID
	}
	if e.BatchNumber != "" {
		headers["ce-"+ExtBatchNumber] = e.BatchNumber
	}
	if e.Actor != "" {
		headers["ce-"+ExtActor] = e.Actor
	}
	if e.TraceParent != "" {
		headers["ce-traceparent"] = e.TraceParent
	}
	if e.TraceState != "" {
		headers["ce-tracestate"] = e.TraceState
	}
	return headers
}
