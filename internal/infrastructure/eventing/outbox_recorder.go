// Package eventing turns domain events into CloudEvents stored in the outbox
package eventing

import (
	"context"
	"fmt"

	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/cloudevents"
	"github.com/meal-program/production-service/pkg/outbox"
)

// AggregateType is the outbox aggregate type of production batches
const AggregateType = "ProductionBatch"

// OutboxRecorder implements domain.EventOutbox
type OutboxRecorder struct {
	repo    outbox.Repository
	factory *cloudevents.EventFactory
	topic   string
}

// NewOutboxRecorder creates a recorder writing to topic through repo
func NewOutboxRecorder(repo outbox.Repository, factory *cloudevents.EventFactory, topic string) *OutboxRecorder {
	return &OutboxRecorder{repo: repo, factory: factory, topic: topic}
}

// Append wraps each event in a CloudEvent and saves them in ctx's transaction
func (r *OutboxRecorder) Append(ctx context.Context, batchNumber string, events ...domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	outboxEvents := make([]*outbox.OutboxEvent, 0, len(events))
	for _, event := range events {
		ce := r.factory.CreateEvent(ctx, event.EventType(), Subject(event.AggregateID()), event)
		ce.Time = event.OccurredAt()
		ce.BatchNumber = batchNumber

		oe, err := outbox.NewOutboxEventFromCloudEvent(event.AggregateID(), AggregateType, r.topic, ce)
		if err != nil {
			return fmt.Errorf("failed to create outbox event for %s: %w", event.EventType(), err)
		}
		outboxEvents = append(outboxEvents, oe)
	}

	if err := r.repo.SaveAll(ctx, outboxEvents); err != nil {
		return fmt.Errorf("failed to save events to outbox: %w", err)
	}
	return nil
}

// Subject is the CloudEvents subject (and Kafka key) of a batch
func Subject(batchID string) string {
	return "batch/" + batchID
}
