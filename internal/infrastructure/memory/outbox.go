package memory

import (
	"context"
	"time"

	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/outbox"
)

// OutboxRepository implements outbox.Repository on the store
type OutboxRepository struct{ s *Store }

func (r *OutboxRepository) Save(ctx context.Context, event *outbox.OutboxEvent) error {
	return r.SaveAll(ctx, []*outbox.OutboxEvent{event})
}

func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	defer r.s.lock(ctx)()

	for _, e := range events {
		if _, exists := r.s.outbox[e.ID]; exists {
			return domain.NewConflictError("outbox event " + e.ID + " already exists")
		}
		c := *e
		r.s.outbox[e.ID] = &c
		r.s.outboxOrder = append(r.s.outboxOrder, e.ID)
	}
	return nil
}

func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	defer r.s.lock(ctx)()

	pending := make([]*outbox.OutboxEvent, 0)
	for _, id := range r.s.outboxOrder {
		if e := r.s.outbox[id]; e.ShouldRetry() {
			c := *e
			pending = append(pending, &c)
		}
	}
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	defer r.s.lock(ctx)()

	e, ok := r.s.outbox[eventID]
	if !ok {
		return domain.NewNotFoundError("outbox event", eventID)
	}
	c := *e
	now := time.Now().UTC()
	c.PublishedAt = &now
	r.s.outbox[eventID] = &c
	return nil
}

func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	defer r.s.lock(ctx)()

	e, ok := r.s.outbox[eventID]
	if !ok {
		return domain.NewNotFoundError("outbox event", eventID)
	}
	c := *e
	c.RetryCount++
	c.LastError = errorMsg
	r.s.outbox[eventID] = &c
	return nil
}

func (r *OutboxRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	defer r.s.lock(ctx)()

	out := make([]*outbox.OutboxEvent, 0)
	for _, id := range r.s.outboxOrder {
		if e := r.s.outbox[id]; e.AggregateID == aggregateID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}
