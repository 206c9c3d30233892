package outbox

import "context"

// Repository defines outbox event persistence. Save and SaveAll must join the
// caller's transaction when ctx carries one.
type Repository interface {
	Save(ctx context.Context, event *OutboxEvent) error
	SaveAll(ctx context.Context, events []*OutboxEvent) error

	// FindUnpublished returns pending events oldest first, skipping events
	// that exhausted their retries
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	MarkPublished(ctx context.Context, eventID string) error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error
	FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error)
}
