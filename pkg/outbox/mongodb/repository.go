// Package mongodb stores outbox events in MongoDB next to the batches they
// describe, so an event is written in the same transaction as its change.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
	mongox "github.com/meal-program/production-service/pkg/mongodb"
	"github.com/meal-program/production-service/pkg/outbox"
)

// DefaultCollectionName is the outbox collection
const DefaultCollectionName = "outbox_events"

// delivered events expire from the collection after this long
const publishedRetention = 7 * 24 * time.Hour

var oldestFirst = bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

// OutboxRepository implements outbox.Repository
type OutboxRepository struct {
	collection *mongox.InstrumentedCollection
}

// NewOutboxRepository creates the repository; m and logger may be nil
func NewOutboxRepository(db *mongo.Database, m *metrics.Metrics, logger *logging.Logger) *OutboxRepository {
	return &OutboxRepository{
		collection: mongox.NewInstrumentedCollection(db.Collection(DefaultCollectionName), m, logger),
	}
}

func (r *OutboxRepository) Save(ctx context.Context, event *outbox.OutboxEvent) error {
	return r.SaveAll(ctx, []*outbox.OutboxEvent{event})
}

func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	switch len(events) {
	case 0:
		return nil
	case 1:
		if _, err := r.collection.InsertOne(ctx, events[0]); err != nil {
			return fmt.Errorf("failed to save outbox event %s: %w", events[0].EventType, err)
		}
		return nil
	}

	docs := make([]interface{}, 0, len(events))
	for _, event := range events {
		docs = append(docs, event)
	}
	// ordered so a failure leaves no gap in a batch's event sequence
	if _, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to save %d outbox events: %w", len(events), err)
	}
	return nil
}

// FindUnpublished returns pending events oldest first. Parked events, whose
// retries are exhausted, stay in the collection for inspection.
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	filter := bson.M{
		"publishedAt": bson.M{"$exists": false},
		"$expr":       bson.M{"$lt": bson.A{"$retryCount", "$maxRetries"}},
	}
	return r.find(ctx, filter, options.Find().SetSort(oldestFirst).SetLimit(int64(limit)))
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	return r.updateByID(ctx, eventID, bson.M{
		"$set":   bson.M{"publishedAt": mongox.Now()},
		"$unset": bson.M{"lastError": ""},
	})
}

func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	return r.updateByID(ctx, eventID, bson.M{
		"$inc": bson.M{"retryCount": 1},
		"$set": bson.M{"lastError": errorMsg},
	})
}

// FindByAggregateID returns every event of one batch in write order
func (r *OutboxRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	return r.find(ctx, bson.M{"aggregateId": aggregateID}, options.Find().SetSort(oldestFirst))
}

func (r *OutboxRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*outbox.OutboxEvent, error) {
	events := []*outbox.OutboxEvent{}
	if err := r.collection.FindAll(ctx, filter, &events, opts); err != nil {
		return nil, fmt.Errorf("failed to query outbox events: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) updateByID(ctx context.Context, eventID string, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": eventID}, update)
	if err != nil {
		return fmt.Errorf("failed to update outbox event %s: %w", eventID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("outbox event %s not found", eventID)
	}
	return nil
}

// EnsureIndexes creates the polling, per-batch and retention indexes
func (r *OutboxRepository) EnsureIndexes(ctx context.Context) error {
	return r.collection.EnsureIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_pending"),
		},
		{
			Keys:    bson.D{{Key: "aggregateId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_aggregate"),
		},
		{
			// documents without publishedAt never expire
			Keys: bson.D{{Key: "publishedAt", Value: 1}},
			Options: options.Index().
				SetName("idx_published_ttl").
				SetExpireAfterSeconds(int32(publishedRetention.Seconds())),
		},
	})
}
