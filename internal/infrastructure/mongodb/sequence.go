package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
	"github.com/meal-program/production-service/pkg/mongodb"
)

// BatchSequence implements domain.BatchSequence with one counter document
// per production day
type BatchSequence struct {
	collection *mongodb.InstrumentedCollection
}

type sequenceDocument struct {
	Key       string    `bson:"_id"`
	Seq       int       `bson:"seq"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// NewBatchSequence creates a new BatchSequence
func NewBatchSequence(db *mongo.Database, m *metrics.Metrics, logger *logging.Logger) *BatchSequence {
	return &BatchSequence{
		collection: mongodb.NewInstrumentedCollection(db.Collection(SequencesCollection), m, logger),
	}
}

// Next atomically increments the counter for productionDate's day. Two
// first-of-day upserts can race on the counter's _id; the loser gets a
// conflict because its transaction is already aborted server side.
func (s *BatchSequence) Next(ctx context.Context, productionDate time.Time) (int, error) {
	key := domain.SequenceKey(productionDate)
	update := bson.M{
		"$inc": bson.M{"seq": 1},
		"$set": bson.M{"updatedAt": mongodb.Now()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc sequenceDocument
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": key}, update, &doc, opts)
	if mongodb.IsDuplicateKey(err) {
		return 0, domain.NewConflictError(fmt.Sprintf("batch sequence for %s was created concurrently", key))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to allocate batch sequence for %s: %w", key, err)
	}
	return doc.Seq, nil
}
