package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
	"github.com/meal-program/production-service/pkg/mongodb"
)

// QualityCheckRepository implements domain.QualityCheckRepository
type QualityCheckRepository struct {
	collection *mongodb.InstrumentedCollection
}

// NewQualityCheckRepository creates a new QualityCheckRepository
func NewQualityCheckRepository(db *mongo.Database, m *metrics.Metrics, logger *logging.Logger) *QualityCheckRepository {
	return &QualityCheckRepository{
		collection: mongodb.NewInstrumentedCollection(db.Collection(QualityChecksCollection), m, logger),
	}
}

// EnsureIndexes creates the quality check indexes
func (r *QualityCheckRepository) EnsureIndexes(ctx context.Context) error {
	return r.collection.EnsureIndexes(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "batchId", Value: 1},
				{Key: "checkTime", Value: 1},
			},
		},
	})
}

// Append inserts a check. Checks are never updated.
func (r *QualityCheckRepository) Append(ctx context.Context, check *domain.QualityCheck) error {
	if _, err := r.collection.InsertOne(ctx, check); err != nil {
		if mongodb.IsDuplicateKey(err) {
			return domain.NewConflictError(fmt.Sprintf("quality check %s already exists", check.ID))
		}
		return fmt.Errorf("failed to insert quality check: %w", err)
	}
	return nil
}

// FindByBatchID returns the checks of a batch in check-time order
func (r *QualityCheckRepository) FindByBatchID(ctx context.Context, batchID string) ([]*domain.QualityCheck, error) {
	opts := options.Find().SetSort(bson.D{{Key: "checkTime", Value: 1}, {Key: "_id", Value: 1}})

	checks := make([]*domain.QualityCheck, 0)
	if err := r.collection.FindAll(ctx, bson.M{"batchId": batchID}, &checks, opts); err != nil {
		return nil, fmt.Errorf("failed to find quality checks: %w", err)
	}
	return checks, nil
}
