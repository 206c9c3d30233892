package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
	"github.com/meal-program/production-service/pkg/mongodb"
)

// ReconciliationRepository implements domain.ReconciliationRepository. The
// summary is keyed by batch ID, so the primary key enforces one summary per
// batch.
type ReconciliationRepository struct {
	collection *mongodb.InstrumentedCollection
}

// NewReconciliationRepository creates a new ReconciliationRepository
func NewReconciliationRepository(db *mongo.Database, m *metrics.Metrics, logger *logging.Logger) *ReconciliationRepository {
	return &ReconciliationRepository{
		collection: mongodb.NewInstrumentedCollection(db.Collection(ReconciliationsCollection), m, logger),
	}
}

// FindByBatchID returns nil, nil when the batch has no summary yet
func (r *ReconciliationRepository) FindByBatchID(ctx context.Context, batchID string) (*domain.ReconciliationSummary, error) {
	var summary domain.ReconciliationSummary
	if err := r.collection.FindOne(ctx, bson.M{"_id": batchID}, &summary); err != nil {
		if mongodb.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find reconciliation: %w", err)
	}
	return &summary, nil
}

// Save inserts the summary
func (r *ReconciliationRepository) Save(ctx context.Context, summary *domain.ReconciliationSummary) error {
	if _, err := r.collection.InsertOne(ctx, summary); err != nil {
		if mongodb.IsDuplicateKey(err) {
			return domain.NewConflictError(fmt.Sprintf("batch %s is already reconciled", summary.BatchID))
		}
		return fmt.Errorf("failed to save reconciliation: %w", err)
	}
	return nil
}
