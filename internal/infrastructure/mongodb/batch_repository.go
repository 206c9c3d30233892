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

// Collection names
const (
	BatchesCollection         = "production_batches"
	QualityChecksCollection   = "quality_checks"
	ReconciliationsCollection = "batch_reconciliations"
	SequencesCollection       = "batch_sequences"
)

// BatchRepository implements domain.BatchRepository
type BatchRepository struct {
	collection *mongodb.InstrumentedCollection
}

// NewBatchRepository creates a new BatchRepository
func NewBatchRepository(db *mongo.Database, m *metrics.Metrics, logger *logging.Logger) *BatchRepository {
	return &BatchRepository{
		collection: mongodb.NewInstrumentedCollection(db.Collection(BatchesCollection), m, logger),
	}
}

// EnsureIndexes creates the batch indexes
func (r *BatchRepository) EnsureIndexes(ctx context.Context) error {
	return r.collection.EnsureIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "batchNumber", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "productionDate", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "programId", Value: 1},
				{Key: "productionDate", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "menuId", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "reconciliationPending", Value: 1}, {Key: "updatedAt", Value: 1}},
			Options: options.Index().SetPartialFilterExpression(bson.M{"reconciliationPending": true}),
		},
	})
}

// Create inserts a new batch at version 1
func (r *BatchRepository) Create(ctx context.Context, batch *domain.ProductionBatch) error {
	batch.Version = 1
	if _, err := r.collection.InsertOne(ctx, batch); err != nil {
		if mongodb.IsDuplicateKey(err) {
			return domain.NewConflictError(fmt.Sprintf("batch %s or number %s already exists", batch.ID, batch.BatchNumber))
		}
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// Update replaces the stored document when its version still matches
func (r *BatchRepository) Update(ctx context.Context, batch *domain.ProductionBatch) error {
	next := batch.Clone()
	next.Version = batch.Version + 1

	filter := bson.M{"_id": batch.ID, "version": batch.Version}
	result, err := r.collection.ReplaceOne(ctx, filter, next)
	if err != nil {
		if mongodb.IsDuplicateKey(err) {
			return domain.NewConflictError(fmt.Sprintf("batch number %s already exists", batch.BatchNumber))
		}
		return fmt.Errorf("failed to update batch: %w", err)
	}

	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": batch.ID})
		if err != nil {
			return fmt.Errorf("failed to check batch existence: %w", err)
		}
		if count == 0 {
			return domain.NewNotFoundError("batch", batch.ID)
		}
		return domain.NewConflictError(fmt.Sprintf("batch %s was modified concurrently (expected version %d)", batch.ID, batch.Version))
	}

	batch.Version = next.Version
	return nil
}

// FindByID finds a batch by its ID
func (r *BatchRepository) FindByID(ctx context.Context, batchID string) (*domain.ProductionBatch, error) {
	var batch domain.ProductionBatch
	if err := r.collection.FindOne(ctx, bson.M{"_id": batchID}, &batch); err != nil {
		if mongodb.IsNotFound(err) {
			return nil, domain.NewNotFoundError("batch", batchID)
		}
		return nil, fmt.Errorf("failed to find batch: %w", err)
	}
	return &batch, nil
}

// FindAll returns one page of batches matching filter together with the
// total match count. Newest production dates come first.
func (r *BatchRepository) FindAll(ctx context.Context, filter domain.BatchFilter, limit, offset int) ([]*domain.ProductionBatch, int64, error) {
	query := batchFilterDocument(filter)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count batches: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "productionDate", Value: -1}, {Key: "batchNumber", Value: -1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	batches := make([]*domain.ProductionBatch, 0)
	if err := r.collection.FindAll(ctx, query, &batches, opts); err != nil {
		return nil, 0, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, total, nil
}

func batchFilterDocument(filter domain.BatchFilter) bson.M {
	query := bson.M{}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}
	if filter.ProgramID != "" {
		query["programId"] = filter.ProgramID
	}
	if filter.MenuID != "" {
		query["menuId"] = filter.MenuID
	}
	if filter.ReconciliationPending != nil {
		query["reconciliationPending"] = *filter.ReconciliationPending
	}

	dateRange := bson.M{}
	if filter.ProductionDateFrom != nil {
		dateRange["$gte"] = *filter.ProductionDateFrom
	}
	if filter.ProductionDateTo != nil {
		dateRange["$lte"] = *filter.ProductionDateTo
	}
	if len(dateRange) > 0 {
		query["productionDate"] = dateRange
	}
	return query
}
