package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
	outboxMongo "github.com/meal-program/production-service/pkg/outbox/mongodb"
)

// Store groups the MongoDB adapters that share one database and session
type Store struct {
	Batches         *BatchRepository
	QualityChecks   *QualityCheckRepository
	Reconciliations *ReconciliationRepository
	Sequence        *BatchSequence
	Outbox          *outboxMongo.OutboxRepository
	Tx              *TransactionManager
}

// NewStore builds every repository over db. client runs the transactions.
func NewStore(db *mongo.Database, client SessionRunner, m *metrics.Metrics, logger *logging.Logger) *Store {
	return &Store{
		Batches:         NewBatchRepository(db, m, logger),
		QualityChecks:   NewQualityCheckRepository(db, m, logger),
		Reconciliations: NewReconciliationRepository(db, m, logger),
		Sequence:        NewBatchSequence(db, m, logger),
		Outbox:          outboxMongo.NewOutboxRepository(db, m, logger),
		Tx:              NewTransactionManager(client),
	}
}

// EnsureIndexes creates the indexes of every collection
func (s *Store) EnsureIndexes(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{BatchesCollection, s.Batches.EnsureIndexes},
		{QualityChecksCollection, s.QualityChecks.EnsureIndexes},
		{outboxMongo.DefaultCollectionName, s.Outbox.EnsureIndexes},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", step.name, err)
		}
	}
	return nil
}
