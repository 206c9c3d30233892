package domain

import (
	"context"
	"time"
)

// BatchFilter narrows ListBatches. Zero values mean no constraint.
type BatchFilter struct {
	Status                *BatchStatus
	ProgramID             string
	MenuID                string
	ProductionDateFrom    *time.Time
	ProductionDateTo      *time.Time
	ReconciliationPending *bool
}

// BatchRepository defines the interface for batch persistence
type BatchRepository interface {
	// Create inserts a new batch; a duplicate batch number is a ConflictError
	Create(ctx context.Context, batch *ProductionBatch) error
	// Update writes the batch only if the stored version equals batch.Version,
	// then increments batch.Version. A stale version is a ConflictError.
	Update(ctx context.Context, batch *ProductionBatch) error
	FindByID(ctx context.Context, batchID string) (*ProductionBatch, error)
	FindAll(ctx context.Context, filter BatchFilter, limit, offset int) ([]*ProductionBatch, int64, error)
}

// QualityCheckRepository is append-only
type QualityCheckRepository interface {
	Append(ctx context.Context, check *QualityCheck) error
	FindByBatchID(ctx context.Context, batchID string) ([]*QualityCheck, error)
}

// ReconciliationRepository stores one summary per batch
type ReconciliationRepository interface {
	// FindByBatchID returns nil, nil when the batch has not been reconciled
	FindByBatchID(ctx context.Context, batchID string) (*ReconciliationSummary, error)
	// Save inserts the summary; an existing summary is a ConflictError
	Save(ctx context.Context, summary *ReconciliationSummary) error
}

// BatchSequence allocates the per-day batch sequence
type BatchSequence interface {
	Next(ctx context.Context, productionDate time.Time) (int, error)
}

// TransactionManager runs fn atomically. fn may be re-run on transient
// conflicts, so it must not keep side effects outside the store.
type TransactionManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventOutbox stores domain events for asynchronous publication in the
// caller's transaction
type EventOutbox interface {
	Append(ctx context.Context, batchNumber string, events ...DomainEvent) error
}
