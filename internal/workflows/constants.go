package workflows

import "time"

// Schedule settings. Task queue and workflow names live in pkg/temporal.
const (
	ReconciliationRetryScheduleID = "production-reconciliation-retry"
	ReconciliationRetryInterval   = 15 * time.Minute

	// DefaultRetryBatchSize caps the batches handled by one run
	DefaultRetryBatchSize = 50

	// WorkerActor is recorded as reconciledBy for retried reconciliations
	WorkerActor = "reconciliation-worker"
)

// Activity names
const (
	FindPendingReconciliationsActivity = "FindPendingReconciliations"
	ReconcileBatchActivity             = "ReconcileBatch"
)
