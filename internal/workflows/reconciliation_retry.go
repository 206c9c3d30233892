package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"
)

// ReconciliationRetryInput is the input of a retry run. It is empty for
// scheduled runs.
type ReconciliationRetryInput struct {
	Limit int `json:"limit,omitempty"`
}

// ReconciliationRetryResult summarizes one retry run
type ReconciliationRetryResult struct {
	ProcessedAt     time.Time `json:"processedAt"`
	FoundCount      int       `json:"foundCount"`
	ReconciledCount int       `json:"reconciledCount"`
	FailedCount     int       `json:"failedCount"`
	FailedBatchIDs  []string  `json:"failedBatchIds,omitempty"`
}

// PendingBatch identifies a batch whose reconciliation was deferred
type PendingBatch struct {
	BatchID        string `json:"batchId"`
	BatchNumber    string `json:"batchNumber"`
	ActualPortions int    `json:"actualPortions"`
}

// FindPendingInput is the input of FindPendingReconciliations
type FindPendingInput struct {
	Limit int `json:"limit"`
}

// ReconcileBatchResult is the outcome of ReconcileBatch
type ReconcileBatchResult struct {
	BatchID     string `json:"batchId"`
	BatchNumber string `json:"batchNumber"`
	TotalCost   int64  `json:"totalCost"`
	Currency    string `json:"currency"`
}

// ReconciliationRetryWorkflow reconciles every batch left pending by an
// unavailable recipe or inventory service. One batch failing does not stop
// the others.
func ReconciliationRetryWorkflow(ctx workflow.Context, input ReconciliationRetryInput) (*ReconciliationRetryResult, error) {
	logger := workflow.GetLogger(ctx)

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultRetryBatchSize
	}

	result := &ReconciliationRetryResult{ProcessedAt: workflow.Now(ctx)}

	var pending []PendingBatch
	queryCtx := workflow.WithActivityOptions(ctx, queryActivityOptions())
	if err := workflow.ExecuteActivity(queryCtx, FindPendingReconciliationsActivity, FindPendingInput{Limit: limit}).Get(ctx, &pending); err != nil {
		logger.Error("Failed to list pending reconciliations", "error", err)
		return result, fmt.Errorf("failed to list pending reconciliations: %w", err)
	}
	result.FoundCount = len(pending)
	if len(pending) == 0 {
		return result, nil
	}

	reconcileCtx := workflow.WithActivityOptions(ctx, reconcileActivityOptions())
	for _, batch := range pending {
		var out ReconcileBatchResult
		err := workflow.ExecuteActivity(reconcileCtx, ReconcileBatchActivity, batch).Get(ctx, &out)
		if err != nil {
			logger.Warn("Reconciliation retry failed",
				"batchId", batch.BatchID,
				"batchNumber", batch.BatchNumber,
				"error", err,
			)
			result.FailedCount++
			result.FailedBatchIDs = append(result.FailedBatchIDs, batch.BatchID)
			continue
		}
		result.ReconciledCount++
	}

	logger.Info("Reconciliation retry run completed",
		"found", result.FoundCount,
		"reconciled", result.ReconciledCount,
		"failed", result.FailedCount,
	)
	return result, nil
}
