package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func newWorkflowEnv() *testsuite.TestWorkflowEnvironment {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&ReconciliationActivities{})
	return env
}

func TestReconciliationRetryWorkflow_ReconcilesPendingBatches(t *testing.T) {
	env := newWorkflowEnv()

	pending := []PendingBatch{
		{BatchID: "batch-1", BatchNumber: "PROD-20250314-001", ActualPortions: 95},
		{BatchID: "batch-2", BatchNumber: "PROD-20250314-002", ActualPortions: 40},
	}
	env.OnActivity(FindPendingReconciliationsActivity, mock.Anything, FindPendingInput{Limit: DefaultRetryBatchSize}).Return(pending, nil)
	for _, p := range pending {
		env.OnActivity(ReconcileBatchActivity, mock.Anything, p).Return(&ReconcileBatchResult{
			BatchID:     p.BatchID,
			BatchNumber: p.BatchNumber,
			TotalCost:   11401,
			Currency:    "USD",
		}, nil)
	}

	env.ExecuteWorkflow(ReconciliationRetryWorkflow, ReconciliationRetryInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ReconciliationRetryResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, 2, result.FoundCount)
	require.Equal(t, 2, result.ReconciledCount)
	require.Equal(t, 0, result.FailedCount)
}

func TestReconciliationRetryWorkflow_NothingPending(t *testing.T) {
	env := newWorkflowEnv()
	env.OnActivity(FindPendingReconciliationsActivity, mock.Anything, FindPendingInput{Limit: 10}).Return([]PendingBatch{}, nil)

	env.ExecuteWorkflow(ReconciliationRetryWorkflow, ReconciliationRetryInput{Limit: 10})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ReconciliationRetryResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, 0, result.FoundCount)
	require.Equal(t, 0, result.ReconciledCount)
}

func TestReconciliationRetryWorkflow_OneFailureDoesNotStopOthers(t *testing.T) {
	env := newWorkflowEnv()

	broken := PendingBatch{BatchID: "batch-1", BatchNumber: "PROD-20250314-001", ActualPortions: 95}
	healthy := PendingBatch{BatchID: "batch-2", BatchNumber: "PROD-20250314-002", ActualPortions: 40}
	env.OnActivity(FindPendingReconciliationsActivity, mock.Anything, mock.Anything).Return([]PendingBatch{broken, healthy}, nil)

	attempts := 0
	env.OnActivity(ReconcileBatchActivity, mock.Anything, broken).Return(
		func(_ context.Context, _ PendingBatch) (*ReconcileBatchResult, error) {
			attempts++
			return nil, temporal.NewNonRetryableApplicationError("menu menu-9 not found", "NotFoundError", nil)
		},
	)
	env.OnActivity(ReconcileBatchActivity, mock.Anything, healthy).Return(&ReconcileBatchResult{BatchID: healthy.BatchID}, nil)

	env.ExecuteWorkflow(ReconciliationRetryWorkflow, ReconciliationRetryInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ReconciliationRetryResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, 1, result.ReconciledCount)
	require.Equal(t, 1, result.FailedCount)
	require.Equal(t, []string{"batch-1"}, result.FailedBatchIDs)
	require.Equal(t, 1, attempts, "non-retryable failures must not be retried")
}

func TestReconciliationRetryWorkflow_DependencyFailureIsRetried(t *testing.T) {
	env := newWorkflowEnv()

	batch := PendingBatch{BatchID: "batch-1", BatchNumber: "PROD-20250314-001", ActualPortions: 95}
	env.OnActivity(FindPendingReconciliationsActivity, mock.Anything, mock.Anything).Return([]PendingBatch{batch}, nil)

	attempts := 0
	env.OnActivity(ReconcileBatchActivity, mock.Anything, batch).Return(
		func(_ context.Context, _ PendingBatch) (*ReconcileBatchResult, error) {
			attempts++
			if attempts < 3 {
				return nil, temporal.NewApplicationError("inventory unavailable", "DependencyError")
			}
			return &ReconcileBatchResult{BatchID: batch.BatchID}, nil
		},
	)

	env.ExecuteWorkflow(ReconciliationRetryWorkflow, ReconciliationRetryInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ReconciliationRetryResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, 1, result.ReconciledCount)
	require.Equal(t, 3, attempts)
}

func TestReconciliationRetryWorkflow_QueryFailure(t *testing.T) {
	env := newWorkflowEnv()
	env.OnActivity(FindPendingReconciliationsActivity, mock.Anything, mock.Anything).Return(nil, errors.New("mongo down"))

	env.ExecuteWorkflow(ReconciliationRetryWorkflow, ReconciliationRetryInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
