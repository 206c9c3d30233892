package workflows

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/meal-program/production-service/internal/application"
	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
)

// ReconciliationService is the part of the application service the
// activities drive
type ReconciliationService interface {
	ListPendingReconciliations(ctx context.Context, query application.ListPendingReconciliationsQuery) ([]application.BatchDTO, error)
	Reconcile(ctx context.Context, cmd application.ReconcileCommand) (*application.ReconciliationDTO, error)
}

// ReconciliationActivities holds the retry workflow's activities
type ReconciliationActivities struct {
	service ReconciliationService
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewReconciliationActivities creates the activities
func NewReconciliationActivities(service ReconciliationService, logger *logging.Logger, m *metrics.Metrics) *ReconciliationActivities {
	return &ReconciliationActivities{
		service: service,
		logger:  logger.WithComponent("reconciliation-activities"),
		metrics: m,
	}
}

// FindPendingReconciliations lists batches flagged reconciliationPending
func (a *ReconciliationActivities) FindPendingReconciliations(ctx context.Context, input FindPendingInput) ([]PendingBatch, error) {
	start := time.Now()
	batches, err := a.service.ListPendingReconciliations(ctx, application.ListPendingReconciliationsQuery{Limit: input.Limit})
	a.record(FindPendingReconciliationsActivity, err == nil, start)
	if err != nil {
		return nil, toActivityError(err)
	}

	pending := make([]PendingBatch, 0, len(batches))
	for _, b := range batches {
		if b.ActualPortions == nil {
			continue
		}
		pending = append(pending, PendingBatch{
			BatchID:        b.ID,
			BatchNumber:    b.BatchNumber,
			ActualPortions: *b.ActualPortions,
		})
	}
	return pending, nil
}

// ReconcileBatch retries the reconciliation of one batch
func (a *ReconciliationActivities) ReconcileBatch(ctx context.Context, batch PendingBatch) (*ReconcileBatchResult, error) {
	start := time.Now()
	activity.GetLogger(ctx).Info("Retrying reconciliation", "batchId", batch.BatchID)

	ctx = logging.ContextWithUserID(ctx, WorkerActor)
	summary, err := a.service.Reconcile(ctx, application.ReconcileCommand{
		BatchID:        batch.BatchID,
		ActualPortions: batch.ActualPortions,
		Actor:          WorkerActor,
	})
	a.record(ReconcileBatchActivity, err == nil, start)
	if err != nil {
		a.logger.WithBatch(batch.BatchID, batch.BatchNumber).WithError(err).Warn("Reconciliation retry failed")
		return nil, toActivityError(err)
	}

	return &ReconcileBatchResult{
		BatchID:     summary.BatchID,
		BatchNumber: summary.BatchNumber,
		TotalCost:   summary.TotalCost.Amount,
		Currency:    summary.TotalCost.Currency,
	}, nil
}

func (a *ReconciliationActivities) record(name string, success bool, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityCompleted(name, success, time.Since(start))
	}
}

// toActivityError tags domain errors with their type name so the retry
// policy can tell permanent failures from transient ones
func toActivityError(err error) error {
	kind, ok := domain.KindOf(err)
	if !ok {
		return err
	}
	var de *domain.DomainError
	errors.As(err, &de)
	for _, t := range NonRetryableErrorTypes {
		if t == kind.TypeName() {
			return temporal.NewNonRetryableApplicationError(de.Message, t, err)
		}
	}
	return temporal.NewApplicationErrorWithCause(de.Message, kind.TypeName(), err)
}
