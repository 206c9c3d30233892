package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }
func sevPtr(v Severity) *Severity { return &v }

func newTestBatch(t *testing.T) *ProductionBatch {
	t.Helper()
	batch, err := NewProductionBatch(NewBatchParams{
		ProgramID:       "program-1",
		MenuID:          "menu-1",
		ProductionDate:  testNow,
		PlannedPortions: 100,
		PlannedStart:    testNow.Add(time.Hour),
		PlannedEnd:      testNow.Add(3 * time.Hour),
		HeadCook:        "cook-1",
		AssistantCooks:  []string{"cook-2", "cook-3"},
		CostPerServing:  MustMoney(250, "USD"),
		CreatedBy:       "planner-1",
		Now:             testNow,
	})
	require.NoError(t, err)
	require.NoError(t, batch.AssignBatchNumber("PROD-20250314-001"))
	batch.ClearDomainEvents()
	return batch
}

// batchInStatus drives a fresh batch along the forward edges up to status
func batchInStatus(t *testing.T, status BatchStatus) *ProductionBatch {
	t.Helper()
	batch := newTestBatch(t)
	rules := DefaultTransitionRules()
	path := []TransitionRequest{
		{Target: StatusPreparing, Now: testNow},
		{Target: StatusCooking, Now: testNow},
		{Target: StatusQualityCheck, Payload: TransitionPayload{ActualPortions: intPtr(95)}, Now: testNow},
		{Target: StatusCompleted, Payload: TransitionPayload{QualityPassed: boolPtr(true)}, Now: testNow},
	}
	if status == StatusCancelled {
		_, err := batch.ApplyTransition(TransitionRequest{
			Target:  StatusCancelled,
			Payload: TransitionPayload{Reason: strPtr("menu withdrawn by dietitian")},
			Now:     testNow,
		}, rules)
		require.NoError(t, err)
		batch.ClearDomainEvents()
		return batch
	}
	for _, req := range path {
		if batch.Status == status {
			break
		}
		_, err := batch.ApplyTransition(req, rules)
		require.NoError(t, err)
	}
	require.Equal(t, status, batch.Status)
	batch.ClearDomainEvents()
	return batch
}
