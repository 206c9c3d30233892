package application

import "time"

// CreateBatchCommand schedules a new production batch
type CreateBatchCommand struct {
	ProgramID         string
	MenuID            string
	ProductionDate    time.Time
	PlannedPortions   int
	PlannedStart      time.Time
	PlannedEnd        time.Time
	HeadCook          string
	AssistantCooks    []string
	Supervisor        *string
	TargetTemperature *float64
	CreatedBy         string
}

// UpdateBatchCommand edits planning fields of a PLANNED batch
type UpdateBatchCommand struct {
	BatchID           string
	ExpectedVersion   *int64
	PlannedPortions   *int
	PlannedStart      *time.Time
	PlannedEnd        *time.Time
	HeadCook          *string
	AssistantCooks    []string
	Supervisor        *string
	TargetTemperature *float64
	UpdatedBy         string
}

// TransitionCommand moves a batch to a new status
type TransitionCommand struct {
	BatchID           string
	TargetStatus      string
	ExpectedVersion   *int64
	ActualPortions    *int
	ActualTemperature *float64
	WasteAmount       *float64
	WasteNotes        *string
	QualityPassed     *bool
	Reason            *string
	Actor             string
}

// AddQualityCheckCommand records one inspection
type AddQualityCheckCommand struct {
	BatchID         string
	CheckType       string
	Parameter       string
	ExpectedValue   *string
	ActualValue     string
	Passed          bool
	Score           *int
	Severity        *string
	Notes           string
	Recommendations string
	ActionRequired  bool
	ActionTaken     *string
	CheckTime       *time.Time
	CheckedBy       string
}

// ReconcileCommand runs (or replays) cost and stock reconciliation
type ReconcileCommand struct {
	BatchID        string
	ActualPortions int
	Actor          string
}

// GetBatchQuery retrieves a batch by ID
type GetBatchQuery struct {
	BatchID string
}

// ListBatchesQuery lists batches with optional filters
type ListBatchesQuery struct {
	Status                string
	ProgramID             string
	MenuID                string
	ProductionDateFrom    *time.Time
	ProductionDateTo      *time.Time
	ReconciliationPending *bool
	Page                  int
	PageSize              int
}

// ListPendingReconciliationsQuery lists batches flagged for reconciliation retry
type ListPendingReconciliationsQuery struct {
	Limit int
}
