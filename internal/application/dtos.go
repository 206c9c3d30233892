package application

import "time"

// MoneyDTO is an amount in minor units
type MoneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// BatchDTO represents a production batch
type BatchDTO struct {
	ID                    string     `json:"id"`
	BatchNumber           string     `json:"batchNumber"`
	ProgramID             string     `json:"programId"`
	MenuID                string     `json:"menuId"`
	ProductionDate        string     `json:"productionDate"`
	Status                string     `json:"status"`
	AllowedTransitions    []string   `json:"allowedTransitions"`
	PlannedPortions       int        `json:"plannedPortions"`
	ActualPortions        *int       `json:"actualPortions"`
	PlannedStart          time.Time  `json:"plannedStart"`
	PlannedEnd            time.Time  `json:"plannedEnd"`
	ActualStart           *time.Time `json:"actualStart"`
	ActualEnd             *time.Time `json:"actualEnd"`
	HeadCook              string     `json:"headCook"`
	AssistantCooks        []string   `json:"assistantCooks"`
	Supervisor            *string    `json:"supervisor"`
	TargetTemperature     *float64   `json:"targetTemperature"`
	ActualTemperature     *float64   `json:"actualTemperature"`
	WasteAmount           *float64   `json:"wasteAmount"`
	WasteNotes            *string    `json:"wasteNotes"`
	CancellationReason    *string    `json:"cancellationReason"`
	CostPerServing        MoneyDTO   `json:"costPerServing"`
	EstimatedCost         MoneyDTO   `json:"estimatedCost"`
	QualityPassed         *bool      `json:"qualityPassed"`
	ReconciliationPending bool       `json:"reconciliationPending"`
	ReconciliationError   string     `json:"reconciliationError,omitempty"`
	Version               int64      `json:"version"`
	CreatedBy             string     `json:"createdBy"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
	CompletedAt           *time.Time `json:"completedAt"`
	CancelledAt           *time.Time `json:"cancelledAt"`
}

// BatchListDTO is one page of batches
type BatchListDTO struct {
	Items    []BatchDTO `json:"items"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
}

// QualityCheckDTO represents a recorded inspection
type QualityCheckDTO struct {
	ID              string    `json:"id"`
	BatchID         string    `json:"batchId"`
	CheckType       string    `json:"checkType"`
	Parameter       string    `json:"parameter"`
	ExpectedValue   *string   `json:"expectedValue"`
	ActualValue     string    `json:"actualValue"`
	Passed          bool      `json:"passed"`
	Score           *int      `json:"score"`
	EffectiveScore  int       `json:"effectiveScore"`
	Severity        *string   `json:"severity"`
	Notes           string    `json:"notes,omitempty"`
	Recommendations string    `json:"recommendations,omitempty"`
	ActionRequired  bool      `json:"actionRequired"`
	ActionTaken     *string   `json:"actionTaken"`
	CheckedBy       string    `json:"checkedBy"`
	CheckTime       time.Time `json:"checkTime"`
}

// QualitySummaryDTO is the aggregated verdict for a batch
type QualitySummaryDTO struct {
	BatchID          string            `json:"batchId"`
	OverallScore     int               `json:"overallScore"`
	Verdict          *bool             `json:"verdict"`
	PassThreshold    int               `json:"passThreshold"`
	CheckCount       int               `json:"checkCount"`
	FailedCount      int               `json:"failedCount"`
	CriticalFailures []QualityCheckDTO `json:"criticalFailures"`
	OpenActionItems  []QualityCheckDTO `json:"openActionItems"`
}

// StockUsageDTO is one ingredient consumption line
type StockUsageDTO struct {
	ID                 string    `json:"id"`
	IngredientID       string    `json:"ingredientId"`
	IngredientName     string    `json:"ingredientName"`
	QuantityPerPortion float64   `json:"quantityPerPortion"`
	QuantityUsed       float64   `json:"quantityUsed"`
	Unit               string    `json:"unit"`
	UnitCost           MoneyDTO  `json:"unitCost"`
	LineCost           MoneyDTO  `json:"lineCost"`
	RecordedAt         time.Time `json:"recordedAt"`
	RecordedBy         string    `json:"recordedBy"`
}

// ReconciliationDTO is the persisted reconciliation summary
type ReconciliationDTO struct {
	BatchID         string          `json:"batchId"`
	BatchNumber     string          `json:"batchNumber"`
	ActualPortions  int             `json:"actualPortions"`
	Records         []StockUsageDTO `json:"records"`
	TotalCost       MoneyDTO        `json:"totalCost"`
	CostPerPortion  MoneyDTO        `json:"costPerPortion"`
	EstimatedCost   MoneyDTO        `json:"estimatedCost"`
	CostVariancePct *float64        `json:"costVariancePct"`
	ReconciledAt    time.Time       `json:"reconciledAt"`
	ReconciledBy    string          `json:"reconciledBy"`
}

// TransitionResultDTO is the outcome of a status change. A deferred
// reconciliation is reported through Warnings and ReconciliationPending.
type TransitionResultDTO struct {
	Batch                 *BatchDTO          `json:"batch"`
	Warnings              []string           `json:"warnings"`
	ReconciliationPending bool               `json:"reconciliationPending"`
	Reconciliation        *ReconciliationDTO `json:"reconciliation,omitempty"`
}
