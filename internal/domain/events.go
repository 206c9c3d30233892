package domain

import (
	"time"

	"github.com/meal-program/production-service/pkg/cloudevents"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// BatchCreatedEvent is published when a batch is scheduled
type BatchCreatedEvent struct {
	BatchID         string    `json:"batchId"`
	BatchNumber     string    `json:"batchNumber"`
	ProgramID       string    `json:"programId"`
	MenuID          string    `json:"menuId"`
	ProductionDate  time.Time `json:"productionDate"`
	PlannedPortions int       `json:"plannedPortions"`
	EstimatedCost   Money     `json:"estimatedCost"`
	CreatedBy       string    `json:"createdBy"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (e *BatchCreatedEvent) EventType() string     { return cloudevents.BatchCreated }
func (e *BatchCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }
func (e *BatchCreatedEvent) AggregateID() string   { return e.BatchID }

// BatchUpdatedEvent is published when planning fields of a PLANNED batch change
type BatchUpdatedEvent struct {
	BatchID       string    `json:"batchId"`
	ChangedFields []string  `json:"changedFields"`
	UpdatedBy     string    `json:"updatedBy,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (e *BatchUpdatedEvent) EventType() string     { return cloudevents.BatchUpdated }
func (e *BatchUpdatedEvent) OccurredAt() time.Time { return e.UpdatedAt }
func (e *BatchUpdatedEvent) AggregateID() string   { return e.BatchID }

// BatchStatusChangedEvent is published on every successful transition
type BatchStatusChangedEvent struct {
	BatchID    string      `json:"batchId"`
	FromStatus BatchStatus `json:"fromStatus"`
	ToStatus   BatchStatus `json:"toStatus"`
	ChangedBy  string      `json:"changedBy,omitempty"`
	ChangedAt  time.Time   `json:"changedAt"`
}

func (e *BatchStatusChangedEvent) EventType() string     { return cloudevents.BatchStatusChanged }
func (e *BatchStatusChangedEvent) OccurredAt() time.Time { return e.ChangedAt }
func (e *BatchStatusChangedEvent) AggregateID() string   { return e.BatchID }

// BatchCompletedEvent is published when a batch reaches COMPLETED
type BatchCompletedEvent struct {
	BatchID        string    `json:"batchId"`
	ActualPortions int       `json:"actualPortions"`
	QualityPassed  *bool     `json:"qualityPassed"`
	CompletedAt    time.Time `json:"completedAt"`
}

func (e *BatchCompletedEvent) EventType() string     { return cloudevents.BatchCompleted }
func (e *BatchCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }
func (e *BatchCompletedEvent) AggregateID() string   { return e.BatchID }

// BatchCancelledEvent is published when a batch is cancelled
type BatchCancelledEvent struct {
	BatchID     string      `json:"batchId"`
	FromStatus  BatchStatus `json:"fromStatus"`
	Reason      string      `json:"reason"`
	CancelledAt time.Time   `json:"cancelledAt"`
}

func (e *BatchCancelledEvent) EventType() string     { return cloudevents.BatchCancelled }
func (e *BatchCancelledEvent) OccurredAt() time.Time { return e.CancelledAt }
func (e *BatchCancelledEvent) AggregateID() string   { return e.BatchID }

// QualityCheckRecordedEvent is published for each appended inspection
type QualityCheckRecordedEvent struct {
	BatchID        string    `json:"batchId"`
	CheckID        string    `json:"checkId"`
	CheckType      CheckType `json:"checkType"`
	Passed         bool      `json:"passed"`
	Score          int       `json:"score"`
	Severity       *Severity `json:"severity,omitempty"`
	ActionRequired bool      `json:"actionRequired"`
	CheckedBy      string    `json:"checkedBy"`
	CheckTime      time.Time `json:"checkTime"`
}

func (e *QualityCheckRecordedEvent) EventType() string     { return cloudevents.QualityCheckRecorded }
func (e *QualityCheckRecordedEvent) OccurredAt() time.Time { return e.CheckTime }
func (e *QualityCheckRecordedEvent) AggregateID() string   { return e.BatchID }

// NewQualityCheckRecordedEvent builds the event for a stored check
func NewQualityCheckRecordedEvent(check *QualityCheck) *QualityCheckRecordedEvent {
	return &QualityCheckRecordedEvent{
		BatchID:        check.BatchID,
		CheckID:        check.ID,
		CheckType:      check.CheckType,
		Passed:         check.Passed,
		Score:          check.EffectiveScore(),
		Severity:       check.Severity,
		ActionRequired: check.ActionRequired,
		CheckedBy:      check.CheckedBy,
		CheckTime:      check.CheckTime,
	}
}

// ConsumptionItem is one inventory decrement
type ConsumptionItem struct {
	IngredientID string  `json:"ingredientId"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
}

// StockConsumedEvent carries the consumption decrements for the inventory service
type StockConsumedEvent struct {
	BatchID    string            `json:"batchId"`
	Items      []ConsumptionItem `json:"items"`
	TotalCost  Money             `json:"totalCost"`
	ConsumedBy string            `json:"consumedBy,omitempty"`
	ConsumedAt time.Time         `json:"consumedAt"`
}

func (e *StockConsumedEvent) EventType() string     { return cloudevents.StockConsumed }
func (e *StockConsumedEvent) OccurredAt() time.Time { return e.ConsumedAt }
func (e *StockConsumedEvent) AggregateID() string   { return e.BatchID }

// ReconciliationDeferredEvent is published when reconciliation could not reach a collaborator
type ReconciliationDeferredEvent struct {
	BatchID    string    `json:"batchId"`
	Reason     string    `json:"reason"`
	DeferredAt time.Time `json:"deferredAt"`
}

func (e *ReconciliationDeferredEvent) EventType() string     { return cloudevents.ReconciliationDeferred }
func (e *ReconciliationDeferredEvent) OccurredAt() time.Time { return e.DeferredAt }
func (e *ReconciliationDeferredEvent) AggregateID() string   { return e.BatchID }
