package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Limits applied to batch input
const (
	DefaultMaxActualPortions    = 10000
	MaxAssistantCooks           = 10
	MinCancellationReasonLength = 10
	MaxWasteNotesLength         = 500
	MinTemperatureCelsius       = -50.0
	MaxTemperatureCelsius       = 300.0
)

// ProductionBatch is one scheduled run of cooking a menu for a date and portion target
type ProductionBatch struct {
	ID                    string      `bson:"_id" json:"id"`
	ProgramID             string      `bson:"programId" json:"programId"`
	MenuID                string      `bson:"menuId" json:"menuId"`
	ProductionDate        time.Time   `bson:"productionDate" json:"productionDate"`
	BatchNumber           string      `bson:"batchNumber" json:"batchNumber"`
	PlannedPortions       int         `bson:"plannedPortions" json:"plannedPortions"`
	ActualPortions        *int        `bson:"actualPortions,omitempty" json:"actualPortions"`
	PlannedStart          time.Time   `bson:"plannedStart" json:"plannedStart"`
	PlannedEnd            time.Time   `bson:"plannedEnd" json:"plannedEnd"`
	ActualStart           *time.Time  `bson:"actualStart,omitempty" json:"actualStart"`
	ActualEnd             *time.Time  `bson:"actualEnd,omitempty" json:"actualEnd"`
	HeadCook              string      `bson:"headCook" json:"headCook"`
	AssistantCooks        []string    `bson:"assistantCooks" json:"assistantCooks"`
	Supervisor            *string     `bson:"supervisor,omitempty" json:"supervisor"`
	TargetTemperature     *float64    `bson:"targetTemperature,omitempty" json:"targetTemperature"`
	ActualTemperature     *float64    `bson:"actualTemperature,omitempty" json:"actualTemperature"`
	WasteAmount           *float64    `bson:"wasteAmount,omitempty" json:"wasteAmount"`
	WasteNotes            *string     `bson:"wasteNotes,omitempty" json:"wasteNotes"`
	Status                BatchStatus `bson:"status" json:"status"`
	CancellationReason    *string     `bson:"cancellationReason,omitempty" json:"cancellationReason"`
	CostPerServing        Money       `bson:"costPerServing" json:"costPerServing"`
	EstimatedCost         Money       `bson:"estimatedCost" json:"estimatedCost"`
	QualityPassed         *bool       `bson:"qualityPassed,omitempty" json:"qualityPassed"`
	ReconciliationPending bool        `bson:"reconciliationPending" json:"reconciliationPending"`
	ReconciliationError   string      `bson:"reconciliationError,omitempty" json:"reconciliationError,omitempty"`
	Version               int64       `bson:"version" json:"version"`
	CreatedBy             string      `bson:"createdBy" json:"createdBy"`
	CreatedAt             time.Time   `bson:"createdAt" json:"createdAt"`
	UpdatedAt             time.Time   `bson:"updatedAt" json:"updatedAt"`
	CompletedAt           *time.Time  `bson:"completedAt,omitempty" json:"completedAt"`
	CancelledAt           *time.Time  `bson:"cancelledAt,omitempty" json:"cancelledAt"`

	domainEvents []DomainEvent
}

// NewBatchParams holds the input for scheduling a batch
type NewBatchParams struct {
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
	CostPerServing    Money
	CreatedBy         string
	Now               time.Time
}

// NewProductionBatch validates params and builds a PLANNED batch. The batch
// number is assigned separately once a sequence has been allocated.
func NewProductionBatch(p NewBatchParams) (*ProductionBatch, error) {
	if strings.TrimSpace(p.ProgramID) == "" {
		return nil, NewFieldValidationError("programId", "is required")
	}
	if strings.TrimSpace(p.MenuID) == "" {
		return nil, NewFieldValidationError("menuId", "is required")
	}
	if p.ProductionDate.IsZero() {
		return nil, NewFieldValidationError("productionDate", "is required")
	}
	if err := validatePlannedPortions(p.PlannedPortions); err != nil {
		return nil, err
	}
	if err := validatePlannedWindow(p.PlannedStart, p.PlannedEnd); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.HeadCook) == "" {
		return nil, NewFieldValidationError("headCook", "is required")
	}
	assistants, err := normalizeAssistants(p.AssistantCooks)
	if err != nil {
		return nil, err
	}
	if err := validateTemperature("targetTemperature", p.TargetTemperature); err != nil {
		return nil, err
	}

	now := p.Now.UTC()
	return &ProductionBatch{
		ID:                uuid.New().String(),
		ProgramID:         p.ProgramID,
		MenuID:            p.MenuID,
		ProductionDate:    NormalizeProductionDate(p.ProductionDate),
		PlannedPortions:   p.PlannedPortions,
		PlannedStart:      p.PlannedStart.UTC(),
		PlannedEnd:        p.PlannedEnd.UTC(),
		HeadCook:          strings.TrimSpace(p.HeadCook),
		AssistantCooks:    assistants,
		Supervisor:        trimmedOrNil(p.Supervisor),
		TargetTemperature: p.TargetTemperature,
		Status:            StatusPlanned,
		CostPerServing:    p.CostPerServing,
		EstimatedCost:     p.CostPerServing.Multiply(p.PlannedPortions),
		CreatedBy:         p.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// AssignBatchNumber sets the identifier and records the creation event
func (b *ProductionBatch) AssignBatchNumber(number string) error {
	if b.BatchNumber != "" {
		return NewStateError(fmt.Sprintf("batch %s already has number %s", b.ID, b.BatchNumber))
	}
	if !IsValidBatchNumber(number) {
		return NewFieldValidationError("batchNumber", fmt.Sprintf("%q does not match PROD-YYYYMMDD-SSS", number))
	}
	b.BatchNumber = number
	b.addEvent(&BatchCreatedEvent{
		BatchID:         b.ID,
		BatchNumber:     number,
		ProgramID:       b.ProgramID,
		MenuID:          b.MenuID,
		ProductionDate:  b.ProductionDate,
		PlannedPortions: b.PlannedPortions,
		EstimatedCost:   b.EstimatedCost,
		CreatedBy:       b.CreatedBy,
		CreatedAt:       b.CreatedAt,
	})
	return nil
}

// TransitionPayload carries the edge-specific fields of a transition
type TransitionPayload struct {
	ActualPortions    *int
	ActualTemperature *float64
	WasteAmount       *float64
	WasteNotes        *string
	QualityPassed     *bool
	Reason            *string
}

// TransitionRequest describes one status change
type TransitionRequest struct {
	Target  BatchStatus
	Payload TransitionPayload
	// Verdict is the aggregator verdict, consulted on QUALITY_CHECK → COMPLETED
	Verdict *bool
	Actor   string
	Now     time.Time
}

// TransitionRules are the configurable policies of the state machine
type TransitionRules struct {
	MaxActualPortions     int
	RequirePassingVerdict bool
}

// DefaultTransitionRules returns warn-but-allow completion with a 10000 portion cap
func DefaultTransitionRules() TransitionRules {
	return TransitionRules{MaxActualPortions: DefaultMaxActualPortions}
}

// ValidateTransition checks req against the transition table and payload rules
// without touching the batch. It returns the warnings the transition would raise.
func (b *ProductionBatch) ValidateTransition(req TransitionRequest, rules TransitionRules) ([]string, error) {
	if !req.Target.IsValid() {
		return nil, NewFieldValidationError("targetStatus", fmt.Sprintf("has unknown value %q", req.Target))
	}
	if !b.Status.CanTransitionTo(req.Target) {
		return nil, NewInvalidTransitionError(b.Status, req.Target)
	}
	if err := rejectForeignPayload(req.Target, req.Payload); err != nil {
		return nil, err
	}

	p := req.Payload
	var warnings []string

	switch req.Target {
	case StatusQualityCheck:
		if b.ActualPortions != nil {
			return nil, NewStateError("actual portions have already been recorded")
		}
		maxPortions := rules.MaxActualPortions
		if maxPortions <= 0 {
			maxPortions = DefaultMaxActualPortions
		}
		if p.ActualPortions == nil {
			return nil, NewFieldValidationError("actualPortions", "is required to finish cooking")
		}
		if *p.ActualPortions < 1 || *p.ActualPortions > maxPortions {
			return nil, NewFieldValidationError("actualPortions", fmt.Sprintf("must be between 1 and %d", maxPortions))
		}
		if err := validateTemperature("actualTemperature", p.ActualTemperature); err != nil {
			return nil, err
		}
		if p.WasteAmount != nil && *p.WasteAmount < 0 {
			return nil, NewFieldValidationError("wasteAmount", "must not be negative")
		}
		if p.WasteNotes != nil && len([]rune(*p.WasteNotes)) > MaxWasteNotesLength {
			return nil, NewFieldValidationError("wasteNotes", fmt.Sprintf("must be at most %d characters", MaxWasteNotesLength))
		}

	case StatusCompleted:
		passed := effectiveQualityPassed(p.QualityPassed, req.Verdict)
		switch {
		case passed == nil && rules.RequirePassingVerdict:
			return nil, NewStateError("cannot complete batch without a quality verdict")
		case passed == nil:
			warnings = append(warnings, "no quality checks recorded; completing without a verdict")
		case !*passed && rules.RequirePassingVerdict:
			return nil, NewStateError("cannot complete batch with a failing quality verdict")
		case !*passed:
			warnings = append(warnings, "quality verdict is failing; batch completed anyway")
		}

	case StatusCancelled:
		if p.Reason == nil || len([]rune(strings.TrimSpace(*p.Reason))) < MinCancellationReasonLength {
			return nil, NewFieldValidationError("reason", fmt.Sprintf("must be at least %d characters", MinCancellationReasonLength))
		}
	}

	return warnings, nil
}

// ApplyTransition validates req and, only if it is acceptable, moves the batch
// to the target status and records the resulting events.
func (b *ProductionBatch) ApplyTransition(req TransitionRequest, rules TransitionRules) ([]string, error) {
	warnings, err := b.ValidateTransition(req, rules)
	if err != nil {
		return nil, err
	}

	now := req.Now.UTC()
	from := b.Status
	p := req.Payload

	switch req.Target {
	case StatusCooking:
		b.ActualStart = &now
	case StatusQualityCheck:
		portions := *p.ActualPortions
		b.ActualPortions = &portions
		b.ActualTemperature = p.ActualTemperature
		b.WasteAmount = p.WasteAmount
		b.WasteNotes = trimmedOrNil(p.WasteNotes)
		b.ActualEnd = &now
	case StatusCompleted:
		b.QualityPassed = effectiveQualityPassed(p.QualityPassed, req.Verdict)
		b.CompletedAt = &now
	case StatusCancelled:
		reason := strings.TrimSpace(*p.Reason)
		b.CancellationReason = &reason
		b.CancelledAt = &now
	}

	b.Status = req.Target
	b.UpdatedAt = now

	b.addEvent(&BatchStatusChangedEvent{
		BatchID:    b.ID,
		FromStatus: from,
		ToStatus:   req.Target,
		ChangedBy:  req.Actor,
		ChangedAt:  now,
	})
	switch req.Target {
	case StatusCompleted:
		b.addEvent(&BatchCompletedEvent{
			BatchID:        b.ID,
			ActualPortions: derefInt(b.ActualPortions),
			QualityPassed:  b.QualityPassed,
			CompletedAt:    now,
		})
	case StatusCancelled:
		b.addEvent(&BatchCancelledEvent{
			BatchID:     b.ID,
			FromStatus:  from,
			Reason:      *b.CancellationReason,
			CancelledAt: now,
		})
	}

	return warnings, nil
}

// BatchUpdate is a partial edit of planning fields. Nil means unchanged.
type BatchUpdate struct {
	PlannedPortions   *int
	PlannedStart      *time.Time
	PlannedEnd        *time.Time
	HeadCook          *string
	AssistantCooks    []string
	Supervisor        *string
	TargetTemperature *float64
}

// UpdatePlanned applies u to a PLANNED batch and returns the changed field names
func (b *ProductionBatch) UpdatePlanned(u BatchUpdate, actor string, now time.Time) ([]string, error) {
	if b.Status != StatusPlanned {
		return nil, NewStateError(fmt.Sprintf("batch fields can only be edited while PLANNED, batch is %s", b.Status))
	}

	portions := b.PlannedPortions
	if u.PlannedPortions != nil {
		if err := validatePlannedPortions(*u.PlannedPortions); err != nil {
			return nil, err
		}
		portions = *u.PlannedPortions
	}
	start, end := b.PlannedStart, b.PlannedEnd
	if u.PlannedStart != nil {
		start = u.PlannedStart.UTC()
	}
	if u.PlannedEnd != nil {
		end = u.PlannedEnd.UTC()
	}
	if err := validatePlannedWindow(start, end); err != nil {
		return nil, err
	}
	headCook := b.HeadCook
	if u.HeadCook != nil {
		if strings.TrimSpace(*u.HeadCook) == "" {
			return nil, NewFieldValidationError("headCook", "must not be empty")
		}
		headCook = strings.TrimSpace(*u.HeadCook)
	}
	assistants := b.AssistantCooks
	if u.AssistantCooks != nil {
		normalized, err := normalizeAssistants(u.AssistantCooks)
		if err != nil {
			return nil, err
		}
		assistants = normalized
	}
	if err := validateTemperature("targetTemperature", u.TargetTemperature); err != nil {
		return nil, err
	}

	var changed []string
	if portions != b.PlannedPortions {
		b.PlannedPortions = portions
		b.EstimatedCost = b.CostPerServing.Multiply(portions)
		changed = append(changed, "plannedPortions", "estimatedCost")
	}
	if !start.Equal(b.PlannedStart) {
		b.PlannedStart = start
		changed = append(changed, "plannedStart")
	}
	if !end.Equal(b.PlannedEnd) {
		b.PlannedEnd = end
		changed = append(changed, "plannedEnd")
	}
	if headCook != b.HeadCook {
		b.HeadCook = headCook
		changed = append(changed, "headCook")
	}
	if u.AssistantCooks != nil {
		b.AssistantCooks = assistants
		changed = append(changed, "assistantCooks")
	}
	if u.Supervisor != nil {
		b.Supervisor = trimmedOrNil(u.Supervisor)
		changed = append(changed, "supervisor")
	}
	if u.TargetTemperature != nil {
		t := *u.TargetTemperature
		b.TargetTemperature = &t
		changed = append(changed, "targetTemperature")
	}

	if len(changed) == 0 {
		return nil, NewValidationError("no fields to update")
	}

	b.UpdatedAt = now.UTC()
	b.addEvent(&BatchUpdatedEvent{
		BatchID:       b.ID,
		ChangedFields: changed,
		UpdatedBy:     actor,
		UpdatedAt:     b.UpdatedAt,
	})
	return changed, nil
}

// CanReconcile checks that the batch has finished cooking with the given portions.
// A batch cancelled after cooking still consumed its stock and stays reconcilable.
func (b *ProductionBatch) CanReconcile(actualPortions int) error {
	cooked := b.Status.HasFinishedCooking() || b.Status == StatusCancelled
	if !cooked || b.ActualPortions == nil {
		return NewStateError(fmt.Sprintf("batch in status %s has not finished cooking", b.Status))
	}
	if actualPortions != *b.ActualPortions {
		return NewFieldValidationError("actualPortions",
			fmt.Sprintf("must equal the recorded actual portions (%d)", *b.ActualPortions))
	}
	return nil
}

// MarkReconciliationPending flags the batch for a later reconciliation retry
func (b *ProductionBatch) MarkReconciliationPending(reason string, now time.Time) {
	b.ReconciliationPending = true
	b.ReconciliationError = reason
	b.UpdatedAt = now.UTC()
	b.addEvent(&ReconciliationDeferredEvent{
		BatchID:    b.ID,
		Reason:     reason,
		DeferredAt: b.UpdatedAt,
	})
}

// NoteQualityCheck stamps the batch so that saving it advances the version and
// races with a concurrent completion
func (b *ProductionBatch) NoteQualityCheck(now time.Time) {
	b.UpdatedAt = now.UTC()
}

// MarkReconciled clears the pending flag
func (b *ProductionBatch) MarkReconciled(now time.Time) {
	b.ReconciliationPending = false
	b.ReconciliationError = ""
	b.UpdatedAt = now.UTC()
}

// DomainEvents returns the events recorded since the last clear
func (b *ProductionBatch) DomainEvents() []DomainEvent {
	return b.domainEvents
}

// PullEvents returns the recorded events and clears them
func (b *ProductionBatch) PullEvents() []DomainEvent {
	events := b.domainEvents
	b.domainEvents = nil
	return events
}

// ClearDomainEvents clears all domain events
func (b *ProductionBatch) ClearDomainEvents() {
	b.domainEvents = nil
}

func (b *ProductionBatch) addEvent(event DomainEvent) {
	b.domainEvents = append(b.domainEvents, event)
}

// Clone returns a deep copy without pending events
func (b *ProductionBatch) Clone() *ProductionBatch {
	c := *b
	c.domainEvents = nil
	c.AssistantCooks = append([]string(nil), b.AssistantCooks...)
	c.ActualPortions = clonePtr(b.ActualPortions)
	c.ActualStart = clonePtr(b.ActualStart)
	c.ActualEnd = clonePtr(b.ActualEnd)
	c.Supervisor = clonePtr(b.Supervisor)
	c.TargetTemperature = clonePtr(b.TargetTemperature)
	c.ActualTemperature = clonePtr(b.ActualTemperature)
	c.WasteAmount = clonePtr(b.WasteAmount)
	c.WasteNotes = clonePtr(b.WasteNotes)
	c.CancellationReason = clonePtr(b.CancellationReason)
	c.QualityPassed = clonePtr(b.QualityPassed)
	c.CompletedAt = clonePtr(b.CompletedAt)
	c.CancelledAt = clonePtr(b.CancelledAt)
	return &c
}

// rejectForeignPayload refuses fields that belong to a different edge
func rejectForeignPayload(target BatchStatus, p TransitionPayload) error {
	if target != StatusQualityCheck {
		switch {
		case p.ActualPortions != nil:
			return NewFieldValidationError("actualPortions", "is only accepted when moving to QUALITY_CHECK")
		case p.ActualTemperature != nil:
			return NewFieldValidationError("actualTemperature", "is only accepted when moving to QUALITY_CHECK")
		case p.WasteAmount != nil:
			return NewFieldValidationError("wasteAmount", "is only accepted when moving to QUALITY_CHECK")
		case p.WasteNotes != nil:
			return NewFieldValidationError("wasteNotes", "is only accepted when moving to QUALITY_CHECK")
		}
	}
	if target != StatusCompleted && p.QualityPassed != nil {
		return NewFieldValidationError("qualityPassed", "is only accepted when moving to COMPLETED")
	}
	if target != StatusCancelled && p.Reason != nil {
		return NewFieldValidationError("reason", "is only accepted when moving to CANCELLED")
	}
	return nil
}

func effectiveQualityPassed(override, verdict *bool) *bool {
	if override != nil {
		v := *override
		return &v
	}
	if verdict != nil {
		v := *verdict
		return &v
	}
	return nil
}

func validatePlannedPortions(n int) error {
	if n < 1 || n > DefaultMaxActualPortions {
		return NewFieldValidationError("plannedPortions", fmt.Sprintf("must be between 1 and %d", DefaultMaxActualPortions))
	}
	return nil
}

func validatePlannedWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return NewFieldValidationError("plannedStart", "and plannedEnd are required")
	}
	if !end.After(start) {
		return NewFieldValidationError("plannedEnd", "must be after plannedStart")
	}
	return nil
}

func validateTemperature(field string, t *float64) error {
	if t == nil {
		return nil
	}
	if *t < MinTemperatureCelsius || *t > MaxTemperatureCelsius {
		return NewFieldValidationError(field, fmt.Sprintf("must be between %.0f and %.0f", MinTemperatureCelsius, MaxTemperatureCelsius))
	}
	return nil
}

// normalizeAssistants trims, drops empties and de-duplicates while keeping order
func normalizeAssistants(in []string) ([]string, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	if len(out) > MaxAssistantCooks {
		return nil, NewFieldValidationError("assistantCooks", fmt.Sprintf("must contain at most %d cooks", MaxAssistantCooks))
	}
	return out, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
