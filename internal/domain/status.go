package domain

import "fmt"

// BatchStatus is the lifecycle state of a production batch
type BatchStatus string

const (
	StatusPlanned      BatchStatus = "PLANNED"
	StatusPreparing    BatchStatus = "PREPARING"
	StatusCooking      BatchStatus = "COOKING"
	StatusQualityCheck BatchStatus = "QUALITY_CHECK"
	StatusCompleted    BatchStatus = "COMPLETED"
	StatusCancelled    BatchStatus = "CANCELLED"
)

// transitions is the complete edge table. Anything absent is illegal.
var transitions = map[BatchStatus][]BatchStatus{
	StatusPlanned:      {StatusPreparing, StatusCancelled},
	StatusPreparing:    {StatusCooking, StatusCancelled},
	StatusCooking:      {StatusQualityCheck, StatusCancelled},
	StatusQualityCheck: {StatusCompleted, StatusCancelled},
	StatusCompleted:    {},
	StatusCancelled:    {},
}

// AllStatuses lists every status in lifecycle order
func AllStatuses() []BatchStatus {
	return []BatchStatus{
		StatusPlanned,
		StatusPreparing,
		StatusCooking,
		StatusQualityCheck,
		StatusCompleted,
		StatusCancelled,
	}
}

// ParseBatchStatus converts a wire value to a BatchStatus
func ParseBatchStatus(s string) (BatchStatus, error) {
	status := BatchStatus(s)
	if !status.IsValid() {
		return "", NewFieldValidationError("status", fmt.Sprintf("has unknown value %q", s))
	}
	return status, nil
}

// IsValid reports whether s is one of the six lifecycle states
func (s BatchStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition is possible
func (s BatchStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether s → target is in the edge table
func (s BatchStatus) CanTransitionTo(target BatchStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the legal targets from s
func (s BatchStatus) AllowedTransitions() []BatchStatus {
	out := make([]BatchStatus, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// AcceptsQualityChecks reports whether inspections may be recorded in s
func (s BatchStatus) AcceptsQualityChecks() bool {
	return s == StatusCooking || s == StatusQualityCheck
}

// HasFinishedCooking reports whether actual portions have been recorded
func (s BatchStatus) HasFinishedCooking() bool {
	return s == StatusQualityCheck || s == StatusCompleted
}

func (s BatchStatus) String() string { return string(s) }
