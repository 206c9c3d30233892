package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPassThreshold is the minimum overall score for a passing verdict
const DefaultPassThreshold = 70

// CheckType is the kind of inspection performed
type CheckType string

const (
	CheckTypeTemperature CheckType = "TEMPERATURE"
	CheckTypeHygiene     CheckType = "HYGIENE"
	CheckTypeTaste       CheckType = "TASTE"
	CheckTypeAppearance  CheckType = "APPEARANCE"
	CheckTypeSafety      CheckType = "SAFETY"
)

// ParseCheckType converts a wire value to a CheckType
func ParseCheckType(s string) (CheckType, error) {
	switch t := CheckType(s); t {
	case CheckTypeTemperature, CheckTypeHygiene, CheckTypeTaste, CheckTypeAppearance, CheckTypeSafety:
		return t, nil
	}
	return "", NewFieldValidationError("checkType", fmt.Sprintf("has unknown value %q", s))
}

// Severity is the escalation level of a failed check
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity converts a wire value to a Severity
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(s); sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, nil
	}
	return "", NewFieldValidationError("severity", fmt.Sprintf("has unknown value %q", s))
}

// QualityCheck is one recorded inspection. Checks are append-only.
type QualityCheck struct {
	ID              string    `bson:"_id" json:"id"`
	BatchID         string    `bson:"batchId" json:"batchId"`
	CheckType       CheckType `bson:"checkType" json:"checkType"`
	Parameter       string    `bson:"parameter" json:"parameter"`
	ExpectedValue   *string   `bson:"expectedValue,omitempty" json:"expectedValue,omitempty"`
	ActualValue     string    `bson:"actualValue" json:"actualValue"`
	Passed          bool      `bson:"passed" json:"passed"`
	Score           *int      `bson:"score,omitempty" json:"score,omitempty"`
	Severity        *Severity `bson:"severity,omitempty" json:"severity,omitempty"`
	Notes           string    `bson:"notes,omitempty" json:"notes,omitempty"`
	Recommendations string    `bson:"recommendations,omitempty" json:"recommendations,omitempty"`
	ActionRequired  bool      `bson:"actionRequired" json:"actionRequired"`
	ActionTaken     *string   `bson:"actionTaken,omitempty" json:"actionTaken,omitempty"`
	CheckedBy       string    `bson:"checkedBy" json:"checkedBy"`
	CheckTime       time.Time `bson:"checkTime" json:"checkTime"`
}

// QualityCheckInput carries the caller-supplied fields of a new check
type QualityCheckInput struct {
	CheckType       CheckType
	Parameter       string
	ExpectedValue   *string
	ActualValue     string
	Passed          bool
	Score           *int
	Severity        *Severity
	Notes           string
	Recommendations string
	ActionRequired  bool
	ActionTaken     *string
	CheckTime       *time.Time
}

// NewQualityCheck validates input against the owning batch and builds the check
func NewQualityCheck(batch *ProductionBatch, in QualityCheckInput, checkedBy string, now time.Time) (*QualityCheck, error) {
	if !batch.Status.AcceptsQualityChecks() {
		return nil, NewStateError(fmt.Sprintf("quality checks can only be recorded while COOKING or QUALITY_CHECK, batch is %s", batch.Status))
	}
	if _, err := ParseCheckType(string(in.CheckType)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Parameter) == "" {
		return nil, NewFieldValidationError("parameter", "is required")
	}
	if strings.TrimSpace(in.ActualValue) == "" {
		return nil, NewFieldValidationError("actualValue", "is required")
	}
	if in.Score != nil && (*in.Score < 0 || *in.Score > 100) {
		return nil, NewFieldValidationError("score", "must be between 0 and 100")
	}
	if in.Severity != nil {
		if _, err := ParseSeverity(string(*in.Severity)); err != nil {
			return nil, err
		}
	}
	if in.ActionTaken != nil && strings.TrimSpace(*in.ActionTaken) == "" {
		in.ActionTaken = nil
	}

	checkTime := now
	if in.CheckTime != nil {
		checkTime = in.CheckTime.UTC()
	}

	return &QualityCheck{
		ID:              uuid.New().String(),
		BatchID:         batch.ID,
		CheckType:       in.CheckType,
		Parameter:       strings.TrimSpace(in.Parameter),
		ExpectedValue:   in.ExpectedValue,
		ActualValue:     strings.TrimSpace(in.ActualValue),
		Passed:          in.Passed,
		Score:           in.Score,
		Severity:        in.Severity,
		Notes:           in.Notes,
		Recommendations: in.Recommendations,
		ActionRequired:  in.ActionRequired,
		ActionTaken:     in.ActionTaken,
		CheckedBy:       checkedBy,
		CheckTime:       checkTime,
	}, nil
}

// EffectiveScore is the explicit score, or 100/0 derived from Passed
func (q *QualityCheck) EffectiveScore() int {
	if q.Score != nil {
		return *q.Score
	}
	if q.Passed {
		return 100
	}
	return 0
}

// IsCriticalFailure reports a failed check with CRITICAL severity
func (q *QualityCheck) IsCriticalFailure() bool {
	return !q.Passed && q.Severity != nil && *q.Severity == SeverityCritical
}

// IsOpenActionItem reports a required action that has not been taken
func (q *QualityCheck) IsOpenActionItem() bool {
	return q.ActionRequired && q.ActionTaken == nil
}

// ComputeOverallScore returns the rounded mean of the effective scores, 0 for no checks
func ComputeOverallScore(checks []*QualityCheck) int {
	if len(checks) == 0 {
		return 0
	}
	sum := 0
	for _, c := range checks {
		sum += c.EffectiveScore()
	}
	return int(math.Round(float64(sum) / float64(len(checks))))
}

// HasCriticalFailure reports whether any check is a CRITICAL failure
func HasCriticalFailure(checks []*QualityCheck) bool {
	for _, c := range checks {
		if c.IsCriticalFailure() {
			return true
		}
	}
	return false
}

// ComputeVerdict returns nil when there is no data. A CRITICAL failure
// always fails the batch regardless of the average.
func ComputeVerdict(checks []*QualityCheck, threshold int) *bool {
	if len(checks) == 0 {
		return nil
	}
	passed := ComputeOverallScore(checks) >= threshold && !HasCriticalFailure(checks)
	return &passed
}

// OpenActionItems returns checks with actionRequired and no actionTaken
func OpenActionItems(checks []*QualityCheck) []*QualityCheck {
	open := make([]*QualityCheck, 0)
	for _, c := range checks {
		if c.IsOpenActionItem() {
			open = append(open, c)
		}
	}
	return open
}

// QualitySummary is the aggregate view over one snapshot of a batch's checks
type QualitySummary struct {
	BatchID          string          `json:"batchId"`
	OverallScore     int             `json:"overallScore"`
	Verdict          *bool           `json:"verdict"`
	PassThreshold    int             `json:"passThreshold"`
	CheckCount       int             `json:"checkCount"`
	FailedCount      int             `json:"failedCount"`
	CriticalFailures []*QualityCheck `json:"criticalFailures"`
	OpenActionItems  []*QualityCheck `json:"openActionItems"`
}

// Summarize aggregates checks into a QualitySummary
func Summarize(batchID string, checks []*QualityCheck, threshold int) *QualitySummary {
	summary := &QualitySummary{
		BatchID:          batchID,
		OverallScore:     ComputeOverallScore(checks),
		Verdict:          ComputeVerdict(checks, threshold),
		PassThreshold:    threshold,
		CheckCount:       len(checks),
		CriticalFailures: make([]*QualityCheck, 0),
		OpenActionItems:  OpenActionItems(checks),
	}
	for _, c := range checks {
		if !c.Passed {
			summary.FailedCount++
		}
		if c.IsCriticalFailure() {
			summary.CriticalFailures = append(summary.CriticalFailures, c)
		}
	}
	return summary
}
