package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func check(checkType CheckType, passed bool, score *int, severity *Severity) *QualityCheck {
	return &QualityCheck{CheckType: checkType, Passed: passed, Score: score, Severity: severity}
}

func TestComputeOverallScore(t *testing.T) {
	assert.Equal(t, 0, ComputeOverallScore(nil))

	checks := []*QualityCheck{
		check(CheckTypeTaste, true, nil, nil),
		check(CheckTypeHygiene, false, nil, nil),
		check(CheckTypeSafety, true, intPtr(85), nil),
	}
	// (100 + 0 + 85) / 3 = 61.67
	assert.Equal(t, 62, ComputeOverallScore(checks))
	assert.Equal(t, 62, ComputeOverallScore(checks), "pure function")

	// adding one check moves the mean by (s - mean) / (n + 1)
	extended := append(checks, check(CheckTypeAppearance, true, intPtr(70), nil))
	assert.Equal(t, 64, ComputeOverallScore(extended))
}

func TestComputeVerdict_ScenarioThresholdPass(t *testing.T) {
	checks := []*QualityCheck{
		check(CheckTypeTemperature, true, intPtr(90), nil),
		check(CheckTypeHygiene, true, intPtr(80), nil),
		check(CheckTypeSafety, false, intPtr(40), sevPtr(SeverityLow)),
	}

	assert.Equal(t, 70, ComputeOverallScore(checks))
	verdict := ComputeVerdict(checks, DefaultPassThreshold)
	require.NotNil(t, verdict)
	assert.True(t, *verdict)
}

func TestComputeVerdict_CriticalFailureVetoes(t *testing.T) {
	checks := []*QualityCheck{
		check(CheckTypeTemperature, true, intPtr(90), nil),
		check(CheckTypeHygiene, true, intPtr(80), nil),
		check(CheckTypeSafety, false, intPtr(40), sevPtr(SeverityCritical)),
	}

	assert.Equal(t, 70, ComputeOverallScore(checks))
	verdict := ComputeVerdict(checks, DefaultPassThreshold)
	require.NotNil(t, verdict)
	assert.False(t, *verdict)

	// a critical failure vetoes even a perfect average
	perfect := []*QualityCheck{
		check(CheckTypeTaste, true, intPtr(100), nil),
		check(CheckTypeSafety, false, intPtr(100), sevPtr(SeverityCritical)),
	}
	assert.False(t, *ComputeVerdict(perfect, DefaultPassThreshold))

	// a passed CRITICAL check does not veto
	passedCritical := []*QualityCheck{check(CheckTypeSafety, true, nil, sevPtr(SeverityCritical))}
	assert.True(t, *ComputeVerdict(passedCritical, DefaultPassThreshold))
}

func TestComputeVerdict_EmptyIsUndefined(t *testing.T) {
	assert.Nil(t, ComputeVerdict(nil, DefaultPassThreshold))
	assert.Nil(t, ComputeVerdict([]*QualityCheck{}, DefaultPassThreshold))
}

func TestOpenActionItems(t *testing.T) {
	open := &QualityCheck{ID: "open", ActionRequired: true}
	resolved := &QualityCheck{ID: "resolved", ActionRequired: true, ActionTaken: strPtr("re-heated to 75C")}
	none := &QualityCheck{ID: "none"}

	items := OpenActionItems([]*QualityCheck{open, resolved, none})
	require.Len(t, items, 1)
	assert.Equal(t, "open", items[0].ID)
}

func TestSummarize(t *testing.T) {
	checks := []*QualityCheck{
		{ID: "a", Passed: true, Score: intPtr(90)},
		{ID: "b", Passed: false, Score: intPtr(20), Severity: sevPtr(SeverityCritical), ActionRequired: true},
	}

	s := Summarize("batch-1", checks, DefaultPassThreshold)
	assert.Equal(t, 55, s.OverallScore)
	assert.False(t, *s.Verdict)
	assert.Equal(t, 2, s.CheckCount)
	assert.Equal(t, 1, s.FailedCount)
	assert.Len(t, s.CriticalFailures, 1)
	assert.Len(t, s.OpenActionItems, 1)

	empty := Summarize("batch-2", nil, DefaultPassThreshold)
	assert.Nil(t, empty.Verdict)
	assert.NotNil(t, empty.CriticalFailures)
	assert.NotNil(t, empty.OpenActionItems)
}

func TestNewQualityCheck_StatusGate(t *testing.T) {
	input := QualityCheckInput{
		CheckType:   CheckTypeTemperature,
		Parameter:   "core temperature",
		ActualValue: "74C",
		Passed:      true,
	}

	for _, status := range AllStatuses() {
		t.Run(string(status), func(t *testing.T) {
			batch := batchInStatus(t, status)
			qc, err := NewQualityCheck(batch, input, "inspector-1", testNow)
			if status == StatusCooking || status == StatusQualityCheck {
				require.NoError(t, err)
				assert.Equal(t, batch.ID, qc.BatchID)
				assert.Equal(t, "inspector-1", qc.CheckedBy)
				assert.Equal(t, testNow, qc.CheckTime)
				return
			}
			assert.Nil(t, qc)
			assert.True(t, IsState(err))
		})
	}
}

func TestNewQualityCheck_Validation(t *testing.T) {
	batch := batchInStatus(t, StatusCooking)
	at := testNow.Add(-time.Minute)

	tests := []struct {
		name  string
		input QualityCheckInput
		field string
	}{
		{"unknown type", QualityCheckInput{CheckType: "SMELL", Parameter: "p", ActualValue: "v"}, "checkType"},
		{"missing parameter", QualityCheckInput{CheckType: CheckTypeTaste, ActualValue: "v"}, "parameter"},
		{"missing actual value", QualityCheckInput{CheckType: CheckTypeTaste, Parameter: "p"}, "actualValue"},
		{"score above 100", QualityCheckInput{CheckType: CheckTypeTaste, Parameter: "p", ActualValue: "v", Score: intPtr(101)}, "score"},
		{"unknown severity", QualityCheckInput{CheckType: CheckTypeTaste, Parameter: "p", ActualValue: "v", Severity: sevPtr("URGENT")}, "severity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.CheckTime = &at
			_, err := NewQualityCheck(batch, tt.input, "inspector-1", testNow)
			require.Error(t, err)
			assert.Contains(t, err.(*DomainError).Fields, tt.field)
		})
	}
}
