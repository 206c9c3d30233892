package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchStatus_TransitionTable(t *testing.T) {
	legal := map[BatchStatus][]BatchStatus{
		StatusPlanned:      {StatusPreparing, StatusCancelled},
		StatusPreparing:    {StatusCooking, StatusCancelled},
		StatusCooking:      {StatusQualityCheck, StatusCancelled},
		StatusQualityCheck: {StatusCompleted, StatusCancelled},
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			want := false
			for _, allowed := range legal[from] {
				if allowed == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestBatchStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.Empty(t, StatusCompleted.AllowedTransitions())
	assert.Empty(t, StatusCancelled.AllowedTransitions())
	assert.False(t, StatusCooking.IsTerminal())
}

func TestParseBatchStatus(t *testing.T) {
	s, err := ParseBatchStatus("QUALITY_CHECK")
	require.NoError(t, err)
	assert.Equal(t, StatusQualityCheck, s)

	_, err = ParseBatchStatus("quality_check")
	assert.True(t, IsValidation(err))
}
