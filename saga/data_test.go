package saga

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminal(t *testing.T) {
	testcases := []struct {
		name         string
		status       SagaStatus
		wantTerminal bool
	}{
		{
			name:         "started is not terminal",
			status:       SagaStarted,
			wantTerminal: false,
		},
		{
			name:         "processing is not terminal",
			status:       SagaProcessing,
			wantTerminal: false,
		},
		{
			name:         "compensating is not terminal",
			status:       SagaCompensating,
			wantTerminal: false,
		},
		{
			name:         "succeeded is terminal",
			status:       SagaSucceeded,
			wantTerminal: true,
		},
		{
			name:         "failed is terminal",
			status:       SagaFailed,
			wantTerminal: true,
		},
		{
			name:         "compensated is terminal",
			status:       SagaCompensated,
			wantTerminal: true,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantTerminal, tc.status.Terminal())
		})
	}
}

func TestTerminalSagaStatuses(t *testing.T) {
	statuses := TerminalSagaStatuses()
	assert.Len(t, statuses, 3)
	for _, s := range statuses {
		assert.True(t, s.Terminal())
	}
}

func TestOutcomeString(t *testing.T) {
	testcases := []struct {
		name    string
		outcome Outcome
		want    string
	}{
		{
			name:    "applied",
			outcome: OutcomeApplied,
			want:    "APPLIED",
		},
		{
			name:    "already processed",
			outcome: OutcomeAlreadyProcessed,
			want:    "ALREADY_PROCESSED",
		},
		{
			name:    "conflict",
			outcome: OutcomeConflict,
			want:    "CONFLICT",
		},
		{
			name:    "not found",
			outcome: OutcomeNotFound,
			want:    "NOT_FOUND",
		},
		{
			name:    "unknown",
			outcome: Outcome(42),
			want:    "UNKNOWN",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.outcome.String())
		})
	}
}
