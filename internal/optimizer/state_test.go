package optimizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveless/driveless/internal/optimizer"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to optimizer.State
		want     bool
	}{
		{optimizer.StateIdle, optimizer.StateResolving, true},
		{optimizer.StateIdle, optimizer.StateOrdering, false},
		{optimizer.StateResolving, optimizer.StateOrdering, true},
		{optimizer.StateResolving, optimizer.StateFailed, true},
		{optimizer.StateOrdering, optimizer.StateTrafficRefinement, true},
		{optimizer.StateOrdering, optimizer.StateAggregating, true},
		{optimizer.StateOrdering, optimizer.StateFailed, true},
		{optimizer.StateTrafficRefinement, optimizer.StateAggregating, true},
		{optimizer.StateTrafficRefinement, optimizer.StateFailed, true},
		{optimizer.StateTrafficRefinement, optimizer.StateOrdering, false},
		{optimizer.StateAggregating, optimizer.StateReady, true},
		{optimizer.StateAggregating, optimizer.StateFailed, false},
		{optimizer.StateReady, optimizer.StateIdle, false},
		{optimizer.StateFailed, optimizer.StateResolving, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, optimizer.CanTransition(tt.from, tt.to))
		})
	}
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, optimizer.StateReady.Terminal())
	assert.True(t, optimizer.StateFailed.Terminal())
	assert.False(t, optimizer.StateIdle.Terminal())
	assert.False(t, optimizer.StateAggregating.Terminal())
}

func TestRun_Transition(t *testing.T) {
	var seen []string
	run := optimizer.NewRun("run-1", func(id string, from, to optimizer.State) {
		assert.Equal(t, "run-1", id)
		seen = append(seen, string(from)+"->"+string(to))
	})
	assert.Equal(t, optimizer.StateIdle, run.State())

	require.NoError(t, run.Transition(optimizer.StateResolving))
	require.NoError(t, run.Transition(optimizer.StateFailed))

	err := run.Transition(optimizer.StateOrdering)
	assert.ErrorIs(t, err, optimizer.ErrInvalidTransition)
	assert.Equal(t, optimizer.StateFailed, run.State())
	assert.Equal(t, []string{"idle->resolving", "resolving->failed"}, seen)
}
