package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsy-tunnel/tunnel-sim/sim"
)

func TestBaselineReplay_ReplaysHistoricalFrequencies(t *testing.T) {
	// GIVEN a record where 1.2 ran at 49.5 Hz and 2.2 was stopped
	replay := NewBaselineReplay(testRecord(t, 4, 500, falling))

	// WHEN the replay decides for row 2
	cmds, err := replay.Decide(context.Background(), sim.SystemState{RecordIndex: 2})

	// THEN it returns both pumps sorted by id, verbatim
	require.NoError(t, err)
	assert.Equal(t, []sim.PumpCommand{
		{PumpID: "1.2", Run: true, FrequencyHz: 49.5},
		{PumpID: "2.2", Run: false},
	}, cmds)
	assert.Equal(t, BaselineName, replay.Name())
}

func TestBaselineReplay_BeyondRecord_ReturnsDecisionError(t *testing.T) {
	replay := NewBaselineReplay(testRecord(t, 2, 500, falling))

	_, err := replay.Decide(context.Background(), sim.SystemState{RecordIndex: 5})

	var de *sim.DecisionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 5, de.RecordIndex)
	assert.False(t, de.Timeout)
}

func TestConstant_ReturnsIndependentCopies(t *testing.T) {
	src := Constant("fixed", sim.PumpCommand{PumpID: "1.2", Run: true, FrequencyHz: 48})

	first, err := src.Decide(context.Background(), sim.SystemState{})
	require.NoError(t, err)
	first[0].FrequencyHz = 10

	second, err := src.Decide(context.Background(), sim.SystemState{})
	require.NoError(t, err)
	assert.Equal(t, 48.0, second[0].FrequencyHz)
	assert.Equal(t, "fixed", src.Name())
}
