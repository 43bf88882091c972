package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureActivePump_EmptyList_AddsFallback(t *testing.T) {
	fallback := DefaultGuardConfig().Fallback

	out, corrected := EnsureActivePump(nil, fallback)

	assert.True(t, corrected)
	assert.Equal(t, 1, CountRunning(out))
	assert.Equal(t, []PumpCommand{fallback}, out)
}

func TestEnsureActivePump_AllStopped_ReplacesFallbackPump(t *testing.T) {
	fallback := PumpCommand{PumpID: "1.1", FrequencyHz: 47.8}
	in := []PumpCommand{{PumpID: "1.1"}, {PumpID: "1.2"}}

	out, corrected := EnsureActivePump(in, fallback)

	assert.True(t, corrected)
	assert.Len(t, out, 2)
	assert.Equal(t, PumpCommand{PumpID: "1.1", Run: true, FrequencyHz: 47.8}, out[0])
	// caller's slice untouched
	assert.False(t, in[0].Run)
}

func TestEnsureActivePump_AlreadyRunning_Unchanged(t *testing.T) {
	in := []PumpCommand{{PumpID: "2.2", Run: true, FrequencyHz: 49}}
	out, corrected := EnsureActivePump(in, DefaultGuardConfig().Fallback)
	assert.False(t, corrected)
	assert.Equal(t, in, out)
}

func TestDecisionError_UnwrapAndMessage(t *testing.T) {
	err := &DecisionError{Source: "http", RecordIndex: 3, Timeout: true, Err: context.DeadlineExceeded}

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "timed out")
	assert.Contains(t, err.Error(), "record 3")

	var de *DecisionError
	assert.True(t, errors.As(error(err), &de))
}

func TestParsePriceScenario(t *testing.T) {
	s, err := ParsePriceScenario("high")
	assert.NoError(t, err)
	assert.Equal(t, PriceHigh, s)
	s, err = ParsePriceScenario("")
	assert.NoError(t, err)
	assert.Equal(t, PriceNormal, s)
	_, err = ParsePriceScenario("peak")
	assert.Error(t, err)
}

func TestEnsureActivePump_RunAtZeroFrequency_Corrected(t *testing.T) {
	fallback := DefaultGuardConfig().Fallback
	in := []PumpCommand{{PumpID: "1.2", Run: true, FrequencyHz: 0}}

	out, corrected := EnsureActivePump(in, fallback)

	assert.True(t, corrected)
	assert.Equal(t, 1, CountRunning(out))
	assert.Zero(t, CountRunning(in))
}
