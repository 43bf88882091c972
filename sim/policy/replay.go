package policy

import (
	"context"
	"fmt"
	"sort"

	"github.com/hsy-tunnel/tunnel-sim/sim"
)

// BaselineName is the source name of the historical replay.
const BaselineName = "baseline"

// BaselineReplay replays the recorded drive frequencies at each step. A pump
// whose historical frequency is above zero runs at exactly that frequency.
// It never corrects the record: a row with every pump stopped yields a
// command list with no running pump.
type BaselineReplay struct {
	record sim.HistoricalRecord
}

// NewBaselineReplay returns a replay of record.
func NewBaselineReplay(record sim.HistoricalRecord) *BaselineReplay {
	return &BaselineReplay{record: record}
}

func (b *BaselineReplay) Name() string { return BaselineName }

// Decide returns the commands recorded for state.RecordIndex, sorted by pump id.
func (b *BaselineReplay) Decide(_ context.Context, state sim.SystemState) ([]sim.PumpCommand, error) {
	row, ok := b.record.Row(state.RecordIndex)
	if !ok {
		return nil, &sim.DecisionError{
			Source:      BaselineName,
			RecordIndex: state.RecordIndex,
			Err:         fmt.Errorf("no historical row %d", state.RecordIndex),
		}
	}
	ids := make([]string, 0, len(row.PumpFrequencyHz))
	for id := range row.PumpFrequencyHz {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	commands := make([]sim.PumpCommand, 0, len(ids))
	for _, id := range ids {
		f := row.PumpFrequencyHz[id]
		if f > 0 {
			commands = append(commands, sim.PumpCommand{PumpID: id, Run: true, FrequencyHz: f})
		} else {
			commands = append(commands, sim.PumpCommand{PumpID: id, Run: false})
		}
	}
	return commands, nil
}
