package evaluation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hsy-tunnel/tunnel-sim/sim"
)

var testStart = time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)

// testRecord builds n rows starting at 2.00 m with 800 m³ inflow per step
// and pump 1.2 recorded at 50 Hz.
func testRecord(t *testing.T, n int) *sim.MemoryRecord {
	t.Helper()
	rows := make([]sim.HistoricalRow, n)
	for i := range rows {
		rows[i] = sim.HistoricalRow{
			Timestamp:       testStart.Add(time.Duration(i) * sim.DefaultStepDuration),
			InflowM3:        800,
			PriceNormal:     0.10,
			PriceHigh:       0.25,
			PumpFrequencyHz: map[string]float64{"1.2": 50, "2.2": 0},
		}
	}
	rows[0].LevelM, rows[0].HasLevel = 2.0, true
	rec, err := sim.NewMemoryRecord(rows)
	require.NoError(t, err)
	return rec
}

func testOrchestrator(t *testing.T, rec sim.HistoricalRecord, mutate func(*Config)) *Orchestrator {
	t.Helper()
	table, err := sim.NewCalibrationTable([]sim.CalibrationPoint{
		{LevelM: 0, VolumeM3: 0},
		{LevelM: 1, VolumeM3: 3000},
		{LevelM: 3, VolumeM3: 11000},
		{LevelM: 8, VolumeM3: 31000},
		{LevelM: 14, VolumeM3: 55000},
	})
	require.NoError(t, err)
	model, err := sim.NewPumpPerformanceModel(sim.DefaultPumpModelConfig())
	require.NoError(t, err)
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	orch, err := NewOrchestrator(rec, table, model, cfg)
	require.NoError(t, err)
	return orch
}

// replay mirrors the historical replay without importing the policy package.
type replay struct {
	rec sim.HistoricalRecord
}

func (r replay) Name() string { return "baseline" }

func (r replay) Decide(_ context.Context, state sim.SystemState) ([]sim.PumpCommand, error) {
	row, _ := r.rec.Row(state.RecordIndex)
	f := row.PumpFrequencyHz["1.2"]
	return []sim.PumpCommand{{PumpID: "1.2", Run: f > 0, FrequencyHz: f}}, nil
}

// scripted returns fixed commands, failing from step failAt (0 = never).
type scripted struct {
	name     string
	commands []sim.PumpCommand
	failAt   int
	calls    int
	failWith error
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) Decide(_ context.Context, _ sim.SystemState) ([]sim.PumpCommand, error) {
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return nil, s.failWith
	}
	return s.commands, nil
}

// recordingObserver counts the events it receives.
type recordingObserver struct {
	mu        sync.Mutex
	decisions int
	failures  int
	steps     int
	runs      map[TerminationReason]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{runs: make(map[TerminationReason]int)}
}

func (o *recordingObserver) ObserveDecision(_ string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions++
	if err != nil {
		o.failures++
	}
}

func (o *recordingObserver) ObserveStep(_ string, _ sim.SystemState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps++
}

func (o *recordingObserver) ObserveRun(_ string, reason TerminationReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs[reason]++
}
