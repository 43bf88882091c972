package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateWith(ts time.Time, level, inflow float64, pumps ...PumpStatus) SystemState {
	flow := 0.0
	for _, p := range pumps {
		flow += p.FlowM3H
	}
	return SystemState{Timestamp: ts, LevelM: level, InflowM3: inflow, OutflowM3H: flow, Pumps: pumps}
}

func running(id string, hz float64) PumpStatus {
	return PumpStatus{PumpID: id, Running: true, FrequencyHz: hz, FlowM3H: 3330 * hz / 50}
}

func stopped(id string) PumpStatus {
	return PumpStatus{PumpID: id}
}

func countType(vs []Violation, vt ViolationType) int {
	n := 0
	for _, v := range vs {
		if v.Type == vt {
			n++
		}
	}
	return n
}

func TestConstraintMonitor_NominalState_NoViolations(t *testing.T) {
	m := NewConstraintMonitor(DefaultConstraintConfig())
	vs := m.Evaluate(stateWith(testStart, 3, 500, running("1.2", 49)), NewRuntimeHistory())
	assert.Empty(t, vs)
}

func TestConstraintMonitor_NoPumpsRunning_ExactlyOneCritical(t *testing.T) {
	// GIVEN a state where no commanded pump runs
	m := NewConstraintMonitor(DefaultConstraintConfig())
	s := stateWith(testStart, 3, 500, stopped("1.2"), stopped("2.2"))

	// WHEN evaluated
	vs := m.Evaluate(s, NewRuntimeHistory())

	// THEN exactly one critical NO_PUMPS_RUNNING violation is reported
	require.Equal(t, 1, countType(vs, ViolationNoPumpsRunning))
	for _, v := range vs {
		if v.Type == ViolationNoPumpsRunning {
			assert.Equal(t, SeverityCritical, v.Severity)
		}
	}
}

func TestConstraintMonitor_LevelLimits(t *testing.T) {
	m := NewConstraintMonitor(DefaultConstraintConfig())
	tests := []struct {
		level     float64
		violation bool
		alarm     bool
	}{
		{-0.1, true, false},
		{0, false, false},
		{7.2, false, false},
		{7.5, false, true},
		{8.0, false, true},
		{8.01, true, false},
	}
	for _, tt := range tests {
		s := stateWith(testStart, tt.level, 500, running("1.2", 50))
		vs := m.Evaluate(s, nil)
		assert.Equal(t, tt.violation, countType(vs, ViolationLevelOutOfRange) == 1, "level %v", tt.level)
		assert.Equal(t, tt.alarm, m.LevelAlarm(s), "alarm at level %v", tt.level)
	}
}

func TestConstraintMonitor_FlowLimit(t *testing.T) {
	m := NewConstraintMonitor(DefaultConstraintConfig())
	pumps := []PumpStatus{}
	// four large pumps at 50 Hz: 13320 m³/h
	for _, id := range []string{"1.2", "1.3", "1.4", "2.2"} {
		pumps = append(pumps, running(id, 50))
	}
	assert.Zero(t, countType(m.Evaluate(stateWith(testStart, 3, 500, pumps...), nil), ViolationFlowLimitExceeded))

	// a fifth: 16650 m³/h
	pumps = append(pumps, running("2.3", 50))
	vs := m.Evaluate(stateWith(testStart, 3, 500, pumps...), nil)
	assert.Equal(t, 1, countType(vs, ViolationFlowLimitExceeded))
}

func TestConstraintMonitor_FrequencyRange(t *testing.T) {
	m := NewConstraintMonitor(DefaultConstraintConfig())
	h := NewRuntimeHistory()
	// pump 1.2 already running: no ramp allowance
	h.Record(stateWith(testStart, 3, 500, running("1.2", 50)), m.Config())

	next := testStart.Add(DefaultStepDuration)
	vs := m.Evaluate(stateWith(next, 3, 500, running("1.2", 47.0)), h)
	assert.Equal(t, 1, countType(vs, ViolationFrequencyOutOfRange))

	vs = m.Evaluate(stateWith(next, 3, 500, running("1.2", 50.5)), h)
	assert.Equal(t, 1, countType(vs, ViolationFrequencyOutOfRange))

	vs = m.Evaluate(stateWith(next, 3, 500, running("1.2", 47.8)), h)
	assert.Zero(t, countType(vs, ViolationFrequencyOutOfRange))
}

func TestConstraintMonitor_FrequencyRamp_AllowsLowFrequencyOnStart(t *testing.T) {
	m := NewConstraintMonitor(DefaultConstraintConfig())
	h := NewRuntimeHistory()

	// GIVEN pump 2.2 starting this step at 30 Hz
	vs := m.Evaluate(stateWith(testStart, 3, 500, running("2.2", 30)), h)

	// THEN the ramp relaxes the lower bound
	assert.Zero(t, countType(vs, ViolationFrequencyOutOfRange))

	// AND above-nominal frequency is still rejected during a ramp
	vs = m.Evaluate(stateWith(testStart, 3, 500, running("2.2", 51)), h)
	assert.Equal(t, 1, countType(vs, ViolationFrequencyOutOfRange))
}

func TestConstraintMonitor_MinRuntime(t *testing.T) {
	cfg := DefaultConstraintConfig()
	m := NewConstraintMonitor(cfg)
	h := NewRuntimeHistory()

	// GIVEN pump 1.2 started at t0 and running for 1 hour
	ts := testStart
	for i := 0; i < 4; i++ {
		s := stateWith(ts, 3, 500, running("1.2", 50), stopped("2.2"))
		require.Empty(t, m.Evaluate(s, h))
		h.Record(s, cfg)
		ts = ts.Add(DefaultStepDuration)
	}
	assert.Equal(t, 45*time.Minute, h.Runtime("1.2", ts.Add(-DefaultStepDuration)))

	// WHEN it stops after 1h
	vs := m.Evaluate(stateWith(ts, 3, 500, stopped("1.2"), running("2.2", 50)), h)

	// THEN a minimum-runtime violation is recorded
	require.Equal(t, 1, countType(vs, ViolationMinRuntime))
	assert.Equal(t, "1.2", vs[0].PumpID)
	assert.InDelta(t, 1.0, vs[0].Value, 1e-9)
}

func TestConstraintMonitor_MinRuntime_SatisfiedAfterTwoHours(t *testing.T) {
	cfg := DefaultConstraintConfig()
	m := NewConstraintMonitor(cfg)
	h := NewRuntimeHistory()

	ts := testStart
	for i := 0; i < 8; i++ {
		s := stateWith(ts, 3, 500, running("1.2", 50))
		h.Record(s, cfg)
		ts = ts.Add(DefaultStepDuration)
	}

	vs := m.Evaluate(stateWith(ts, 3, 500, stopped("1.2"), running("2.2", 50)), h)
	assert.Zero(t, countType(vs, ViolationMinRuntime))
}

func TestConstraintMonitor_MinRuntime_PumpDroppedFromCommands(t *testing.T) {
	cfg := DefaultConstraintConfig()
	m := NewConstraintMonitor(cfg)
	h := NewRuntimeHistory()
	h.Record(stateWith(testStart, 3, 500, running("1.2", 50)), cfg)

	// 1.2 is simply absent from the next step's commands
	vs := m.Evaluate(stateWith(testStart.Add(DefaultStepDuration), 3, 500, running("2.2", 50)), h)
	assert.Equal(t, 1, countType(vs, ViolationMinRuntime))

	h.Record(stateWith(testStart.Add(DefaultStepDuration), 3, 500, running("2.2", 50)), cfg)
	assert.False(t, h.WasRunning("1.2"))
}

func TestConstraintMonitor_DailyEmptying(t *testing.T) {
	cfg := DefaultConstraintConfig()
	m := NewConstraintMonitor(cfg)

	run := func(level, inflow float64) int {
		h := NewRuntimeHistory()
		ts := testStart
		missed := 0
		// 25 hours of steps
		for i := 0; i < 100; i++ {
			s := stateWith(ts, level, inflow, running("1.2", 50))
			missed += countType(m.Evaluate(s, h), ViolationDailyEmptyingMissed)
			h.Record(s, cfg)
			ts = ts.Add(DefaultStepDuration)
		}
		return missed
	}

	// dry weather, never emptied: one violation when the 24h window closes
	assert.Equal(t, 1, run(3, 500))
	// wet weather: the rule does not apply
	assert.Equal(t, 0, run(3, 1500))
	// dry weather but kept at the emptying level
	assert.Equal(t, 0, run(0.4, 500))
}
