package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTankKernel_DerivesVolumeFromLevel(t *testing.T) {
	k := testKernel(t, 2.0)
	s := k.Peek(0, 0, 0)
	assert.InDelta(t, 7000.0, s.VolumeM3, 1e-9)
	assert.InDelta(t, 2.0, s.LevelM, 1e-9)
	assert.Equal(t, testStart, s.Timestamp)
}

func TestNewTankKernel_RejectsMissingCollaborators(t *testing.T) {
	_, err := NewTankKernel(KernelConfig{}, nil, testModel(t))
	assert.Error(t, err)
	_, err = NewTankKernel(KernelConfig{InitialLevelM: math.NaN()}, testTable(t), testModel(t))
	assert.Error(t, err)
}

func TestTankKernel_Step_HandComputedScenario(t *testing.T) {
	// GIVEN level 2.00 m (7000 m³) and one large pump at 50 Hz (3330 m³/h)
	k := testKernel(t, 2.0)

	// WHEN 800 m³ flows in during the step
	s := k.Step(800, []PumpCommand{{PumpID: "1.2", Run: true, FrequencyHz: 50}}, 0.1, 0)

	// THEN V = 7000 + 800 - 3330*0.25 = 6967.5 m³ and L = 1 + 3967.5/4000
	assert.InDelta(t, 6967.5, s.VolumeM3, 1e-9)
	assert.Equal(t, math.Round(1.991875*1000)/1000, math.Round(s.LevelM*1000)/1000)
	assert.InDelta(t, 3330.0, s.OutflowM3H, 1e-9)
	assert.InDelta(t, 832.5, s.PumpedVolumeM3, 1e-9)
	assert.InDelta(t, 381.1*0.25, s.StepEnergyKWh, 1e-9)
	assert.InDelta(t, 381.1*0.25*0.1, s.StepCostEUR, 1e-9)
	assert.Equal(t, 1, s.ActivePumpCount())
}

func TestTankKernel_Step_RunAtZeroFrequency_PumpIsOff(t *testing.T) {
	// GIVEN pump 1.2 commanded to run at 0 Hz
	k := testKernel(t, 2.0)

	// WHEN the step executes
	s := k.Step(800, []PumpCommand{{PumpID: "1.2", Run: true, FrequencyHz: 0}}, 0.1, 0)

	// THEN the pump is reported off with no flow or power
	require.Len(t, s.Pumps, 1)
	assert.False(t, s.Pumps[0].Running)
	assert.Zero(t, s.OutflowM3H)
	assert.Zero(t, s.TotalPowerKW)
	assert.Zero(t, s.ActivePumpCount())
	assert.InDelta(t, 7800.0, s.VolumeM3, 1e-9)

	// AND the monitor flags the station as having no pumps running
	vs := NewConstraintMonitor(DefaultConstraintConfig()).Evaluate(s, nil)
	assert.Equal(t, 1, countType(vs, ViolationNoPumpsRunning))
	assert.Zero(t, countType(vs, ViolationFrequencyOutOfRange))
}

func TestTankKernel_Step_InflowEqualsOutflow_LevelUnchanged(t *testing.T) {
	k := testKernel(t, 4.2)
	before := k.Peek(0, 0, 0).LevelM

	s := k.Step(832.5, []PumpCommand{{PumpID: "1.3", Run: true, FrequencyHz: 50}}, 0.2, 0)

	assert.InDelta(t, before, s.LevelM, 1e-9)
}

func TestTankKernel_Step_VolumeNeverNegative(t *testing.T) {
	// GIVEN a nearly empty tunnel and every pump at full speed
	k := testKernel(t, 0.2)
	var cmds []PumpCommand
	for _, id := range testModel(t).PumpIDs() {
		cmds = append(cmds, PumpCommand{PumpID: id, Run: true, FrequencyHz: 50})
	}

	// WHEN several steps run with no inflow
	for i := 0; i < 5; i++ {
		s := k.Step(0, cmds, 0.1, i)
		// THEN the volume clamps at zero
		assert.GreaterOrEqual(t, s.VolumeM3, 0.0)
		assert.InDelta(t, 0.0, s.VolumeM3, 1e-9)
	}
}

func TestTankKernel_Step_LevelNotClampedAboveMaximum(t *testing.T) {
	k := testKernel(t, 7.9)
	s := k.Step(5000, nil, 0.1, 0)
	assert.Greater(t, s.LevelM, 8.0)
}

func TestTankKernel_Step_StoppedPumpsCarryNoFlow(t *testing.T) {
	k := testKernel(t, 3.0)
	s := k.Step(100, []PumpCommand{
		{PumpID: "1.2", Run: false, FrequencyHz: 50},
		{PumpID: "2.1", Run: true, FrequencyHz: 48},
	}, 0.1, 0)

	stopped, ok := s.Pump("1.2")
	require.True(t, ok)
	assert.False(t, stopped.Running)
	assert.Zero(t, stopped.FlowM3H)
	assert.Zero(t, stopped.PowerKW)
	assert.InDelta(t, 464*3.6*48/50, s.OutflowM3H, 1e-9)
}

func TestTankKernel_Step_DuplicateCommandsLastWins(t *testing.T) {
	k := testKernel(t, 3.0)
	s := k.Step(0, []PumpCommand{
		{PumpID: "1.2", Run: true, FrequencyHz: 50},
		{PumpID: "1.2", Run: true, FrequencyHz: 25},
	}, 0.1, 0)
	require.Len(t, s.Pumps, 1)
	assert.Equal(t, 25.0, s.Pumps[0].FrequencyHz)
}

func TestTankKernel_Step_AdvancesClockAndAccumulates(t *testing.T) {
	k := testKernel(t, 3.0)
	cmds := []PumpCommand{{PumpID: "1.2", Run: true, FrequencyHz: 50}}

	s0 := k.Step(500, cmds, 0.1, 0)
	s1 := k.Step(500, cmds, 0.3, 1)

	assert.Equal(t, testStart, s0.Timestamp)
	assert.Equal(t, testStart.Add(DefaultStepDuration), s1.Timestamp)
	assert.Equal(t, testStart.Add(2*DefaultStepDuration), k.Clock())
	assert.InDelta(t, s0.StepCostEUR+s1.StepCostEUR, s1.CumulativeCostEUR, 1e-9)
	assert.InDelta(t, s0.StepEnergyKWh+s1.StepEnergyKWh, s1.CumulativeEnergyKWh, 1e-9)
}

func TestTankKernel_Step_UsesPreStepLevelForHead(t *testing.T) {
	k := testKernel(t, 3.0)
	s := k.Step(0, []PumpCommand{{PumpID: "1.2", Run: true, FrequencyHz: 50}}, 0.1, 0)
	assert.InDelta(t, DefaultWWTPElevationM-3.0, s.Pumps[0].HeadM, 1e-9)
}

func TestTankKernel_Step_SnapshotsAreIndependent(t *testing.T) {
	k := testKernel(t, 3.0)
	s := k.Step(0, []PumpCommand{{PumpID: "1.2", Run: true, FrequencyHz: 50}}, 0.1, 0)
	s.Pumps[0].FrequencyHz = 1

	peek := k.Peek(0, 0, 1)
	assert.Equal(t, 50.0, peek.Pumps[0].FrequencyHz)
}

func TestTankKernel_Step_CustomModel(t *testing.T) {
	// GIVEN a model reporting 4000 m³/h per running pump and a 30 minute step
	k, err := NewTankKernel(KernelConfig{StepDuration: 2 * DefaultStepDuration, InitialLevelM: 3, StartTime: testStart},
		testTable(t), fixedModel{perf: PumpPerformance{FlowM3H: 4000, PowerKW: 100}})
	require.NoError(t, err)

	s := k.Step(0, []PumpCommand{{PumpID: "x", Run: true, FrequencyHz: 50}}, 1, 0)

	assert.InDelta(t, 11000-2000.0, s.VolumeM3, 1e-9)
	assert.InDelta(t, 50.0, s.StepEnergyKWh, 1e-9)
	assert.InDelta(t, 0.5, k.StepHours(), 1e-12)
}
