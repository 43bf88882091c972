package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)

// testTable is piecewise linear with 4000 m³/m above 1 m.
func testTable(t *testing.T) *CalibrationTable {
	t.Helper()
	table, err := NewCalibrationTable([]CalibrationPoint{
		{LevelM: 0, VolumeM3: 0},
		{LevelM: 1, VolumeM3: 3000},
		{LevelM: 3, VolumeM3: 11000},
		{LevelM: 8, VolumeM3: 31000},
		{LevelM: 14, VolumeM3: 55000},
	})
	require.NoError(t, err)
	return table
}

func testModel(t *testing.T) *PumpPerformanceModel {
	t.Helper()
	m, err := NewPumpPerformanceModel(DefaultPumpModelConfig())
	require.NoError(t, err)
	return m
}

func testKernel(t *testing.T, levelM float64) *TankKernel {
	t.Helper()
	k, err := NewTankKernel(KernelConfig{
		StepDuration:  DefaultStepDuration,
		InitialLevelM: levelM,
		StartTime:     testStart,
	}, testTable(t), testModel(t))
	require.NoError(t, err)
	return k
}

// fixedModel reports the same operating point for every running pump.
type fixedModel struct {
	perf PumpPerformance
}

func (f fixedModel) Performance(_ string, frequencyHz, _ float64) PumpPerformance {
	if frequencyHz <= 0 {
		return PumpPerformance{}
	}
	return f.perf
}
