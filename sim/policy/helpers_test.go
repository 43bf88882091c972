package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hsy-tunnel/tunnel-sim/sim"
)

var testStart = time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)

// testRecord builds n rows of constant inflow. price(i) gives the normal
// price of row i; the high price is twice that.
func testRecord(t *testing.T, n int, inflowM3 float64, price func(i int) float64) *sim.MemoryRecord {
	t.Helper()
	rows := make([]sim.HistoricalRow, n)
	for i := range rows {
		p := price(i)
		rows[i] = sim.HistoricalRow{
			Timestamp:       testStart.Add(time.Duration(i) * sim.DefaultStepDuration),
			InflowM3:        inflowM3,
			PriceNormal:     p,
			PriceHigh:       2 * p,
			PumpFrequencyHz: map[string]float64{"1.2": 49.5, "2.2": 0},
		}
	}
	rec, err := sim.NewMemoryRecord(rows)
	require.NoError(t, err)
	return rec
}

// falling prices make the current step the most expensive of the horizon.
func falling(i int) float64 { return 0.20 - 0.001*float64(i) }

// rising prices make the current step the cheapest of the horizon.
func rising(i int) float64 { return 0.05 + 0.001*float64(i) }

func testTable(t *testing.T) *sim.CalibrationTable {
	t.Helper()
	table, err := sim.NewCalibrationTable([]sim.CalibrationPoint{
		{LevelM: 0, VolumeM3: 0},
		{LevelM: 1, VolumeM3: 3000},
		{LevelM: 3, VolumeM3: 11000},
		{LevelM: 8, VolumeM3: 31000},
		{LevelM: 14, VolumeM3: 55000},
	})
	require.NoError(t, err)
	return table
}

func testModel(t *testing.T) *sim.PumpPerformanceModel {
	t.Helper()
	m, err := sim.NewPumpPerformanceModel(sim.DefaultPumpModelConfig())
	require.NoError(t, err)
	return m
}

func runningCommands(cmds []sim.PumpCommand) []sim.PumpCommand {
	var out []sim.PumpCommand
	for _, c := range cmds {
		if c.Run {
			out = append(out, c)
		}
	}
	return out
}
