package policy

import (
	"time"

	"github.com/hsy-tunnel/tunnel-sim/sim"
)

const (
	// DefaultHorizonSteps is the forecast horizon (6 h of 15-minute steps).
	DefaultHorizonSteps = 24
	// DefaultStormThresholdM3 is the per-step inflow that marks a storm.
	DefaultStormThresholdM3 = 1500.0
)

// Forecaster predicts the per-step inflow volume of the next horizon steps,
// starting with the step about to be simulated.
type Forecaster interface {
	Forecast(state sim.SystemState, horizon int) []float64
}

// RecordForecaster is a perfect-foresight forecaster reading the inflow of
// the historical record. Past the end of the record the last known value is
// held.
type RecordForecaster struct {
	record sim.HistoricalRecord
}

// NewRecordForecaster returns a forecaster over record.
func NewRecordForecaster(record sim.HistoricalRecord) *RecordForecaster {
	return &RecordForecaster{record: record}
}

func (f *RecordForecaster) Forecast(state sim.SystemState, horizon int) []float64 {
	out := make([]float64, horizon)
	last := state.InflowM3
	for i := range out {
		if row, ok := f.record.Row(state.RecordIndex + i); ok {
			last = row.InflowM3
		}
		out[i] = last
	}
	return out
}

// Persistence forecasts the current inflow for the whole horizon.
type Persistence struct{}

func (Persistence) Forecast(state sim.SystemState, horizon int) []float64 {
	out := make([]float64, horizon)
	for i := range out {
		out[i] = state.InflowM3
	}
	return out
}

// DiurnalProfile forecasts from a typical dry-weather day: one per-step
// inflow volume per hour of day.
type DiurnalProfile struct {
	HourlyM3 [24]float64
}

// DefaultDiurnalProfile is the station's average dry-weather pattern: low
// at night, a morning peak and an evening plateau.
func DefaultDiurnalProfile() DiurnalProfile {
	var p DiurnalProfile
	for h := range p.HourlyM3 {
		switch {
		case h < 6:
			p.HourlyM3[h] = 300
		case h < 12:
			p.HourlyM3[h] = 700
		case h < 18:
			p.HourlyM3[h] = 650
		default:
			p.HourlyM3[h] = 500
		}
	}
	return p
}

func (p DiurnalProfile) Forecast(state sim.SystemState, horizon int) []float64 {
	out := make([]float64, horizon)
	for i := range out {
		ts := state.Timestamp.Add(time.Duration(i) * sim.DefaultStepDuration)
		out[i] = p.HourlyM3[ts.Hour()]
	}
	return out
}

// DetectStorm reports whether any forecast value exceeds thresholdM3 and the
// index of the forecast peak.
func DetectStorm(forecast []float64, thresholdM3 float64) (storm bool, peakIndex int) {
	peak := 0.0
	for i, v := range forecast {
		if v > peak {
			peak, peakIndex = v, i
		}
	}
	return peak > thresholdM3, peakIndex
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
