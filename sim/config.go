package sim

import "time"

// DefaultStepDuration is the fixed interval of the historical record.
const DefaultStepDuration = 15 * time.Minute

// DefaultInitialLevelM is used when the start row carries no historical level.
const DefaultInitialLevelM = 2.0

// KernelConfig groups the tank kernel's initial condition and time base.
type KernelConfig struct {
	StepDuration  time.Duration // simulated interval per step (default 15 min)
	InitialLevelM float64       // starting level; initial volume is derived from the calibration table
	StartTime     time.Time     // timestamp of the first step
}

// StepHours returns the step duration in hours.
func (c KernelConfig) StepHours() float64 {
	if c.StepDuration <= 0 {
		return DefaultStepDuration.Hours()
	}
	return c.StepDuration.Hours()
}

// LevelLimits groups the tunnel water level thresholds (metres).
type LevelLimits struct {
	MinM   float64 // hard lower limit
	MaxM   float64 // hard upper limit
	AlarmM float64 // informational alarm threshold, not a violation
	EmptyM float64 // level that counts as "emptied" for the daily emptying rule
}

// ConstraintConfig groups the operational limits checked after every step.
type ConstraintConfig struct {
	Level              LevelLimits
	MaxTotalFlowM3H    float64       // aggregate pumped flow limit
	MinFrequencyHz     float64       // lower bound for a running pump outside a ramp
	MaxFrequencyHz     float64       // upper bound for a running pump
	MinRuntime         time.Duration // minimum continuous runtime before a stop
	EmptyingInterval   time.Duration // window for the emptying requirement
	DryWeatherInflowM3 float64       // per-step inflow below which weather counts as dry
}

// DefaultConstraintConfig returns the station's operating limits.
func DefaultConstraintConfig() ConstraintConfig {
	return ConstraintConfig{
		Level: LevelLimits{
			MinM:   0.0,
			MaxM:   8.0,
			AlarmM: 7.2,
			EmptyM: 0.5,
		},
		MaxTotalFlowM3H:    16000.0,
		MinFrequencyHz:     47.8,
		MaxFrequencyHz:     50.0,
		MinRuntime:         2 * time.Hour,
		EmptyingInterval:   24 * time.Hour,
		DryWeatherInflowM3: 1000.0,
	}
}

// GuardConfig controls the post-decision command guard.
// The guard is policy: the kernel itself never adds pumps.
type GuardConfig struct {
	EnforceActivePump bool        // force one pump on when a decision leaves none running
	Fallback          PumpCommand // command used for the forced pump
}

// DefaultGuardConfig starts pump 1.1 at the minimum operating frequency.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		EnforceActivePump: true,
		Fallback:          PumpCommand{PumpID: "1.1", Run: true, FrequencyHz: 47.8},
	}
}
