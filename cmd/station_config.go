package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/hsy-tunnel/tunnel-sim/sim"
	"github.com/hsy-tunnel/tunnel-sim/sim/policy"
)

// StationConfig is the station.yaml structure. Every section is optional:
// the file is decoded over the built-in defaults, so a key that is left out
// keeps its default. The pump list, templates and aliases, when given,
// replace their defaults as a whole.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type StationConfig struct {
	WWTPElevationM float64                        `yaml:"wwtp_elevation_m"`
	InitialLevelM  float64                        `yaml:"initial_level_m"`
	Pumps          []sim.PumpSpec                 `yaml:"pumps"`
	Templates      map[sim.PumpClass]sim.PumpSpec `yaml:"templates"`
	Aliases        map[string]string              `yaml:"aliases"`
	Limits         LimitsConfig                   `yaml:"limits"`
	FallbackPump   FallbackConfig                 `yaml:"fallback_pump"`
	Heuristic      HeuristicYAML                  `yaml:"heuristic"`
}

// LimitsConfig mirrors sim.ConstraintConfig.
type LimitsConfig struct {
	LevelMinM          float64       `yaml:"level_min_m"`
	LevelMaxM          float64       `yaml:"level_max_m"`
	LevelAlarmM        float64       `yaml:"level_alarm_m"`
	LevelEmptyM        float64       `yaml:"level_empty_m"`
	MaxTotalFlowM3H    float64       `yaml:"max_total_flow_m3h"`
	MinFrequencyHz     float64       `yaml:"min_frequency_hz"`
	MaxFrequencyHz     float64       `yaml:"max_frequency_hz"`
	MinRuntime         time.Duration `yaml:"min_runtime"`
	EmptyingInterval   time.Duration `yaml:"emptying_interval"`
	DryWeatherInflowM3 float64       `yaml:"dry_weather_inflow_m3"`
}

// FallbackConfig is the pump the active-pump guard starts.
type FallbackConfig struct {
	PumpID      string  `yaml:"pump_id"`
	FrequencyHz float64 `yaml:"frequency_hz"`
}

// HeuristicYAML holds the rule-based policy's tuning.
type HeuristicYAML struct {
	LowLevelM        float64 `yaml:"low_level_m"`
	HighLevelM       float64 `yaml:"high_level_m"`
	DrainHours       float64 `yaml:"drain_hours"`
	HorizonSteps     int     `yaml:"horizon_steps"`
	CheapPercentile  float64 `yaml:"cheap_percentile"`
	StormThresholdM3 float64 `yaml:"storm_threshold_m3"`
}

// DefaultStationConfig returns the built-in station calibration and limits.
func DefaultStationConfig() StationConfig {
	pumps := sim.DefaultPumpModelConfig()
	limits := sim.DefaultConstraintConfig()
	guard := sim.DefaultGuardConfig()
	h := policy.DefaultHeuristicConfig(limits)
	return StationConfig{
		WWTPElevationM: pumps.WWTPElevationM,
		InitialLevelM:  sim.DefaultInitialLevelM,
		Pumps:          pumps.Pumps,
		Templates:      pumps.Templates,
		Aliases:        pumps.Aliases,
		Limits: LimitsConfig{
			LevelMinM:          limits.Level.MinM,
			LevelMaxM:          limits.Level.MaxM,
			LevelAlarmM:        limits.Level.AlarmM,
			LevelEmptyM:        limits.Level.EmptyM,
			MaxTotalFlowM3H:    limits.MaxTotalFlowM3H,
			MinFrequencyHz:     limits.MinFrequencyHz,
			MaxFrequencyHz:     limits.MaxFrequencyHz,
			MinRuntime:         limits.MinRuntime,
			EmptyingInterval:   limits.EmptyingInterval,
			DryWeatherInflowM3: limits.DryWeatherInflowM3,
		},
		FallbackPump: FallbackConfig{PumpID: guard.Fallback.PumpID, FrequencyHz: guard.Fallback.FrequencyHz},
		Heuristic: HeuristicYAML{
			LowLevelM:        h.LowLevelM,
			HighLevelM:       h.HighLevelM,
			DrainHours:       h.DrainHours,
			HorizonSteps:     h.HorizonSteps,
			CheapPercentile:  h.CheapPercentile,
			StormThresholdM3: h.StormThresholdM3,
		},
	}
}

// LoadStationConfig reads path over the defaults. An empty path or a missing
// file yields the defaults; unknown keys are an error.
func LoadStationConfig(path string) (StationConfig, error) {
	cfg := DefaultStationConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("station config %s not found; using built-in station", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading station config: %w", err)
	}
	return parseStationConfig(data)
}

func parseStationConfig(data []byte) (StationConfig, error) {
	defaults := DefaultStationConfig()
	cfg := defaults
	// yaml.v3 merges into non-nil maps.
	cfg.Templates, cfg.Aliases = nil, nil

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return defaults, fmt.Errorf("parsing station config: %w", err)
	}
	if cfg.Templates == nil {
		cfg.Templates = defaults.Templates
	}
	if cfg.Aliases == nil {
		cfg.Aliases = defaults.Aliases
	}
	return cfg, nil
}

// PumpModelConfig returns the pump calibration section.
func (c StationConfig) PumpModelConfig() sim.PumpModelConfig {
	return sim.PumpModelConfig{
		Pumps:          c.Pumps,
		Templates:      c.Templates,
		Aliases:        c.Aliases,
		WWTPElevationM: c.WWTPElevationM,
	}
}

// ConstraintConfig returns the operating limits.
func (c StationConfig) ConstraintConfig() sim.ConstraintConfig {
	l := c.Limits
	return sim.ConstraintConfig{
		Level: sim.LevelLimits{
			MinM:   l.LevelMinM,
			MaxM:   l.LevelMaxM,
			AlarmM: l.LevelAlarmM,
			EmptyM: l.LevelEmptyM,
		},
		MaxTotalFlowM3H:    l.MaxTotalFlowM3H,
		MinFrequencyHz:     l.MinFrequencyHz,
		MaxFrequencyHz:     l.MaxFrequencyHz,
		MinRuntime:         l.MinRuntime,
		EmptyingInterval:   l.EmptyingInterval,
		DryWeatherInflowM3: l.DryWeatherInflowM3,
	}
}

// GuardConfig returns the active-pump guard settings.
func (c StationConfig) GuardConfig(enforce bool) sim.GuardConfig {
	return sim.GuardConfig{
		EnforceActivePump: enforce,
		Fallback:          sim.PumpCommand{PumpID: c.FallbackPump.PumpID, Run: true, FrequencyHz: c.FallbackPump.FrequencyHz},
	}
}

// HeuristicConfig returns the rule-based policy settings.
func (c StationConfig) HeuristicConfig() policy.HeuristicConfig {
	h := policy.DefaultHeuristicConfig(c.ConstraintConfig())
	h.LowLevelM = c.Heuristic.LowLevelM
	h.HighLevelM = c.Heuristic.HighLevelM
	h.DrainHours = c.Heuristic.DrainHours
	h.HorizonSteps = c.Heuristic.HorizonSteps
	h.CheapPercentile = c.Heuristic.CheapPercentile
	h.StormThresholdM3 = c.Heuristic.StormThresholdM3
	return h
}
