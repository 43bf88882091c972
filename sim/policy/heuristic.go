package policy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hsy-tunnel/tunnel-sim/sim"
)

// HeuristicName is the source name of the rule-based policy.
const HeuristicName = "heuristic"

// HeuristicConfig holds the level bands and tuning of the rule-based policy.
type HeuristicConfig struct {
	LowLevelM        float64 // below this, pump at minimum unless electricity is cheap
	HighLevelM       float64 // above this, drain towards LowLevelM regardless of price
	DrainHours       float64 // horizon over which a level excess is removed
	HorizonSteps     int
	CheapPercentile  float64
	StormThresholdM3 float64
	MinFrequencyHz   float64
	MaxFrequencyHz   float64
	MaxTotalFlowM3H  float64
	StepDuration     time.Duration // length of one record step; zero means sim.DefaultStepDuration
}

// DefaultHeuristicConfig returns bands that keep the tunnel between the
// emptying level and well below the alarm level.
func DefaultHeuristicConfig(limits sim.ConstraintConfig) HeuristicConfig {
	return HeuristicConfig{
		LowLevelM:        1.5,
		HighLevelM:       5.0,
		DrainHours:       4,
		HorizonSteps:     DefaultHorizonSteps,
		CheapPercentile:  DefaultCheapPercentile,
		StormThresholdM3: DefaultStormThresholdM3,
		MinFrequencyHz:   limits.MinFrequencyHz,
		MaxFrequencyHz:   limits.MaxFrequencyHz,
		MaxTotalFlowM3H:  limits.MaxTotalFlowM3H,
		StepDuration:     sim.DefaultStepDuration,
	}
}

// Heuristic is a deterministic rule-based policy. It sizes a target outflow
// from the forecast inflow plus a drain term that depends on the level band
// and on whether the current price falls in a cheap window, then picks the
// fewest pumps able to deliver it with a common drive frequency.
//
// Pumps already running are preferred so that units are not switched every
// step. Heuristic keeps no per-run state and may serve concurrent runs.
type Heuristic struct {
	cfg        HeuristicConfig
	record     sim.HistoricalRecord
	scenario   sim.PriceScenario
	converter  sim.VolumeLevelConverter
	model      sim.PerformanceModel
	pumpIDs    []string
	forecaster Forecaster
	stepHours  float64
}

// NewHeuristic builds the policy for the given station and record.
func NewHeuristic(cfg HeuristicConfig, record sim.HistoricalRecord, scenario sim.PriceScenario,
	converter sim.VolumeLevelConverter, model sim.PerformanceModel, pumpIDs []string, forecaster Forecaster) (*Heuristic, error) {
	if len(pumpIDs) == 0 {
		return nil, fmt.Errorf("heuristic policy needs at least one pump")
	}
	if cfg.MinFrequencyHz <= 0 || cfg.MaxFrequencyHz < cfg.MinFrequencyHz {
		return nil, fmt.Errorf("invalid frequency band [%v, %v]", cfg.MinFrequencyHz, cfg.MaxFrequencyHz)
	}
	if cfg.LowLevelM >= cfg.HighLevelM {
		return nil, fmt.Errorf("low level %.2f must be below high level %.2f", cfg.LowLevelM, cfg.HighLevelM)
	}
	if cfg.DrainHours <= 0 {
		return nil, fmt.Errorf("drain hours must be positive, got %v", cfg.DrainHours)
	}
	if cfg.StepDuration < 0 {
		return nil, fmt.Errorf("step duration must not be negative, got %s", cfg.StepDuration)
	}
	if cfg.StepDuration == 0 {
		cfg.StepDuration = sim.DefaultStepDuration
	}
	if cfg.HorizonSteps <= 0 {
		cfg.HorizonSteps = DefaultHorizonSteps
	}
	if forecaster == nil {
		forecaster = NewRecordForecaster(record)
	}
	ids := append([]string(nil), pumpIDs...)
	sort.Strings(ids)
	return &Heuristic{
		cfg:        cfg,
		record:     record,
		scenario:   scenario,
		converter:  converter,
		model:      model,
		pumpIDs:    ids,
		forecaster: forecaster,
		stepHours:  cfg.StepDuration.Hours(),
	}, nil
}

func (h *Heuristic) Name() string { return HeuristicName }

// Decide returns one command per configured pump.
func (h *Heuristic) Decide(ctx context.Context, state sim.SystemState) ([]sim.PumpCommand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := h.TargetOutflow(state)
	running := h.selectPumps(state, target)
	freq := h.commonFrequency(running, state.LevelM, target)

	commands := make([]sim.PumpCommand, 0, len(h.pumpIDs))
	for _, id := range h.pumpIDs {
		if _, ok := running[id]; ok {
			commands = append(commands, sim.PumpCommand{PumpID: id, Run: true, FrequencyHz: freq})
		} else {
			commands = append(commands, sim.PumpCommand{PumpID: id, Run: false})
		}
	}
	return commands, nil
}

// TargetOutflow returns the outflow in m³/h the policy aims for at state.
//
// A forecast storm shortens the drain horizon so the excess is gone by the
// time the peak arrives.
func (h *Heuristic) TargetOutflow(state sim.SystemState) float64 {
	forecast := h.forecaster.Forecast(state, h.cfg.HorizonSteps)
	inflowM3H := Mean(forecast) / h.stepHours
	storm, peak := DetectStorm(forecast, h.cfg.StormThresholdM3)
	_, cheap := h.CheapWindowAt(state)
	drainHours := h.cfg.DrainHours

	var targetLevel float64
	switch {
	case storm:
		targetLevel = h.cfg.LowLevelM
		drainHours = math.Min(drainHours, float64(peak+1)*h.stepHours)
	case state.LevelM >= h.cfg.HighLevelM:
		targetLevel = h.cfg.LowLevelM
	case cheap:
		// Draw the tunnel down while energy is cheap.
		targetLevel = 0
	case state.LevelM <= h.cfg.LowLevelM:
		return 0
	default:
		targetLevel = state.LevelM
	}

	excess := state.VolumeM3 - h.converter.LevelToVolume(targetLevel)
	target := inflowM3H + excess/drainHours
	return math.Max(0, math.Min(target, h.cfg.MaxTotalFlowM3H))
}

// CheapWindowAt returns the cheap window of the price horizon starting at
// state's record index that contains that index, if any.
func (h *Heuristic) CheapWindowAt(state sim.SystemState) (CheapWindow, bool) {
	prices := sim.PricesFrom(h.record, state.RecordIndex, h.cfg.HorizonSteps, h.scenario)
	for _, w := range CheapWindows(prices, state.RecordIndex, h.cfg.CheapPercentile) {
		if w.Start <= state.RecordIndex && state.RecordIndex <= w.End {
			return w, true
		}
	}
	return CheapWindow{}, false
}

// selectPumps picks pumps in preference order until their combined flow at
// maximum frequency covers target. At least one pump is always selected.
func (h *Heuristic) selectPumps(state sim.SystemState, target float64) map[string]struct{} {
	type candidate struct {
		id      string
		running bool
		maxFlow float64
	}
	candidates := make([]candidate, 0, len(h.pumpIDs))
	for _, id := range h.pumpIDs {
		prev, _ := state.Pump(id)
		candidates = append(candidates, candidate{
			id:      id,
			running: prev.Running,
			maxFlow: h.model.Performance(id, h.cfg.MaxFrequencyHz, state.LevelM).FlowM3H,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].running != candidates[j].running {
			return candidates[i].running
		}
		return candidates[i].maxFlow > candidates[j].maxFlow
	})

	// A target one pump can carry goes to the smallest pump.
	smallest := candidates[0]
	for _, c := range candidates[1:] {
		if c.maxFlow < smallest.maxFlow {
			smallest = c
		}
	}
	if target <= smallest.maxFlow {
		return map[string]struct{}{smallest.id: {}}
	}

	selected := make(map[string]struct{})
	capacity := 0.0
	for _, c := range candidates {
		if capacity >= target {
			break
		}
		if capacity+minFlow(c.maxFlow, h.cfg) > h.cfg.MaxTotalFlowM3H {
			continue
		}
		selected[c.id] = struct{}{}
		capacity += c.maxFlow
	}
	if len(selected) == 0 {
		selected[candidates[0].id] = struct{}{}
	}
	return selected
}

// commonFrequency solves for one drive frequency that makes the selected
// pumps deliver target, clamped to the allowed band. Flow is linear in
// frequency, so interpolating between the band edges is exact.
func (h *Heuristic) commonFrequency(selected map[string]struct{}, levelM, target float64) float64 {
	lo, hi := 0.0, 0.0
	for _, id := range h.pumpIDs {
		if _, ok := selected[id]; !ok {
			continue
		}
		lo += h.model.Performance(id, h.cfg.MinFrequencyHz, levelM).FlowM3H
		hi += h.model.Performance(id, h.cfg.MaxFrequencyHz, levelM).FlowM3H
	}
	switch {
	case target <= lo || hi <= lo:
		return h.cfg.MinFrequencyHz
	case target >= hi:
		return h.cfg.MaxFrequencyHz
	}
	frac := (target - lo) / (hi - lo)
	return h.cfg.MinFrequencyHz + frac*(h.cfg.MaxFrequencyHz-h.cfg.MinFrequencyHz)
}

// minFlow is the flow of a pump at the bottom of the frequency band, given
// its flow at the top.
func minFlow(maxFlow float64, cfg HeuristicConfig) float64 {
	return maxFlow * cfg.MinFrequencyHz / cfg.MaxFrequencyHz
}
