package sim

import (
	"sort"
	"time"
)

// PumpCommand is one pump's instruction for a single step.
type PumpCommand struct {
	PumpID      string  `json:"pump_id"`
	Run         bool    `json:"run"`
	FrequencyHz float64 `json:"frequency_hz"`
}

// Active reports whether the command drives the pump. A pump told to run at
// zero or negative frequency is off.
func (c PumpCommand) Active() bool {
	return c.Run && c.FrequencyHz > 0
}

// PumpStatus is one pump's operating point during a step.
type PumpStatus struct {
	PumpID      string  `json:"pump_id"`
	Running     bool    `json:"running"`
	FrequencyHz float64 `json:"frequency_hz"`
	FlowM3H     float64 `json:"flow_m3h"`
	PowerKW     float64 `json:"power_kw"`
	Efficiency  float64 `json:"efficiency"`
	HeadM       float64 `json:"head_m"`
}

// SystemState is an immutable snapshot of the station.
//
// The kernel emits one per step (post-step values); Peek builds the pre-step
// snapshot handed to command sources, where the step fields are zero.
type SystemState struct {
	Timestamp      time.Time    `json:"timestamp"`
	RecordIndex    int          `json:"record_index"`
	LevelM         float64      `json:"level_m"`
	VolumeM3       float64      `json:"volume_m3"`
	InflowM3       float64      `json:"inflow_m3_per_step"`
	OutflowM3H     float64      `json:"outflow_m3h"`
	PriceEURPerKWh float64      `json:"price_eur_kwh"`
	Pumps          []PumpStatus `json:"pumps"`

	PumpedVolumeM3      float64 `json:"pumped_volume_m3"`
	TotalPowerKW        float64 `json:"total_power_kw"`
	StepEnergyKWh       float64 `json:"step_energy_kwh"`
	StepCostEUR         float64 `json:"step_cost_eur"`
	CumulativeCostEUR   float64 `json:"cumulative_cost_eur"`
	CumulativeEnergyKWh float64 `json:"cumulative_energy_kwh"`

	Violations []Violation `json:"violations"`
}

// ActivePumpCount returns the number of running pumps.
func (s SystemState) ActivePumpCount() int {
	n := 0
	for _, p := range s.Pumps {
		if p.Running {
			n++
		}
	}
	return n
}

// Pump returns the status of pumpID, if present.
func (s SystemState) Pump(pumpID string) (PumpStatus, bool) {
	for _, p := range s.Pumps {
		if p.PumpID == pumpID {
			return p, true
		}
	}
	return PumpStatus{}, false
}

// WithViolations returns a copy of s carrying violations.
func (s SystemState) WithViolations(violations []Violation) SystemState {
	out := s.clone()
	out.Violations = append([]Violation(nil), violations...)
	return out
}

func (s SystemState) clone() SystemState {
	out := s
	out.Pumps = append([]PumpStatus(nil), s.Pumps...)
	out.Violations = append([]Violation(nil), s.Violations...)
	return out
}

// mergeCommands collapses commands to one per pump id (the last one wins)
// and returns them sorted by pump id.
func mergeCommands(commands []PumpCommand) []PumpCommand {
	byID := make(map[string]PumpCommand, len(commands))
	for _, c := range commands {
		byID[c.PumpID] = c
	}
	out := make([]PumpCommand, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PumpID < out[j].PumpID })
	return out
}

// CountRunning returns the number of active commands.
func CountRunning(commands []PumpCommand) int {
	n := 0
	for _, c := range mergeCommands(commands) {
		if c.Active() {
			n++
		}
	}
	return n
}
