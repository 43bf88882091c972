package sim

import (
	"fmt"
	"sort"
	"time"
)

// Severity ranks a violation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// ViolationType names the rule a violation broke.
type ViolationType string

const (
	ViolationLevelOutOfRange     ViolationType = "LEVEL_OUT_OF_RANGE"
	ViolationFlowLimitExceeded   ViolationType = "FLOW_LIMIT_EXCEEDED"
	ViolationFrequencyOutOfRange ViolationType = "FREQUENCY_OUT_OF_RANGE"
	ViolationNoPumpsRunning      ViolationType = "NO_PUMPS_RUNNING"
	ViolationMinRuntime          ViolationType = "MIN_RUNTIME"
	ViolationDailyEmptyingMissed ViolationType = "DAILY_EMPTYING_MISSED"
)

// Violation records one broken operating rule. Violations are data: unsafe
// policies are still scored, never aborted.
type Violation struct {
	Type        ViolationType `json:"type"`
	Severity    Severity      `json:"severity"`
	Timestamp   time.Time     `json:"timestamp"`
	RecordIndex int           `json:"record_index"`
	PumpID      string        `json:"pump_id,omitempty"`
	Value       float64       `json:"value"`
	Limit       string        `json:"limit"`
	Message     string        `json:"message"`
}

// pumpRun tracks one pump across steps.
type pumpRun struct {
	running bool
	since   time.Time
}

// RuntimeHistory carries the cross-step state the monitor's history rules
// need. One instance belongs to one run.
type RuntimeHistory struct {
	pumps map[string]pumpRun

	windowStarted bool
	windowStart   time.Time
	dryInWindow   bool
	emptiedWindow bool
}

// NewRuntimeHistory returns an empty history.
func NewRuntimeHistory() *RuntimeHistory {
	return &RuntimeHistory{pumps: make(map[string]pumpRun)}
}

// WasRunning reports whether pumpID was running after the last recorded step.
func (h *RuntimeHistory) WasRunning(pumpID string) bool {
	return h.pumps[pumpID].running
}

// Runtime returns how long pumpID has run continuously as of now, or 0 if stopped.
func (h *RuntimeHistory) Runtime(pumpID string, now time.Time) time.Duration {
	r := h.pumps[pumpID]
	if !r.running {
		return 0
	}
	return now.Sub(r.since)
}

// runningIDs returns the ids of running pumps in sorted order.
func (h *RuntimeHistory) runningIDs() []string {
	ids := make([]string, 0, len(h.pumps))
	for id, r := range h.pumps {
		if r.running {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Record folds a post-step state into the history. Call it after Evaluate.
func (h *RuntimeHistory) Record(state SystemState, cfg ConstraintConfig) {
	seen := make(map[string]bool, len(state.Pumps))
	for _, p := range state.Pumps {
		seen[p.PumpID] = true
		prev := h.pumps[p.PumpID]
		switch {
		case p.Running && !prev.running:
			h.pumps[p.PumpID] = pumpRun{running: true, since: state.Timestamp}
		case !p.Running:
			h.pumps[p.PumpID] = pumpRun{}
		}
	}
	// A pump missing from the step's commands is not running.
	for id := range h.pumps {
		if !seen[id] {
			h.pumps[id] = pumpRun{}
		}
	}

	dry := state.InflowM3 < cfg.DryWeatherInflowM3
	emptied := state.LevelM <= cfg.Level.EmptyM
	if !h.windowStarted || state.Timestamp.Sub(h.windowStart) >= cfg.EmptyingInterval {
		h.windowStarted = true
		h.windowStart = state.Timestamp
		h.dryInWindow = dry
		h.emptiedWindow = emptied
		return
	}
	h.dryInWindow = h.dryInWindow || dry
	h.emptiedWindow = h.emptiedWindow || emptied
}

// ConstraintMonitor checks post-step states against the operating limits.
type ConstraintMonitor struct {
	cfg ConstraintConfig
}

// NewConstraintMonitor builds a monitor for cfg.
func NewConstraintMonitor(cfg ConstraintConfig) *ConstraintMonitor {
	return &ConstraintMonitor{cfg: cfg}
}

// Config returns the monitor's limits.
func (m *ConstraintMonitor) Config() ConstraintConfig {
	return m.cfg
}

// LevelAlarm reports whether the level is above the alarm threshold but
// still within the hard maximum.
func (m *ConstraintMonitor) LevelAlarm(state SystemState) bool {
	return state.LevelM > m.cfg.Level.AlarmM && state.LevelM <= m.cfg.Level.MaxM
}

// Evaluate returns the violations of state. history holds the previous steps
// and is only read; it may be nil, which disables the history rules.
func (m *ConstraintMonitor) Evaluate(state SystemState, history *RuntimeHistory) []Violation {
	var out []Violation
	add := func(v Violation) {
		v.Timestamp = state.Timestamp
		v.RecordIndex = state.RecordIndex
		out = append(out, v)
	}
	lim := m.cfg

	if state.LevelM < lim.Level.MinM || state.LevelM > lim.Level.MaxM {
		add(Violation{
			Type:     ViolationLevelOutOfRange,
			Severity: SeverityCritical,
			Value:    state.LevelM,
			Limit:    fmt.Sprintf("%g-%g", lim.Level.MinM, lim.Level.MaxM),
			Message:  fmt.Sprintf("level %.2fm outside [%g, %g]m", state.LevelM, lim.Level.MinM, lim.Level.MaxM),
		})
	}

	if state.OutflowM3H > lim.MaxTotalFlowM3H {
		add(Violation{
			Type:     ViolationFlowLimitExceeded,
			Severity: SeverityCritical,
			Value:    state.OutflowM3H,
			Limit:    fmt.Sprintf("%g", lim.MaxTotalFlowM3H),
			Message:  fmt.Sprintf("total flow %.0fm³/h exceeds %gm³/h", state.OutflowM3H, lim.MaxTotalFlowM3H),
		})
	}

	running := 0
	for _, p := range state.Pumps {
		if !p.Running {
			continue
		}
		running++
		ramping := history != nil && !history.WasRunning(p.PumpID)
		minHz := lim.MinFrequencyHz
		inRange := p.FrequencyHz >= minHz && p.FrequencyHz <= lim.MaxFrequencyHz
		if ramping {
			minHz = 0
			inRange = p.FrequencyHz > 0 && p.FrequencyHz <= lim.MaxFrequencyHz
		}
		if !inRange {
			add(Violation{
				Type:     ViolationFrequencyOutOfRange,
				Severity: SeverityWarning,
				PumpID:   p.PumpID,
				Value:    p.FrequencyHz,
				Limit:    fmt.Sprintf("%g-%g", minHz, lim.MaxFrequencyHz),
				Message:  fmt.Sprintf("pump %s at %.2fHz outside [%g, %g]Hz", p.PumpID, p.FrequencyHz, minHz, lim.MaxFrequencyHz),
			})
		}
	}
	if running == 0 {
		add(Violation{
			Type:     ViolationNoPumpsRunning,
			Severity: SeverityCritical,
			Limit:    ">=1",
			Message:  "no pumps running; at least one pump must always run",
		})
	}

	if history == nil {
		return out
	}

	for _, p := range state.Pumps {
		if p.Running || !history.WasRunning(p.PumpID) {
			continue
		}
		if rt := history.Runtime(p.PumpID, state.Timestamp); rt < lim.MinRuntime {
			add(Violation{
				Type:     ViolationMinRuntime,
				Severity: SeverityWarning,
				PumpID:   p.PumpID,
				Value:    rt.Hours(),
				Limit:    fmt.Sprintf(">=%gh", lim.MinRuntime.Hours()),
				Message:  fmt.Sprintf("pump %s stopped after %.2fh, minimum %gh", p.PumpID, rt.Hours(), lim.MinRuntime.Hours()),
			})
		}
	}
	for _, id := range history.runningIDs() {
		if _, listed := state.Pump(id); listed {
			continue
		}
		r := history.pumps[id]
		if rt := state.Timestamp.Sub(r.since); rt < lim.MinRuntime {
			add(Violation{
				Type:     ViolationMinRuntime,
				Severity: SeverityWarning,
				PumpID:   id,
				Value:    rt.Hours(),
				Limit:    fmt.Sprintf(">=%gh", lim.MinRuntime.Hours()),
				Message:  fmt.Sprintf("pump %s dropped from commands after %.2fh, minimum %gh", id, rt.Hours(), lim.MinRuntime.Hours()),
			})
		}
	}

	if history.windowStarted && state.Timestamp.Sub(history.windowStart) >= lim.EmptyingInterval &&
		history.dryInWindow && !history.emptiedWindow {
		add(Violation{
			Type:     ViolationDailyEmptyingMissed,
			Severity: SeverityWarning,
			Value:    state.LevelM,
			Limit:    fmt.Sprintf("<=%gm every %gh", lim.Level.EmptyM, lim.EmptyingInterval.Hours()),
			Message: fmt.Sprintf("no emptying to %gm in the %gh window from %s despite dry weather",
				lim.Level.EmptyM, lim.EmptyingInterval.Hours(), history.windowStart.Format(time.RFC3339)),
		})
	}
	return out
}
