package evaluation

import (
	"time"

	"github.com/hsy-tunnel/tunnel-sim/sim"
	"github.com/hsy-tunnel/tunnel-sim/sim/trace"
)

// TerminationReason explains why a run stopped.
type TerminationReason string

const (
	TerminationCompleted       TerminationReason = "completed"
	TerminationRecordExhausted TerminationReason = "record_exhausted"
	TerminationSourceFailure   TerminationReason = "source_failure"
	TerminationCancelled       TerminationReason = "cancelled"
)

// Metadata describes the run that produced a result.
type Metadata struct {
	RunID                 string            `json:"run_id"`
	Source                string            `json:"source"`
	PriceScenario         sim.PriceScenario `json:"price_scenario"`
	StartIndex            int               `json:"start_index"`
	StepsRequested        int               `json:"timesteps_requested"`
	StepsCompleted        int               `json:"timesteps_completed"`
	DurationHours         float64           `json:"duration_hours"`
	CompletedSuccessfully bool              `json:"completed_successfully"`
	Termination           TerminationReason `json:"termination"`
	FailureMessage        string            `json:"failure_message,omitempty"`
	InitialLevelM         float64           `json:"initial_level_m"`
	WallTime              time.Duration     `json:"wall_time_ns"`
}

// Metrics are the aggregated figures of a run.
type Metrics struct {
	TotalCostEUR           float64 `json:"total_cost_eur"`
	TotalEnergyKWh         float64 `json:"total_energy_kwh"`
	TotalFlowM3            float64 `json:"total_flow_m3"`
	SpecificEnergyKWhPerM3 float64 `json:"specific_energy_kwh_per_m3"`
	AverageCostPerStepEUR  float64 `json:"average_cost_per_step_eur"`
	MinLevelM              float64 `json:"min_level_m"`
	MaxLevelM              float64 `json:"max_level_m"`
	FinalLevelM            float64 `json:"final_level_m"`
	AlarmSteps             int     `json:"alarm_steps"`
	CorrectedSteps         int     `json:"corrected_steps"`
}

// ViolationSummary groups a run's violations.
type ViolationSummary struct {
	Count    int                       `json:"count"`
	Critical int                       `json:"critical"`
	ByType   map[sim.ViolationType]int `json:"by_type"`
	Details  []sim.Violation           `json:"details"`
}

// StepState is the resulting tank state of one step.
type StepState struct {
	LevelM         float64 `json:"level_m"`
	VolumeM3       float64 `json:"volume_m3"`
	InflowM3       float64 `json:"inflow_m3_per_step"`
	OutflowM3H     float64 `json:"outflow_m3h"`
	PriceEURPerKWh float64 `json:"price_eur_kwh"`
}

// StepRecord is the report of one executed step.
type StepRecord struct {
	Timestamp   time.Time        `json:"timestamp"`
	RecordIndex int              `json:"record_index"`
	Cycle       int              `json:"cycle"`
	Pumps       []sim.PumpStatus `json:"pump_commands"`
	State       StepState        `json:"system_state"`
	Cost        sim.StepCost     `json:"cost_calculation"`
	Violations  []sim.Violation  `json:"constraint_violations"`
	LevelAlarm  bool             `json:"level_alarm"`
	Corrected   bool             `json:"corrected"`
}

// EvaluationResult bundles all outputs of one evaluation run.
type EvaluationResult struct {
	Metadata   Metadata             `json:"metadata"`
	Metrics    Metrics              `json:"metrics"`
	Violations ViolationSummary     `json:"violations"`
	Steps      []StepRecord         `json:"predictions"`
	Trace      *trace.DecisionTrace `json:"trace,omitempty"`   // nil if trace level is "none"
	Summary    *trace.TraceSummary  `json:"summary,omitempty"` // nil if trace level is "none"
}

// newEvaluationResult starts an empty result for a run.
func newEvaluationResult(meta Metadata) *EvaluationResult {
	return &EvaluationResult{
		Metadata: meta,
		Violations: ViolationSummary{
			ByType:  make(map[sim.ViolationType]int),
			Details: make([]sim.Violation, 0),
		},
		Steps: make([]StepRecord, 0, max(meta.StepsRequested, 0)),
	}
}

// appendStep adds one step record and folds its violations into the summary.
func (r *EvaluationResult) appendStep(step StepRecord) {
	r.Steps = append(r.Steps, step)
	for _, v := range step.Violations {
		r.Violations.Count++
		r.Violations.ByType[v.Type]++
		if v.Severity == sim.SeverityCritical {
			r.Violations.Critical++
		}
		r.Violations.Details = append(r.Violations.Details, v)
	}
	if step.LevelAlarm {
		r.Metrics.AlarmSteps++
	}
	if step.Corrected {
		r.Metrics.CorrectedSteps++
	}
	lvl := step.State.LevelM
	if len(r.Steps) == 1 || lvl < r.Metrics.MinLevelM {
		r.Metrics.MinLevelM = lvl
	}
	if len(r.Steps) == 1 || lvl > r.Metrics.MaxLevelM {
		r.Metrics.MaxLevelM = lvl
	}
	r.Metrics.FinalLevelM = lvl
}

// finalize copies the accountant's totals and closes the metadata.
func (r *EvaluationResult) finalize(totals sim.Totals, stepHours float64, reason TerminationReason, wall time.Duration) {
	r.Metrics.TotalCostEUR = totals.TotalCostEUR
	r.Metrics.TotalEnergyKWh = totals.TotalEnergyKWh
	r.Metrics.TotalFlowM3 = totals.TotalFlowM3
	r.Metrics.SpecificEnergyKWhPerM3 = totals.SpecificEnergyKWhPerM3
	if totals.Steps > 0 {
		r.Metrics.AverageCostPerStepEUR = totals.TotalCostEUR / float64(totals.Steps)
	}
	r.Metadata.StepsCompleted = len(r.Steps)
	r.Metadata.DurationHours = float64(len(r.Steps)) * stepHours
	r.Metadata.Termination = reason
	r.Metadata.CompletedSuccessfully = reason == TerminationCompleted && r.Metadata.StepsCompleted == r.Metadata.StepsRequested
	r.Metadata.WallTime = wall
	if r.Trace != nil {
		r.Summary = trace.Summarize(r.Trace)
	}
}
