// Package evaluation drives closed-loop runs of the tank kernel against a
// historical record and compares their results.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hsy-tunnel/tunnel-sim/sim"
	"github.com/hsy-tunnel/tunnel-sim/sim/trace"
)

// DefaultDecisionTimeout bounds a single command source decision.
const DefaultDecisionTimeout = 30 * time.Second

// progressInterval is the number of steps between progress log lines.
const progressInterval = 50

// Observer receives run events, e.g. for metrics export. Implementations must
// be safe for concurrent use when runs execute in parallel.
type Observer interface {
	ObserveDecision(source string, latency time.Duration, err error)
	ObserveStep(source string, state sim.SystemState)
	ObserveRun(source string, reason TerminationReason)
}

// Config groups the orchestrator's run settings.
type Config struct {
	Scenario        sim.PriceScenario
	DecisionTimeout time.Duration // 0 disables the per-decision deadline
	StepDuration    time.Duration
	InitialLevelM   float64 // used when the start row has no measured level
	Constraints     sim.ConstraintConfig
	Guard           sim.GuardConfig
	TraceLevel      trace.TraceLevel
}

// DefaultConfig returns the station's standard evaluation settings.
func DefaultConfig() Config {
	return Config{
		Scenario:        sim.PriceNormal,
		DecisionTimeout: DefaultDecisionTimeout,
		StepDuration:    sim.DefaultStepDuration,
		InitialLevelM:   sim.DefaultInitialLevelM,
		Constraints:     sim.DefaultConstraintConfig(),
		Guard:           sim.DefaultGuardConfig(),
		TraceLevel:      trace.TraceLevelNone,
	}
}

// Orchestrator runs evaluations. It holds only immutable collaborators, so a
// single Orchestrator may serve concurrent runs; each run builds its own
// kernel, runtime history and accountant.
type Orchestrator struct {
	record    sim.HistoricalRecord
	converter sim.VolumeLevelConverter
	model     sim.PerformanceModel
	cfg       Config
	observer  Observer
}

// NewOrchestrator wires the collaborators of an evaluation.
func NewOrchestrator(record sim.HistoricalRecord, converter sim.VolumeLevelConverter, model sim.PerformanceModel, cfg Config) (*Orchestrator, error) {
	if record == nil || converter == nil || model == nil {
		return nil, fmt.Errorf("orchestrator requires a record, a converter and a performance model")
	}
	if !trace.IsValidTraceLevel(string(cfg.TraceLevel)) {
		return nil, fmt.Errorf("unknown trace level %q", cfg.TraceLevel)
	}
	if cfg.Guard.EnforceActivePump && cfg.Guard.Fallback.PumpID == "" {
		return nil, fmt.Errorf("active-pump guard enabled without a fallback pump")
	}
	return &Orchestrator{record: record, converter: converter, model: model, cfg: cfg}, nil
}

// WithObserver attaches an observer and returns the orchestrator.
func (o *Orchestrator) WithObserver(obs Observer) *Orchestrator {
	o.observer = obs
	return o
}

// Config returns the orchestrator's settings.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Record returns the historical record the orchestrator runs against.
func (o *Orchestrator) Record() sim.HistoricalRecord {
	return o.record
}

// Run simulates numSteps steps from startIndex with commands from source.
//
// The returned error is reserved for invalid arguments. Record exhaustion
// truncates the run; a source failure ends it early. Both still return the
// partial result, with CompletedSuccessfully=false.
func (o *Orchestrator) Run(ctx context.Context, startIndex, numSteps int, source sim.CommandSource) (*EvaluationResult, error) {
	if source == nil {
		return nil, fmt.Errorf("nil command source")
	}
	if startIndex < 0 || numSteps < 0 {
		return nil, fmt.Errorf("invalid step range: start=%d steps=%d", startIndex, numSteps)
	}
	wallStart := time.Now()
	name := source.Name()

	result := newEvaluationResult(Metadata{
		RunID:          uuid.NewString(),
		Source:         name,
		PriceScenario:  o.cfg.Scenario,
		StartIndex:     startIndex,
		StepsRequested: numSteps,
	})
	if o.cfg.TraceLevel.Enabled() {
		result.Trace = trace.NewDecisionTrace(o.cfg.TraceLevel, name)
	}

	first, ok := o.record.Row(startIndex)
	if !ok {
		logrus.Warnf("[%s] start index %d beyond record of %d rows; nothing to simulate", name, startIndex, o.record.Len())
		return o.finish(result, sim.NewCostAccountant(), sim.KernelConfig{StepDuration: o.cfg.StepDuration}.StepHours(),
			TerminationRecordExhausted, wallStart), nil
	}

	initialLevel := o.cfg.InitialLevelM
	if first.HasLevel {
		initialLevel = first.LevelM
	}
	kernel, err := sim.NewTankKernel(sim.KernelConfig{
		StepDuration:  o.cfg.StepDuration,
		InitialLevelM: initialLevel,
		StartTime:     first.Timestamp,
	}, o.converter, o.model)
	if err != nil {
		return nil, err
	}
	result.Metadata.InitialLevelM = kernel.Peek(0, 0, startIndex).LevelM

	monitor := sim.NewConstraintMonitor(o.cfg.Constraints)
	history := sim.NewRuntimeHistory()
	accountant := sim.NewCostAccountant()

	logrus.Infof("[%s] starting evaluation: start=%d steps=%d scenario=%s level=%.2fm",
		name, startIndex, numSteps, o.cfg.Scenario, result.Metadata.InitialLevelM)

	reason := TerminationCompleted
	for i := 0; i < numSteps; i++ {
		idx := startIndex + i
		row, ok := o.record.Row(idx)
		if !ok {
			logrus.Warnf("[%s] record exhausted at index %d after %d of %d steps", name, idx, i, numSteps)
			reason = TerminationRecordExhausted
			break
		}
		if ctx.Err() != nil {
			logrus.Warnf("[%s] run cancelled after %d of %d steps: %v", name, i, numSteps, ctx.Err())
			reason = TerminationCancelled
			result.Metadata.FailureMessage = ctx.Err().Error()
			break
		}

		price := row.Price(o.cfg.Scenario)
		decisionState := kernel.Peek(row.InflowM3, price, idx)
		decisionState.Timestamp = row.Timestamp

		proposed, latency, err := o.decide(ctx, source, decisionState)
		if o.observer != nil {
			o.observer.ObserveDecision(name, latency, err)
		}
		if err != nil {
			logrus.Warnf("[%s] stopping at step %d/%d: %v", name, i+1, numSteps, err)
			rec := trace.NewDecisionRecord(idx, row.Timestamp, decisionState.LevelM, latency)
			rec.Error = err.Error()
			result.Trace.RecordDecision(rec)
			reason = TerminationSourceFailure
			result.Metadata.FailureMessage = err.Error()
			break
		}

		executed, corrected := proposed, false
		if o.cfg.Guard.EnforceActivePump {
			executed, corrected = sim.EnsureActivePump(proposed, o.cfg.Guard.Fallback)
			if corrected {
				logrus.Warnf("[%s] step %d: no pumps active, starting %s at %.1fHz",
					name, idx, o.cfg.Guard.Fallback.PumpID, o.cfg.Guard.Fallback.FrequencyHz)
			}
		}
		if result.Trace != nil {
			rec := trace.NewDecisionRecord(idx, row.Timestamp, decisionState.LevelM, latency)
			rec.Proposed = commandRecords(proposed)
			rec.Executed = commandRecords(executed)
			rec.Corrected = corrected
			if corrected {
				rec.Reason = "no pumps running"
			}
			result.Trace.RecordDecision(rec)
		}

		state := kernel.Step(row.InflowM3, executed, price, idx)
		violations := monitor.Evaluate(state, history)
		history.Record(state, o.cfg.Constraints)
		state = state.WithViolations(violations)

		cost, err := accountant.Add(state)
		if err != nil {
			// Steps are generated in order above; reaching this is a bug.
			return nil, fmt.Errorf("accounting step %d: %w", idx, err)
		}
		if o.observer != nil {
			o.observer.ObserveStep(name, state)
		}

		result.appendStep(StepRecord{
			Timestamp:   row.Timestamp,
			RecordIndex: idx,
			Cycle:       i + 1,
			Pumps:       state.Pumps,
			State: StepState{
				LevelM:         state.LevelM,
				VolumeM3:       state.VolumeM3,
				InflowM3:       state.InflowM3,
				OutflowM3H:     state.OutflowM3H,
				PriceEURPerKWh: state.PriceEURPerKWh,
			},
			Cost:       cost,
			Violations: state.Violations,
			LevelAlarm: monitor.LevelAlarm(state),
			Corrected:  corrected,
		})

		logrus.Debugf("[%s] step %d: L1=%.2fm V=%.0fm³ F1=%.0fm³ F2=%.0fm³/h cost=%.2fEUR violations=%d",
			name, idx, state.LevelM, state.VolumeM3, state.InflowM3, state.OutflowM3H, cost.CostEUR, len(violations))
		if (i+1)%progressInterval == 0 {
			t := accountant.Totals()
			logrus.Infof("[%s] progress %d/%d | cost %.2fEUR | violations %d", name, i+1, numSteps, t.TotalCostEUR, result.Violations.Count)
		}
	}

	return o.finish(result, accountant, kernel.StepHours(), reason, wallStart), nil
}

func (o *Orchestrator) finish(result *EvaluationResult, accountant *sim.CostAccountant, stepHours float64, reason TerminationReason, wallStart time.Time) *EvaluationResult {
	result.finalize(accountant.Totals(), stepHours, reason, time.Since(wallStart))
	if o.observer != nil {
		o.observer.ObserveRun(result.Metadata.Source, reason)
	}
	m := result.Metrics
	logrus.Infof("[%s] evaluation %s: %d/%d steps, cost %.2fEUR, energy %.2fkWh, flow %.0fm³, specific %.6fkWh/m³, violations %d",
		result.Metadata.Source, reason, result.Metadata.StepsCompleted, result.Metadata.StepsRequested,
		m.TotalCostEUR, m.TotalEnergyKWh, m.TotalFlowM3, m.SpecificEnergyKWhPerM3, result.Violations.Count)
	return result
}

// decide calls the source under the decision timeout. The call runs in its
// own goroutine so a source that ignores its context cannot stall the run.
func (o *Orchestrator) decide(ctx context.Context, source sim.CommandSource, state sim.SystemState) ([]sim.PumpCommand, time.Duration, error) {
	if o.cfg.DecisionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.DecisionTimeout)
		defer cancel()
	}

	type outcome struct {
		commands []sim.PumpCommand
		err      error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		cmds, err := source.Decide(ctx, state)
		done <- outcome{commands: cmds, err: err}
	}()

	select {
	case out := <-done:
		latency := time.Since(start)
		if out.err != nil {
			return nil, latency, asDecisionError(source.Name(), state.RecordIndex, out.err)
		}
		return append([]sim.PumpCommand(nil), out.commands...), latency, nil
	case <-ctx.Done():
		return nil, time.Since(start), &sim.DecisionError{
			Source:      source.Name(),
			RecordIndex: state.RecordIndex,
			Timeout:     errors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:         ctx.Err(),
		}
	}
}

func asDecisionError(source string, recordIndex int, err error) error {
	var de *sim.DecisionError
	if errors.As(err, &de) {
		return de
	}
	return &sim.DecisionError{
		Source:      source,
		RecordIndex: recordIndex,
		Timeout:     errors.Is(err, context.DeadlineExceeded),
		Err:         err,
	}
}

func commandRecords(cmds []sim.PumpCommand) []trace.CommandRecord {
	out := make([]trace.CommandRecord, len(cmds))
	for i, c := range cmds {
		out[i] = trace.CommandRecord{PumpID: c.PumpID, Run: c.Run, FrequencyHz: c.FrequencyHz}
	}
	return out
}
