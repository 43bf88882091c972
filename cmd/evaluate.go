package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/hsy-tunnel/tunnel-sim/sim"
	"github.com/hsy-tunnel/tunnel-sim/sim/dataset"
	"github.com/hsy-tunnel/tunnel-sim/sim/evaluation"
	"github.com/hsy-tunnel/tunnel-sim/sim/observability"
	"github.com/hsy-tunnel/tunnel-sim/sim/policy"
	"github.com/hsy-tunnel/tunnel-sim/sim/trace"
)

const (
	policyBaseline  = "baseline"
	policyHeuristic = "heuristic"
	policyHTTP      = "http"

	forecastRecord      = "record"
	forecastDiurnal     = "diurnal"
	forecastPersistence = "persistence"
)

// runOptions is the resolved flag set of one invocation.
type runOptions struct {
	RecordPath        string
	CalibrationPath   string
	StationPath       string
	Policy            string
	DecisionURL       string
	DecisionTimeout   time.Duration
	Forecast          string
	PriceScenario     string
	Start             int
	Steps             int
	OutputPath        string
	TraceLevel        trace.TraceLevel
	MetricsFile       string
	EnforceActivePump bool
}

// environment holds the loaded inputs shared by every run of an invocation.
type environment struct {
	record    *sim.MemoryRecord
	table     *sim.CalibrationTable
	model     *sim.PumpPerformanceModel
	station   StationConfig
	scenario  sim.PriceScenario
	collector *observability.RunCollector
	registry  *prometheus.Registry
	orch      *evaluation.Orchestrator
}

// CompareReport is the document written by the compare command.
type CompareReport struct {
	Baseline   *evaluation.EvaluationResult `json:"baseline"`
	Candidate  *evaluation.EvaluationResult `json:"candidate"`
	Comparison evaluation.Comparison        `json:"comparison"`
}

func loadEnvironment(opts runOptions) (*environment, error) {
	scenario, err := sim.ParsePriceScenario(opts.PriceScenario)
	if err != nil {
		return nil, err
	}
	station, err := LoadStationConfig(opts.StationPath)
	if err != nil {
		return nil, err
	}
	record, err := dataset.LoadRecordCSV(opts.RecordPath)
	if err != nil {
		return nil, err
	}
	table, err := dataset.LoadCalibrationCSV(opts.CalibrationPath)
	if err != nil {
		return nil, err
	}
	model, err := sim.NewPumpPerformanceModel(station.PumpModelConfig())
	if err != nil {
		return nil, fmt.Errorf("pump model: %w", err)
	}
	lo, hi := table.Range()
	logrus.Infof("Loaded %d record rows, %d calibration points (%.1f-%.1fm), %d pumps",
		record.Len(), table.Len(), lo.LevelM, hi.LevelM, len(model.PumpIDs()))

	cfg := evaluation.DefaultConfig()
	cfg.Scenario = scenario
	cfg.DecisionTimeout = opts.DecisionTimeout
	cfg.InitialLevelM = station.InitialLevelM
	cfg.Constraints = station.ConstraintConfig()
	cfg.Guard = station.GuardConfig(opts.EnforceActivePump)
	cfg.TraceLevel = opts.TraceLevel
	orch, err := evaluation.NewOrchestrator(record, table, model, cfg)
	if err != nil {
		return nil, err
	}

	env := &environment{record: record, table: table, model: model, station: station, scenario: scenario, orch: orch}
	if opts.MetricsFile != "" {
		env.registry = prometheus.NewRegistry()
		env.collector, err = observability.NewRunCollector(env.registry)
		if err != nil {
			return nil, err
		}
		orch.WithObserver(env.collector)
	}
	return env, nil
}

// buildSource returns the command source named by opts.Policy.
func (e *environment) buildSource(opts runOptions) (sim.CommandSource, error) {
	switch opts.Policy {
	case policyBaseline:
		return policy.NewBaselineReplay(e.record), nil
	case policyHeuristic:
		var forecaster policy.Forecaster
		switch opts.Forecast {
		case forecastRecord, "":
			forecaster = policy.NewRecordForecaster(e.record)
		case forecastDiurnal:
			forecaster = policy.DefaultDiurnalProfile()
		case forecastPersistence:
			forecaster = policy.Persistence{}
		default:
			return nil, fmt.Errorf("unknown forecast %q (want record, diurnal or persistence)", opts.Forecast)
		}
		cfg := e.station.HeuristicConfig()
		cfg.StepDuration = e.orch.Config().StepDuration
		return policy.NewHeuristic(cfg, e.record, e.scenario, e.table, e.model, e.model.PumpIDs(), forecaster)
	case policyHTTP:
		if opts.DecisionURL == "" {
			return nil, fmt.Errorf("--decision-url is required for --policy=%s", policyHTTP)
		}
		return policy.NewHTTPDecider(policyHTTP, opts.DecisionURL, e.model.PumpIDs()), nil
	}
	return nil, fmt.Errorf("unknown policy %q (want baseline, heuristic or http)", opts.Policy)
}

func (e *environment) writeMetrics(path string) error {
	if e.collector == nil || path == "" {
		return nil
	}
	return e.collector.WriteTextfile(path)
}

// executeRun evaluates the configured source once.
func executeRun(ctx context.Context, opts runOptions) (*evaluation.EvaluationResult, error) {
	env, err := loadEnvironment(opts)
	if err != nil {
		return nil, err
	}
	src, err := env.buildSource(opts)
	if err != nil {
		return nil, err
	}
	res, err := env.orch.Run(ctx, opts.Start, opts.Steps, src)
	if err != nil {
		return nil, err
	}
	if err := env.writeMetrics(opts.MetricsFile); err != nil {
		return nil, err
	}
	return res, nil
}

// executeCompare evaluates the baseline and the configured source concurrently.
func executeCompare(ctx context.Context, opts runOptions) (*CompareReport, error) {
	env, err := loadEnvironment(opts)
	if err != nil {
		return nil, err
	}
	candidate, err := env.buildSource(opts)
	if err != nil {
		return nil, err
	}
	results, err := evaluation.RunAll(ctx, env.orch, opts.Start, opts.Steps, policy.NewBaselineReplay(env.record), candidate)
	if err != nil {
		return nil, err
	}
	if err := env.writeMetrics(opts.MetricsFile); err != nil {
		return nil, err
	}
	return &CompareReport{
		Baseline:   results[0],
		Candidate:  results[1],
		Comparison: evaluation.Compare(results[0], results[1]),
	}, nil
}

// writeJSON writes v as indented JSON to path, or to stdout when path is empty.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	logrus.Infof("Results written to %s", path)
	return nil
}
