package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsy-tunnel/tunnel-sim/sim"
	"github.com/hsy-tunnel/tunnel-sim/sim/evaluation"
	"github.com/hsy-tunnel/tunnel-sim/sim/policy"
	"github.com/hsy-tunnel/tunnel-sim/sim/trace"
)

func testOptions(t *testing.T) runOptions {
	t.Helper()
	return runOptions{
		RecordPath:        filepath.Join("..", "testdata", "record.csv"),
		CalibrationPath:   filepath.Join("..", "testdata", "calibration.csv"),
		Policy:            policyBaseline,
		DecisionTimeout:   evaluation.DefaultDecisionTimeout,
		Forecast:          forecastRecord,
		PriceScenario:     "normal",
		Steps:             96,
		TraceLevel:        trace.TraceLevelNone,
		EnforceActivePump: true,
	}
}

func TestExecuteRun_BaselineOverTestdata(t *testing.T) {
	// GIVEN the bundled record and calibration
	opts := testOptions(t)

	// WHEN the baseline replays one day
	res, err := executeRun(context.Background(), opts)

	// THEN the run completes with a positive cost and starts at the recorded level
	require.NoError(t, err)
	assert.True(t, res.Metadata.CompletedSuccessfully)
	assert.Equal(t, 96, res.Metadata.StepsCompleted)
	assert.InDelta(t, 2.0, res.Metadata.InitialLevelM, 1e-9)
	assert.Greater(t, res.Metrics.TotalCostEUR, 0.0)
	assert.Equal(t, policy.BaselineName, res.Metadata.Source)
}

func TestExecuteRun_HeuristicWithMetricsAndTrace(t *testing.T) {
	// GIVEN the heuristic policy with tracing and a metrics file
	opts := testOptions(t)
	opts.Policy = policyHeuristic
	opts.Forecast = forecastDiurnal
	opts.TraceLevel = trace.TraceLevelDecisions
	opts.MetricsFile = filepath.Join(t.TempDir(), "tunnel.prom")

	// WHEN it runs
	res, err := executeRun(context.Background(), opts)

	// THEN every step has a decision record and the metrics file is written
	require.NoError(t, err)
	require.NotNil(t, res.Trace)
	assert.Len(t, res.Trace.Decisions, 96)
	for _, step := range res.Steps {
		assert.GreaterOrEqual(t, countRunning(step.Pumps), 1)
	}
	data, err := os.ReadFile(opts.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tunnel_sim_steps_total{source="heuristic"} 96`)
}

func TestExecuteRun_HTTPPolicy(t *testing.T) {
	// GIVEN a decision service that always runs pump 2.2 at 49 Hz
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(policy.DecisionResponse{
			PumpCommands: []sim.PumpCommand{{PumpID: "2.2", Run: true, FrequencyHz: 49}},
		})
	}))
	defer srv.Close()
	opts := testOptions(t)
	opts.Policy = policyHTTP
	opts.DecisionURL = srv.URL
	opts.Steps = 8

	// WHEN it runs
	res, err := executeRun(context.Background(), opts)

	// THEN the service's commands are executed
	require.NoError(t, err)
	require.Len(t, res.Steps, 8)
	assert.Equal(t, "2.2", res.Steps[0].Pumps[0].PumpID)
	assert.Zero(t, res.Metrics.CorrectedSteps)
}

func TestExecuteCompare_HeuristicAgainstBaseline(t *testing.T) {
	opts := testOptions(t)
	opts.Policy = policyHeuristic

	report, err := executeCompare(context.Background(), opts)

	require.NoError(t, err)
	assert.Equal(t, policy.BaselineName, report.Comparison.Baseline)
	assert.Equal(t, policy.HeuristicName, report.Comparison.Candidate)
	assert.Equal(t, 96, report.Comparison.BaselineSteps)
	assert.Equal(t, 96, report.Comparison.CandidateSteps)
	assert.False(t, report.Comparison.Scaled)
}

func TestBuildSource_Errors(t *testing.T) {
	env, err := loadEnvironment(testOptions(t))
	require.NoError(t, err)

	tests := []struct {
		name string
		opts runOptions
	}{
		{"unknown policy", runOptions{Policy: "genetic"}},
		{"http without url", runOptions{Policy: policyHTTP}},
		{"unknown forecast", runOptions{Policy: policyHeuristic, Forecast: "lstm"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.buildSource(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvironment_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*runOptions)
	}{
		{"bad price scenario", func(o *runOptions) { o.PriceScenario = "peak" }},
		{"missing record", func(o *runOptions) { o.RecordPath = "nope.csv" }},
		{"missing calibration", func(o *runOptions) { o.CalibrationPath = "nope.csv" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			tt.mutate(&opts)
			_, err := loadEnvironment(opts)
			assert.Error(t, err)
		})
	}
}

func TestWriteJSON_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	require.NoError(t, writeJSON(path, map[string]time.Duration{"wall": time.Second}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"wall": 1000000000`))
}

func countRunning(pumps []sim.PumpStatus) int {
	n := 0
	for _, p := range pumps {
		if p.Running {
			n++
		}
	}
	return n
}
