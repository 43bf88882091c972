package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hsy-tunnel/tunnel-sim/sim/evaluation"
	"github.com/hsy-tunnel/tunnel-sim/sim/trace"
)

var (
	// Inputs
	recordPath      string // Historical record CSV
	calibrationPath string // Level/volume calibration table CSV
	stationPath     string // Station YAML (pumps, limits, fallback); built-in station when absent

	// Command source
	policyName      string        // baseline, heuristic or http
	decisionURL     string        // Decision service endpoint for --policy=http
	decisionTimeout time.Duration // Deadline for a single decision
	forecastName    string        // Inflow forecaster for the heuristic policy

	// Run window
	priceScenario string // normal or high
	startIndex    int    // First record row to simulate
	numSteps      int    // Number of 15-minute steps

	// Outputs
	outputPath        string // Result JSON path; stdout when empty
	traceLevel        string // Decision trace verbosity
	metricsFile       string // Prometheus textfile output
	enforceActivePump bool   // Start the fallback pump when a decision runs none
	logLevel          string // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "tunnel-sim",
	Short: "Closed-loop simulator and evaluator for the tunnel pumping station",
}

// runCmd evaluates one command source over the record
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate one command source against the historical record",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		opts := optionsFromFlags()

		wallStart := time.Now()
		res, err := executeRun(cmd.Context(), opts)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := writeJSON(opts.OutputPath, res); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("Evaluation of %s finished in %s (%s)", res.Metadata.Source, time.Since(wallStart), res.Metadata.Termination)
	},
}

// compareCmd evaluates the baseline replay and a policy side by side
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Evaluate the baseline replay and a policy over the same window and compare them",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		opts := optionsFromFlags()
		if opts.Policy == policyBaseline {
			logrus.Fatalf("--policy must name a policy other than %q to compare against the baseline", policyBaseline)
		}

		report, err := executeCompare(cmd.Context(), opts)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := writeJSON(opts.OutputPath, report); err != nil {
			logrus.Fatalf("%v", err)
		}
		c := report.Comparison
		logrus.Infof("%s vs %s: cost %+.2f%%, energy %+.2f%%, specific energy %+.2f%%, violations %+d",
			c.Candidate, c.Baseline, c.CostImprovementPct, c.EnergyImprovementPct, c.SpecificEnergyImprovementPct, c.ViolationDelta)
	},
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

func optionsFromFlags() runOptions {
	if recordPath == "" {
		logrus.Fatalf("--record not provided. Exiting.")
	}
	if calibrationPath == "" {
		logrus.Fatalf("--calibration not provided. Exiting.")
	}
	if !trace.IsValidTraceLevel(traceLevel) {
		logrus.Fatalf("Invalid trace level: %s", traceLevel)
	}
	if numSteps <= 0 {
		logrus.Fatalf("--steps must be positive, got %d", numSteps)
	}
	if startIndex < 0 {
		logrus.Fatalf("--start must be non-negative, got %d", startIndex)
	}
	return runOptions{
		RecordPath:        recordPath,
		CalibrationPath:   calibrationPath,
		StationPath:       stationPath,
		Policy:            policyName,
		DecisionURL:       decisionURL,
		DecisionTimeout:   decisionTimeout,
		Forecast:          forecastName,
		PriceScenario:     priceScenario,
		Start:             startIndex,
		Steps:             numSteps,
		OutputPath:        outputPath,
		TraceLevel:        trace.TraceLevel(traceLevel),
		MetricsFile:       metricsFile,
		EnforceActivePump: enforceActivePump,
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, compareCmd} {
		f := c.Flags()
		f.StringVar(&recordPath, "record", "", "Historical record CSV (timestamp,inflow_m3,price_normal,price_high[,level_m][,freq_<pump>...])")
		f.StringVar(&calibrationPath, "calibration", "", "Calibration table CSV (level_m,volume_m3)")
		f.StringVar(&stationPath, "station", "", "Station YAML overriding pumps, limits and guard; built-in station when absent")

		f.StringVar(&policyName, "policy", policyBaseline, "Command source: baseline, heuristic or http")
		f.StringVar(&decisionURL, "decision-url", "", "Decision service URL for --policy=http")
		f.DurationVar(&decisionTimeout, "decision-timeout", evaluation.DefaultDecisionTimeout, "Deadline for a single decision (0 disables)")
		f.StringVar(&forecastName, "forecast", forecastRecord, "Inflow forecast for the heuristic policy: record, diurnal or persistence")

		f.StringVar(&priceScenario, "price", "normal", "Electricity price scenario: normal or high")
		f.IntVar(&startIndex, "start", 0, "First record row to simulate")
		f.IntVar(&numSteps, "steps", 96, "Number of 15-minute steps to simulate")

		f.StringVar(&outputPath, "output", "", "Result JSON path (stdout when empty)")
		f.StringVar(&traceLevel, "trace-level", string(trace.TraceLevelNone), "Decision trace verbosity: none or decisions")
		f.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this path")
		f.BoolVar(&enforceActivePump, "enforce-active-pump", true, "Start the fallback pump when a decision leaves none running")
		f.StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

		rootCmd.AddCommand(c)
	}
}
