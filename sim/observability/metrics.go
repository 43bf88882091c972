// Package observability exports evaluation runs as Prometheus metrics.
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hsy-tunnel/tunnel-sim/sim"
	"github.com/hsy-tunnel/tunnel-sim/sim/evaluation"
)

// RunCollector bundles the Prometheus metrics of evaluation runs. It
// implements evaluation.Observer and is safe for concurrent runs.
type RunCollector struct {
	gatherer prometheus.Gatherer

	Steps             *prometheus.CounterVec
	Violations        *prometheus.CounterVec
	EnergyKWh         *prometheus.CounterVec
	CostEUR           *prometheus.CounterVec
	Runs              *prometheus.CounterVec
	DecisionFailures  *prometheus.CounterVec
	DecisionDurations *prometheus.HistogramVec
	LevelM            *prometheus.GaugeVec
}

var _ evaluation.Observer = (*RunCollector)(nil)

// NewRunCollector registers the run metrics against reg, defaulting to the
// global Prometheus registry when nil. Registering twice against the same
// registry reuses the existing collectors.
func NewRunCollector(reg prometheus.Registerer) (*RunCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	steps, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnel_sim_steps_total",
		Help: "Simulated steps, labeled by command source.",
	}, []string{"source"}), "tunnel_sim_steps_total")
	if err != nil {
		return nil, err
	}
	violations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnel_sim_violations_total",
		Help: "Constraint violations, labeled by command source and violation type.",
	}, []string{"source", "type"}), "tunnel_sim_violations_total")
	if err != nil {
		return nil, err
	}
	energy, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnel_sim_energy_kwh_total",
		Help: "Pumping energy in kWh, labeled by command source.",
	}, []string{"source"}), "tunnel_sim_energy_kwh_total")
	if err != nil {
		return nil, err
	}
	cost, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnel_sim_cost_eur_total",
		Help: "Electricity cost in EUR, labeled by command source.",
	}, []string{"source"}), "tunnel_sim_cost_eur_total")
	if err != nil {
		return nil, err
	}
	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnel_sim_runs_total",
		Help: "Finished evaluation runs, labeled by command source and termination reason.",
	}, []string{"source", "outcome"}), "tunnel_sim_runs_total")
	if err != nil {
		return nil, err
	}
	failures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnel_sim_decision_failures_total",
		Help: "Failed or timed out command source decisions, labeled by command source.",
	}, []string{"source"}), "tunnel_sim_decision_failures_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tunnel_sim_decision_duration_seconds",
		Help:    "Command source decision latency in seconds.",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"}), "tunnel_sim_decision_duration_seconds")
	if err != nil {
		return nil, err
	}
	level, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tunnel_sim_level_m",
		Help: "Tunnel level after the latest simulated step, labeled by command source.",
	}, []string{"source"}), "tunnel_sim_level_m")
	if err != nil {
		return nil, err
	}

	return &RunCollector{
		gatherer:          gatherer,
		Steps:             steps,
		Violations:        violations,
		EnergyKWh:         energy,
		CostEUR:           cost,
		Runs:              runs,
		DecisionFailures:  failures,
		DecisionDurations: durations,
		LevelM:            level,
	}, nil
}

// ObserveDecision records one decision's latency and outcome.
func (c *RunCollector) ObserveDecision(source string, latency time.Duration, err error) {
	if c == nil {
		return
	}
	c.DecisionDurations.WithLabelValues(source).Observe(latency.Seconds())
	if err != nil {
		c.DecisionFailures.WithLabelValues(source).Inc()
	}
}

// ObserveStep records the energy, cost, level and violations of one step.
func (c *RunCollector) ObserveStep(source string, state sim.SystemState) {
	if c == nil {
		return
	}
	c.Steps.WithLabelValues(source).Inc()
	c.EnergyKWh.WithLabelValues(source).Add(state.StepEnergyKWh)
	c.CostEUR.WithLabelValues(source).Add(state.StepCostEUR)
	c.LevelM.WithLabelValues(source).Set(state.LevelM)
	for _, v := range state.Violations {
		c.Violations.WithLabelValues(source, string(v.Type)).Inc()
	}
}

// ObserveRun records a finished run.
func (c *RunCollector) ObserveRun(source string, reason evaluation.TerminationReason) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(source, string(reason)).Inc()
}

// WriteTextfile writes every metric of the collector's registry to path in
// the Prometheus text format, for pickup by a node exporter textfile collector.
func (c *RunCollector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
