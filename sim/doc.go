// Package sim provides the closed-loop tank and pump simulation core for the
// tunnel pumping station.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - calibration.go: level ↔ volume conversion over the calibration table
//   - pump.go: per-pump affinity-law performance model
//   - kernel.go: the single-step mass balance and energy/cost bookkeeping
//
// Then the post-step consumers:
//   - constraints.go: operational limit checks and runtime history
//   - accountant.go: run totals and specific energy
//
// # Architecture
//
// The sim package defines the physical model, the data types exchanged per
// step and the CommandSource seam; drivers and implementations live in
// sub-packages:
//   - sim/evaluation/: the run orchestrator, results and baseline comparison
//   - sim/policy/: command sources (historical replay, heuristic, HTTP decision service)
//   - sim/dataset/: CSV loaders for the historical record and calibration table
//   - sim/trace/: decision trace recording
//   - sim/observability/: Prometheus collectors
//
// # Units
//
// Inflow is a per-step volume (m³ per 15-minute step). Pump and aggregate
// outflow are rates (m³/h). The kernel converts outflow to a per-step volume
// exactly once, using the configured step duration.
package sim
