package sim

import (
	"errors"
	"fmt"
)

// ErrStepOutOfOrder is returned when a step is added twice or out of order.
var ErrStepOutOfOrder = errors.New("step added out of order")

// StepCost is one step's energy and cost breakdown.
type StepCost struct {
	PowerKW                float64 `json:"total_power_kw"`
	EnergyKWh              float64 `json:"energy_kwh"`
	CostEUR                float64 `json:"cost_eur"`
	PumpedM3               float64 `json:"flow_pumped_m3"`
	SpecificEnergyKWhPerM3 float64 `json:"specific_energy_kwh_per_m3"`
}

// Totals are the accumulated run figures.
type Totals struct {
	TotalCostEUR           float64 `json:"total_cost_eur"`
	TotalEnergyKWh         float64 `json:"total_energy_kwh"`
	TotalFlowM3            float64 `json:"total_flow_m3"`
	SpecificEnergyKWhPerM3 float64 `json:"specific_energy_kwh_per_m3"`
	Steps                  int     `json:"steps"`
}

// CostAccountant accumulates cost, energy and pumped volume over a run.
// Each step is added exactly once, in step order.
type CostAccountant struct {
	totals   Totals
	hasLast  bool
	lastStep int
}

// NewCostAccountant returns an empty accountant.
func NewCostAccountant() *CostAccountant {
	return &CostAccountant{}
}

// Add accumulates the contribution of a post-step state. States must arrive
// with strictly increasing RecordIndex.
func (a *CostAccountant) Add(state SystemState) (StepCost, error) {
	if a.hasLast && state.RecordIndex <= a.lastStep {
		return StepCost{}, fmt.Errorf("%w: step %d after %d", ErrStepOutOfOrder, state.RecordIndex, a.lastStep)
	}
	a.hasLast = true
	a.lastStep = state.RecordIndex

	sc := StepCost{
		PowerKW:                state.TotalPowerKW,
		EnergyKWh:              state.StepEnergyKWh,
		CostEUR:                state.StepCostEUR,
		PumpedM3:               state.PumpedVolumeM3,
		SpecificEnergyKWhPerM3: specificEnergy(state.StepEnergyKWh, state.PumpedVolumeM3),
	}
	a.totals.TotalCostEUR += sc.CostEUR
	a.totals.TotalEnergyKWh += sc.EnergyKWh
	a.totals.TotalFlowM3 += sc.PumpedM3
	a.totals.Steps++
	return sc, nil
}

// Totals returns the accumulated figures; specific energy is 0 when nothing was pumped.
func (a *CostAccountant) Totals() Totals {
	t := a.totals
	t.SpecificEnergyKWhPerM3 = specificEnergy(t.TotalEnergyKWh, t.TotalFlowM3)
	return t
}

func specificEnergy(energyKWh, flowM3 float64) float64 {
	if flowM3 == 0 {
		return 0
	}
	return energyKWh / flowM3
}
