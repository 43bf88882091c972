package evaluation

import "github.com/sirupsen/logrus"

// Comparison reports how a candidate run performed against a baseline run.
// Improvements are percentages of the baseline value; positive means the
// candidate was cheaper or used less energy.
type Comparison struct {
	Baseline  string `json:"baseline"`
	Candidate string `json:"candidate"`

	CostImprovementPct           float64 `json:"cost_improvement_pct"`
	EnergyImprovementPct         float64 `json:"energy_improvement_pct"`
	SpecificEnergyImprovementPct float64 `json:"specific_energy_improvement_pct"`

	CostSavingsEUR   float64 `json:"cost_savings_eur"`
	EnergySavingsKWh float64 `json:"energy_savings_kwh"`

	BaselineViolations  int `json:"baseline_violations"`
	CandidateViolations int `json:"candidate_violations"`
	ViolationDelta      int `json:"violation_delta"` // candidate minus baseline

	BaselineSteps  int  `json:"baseline_steps"`
	CandidateSteps int  `json:"candidate_steps"`
	Scaled         bool `json:"scaled"` // baseline totals were scaled to the candidate's step count
}

// Compare computes the improvement of candidate over baseline.
//
// When the two runs completed a different number of steps, the baseline cost
// and energy are scaled by the completed-step ratio before comparing.
// Specific energy is a ratio and is never scaled.
func Compare(baseline, candidate *EvaluationResult) Comparison {
	bm, cm := baseline.Metrics, candidate.Metrics
	bSteps, cSteps := baseline.Metadata.StepsCompleted, candidate.Metadata.StepsCompleted

	bCost, bEnergy := bm.TotalCostEUR, bm.TotalEnergyKWh
	scaled := false
	if bSteps != cSteps && bSteps > 0 {
		ratio := float64(cSteps) / float64(bSteps)
		bCost *= ratio
		bEnergy *= ratio
		scaled = true
		logrus.Warnf("comparing runs of unequal length (%s: %d steps, %s: %d steps); baseline scaled by %.3f",
			baseline.Metadata.Source, bSteps, candidate.Metadata.Source, cSteps, ratio)
	}

	return Comparison{
		Baseline:                     baseline.Metadata.Source,
		Candidate:                    candidate.Metadata.Source,
		CostImprovementPct:           improvementPct(bCost, cm.TotalCostEUR),
		EnergyImprovementPct:         improvementPct(bEnergy, cm.TotalEnergyKWh),
		SpecificEnergyImprovementPct: improvementPct(bm.SpecificEnergyKWhPerM3, cm.SpecificEnergyKWhPerM3),
		CostSavingsEUR:               bCost - cm.TotalCostEUR,
		EnergySavingsKWh:             bEnergy - cm.TotalEnergyKWh,
		BaselineViolations:           baseline.Violations.Count,
		CandidateViolations:          candidate.Violations.Count,
		ViolationDelta:               candidate.Violations.Count - baseline.Violations.Count,
		BaselineSteps:                bSteps,
		CandidateSteps:               cSteps,
		Scaled:                       scaled,
	}
}

// improvementPct is (base - candidate) / base * 100, or 0 when base is 0.
func improvementPct(base, candidate float64) float64 {
	if base == 0 {
		return 0
	}
	return (base - candidate) / base * 100
}
