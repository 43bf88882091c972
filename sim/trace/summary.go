package trace

// TraceSummary aggregates statistics from a DecisionTrace.
type TraceSummary struct {
	TotalDecisions  int            `json:"total_decisions"`
	CorrectedCount  int            `json:"corrected_count"`
	FailedCount     int            `json:"failed_count"`
	MeanLatencyMs   float64        `json:"mean_latency_ms"`
	MaxLatencyMs    float64        `json:"max_latency_ms"`
	UniquePumps     int            `json:"unique_pumps"`
	PumpRunningDist map[string]int `json:"pump_running_distribution"` // pump ID → executed steps running at a positive frequency
}

// Summarize computes aggregate statistics from a DecisionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(dt *DecisionTrace) *TraceSummary {
	summary := &TraceSummary{
		PumpRunningDist: make(map[string]int),
	}
	if dt == nil {
		return summary
	}

	summary.TotalDecisions = len(dt.Decisions)
	if summary.TotalDecisions == 0 {
		return summary
	}

	totalLatency := 0.0
	for _, d := range dt.Decisions {
		if d.Corrected {
			summary.CorrectedCount++
		}
		if d.Error != "" {
			summary.FailedCount++
		}
		totalLatency += d.LatencyMs
		if d.LatencyMs > summary.MaxLatencyMs {
			summary.MaxLatencyMs = d.LatencyMs
		}
		for _, c := range d.Executed {
			if c.Run && c.FrequencyHz > 0 {
				summary.PumpRunningDist[c.PumpID]++
			}
		}
	}
	summary.MeanLatencyMs = totalLatency / float64(summary.TotalDecisions)
	summary.UniquePumps = len(summary.PumpRunningDist)

	return summary
}
