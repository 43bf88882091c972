// Package trace provides decision-trace recording for command source analysis.
// This package has no dependencies on sim/ or its sub-packages. It stores pure data types.
package trace

import "time"

// CommandRecord is one pump command as proposed or executed.
type CommandRecord struct {
	PumpID      string  `json:"pump_id"`
	Run         bool    `json:"run"`
	FrequencyHz float64 `json:"frequency_hz"`
}

// DecisionRecord captures a single command source decision.
type DecisionRecord struct {
	RecordIndex int             `json:"record_index"`
	Timestamp   time.Time       `json:"timestamp"`
	LevelM      float64         `json:"level_m"`
	Proposed    []CommandRecord `json:"proposed"`
	Executed    []CommandRecord `json:"executed"`
	Corrected   bool            `json:"corrected"`
	Reason      string          `json:"reason,omitempty"`
	LatencyMs   float64         `json:"latency_ms"`
	Error       string          `json:"error,omitempty"`
}

// NewDecisionRecord fills the latency field from d.
func NewDecisionRecord(recordIndex int, ts time.Time, levelM float64, d time.Duration) DecisionRecord {
	return DecisionRecord{
		RecordIndex: recordIndex,
		Timestamp:   ts,
		LevelM:      levelM,
		LatencyMs:   durationMs(d),
	}
}
