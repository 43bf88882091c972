package trace

import "time"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every command source decision.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// Enabled reports whether level records anything.
func (l TraceLevel) Enabled() bool {
	return l == TraceLevelDecisions
}

// DecisionTrace collects decision records during one evaluation run.
type DecisionTrace struct {
	Level     TraceLevel       `json:"level"`
	Source    string           `json:"source"`
	Decisions []DecisionRecord `json:"decisions"`
}

// NewDecisionTrace creates a DecisionTrace ready for recording.
func NewDecisionTrace(level TraceLevel, source string) *DecisionTrace {
	return &DecisionTrace{
		Level:     level,
		Source:    source,
		Decisions: make([]DecisionRecord, 0),
	}
}

// RecordDecision appends a decision record. Safe on a nil trace.
func (dt *DecisionTrace) RecordDecision(record DecisionRecord) {
	if dt == nil {
		return
	}
	dt.Decisions = append(dt.Decisions, record)
}

// durationMs converts d to fractional milliseconds for reporting.
func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
