package sim

import (
	"context"
	"fmt"
)

// CommandSource decides the pump commands for the next step.
//
// Implementations range from a deterministic historical replay to an external
// decision service. A failure is reported as an error, which is distinct from
// an empty command list.
type CommandSource interface {
	Name() string
	Decide(ctx context.Context, state SystemState) ([]PumpCommand, error)
}

// DecisionError wraps a command source failure.
type DecisionError struct {
	Source      string
	RecordIndex int
	Timeout     bool // the decision did not return within the deadline
	RateLimited bool // the backing service refused the request for quota reasons
	Err         error
}

func (e *DecisionError) Error() string {
	kind := "failed"
	switch {
	case e.Timeout:
		kind = "timed out"
	case e.RateLimited:
		kind = "rate limited"
	}
	return fmt.Sprintf("command source %q %s at record %d: %v", e.Source, kind, e.RecordIndex, e.Err)
}

func (e *DecisionError) Unwrap() error {
	return e.Err
}

// EnsureActivePump returns commands with at least one pump running. When none
// runs, fallback replaces any command for the same pump (or is appended); the
// second return value reports whether a correction was made.
func EnsureActivePump(commands []PumpCommand, fallback PumpCommand) ([]PumpCommand, bool) {
	if CountRunning(commands) > 0 {
		return commands, false
	}
	fallback.Run = true
	out := make([]PumpCommand, 0, len(commands)+1)
	replaced := false
	for _, c := range commands {
		if c.PumpID == fallback.PumpID {
			out = append(out, fallback)
			replaced = true
			continue
		}
		out = append(out, c)
	}
	if !replaced {
		out = append(out, fallback)
	}
	return out, true
}
