package policy

import (
	"context"

	"github.com/hsy-tunnel/tunnel-sim/sim"
)

// DecideFunc is the signature of a decision function.
type DecideFunc func(ctx context.Context, state sim.SystemState) ([]sim.PumpCommand, error)

// Func adapts a plain function to sim.CommandSource.
type Func struct {
	name string
	fn   DecideFunc
}

// NewFunc wraps fn under name.
func NewFunc(name string, fn DecideFunc) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Decide(ctx context.Context, state sim.SystemState) ([]sim.PumpCommand, error) {
	return f.fn(ctx, state)
}

// Constant returns a source that issues the same commands at every step.
func Constant(name string, commands ...sim.PumpCommand) *Func {
	return NewFunc(name, func(context.Context, sim.SystemState) ([]sim.PumpCommand, error) {
		return append([]sim.PumpCommand(nil), commands...), nil
	})
}
