package evaluation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hsy-tunnel/tunnel-sim/sim"
)

// RunAll evaluates every source over the same window concurrently. Results
// are returned in source order. Each run owns its kernel and accounting, so
// runs share nothing but the orchestrator's read-only collaborators.
//
// Source failures end only their own run (see Run); the returned error is
// the first configuration error, which cancels the remaining runs.
func RunAll(ctx context.Context, orch *Orchestrator, startIndex, numSteps int, sources ...sim.CommandSource) ([]*EvaluationResult, error) {
	results := make([]*EvaluationResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res, err := orch.Run(gctx, startIndex, numSteps, src)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
