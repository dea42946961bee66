package sim

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/dipsmc/internal/dynamo"
)

// Builder returns a fresh simulator. Ensembles build one per trial so
// that integrator scratch buffers are never shared.
type Builder func() (*Simulator, error)

type Ensemble struct {
	build   Builder
	workers int
}

func NewEnsemble(build Builder, workers int) *Ensemble {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Ensemble{build: build, workers: workers}
}

// Run executes one trial per initial state, trial i seeded with
// cfg.Seed+i. Results keep the order of initial.
func (e *Ensemble) Run(ctx context.Context, initial []dynamo.State, cfg Config) ([]*Result, error) {
	results := make([]*Result, len(initial))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, x0 := range initial {
		i, x0 := i, x0
		g.Go(func() error {
			sim, err := e.build()
			if err != nil {
				return err
			}
			trial := cfg
			trial.Seed = cfg.Seed + int64(i)

			res, err := sim.Run(ctx, x0, trial)
			if err != nil {
				return err
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
