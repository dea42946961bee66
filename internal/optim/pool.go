package optim

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
)

type evaluation struct {
	id       int
	cost     float64
	position []float64
	skipped  bool
}

// scorer evaluates candidates through a bounded worker pool. Workers only
// send results; the caller's goroutine is the single aggregator.
type scorer struct {
	objective Objective
	bounds    Bounds
	opts      options
	workers   int
}

func (s *scorer) feasible(position []float64) bool {
	if !s.bounds.Contains(position) {
		return false
	}
	for _, c := range s.opts.constraints {
		if !c(position) {
			return false
		}
	}
	return true
}

// cost scores one candidate. The objective gets a context that is never
// cancelled: a started evaluation always completes, so no cost is an
// artefact of cancellation.
func (s *scorer) cost(ctx context.Context, position []float64) float64 {
	if !s.feasible(position) {
		return math.Inf(1)
	}
	c := s.objective.Evaluate(context.WithoutCancel(ctx), append([]float64(nil), position...))
	if math.IsNaN(c) {
		return math.Inf(1)
	}
	return c
}

// scoreAll returns costs indexed like positions and the number of
// candidates actually evaluated. Once ctx is done no further candidates
// are started; those left out cost +Inf.
func (s *scorer) scoreAll(ctx context.Context, positions [][]float64) ([]float64, int) {
	results := make(chan evaluation, len(positions))

	go func() {
		var g errgroup.Group
		g.SetLimit(s.workers)
		for i, pos := range positions {
			i, pos := i, pos
			g.Go(func() error {
				if ctx.Err() != nil {
					results <- evaluation{id: i, cost: math.Inf(1), position: pos, skipped: true}
					return nil
				}
				results <- evaluation{id: i, cost: s.cost(ctx, pos), position: pos}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	costs := make([]float64, len(positions))
	evaluated := 0
	for ev := range results {
		costs[ev.id] = ev.cost
		if !ev.skipped {
			evaluated++
		}
	}
	return costs, evaluated
}
