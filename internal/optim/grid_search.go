package optim

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
)

// GridSearch evaluates every point of a regular grid over the bounds. It
// is the exhaustive baseline for small dimensions.
type GridSearch struct {
	bounds  Bounds
	ranges  [][]float64
	workers int
	opts    options
}

// NewGridSearch places points samples per dimension, ends included.
// Degenerate dimensions get a single sample.
func NewGridSearch(bounds Bounds, points, workers int, opts ...Option) (*GridSearch, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if points < 1 {
		return nil, fmt.Errorf("%w: grid needs at least one point per dimension", ErrInvalidConfig)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ranges := make([][]float64, len(bounds))
	for i, b := range bounds {
		if points == 1 || b.Range() == 0 {
			ranges[i] = []float64{b.Min + b.Range()/2}
			continue
		}
		step := b.Range() / float64(points-1)
		for k := 0; k < points; k++ {
			ranges[i] = append(ranges[i], b.Min+float64(k)*step)
		}
		ranges[i][points-1] = b.Max
	}
	return &GridSearch{bounds: bounds, ranges: ranges, workers: workers, opts: buildOptions(opts)}, nil
}

func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

func (g *GridSearch) candidates(depth int, current []float64, out *[][]float64) {
	if depth == len(g.ranges) {
		*out = append(*out, append([]float64(nil), current...))
		return
	}
	for _, val := range g.ranges[depth] {
		g.candidates(depth+1, append(current, val), out)
	}
}

// Search scores the grid and returns the lowest-cost point; ties keep the
// earlier point in enumeration order. On cancellation the points not yet
// started are skipped and the best of the scored ones is returned with
// ctx.Err().
func (g *GridSearch) Search(ctx context.Context, obj Objective) (*Result, error) {
	var grid [][]float64
	g.candidates(0, make([]float64, 0, len(g.ranges)), &grid)

	sc := &scorer{objective: obj, bounds: g.bounds, opts: g.opts, workers: g.workers}
	costs, evaluated := sc.scoreAll(ctx, grid)

	res := &Result{BestCost: math.Inf(1), Evaluations: evaluated, Iterations: 1, Stop: StopBudget}
	for i, c := range costs {
		if c < res.BestCost {
			res.BestCost = c
			res.BestPosition = grid[i]
		}
	}
	res.History = []float64{res.BestCost}

	g.opts.logger.Info("grid search finished",
		zap.Int("points", len(grid)),
		zap.Float64("best_cost", res.BestCost))

	if err := ctx.Err(); err != nil {
		res.Stop = StopCancelled
		return res, err
	}
	if res.BestPosition == nil {
		return res, ErrNoFeasible
	}
	return res, nil
}
