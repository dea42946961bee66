package tuning

import (
	"context"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/experiment"
)

// Scenarios returns the nominal initial state followed by n perturbed
// copies with the indexed components shifted uniformly within
// ±amplitude. The set depends only on seed.
func Scenarios(nominal dynamo.State, n int, amplitude float64, seed int64, indices ...int) []dynamo.State {
	out := []dynamo.State{nominal.Clone()}
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		x := nominal.Clone()
		for _, j := range indices {
			x[j] += amplitude * (2*rng.Float64() - 1)
		}
		out = append(out, x)
	}
	return out
}

// Objective scores a gains vector by simulating every scenario with a
// freshly built controller and averaging the trial costs. Invalid gains
// cost +Inf.
type Objective struct {
	registry  *experiment.Registry
	base      experiment.Config
	weights   Weights
	scenarios []dynamo.State
	logger    *zap.Logger
}

func NewObjective(registry *experiment.Registry, base experiment.Config, weights Weights, scenarios []dynamo.State, logger *zap.Logger) *Objective {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Objective{registry: registry, base: base, weights: weights, scenarios: scenarios, logger: logger}
}

func (o *Objective) Evaluate(ctx context.Context, gains []float64) float64 {
	cfg := o.base
	cfg.Gains = gains

	total := 0.0
	for _, x0 := range o.scenarios {
		s, err := o.registry.Build(cfg, o.logger)
		if err != nil {
			o.logger.Debug("rejected candidate", zap.Float64s("gains", gains), zap.Error(err))
			return math.Inf(1)
		}
		res, err := s.Run(ctx, x0, cfg.Sim)
		if err != nil {
			return math.Inf(1)
		}
		b := o.weights.Cost(res, cfg.Sim.Duration)
		if b.Failed {
			o.logger.Debug("trial aborted",
				zap.Float64s("gains", gains),
				zap.Float64s("x0", x0),
				zap.Float64("cost", b.Total))
		}
		total += b.Total
	}
	return total / float64(len(o.scenarios))
}
