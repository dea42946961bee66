package automation

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/experiment"
	"github.com/san-kum/dipsmc/internal/metrics"
	"github.com/san-kum/dipsmc/internal/physics"
)

// Sweep varies one plant parameter over Points evenly spaced values in
// [From, To]. The controller keeps the base plant as its model, so every
// point is a model mismatch except the nominal one.
type Sweep struct {
	Param  string
	From   float64
	To     float64
	Points int
}

// Range is the span of the plant energy along a trajectory.
type Range struct {
	Min, Max float64
}

func (r Range) Width() float64 { return r.Max - r.Min }

type SweepPoint struct {
	Value   float64
	Summary metrics.Summary
	Failed  bool
	Final   dynamo.State
	Energy  Range
}

func (s Sweep) Values() ([]float64, error) {
	if s.Points < 2 {
		return nil, fmt.Errorf("sweep needs at least 2 points, got %d", s.Points)
	}
	if !(s.To > s.From) {
		return nil, fmt.Errorf("sweep range [%g, %g] is empty", s.From, s.To)
	}
	return floats.Span(make([]float64, s.Points), s.From, s.To), nil
}

func RunSweep(ctx context.Context, s Sweep, base experiment.Config, registry *experiment.Registry, logger *zap.Logger) ([]SweepPoint, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	values, err := s.Values()
	if err != nil {
		return nil, err
	}
	nominal := base.Plant
	if base.Nominal != nil {
		nominal = *base.Nominal
	}

	points := make([]SweepPoint, 0, len(values))
	for _, v := range values {
		plant, err := WithParams(base.Plant, base.Regularizer, map[string]float64{s.Param: v})
		if err != nil {
			return nil, err
		}
		cfg := base
		cfg.Plant = plant
		cfg.Nominal = &nominal

		exp := experiment.New(cfg, registry, logger)
		if err := exp.Setup(); err != nil {
			return nil, err
		}
		res, err := exp.Run(ctx)
		if err != nil {
			return nil, err
		}
		energy, err := energyRange(plant, cfg, res.Trajectory.States)
		if err != nil {
			return nil, err
		}

		points = append(points, SweepPoint{
			Value:   v,
			Summary: res.Summary,
			Failed:  res.Failed(),
			Final:   res.Trajectory.Final(),
			Energy:  energy,
		})
		logger.Debug("sweep point",
			zap.String("param", s.Param),
			zap.Float64("value", v),
			zap.Bool("failed", res.Failed()))
	}
	return points, nil
}

func energyRange(p physics.Params, cfg experiment.Config, states []dynamo.State) (Range, error) {
	if len(states) == 0 {
		return Range{}, nil
	}
	plant, err := physics.NewDoubleInvertedPendulum(p, cfg.Regularizer)
	if err != nil {
		return Range{}, err
	}
	h := make([]float64, len(states))
	for i, x := range states {
		h[i] = plant.Energy(x)
	}
	return Range{Min: floats.Min(h), Max: floats.Max(h)}, nil
}
