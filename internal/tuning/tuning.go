// Package tuning binds the PSO optimizer to closed-loop simulation of the
// controller variants.
package tuning

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/dipsmc/internal/experiment"
	"github.com/san-kum/dipsmc/internal/optim"
	"github.com/san-kum/dipsmc/internal/physics"
)

type Request struct {
	Variant    string
	Bounds     optim.Bounds // nil selects the variant's search box
	Weights    Weights
	SwarmSize  int
	Iterations int
	Seed       int64

	// PSO carries the remaining swarm settings, optim.DefaultConfig when
	// zero; SwarmSize, Iterations and Seed above take precedence.
	PSO optim.Config

	// Experiment is the base run; its Variant and Gains are overridden.
	Experiment experiment.Config

	// Perturbed extra scenarios around Experiment.InitState, each angle
	// and rate shifted within ±Perturbation.
	Perturbed    int
	Perturbation float64

	Registry *experiment.Registry
	Logger   *zap.Logger
}

type Outcome struct {
	Variant     string
	GainNames   []string
	BestGains   []float64
	BestCost    float64
	History     []float64
	Iterations  int
	Evaluations int
	Stop        optim.StopReason
}

type prepared struct {
	variant   experiment.Variant
	bounds    optim.Bounds
	objective *Objective
	scenarios int
	logger    *zap.Logger
}

func prepare(req Request) (*prepared, error) {
	registry := req.Registry
	if registry == nil {
		registry = experiment.NewRegistry()
	}
	logger := req.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	v, err := registry.Variant(req.Variant)
	if err != nil {
		return nil, err
	}
	bounds := req.Bounds
	if bounds == nil {
		bounds = v.Bounds
	}
	if len(bounds) != len(v.GainNames) {
		return nil, fmt.Errorf("%w: %s has %d gains, bounds give %d", optim.ErrInvalidBounds, v.Name, len(v.GainNames), len(bounds))
	}
	if err := req.Weights.Validate(); err != nil {
		return nil, err
	}

	base := req.Experiment
	base.Variant = req.Variant
	base.Gains = nil
	if err := base.Sim.Validate(); err != nil {
		return nil, err
	}

	scenarios := Scenarios(base.InitState, req.Perturbed, req.Perturbation, req.Seed,
		physics.Theta1, physics.Theta2, physics.Omega1, physics.Omega2)
	return &prepared{
		variant:   v,
		bounds:    bounds,
		objective: NewObjective(registry, base, req.Weights, scenarios, logger.Named("objective")),
		scenarios: len(scenarios),
		logger:    logger,
	}, nil
}

func (p *prepared) outcome(res *optim.Result, err error) (*Outcome, error) {
	if res == nil {
		return nil, err
	}
	out := &Outcome{
		Variant:     p.variant.Name,
		GainNames:   p.variant.GainNames,
		BestGains:   res.BestPosition,
		BestCost:    res.BestCost,
		History:     res.History,
		Iterations:  res.Iterations,
		Evaluations: res.Evaluations,
		Stop:        res.Stop,
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return out, fmt.Errorf("tune %s: %w", p.variant.Name, err)
	}
	return out, err
}

// Optimize tunes the gains of one controller variant. On cancellation it
// returns the best gains found so far together with the context error.
func Optimize(ctx context.Context, req Request) (*Outcome, error) {
	p, err := prepare(req)
	if err != nil {
		return nil, err
	}

	cfg := req.PSO
	if cfg == (optim.Config{}) {
		cfg = optim.DefaultConfig()
	}
	cfg.SwarmSize = req.SwarmSize
	cfg.Iterations = req.Iterations
	cfg.Seed = req.Seed

	pso, err := optim.NewPSO(p.bounds, cfg,
		optim.WithConstraints(p.variant.Constraints...),
		optim.WithLogger(p.logger.Named("pso")))
	if err != nil {
		return nil, err
	}

	p.logger.Info("tuning started",
		zap.String("variant", p.variant.Name),
		zap.Int("swarm", pso.Config().SwarmSize),
		zap.Int("iterations", cfg.Iterations),
		zap.Int("scenarios", p.scenarios))

	return p.outcome(pso.Optimize(ctx, p.objective))
}

// Grid evaluates the variant on a full factorial grid with points values
// per gain. It serves as a baseline for Optimize.
func Grid(ctx context.Context, req Request, points int) (*Outcome, error) {
	p, err := prepare(req)
	if err != nil {
		return nil, err
	}

	grid, err := optim.NewGridSearch(p.bounds, points, req.PSO.Workers,
		optim.WithConstraints(p.variant.Constraints...),
		optim.WithLogger(p.logger.Named("grid")))
	if err != nil {
		return nil, err
	}

	p.logger.Info("grid search started",
		zap.String("variant", p.variant.Name),
		zap.Int("candidates", grid.Size()),
		zap.Int("scenarios", p.scenarios))

	return p.outcome(grid.Search(ctx, p.objective))
}
