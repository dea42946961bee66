package experiment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/physics"
	"github.com/san-kum/dipsmc/internal/regularize"
	"github.com/san-kum/dipsmc/internal/sim"
)

type Config struct {
	Variant     string                 `yaml:"variant"`
	Integrator  string                 `yaml:"integrator"`
	Gains       []float64              `yaml:"gains,omitempty"`
	InitState   []float64              `yaml:"init_state"`
	Plant       physics.Params         `yaml:"plant"`
	Nominal     *physics.Params        `yaml:"nominal,omitempty"`
	Regularizer regularize.Regularizer `yaml:"regularizer"`
	Controllers Settings               `yaml:"controllers"`
	Sim         sim.Config             `yaml:"simulation"`
}

func DefaultConfig() Config {
	return Config{
		Variant:     "classical",
		Integrator:  "rk4",
		InitState:   []float64{0, 0.1, 0.1, 0, 0, 0},
		Plant:       physics.DefaultParams(),
		Regularizer: regularize.New(),
		Controllers: DefaultSettings(),
		Sim:         sim.DefaultConfig(),
	}
}

// Build assembles a simulator for cfg with fresh plant, integrator,
// controller and metrics. The controller's model is built from Nominal
// when set, otherwise it shares the simulated plant.
func (r *Registry) Build(cfg Config, logger *zap.Logger) (*sim.Simulator, error) {
	plant, err := physics.NewDoubleInvertedPendulum(cfg.Plant, cfg.Regularizer)
	if err != nil {
		return nil, fmt.Errorf("plant: %w", err)
	}
	integ, err := r.Integrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	model := plant
	if cfg.Nominal != nil {
		model, err = physics.NewDoubleInvertedPendulum(*cfg.Nominal, cfg.Regularizer)
		if err != nil {
			return nil, fmt.Errorf("nominal model: %w", err)
		}
	}
	ctrl, err := r.Controller(cfg.Variant, model, cfg.Gains, cfg.Controllers)
	if err != nil {
		return nil, err
	}

	s := sim.New(plant, integ, ctrl)
	for _, m := range r.DefaultMetrics(plant) {
		s.AddMetric(m)
	}
	s.Watch(physics.Theta1, physics.Theta2)
	s.SetLogger(logger)
	return s, nil
}

// Builder adapts Build to sim.Builder.
func (r *Registry) Builder(cfg Config, logger *zap.Logger) sim.Builder {
	return func() (*sim.Simulator, error) {
		return r.Build(cfg, logger)
	}
}

// Experiment is a single configured run.
type Experiment struct {
	cfg       Config
	registry  *Registry
	simulator *sim.Simulator
	logger    *zap.Logger
}

func New(cfg Config, registry *Registry, logger *zap.Logger) *Experiment {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Experiment{cfg: cfg, registry: registry, logger: logger}
}

func (e *Experiment) Setup() error {
	s, err := e.registry.Build(e.cfg, e.logger)
	if err != nil {
		return err
	}
	e.simulator = s
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	x0 := make(dynamo.State, len(e.cfg.InitState))
	copy(x0, e.cfg.InitState)

	result, err := e.simulator.Run(ctx, x0, e.cfg.Sim)
	if err != nil {
		return result, err
	}
	e.logger.Debug("experiment finished",
		zap.String("variant", e.cfg.Variant),
		zap.Int("steps", result.Steps),
		zap.Bool("failed", result.Failed()))
	return result, nil
}

// Simulator returns the underlying simulator for adding observers.
func (e *Experiment) Simulator() *sim.Simulator {
	return e.simulator
}
