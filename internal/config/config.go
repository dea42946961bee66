package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/dipsmc/internal/experiment"
	"github.com/san-kum/dipsmc/internal/optim"
	"github.com/san-kum/dipsmc/internal/physics"
	"github.com/san-kum/dipsmc/internal/regularize"
	"github.com/san-kum/dipsmc/internal/sim"
	"github.com/san-kum/dipsmc/internal/tuning"
)

const (
	DefaultVariant      = "classical"
	DefaultIntegrator   = "rk4"
	DefaultTheta        = 0.1
	DefaultPerturbed    = 4
	DefaultPerturbation = 0.05
)

type Config struct {
	Variant     string                 `yaml:"variant"`
	Integrator  string                 `yaml:"integrator"`
	InitState   []float64              `yaml:"init_state"`
	Plant       physics.Params         `yaml:"plant"`
	Regularizer regularize.Regularizer `yaml:"regularizer"`
	Simulation  sim.Config             `yaml:"simulation"`
	Disturbance DisturbanceConfig      `yaml:"disturbance"`
	Controllers ControllersConfig      `yaml:"controllers"`
	PSO         optim.Config           `yaml:"pso"`
	Cost        tuning.Weights         `yaml:"cost"`
	Tuning      TuningConfig           `yaml:"tuning"`
}

// ControllersConfig holds the per-variant settings together with stored
// gains and search bounds keyed by variant name.
type ControllersConfig struct {
	experiment.Settings `yaml:",inline"`
	Gains               map[string][]float64    `yaml:"gains,omitempty"`
	Bounds              map[string]optim.Bounds `yaml:"bounds,omitempty"`
}

// DisturbanceConfig selects an additive cart force: "noise", "pulse" or
// empty for none.
type DisturbanceConfig struct {
	Kind      string  `yaml:"kind"`
	Amplitude float64 `yaml:"amplitude"`
	Start     float64 `yaml:"start"`
	Width     float64 `yaml:"width"`
	Magnitude float64 `yaml:"magnitude"`
}

type TuningConfig struct {
	Perturbed    int     `yaml:"perturbed"`
	Perturbation float64 `yaml:"perturbation"`
}

func DefaultConfig() *Config {
	return &Config{
		Variant:     DefaultVariant,
		Integrator:  DefaultIntegrator,
		InitState:   []float64{0, DefaultTheta, DefaultTheta, 0, 0, 0},
		Plant:       physics.DefaultParams(),
		Regularizer: regularize.New(),
		Simulation:  sim.DefaultConfig(),
		Controllers: ControllersConfig{Settings: experiment.DefaultSettings()},
		PSO:         optim.DefaultConfig(),
		Cost:        tuning.DefaultWeights(),
		Tuning: TuningConfig{
			Perturbed:    DefaultPerturbed,
			Perturbation: DefaultPerturbation,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if want := physics.Omega2 + 1; len(c.InitState) != want {
		return fmt.Errorf("init_state has %d components, want %d", len(c.InitState), want)
	}
	if err := c.Plant.Validate(); err != nil {
		return err
	}
	if err := c.Regularizer.Validate(); err != nil {
		return err
	}
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if err := c.Cost.Validate(); err != nil {
		return fmt.Errorf("cost: %w", err)
	}
	if _, err := c.Disturbance.Build(); err != nil {
		return err
	}
	if c.Tuning.Perturbed < 0 || c.Tuning.Perturbation < 0 {
		return fmt.Errorf("tuning: perturbed and perturbation must be non-negative")
	}
	return nil
}

func (d DisturbanceConfig) Build() (sim.Disturbance, error) {
	switch d.Kind {
	case "", "none":
		return nil, nil
	case "noise":
		if d.Amplitude < 0 {
			return nil, fmt.Errorf("disturbance: negative noise amplitude %g", d.Amplitude)
		}
		return sim.BoundedNoise{Amplitude: d.Amplitude}, nil
	case "pulse":
		if d.Width <= 0 {
			return nil, fmt.Errorf("disturbance: pulse width must be positive, got %g", d.Width)
		}
		return sim.Pulse{Start: d.Start, Width: d.Width, Magnitude: d.Magnitude}, nil
	default:
		return nil, fmt.Errorf("disturbance: unknown kind %q", d.Kind)
	}
}

// Gains returns the stored gains for variant, or nil to select the
// variant defaults.
func (c *Config) Gains(variant string) []float64 {
	g, ok := c.Controllers.Gains[variant]
	if !ok {
		return nil
	}
	return append([]float64(nil), g...)
}

func (c *Config) SetGains(variant string, gains []float64) {
	if c.Controllers.Gains == nil {
		c.Controllers.Gains = make(map[string][]float64)
	}
	c.Controllers.Gains[variant] = append([]float64(nil), gains...)
}

func (c *Config) Experiment() (experiment.Config, error) {
	dist, err := c.Disturbance.Build()
	if err != nil {
		return experiment.Config{}, err
	}
	simCfg := c.Simulation
	simCfg.Disturbance = dist
	return experiment.Config{
		Variant:     c.Variant,
		Integrator:  c.Integrator,
		Gains:       c.Gains(c.Variant),
		InitState:   append([]float64(nil), c.InitState...),
		Plant:       c.Plant,
		Regularizer: c.Regularizer,
		Controllers: c.Controllers.Settings,
		Sim:         simCfg,
	}, nil
}

func (c *Config) TuningRequest() (tuning.Request, error) {
	exp, err := c.Experiment()
	if err != nil {
		return tuning.Request{}, err
	}
	return tuning.Request{
		Variant:      c.Variant,
		Bounds:       c.Controllers.Bounds[c.Variant],
		Weights:      c.Cost,
		SwarmSize:    c.PSO.SwarmSize,
		Iterations:   c.PSO.Iterations,
		Seed:         c.PSO.Seed,
		PSO:          c.PSO,
		Experiment:   exp,
		Perturbed:    c.Tuning.Perturbed,
		Perturbation: c.Tuning.Perturbation,
	}, nil
}

// ApplyPreset replaces the initial state, and the variant and duration
// when the preset names them.
func (c *Config) ApplyPreset(name string) error {
	p := GetPreset(name)
	if p == nil {
		return fmt.Errorf("unknown preset %q", name)
	}
	c.InitState = append([]float64(nil), p.InitState...)
	if p.Variant != "" {
		c.Variant = p.Variant
	}
	if p.Duration > 0 {
		c.Simulation.Duration = p.Duration
	}
	return nil
}
