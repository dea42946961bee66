package automation

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/dipsmc/internal/experiment"
	"github.com/san-kum/dipsmc/internal/sim"
)

// Script is a named sequence of runs read from YAML.
type Script struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Runs        []Override `yaml:"runs"`
}

// Override layers one run over the base experiment. Zero fields keep the
// base value; Params replaces plant parameters by name.
type Override struct {
	Label      string             `yaml:"label"`
	Variant    string             `yaml:"variant"`
	Integrator string             `yaml:"integrator"`
	Gains      []float64          `yaml:"gains"`
	Duration   float64            `yaml:"duration"`
	Dt         float64            `yaml:"dt"`
	InitState  []float64          `yaml:"init_state"`
	Params     map[string]float64 `yaml:"params"`
}

type Outcome struct {
	Label  string
	Result *sim.Result
}

func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(s.Runs) == 0 {
		return nil, fmt.Errorf("script %q has no runs", s.Name)
	}
	return &s, nil
}

func (o Override) apply(base experiment.Config) (experiment.Config, error) {
	cfg := base
	if o.Variant != "" {
		cfg.Variant = o.Variant
	}
	if o.Integrator != "" {
		cfg.Integrator = o.Integrator
	}
	if o.Gains != nil {
		cfg.Gains = o.Gains
	}
	if o.Duration > 0 {
		cfg.Sim.Duration = o.Duration
	}
	if o.Dt > 0 {
		cfg.Sim.Dt = o.Dt
	}
	if o.InitState != nil {
		cfg.InitState = o.InitState
	}
	plant, err := WithParams(base.Plant, base.Regularizer, o.Params)
	if err != nil {
		return cfg, err
	}
	cfg.Plant = plant
	return cfg, nil
}

// Execute runs the script in order. On error it returns the outcomes of
// the runs that completed before it.
func (s *Script) Execute(ctx context.Context, base experiment.Config, registry *experiment.Registry, logger *zap.Logger) ([]Outcome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]Outcome, 0, len(s.Runs))

	for i, o := range s.Runs {
		cfg, err := o.apply(base)
		if err != nil {
			return out, fmt.Errorf("run %d: %w", i+1, err)
		}
		label := o.Label
		if label == "" {
			label = fmt.Sprintf("%s-%d", cfg.Variant, i+1)
		}
		logger.Info("script run",
			zap.String("script", s.Name),
			zap.String("label", label),
			zap.Int("index", i+1),
			zap.Int("total", len(s.Runs)))

		exp := experiment.New(cfg, registry, logger)
		if err := exp.Setup(); err != nil {
			return out, fmt.Errorf("run %s: %w", label, err)
		}
		res, err := exp.Run(ctx)
		if err != nil {
			return out, fmt.Errorf("run %s: %w", label, err)
		}
		out = append(out, Outcome{Label: label, Result: res})
	}
	return out, nil
}
