package experiment

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/dipsmc/internal/control"
	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/integrators"
	"github.com/san-kum/dipsmc/internal/metrics"
	"github.com/san-kum/dipsmc/internal/optim"
	"github.com/san-kum/dipsmc/internal/physics"
)

var (
	ErrUnknownVariant    = errors.New("experiment: unknown controller variant")
	ErrUnknownIntegrator = errors.New("experiment: unknown integrator")
)

// Settings carries the per-variant controller configuration.
type Settings struct {
	Classical control.ClassicalConfig `yaml:"classical"`
	STA       control.STAConfig       `yaml:"sta"`
	Adaptive  control.AdaptiveConfig  `yaml:"adaptive"`
	Hybrid    control.HybridConfig    `yaml:"hybrid"`
	SwingUp   control.SwingUpConfig   `yaml:"swing_up"`
	LQR       control.LQRConfig       `yaml:"lqr"`
}

func DefaultSettings() Settings {
	return Settings{
		Classical: control.DefaultClassicalConfig(),
		STA:       control.DefaultSTAConfig(),
		Adaptive:  control.DefaultAdaptiveConfig(),
		Hybrid:    control.DefaultHybridConfig(),
		SwingUp:   control.DefaultSwingUpConfig(),
		LQR:       control.DefaultLQRConfig(),
	}
}

type buildFunc func(plant *physics.DoubleInvertedPendulum, gains []float64, s Settings) (control.Controller, error)

// Variant describes a controller family: its gain layout, defaults,
// search box and admissibility constraints.
type Variant struct {
	Name         string
	GainNames    []string
	DefaultGains []float64
	Bounds       optim.Bounds
	Constraints  []optim.Constraint
	build        buildFunc
}

type Registry struct {
	variants    map[string]Variant
	integrators map[string]func() dynamo.Integrator
}

var classicalBounds = optim.Bounds{
	{Min: 0.5, Max: 5}, {Min: 1, Max: 10}, {Min: 0.5, Max: 10}, {Min: 1, Max: 20}, {Min: 0.5, Max: 30}, {Min: 0.1, Max: 10},
}

func NewRegistry() *Registry {
	r := &Registry{
		variants:    make(map[string]Variant),
		integrators: make(map[string]func() dynamo.Integrator),
	}

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["dopri5"] = func() dynamo.Integrator { return integrators.NewDormandPrince() }

	r.variants["none"] = Variant{
		Name: "none",
		build: func(*physics.DoubleInvertedPendulum, []float64, Settings) (control.Controller, error) {
			return control.NewNone(), nil
		},
	}
	r.variants["classical"] = Variant{
		Name:         "classical",
		GainNames:    control.ClassicalGains,
		DefaultGains: []float64{1, 3, 2, 10, 4, 2},
		Bounds:       classicalBounds,
		build: func(p *physics.DoubleInvertedPendulum, g []float64, s Settings) (control.Controller, error) {
			return control.NewClassical(p, g, s.Classical)
		},
	}
	r.variants["sta"] = Variant{
		Name:         "sta",
		GainNames:    control.STAGains,
		DefaultGains: []float64{4, 2, 1, 3, 2, 10},
		Bounds: optim.Bounds{
			{Min: 1, Max: 30}, {Min: 0.5, Max: 20}, {Min: 0.5, Max: 5}, {Min: 1, Max: 10}, {Min: 0.5, Max: 10}, {Min: 1, Max: 20},
		},
		Constraints: []optim.Constraint{func(g []float64) bool { return g[0] > g[1] }},
		build: func(p *physics.DoubleInvertedPendulum, g []float64, s Settings) (control.Controller, error) {
			return control.NewSuperTwisting(p, g, s.STA)
		},
	}
	r.variants["adaptive"] = Variant{
		Name:         "adaptive",
		GainNames:    control.AdaptiveGains,
		DefaultGains: []float64{1, 3, 2, 10, 2},
		Bounds: optim.Bounds{
			{Min: 0.5, Max: 5}, {Min: 1, Max: 10}, {Min: 0.5, Max: 10}, {Min: 1, Max: 20}, {Min: 0.1, Max: 10},
		},
		build: func(p *physics.DoubleInvertedPendulum, g []float64, s Settings) (control.Controller, error) {
			return control.NewAdaptive(p, g, s.Adaptive)
		},
	}
	r.variants["hybrid"] = Variant{
		Name:         "hybrid",
		GainNames:    control.HybridGains,
		DefaultGains: []float64{1, 2, 3, 10},
		Bounds: optim.Bounds{
			{Min: 0.5, Max: 5}, {Min: 0.5, Max: 10}, {Min: 1, Max: 10}, {Min: 1, Max: 20},
		},
		build: func(p *physics.DoubleInvertedPendulum, g []float64, s Settings) (control.Controller, error) {
			return control.NewHybridAdaptiveSTA(p, g, s.Hybrid)
		},
	}
	r.variants["swing_up"] = Variant{
		Name:         "swing_up",
		GainNames:    control.ClassicalGains,
		DefaultGains: []float64{1, 3, 2, 10, 4, 2},
		Bounds:       classicalBounds,
		build: func(p *physics.DoubleInvertedPendulum, g []float64, s Settings) (control.Controller, error) {
			stab, err := control.NewClassical(p, g, s.Classical)
			if err != nil {
				return nil, err
			}
			return control.NewSwingUp(p, stab, s.SwingUp)
		},
	}
	r.variants["lqr"] = Variant{
		Name:         "lqr",
		GainNames:    control.LQRGains,
		DefaultGains: []float64{10, 100, 100, 1, 1, 1},
		Bounds: optim.Bounds{
			{Min: 0.1, Max: 100}, {Min: 1, Max: 1000}, {Min: 1, Max: 1000}, {Min: 0.1, Max: 100}, {Min: 0.1, Max: 100}, {Min: 0.1, Max: 100},
		},
		build: func(p *physics.DoubleInvertedPendulum, g []float64, s Settings) (control.Controller, error) {
			return control.NewLQR(p, g, s.LQR)
		},
	}

	return r
}

func (r *Registry) Variant(name string) (Variant, error) {
	v, ok := r.variants[name]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %s", ErrUnknownVariant, name)
	}
	return v, nil
}

// Controller builds a fresh controller; nil gains select the defaults.
func (r *Registry) Controller(name string, plant *physics.DoubleInvertedPendulum, gains []float64, s Settings) (control.Controller, error) {
	v, err := r.Variant(name)
	if err != nil {
		return nil, err
	}
	if gains == nil {
		gains = v.DefaultGains
	}
	return v.build(plant, gains, s)
}

func (r *Registry) Integrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegrator, name)
	}
	return fn(), nil
}

func (r *Registry) ListVariants() []string {
	return sortedKeys(r.variants)
}

func (r *Registry) ListIntegrators() []string {
	return sortedKeys(r.integrators)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics returns fresh streaming metrics for one trial.
func (r *Registry) DefaultMetrics(plant *physics.DoubleInvertedPendulum) []dynamo.Metric {
	return []dynamo.Metric{
		metrics.NewStability(0.5, physics.Theta1, physics.Theta2),
		metrics.NewControlEffort(),
		metrics.NewControlEnergy(),
		metrics.NewChattering(),
		metrics.NewEnergyDrift(plant),
	}
}
