package optim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"go.uber.org/zap"
)

type Config struct {
	SwarmSize     int     `yaml:"swarm_size"` // 0 selects 10 + 2√D
	Iterations    int     `yaml:"iterations"`
	InertiaMax    float64 `yaml:"inertia_max"`
	InertiaMin    float64 `yaml:"inertia_min"`
	Cognitive     float64 `yaml:"cognitive"`
	Social        float64 `yaml:"social"`
	VelocityClamp float64 `yaml:"velocity_clamp"` // fraction of each dimension's range
	Stagnation    int     `yaml:"stagnation"`     // iterations without improvement; 0 disables
	TargetCost    float64 `yaml:"target_cost"`    // stop once reached; 0 disables
	Seed          int64   `yaml:"seed"`
	Workers       int     `yaml:"workers"` // 0 selects runtime.NumCPU()
}

func DefaultConfig() Config {
	return Config{
		Iterations:    50,
		InertiaMax:    0.9,
		InertiaMin:    0.4,
		Cognitive:     1.49445,
		Social:        1.49445,
		VelocityClamp: 0.2,
		Stagnation:    15,
		Seed:          42,
	}
}

func (c Config) Validate() error {
	switch {
	case c.SwarmSize < 0:
		return fmt.Errorf("%w: swarm_size must be non-negative", ErrInvalidConfig)
	case c.Iterations < 0:
		return fmt.Errorf("%w: iterations must be non-negative", ErrInvalidConfig)
	case c.InertiaMin < 0 || c.InertiaMax < c.InertiaMin:
		return fmt.Errorf("%w: need 0 <= inertia_min <= inertia_max", ErrInvalidConfig)
	case c.Cognitive < 0 || c.Social < 0:
		return fmt.Errorf("%w: acceleration coefficients must be non-negative", ErrInvalidConfig)
	case !(c.VelocityClamp > 0):
		return fmt.Errorf("%w: velocity_clamp must be positive", ErrInvalidConfig)
	case c.Stagnation < 0 || c.Workers < 0:
		return fmt.Errorf("%w: stagnation and workers must be non-negative", ErrInvalidConfig)
	}
	return nil
}

type Particle struct {
	Position     []float64
	Velocity     []float64
	Cost         float64
	BestPosition []float64 // nil until a finite cost is seen
	BestCost     float64
}

type StopReason int

const (
	StopBudget StopReason = iota
	StopStagnation
	StopTarget
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopStagnation:
		return "stagnation"
	case StopTarget:
		return "target"
	case StopCancelled:
		return "cancelled"
	default:
		return "budget"
	}
}

type Result struct {
	BestPosition []float64
	BestCost     float64
	// History[k] is the global best cost after iteration k; entry 0 is the
	// initial swarm.
	History     []float64
	Iterations  int
	Evaluations int
	Stop        StopReason
}

// PSO is a global-best particle swarm with linearly decaying inertia.
// For a fixed seed the result is reproducible regardless of Workers:
// random numbers are drawn sequentially in particle order and bests are
// updated in particle order after every evaluation barrier.
type PSO struct {
	cfg    Config
	bounds Bounds
	opts   options
}

func NewPSO(bounds Bounds, cfg Config, opts ...Option) (*PSO, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SwarmSize == 0 {
		cfg.SwarmSize = 10 + int(2*math.Sqrt(float64(len(bounds))))
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &PSO{cfg: cfg, bounds: bounds, opts: buildOptions(opts)}, nil
}

func (p *PSO) Config() Config { return p.cfg }

type swarm struct {
	particles    []*Particle
	bestPosition []float64
	bestCost     float64
}

// absorb applies a barrier's costs in particle order. It reports whether
// the global best improved.
func (s *swarm) absorb(costs []float64) bool {
	improved := false
	for i, part := range s.particles {
		part.Cost = costs[i]
		if part.Cost < part.BestCost {
			part.BestCost = part.Cost
			part.BestPosition = append(part.BestPosition[:0], part.Position...)
		}
		if part.Cost < s.bestCost {
			s.bestCost = part.Cost
			s.bestPosition = append(s.bestPosition[:0], part.Position...)
			improved = true
		}
	}
	return improved
}

func (p *PSO) positions(s *swarm) [][]float64 {
	out := make([][]float64, len(s.particles))
	for i, part := range s.particles {
		out[i] = part.Position
	}
	return out
}

func (p *PSO) inertia(iter int) float64 {
	if p.cfg.Iterations <= 1 {
		return p.cfg.InertiaMax
	}
	frac := float64(iter-1) / float64(p.cfg.Iterations-1)
	return p.cfg.InertiaMax - (p.cfg.InertiaMax-p.cfg.InertiaMin)*frac
}

func (p *PSO) move(part *Particle, s *swarm, w float64, rng *rand.Rand) {
	d := len(p.bounds)
	r1 := make([]float64, d)
	r2 := make([]float64, d)
	for j := range r1 {
		r1[j] = rng.Float64()
	}
	for j := range r2 {
		r2[j] = rng.Float64()
	}

	personal := part.BestPosition
	if personal == nil {
		personal = part.Position
	}
	social := s.bestPosition
	if social == nil {
		social = personal
	}

	for j := 0; j < d; j++ {
		vmax := p.cfg.VelocityClamp * p.bounds[j].Range()
		v := w*part.Velocity[j] +
			p.cfg.Cognitive*r1[j]*(personal[j]-part.Position[j]) +
			p.cfg.Social*r2[j]*(social[j]-part.Position[j])
		part.Velocity[j] = math.Max(-vmax, math.Min(vmax, v))
		part.Position[j] += part.Velocity[j]
	}
	p.bounds.Clip(part.Position)
}

// Optimize minimises obj within the bounds. Cancellation takes effect at
// the iteration barrier: an iteration interrupted by it is dropped, so the
// result reflects completed iterations only and is returned together with
// ctx.Err(). Evaluations counts the candidates of those iterations. A run that never found a finite cost returns
// ErrNoFeasible alongside its result.
func (p *PSO) Optimize(ctx context.Context, obj Objective) (*Result, error) {
	rng := rand.New(rand.NewSource(p.cfg.Seed))
	sc := &scorer{objective: obj, bounds: p.bounds, opts: p.opts, workers: p.cfg.Workers}
	log := p.opts.logger

	s := &swarm{bestCost: math.Inf(1)}
	for i := 0; i < p.cfg.SwarmSize; i++ {
		part := &Particle{
			Position: make([]float64, len(p.bounds)),
			Velocity: make([]float64, len(p.bounds)),
			BestCost: math.Inf(1),
		}
		for j, b := range p.bounds {
			part.Position[j] = b.Min + rng.Float64()*b.Range()
		}
		for j, b := range p.bounds {
			vmax := p.cfg.VelocityClamp * b.Range()
			part.Velocity[j] = (2*rng.Float64() - 1) * vmax
		}
		s.particles = append(s.particles, part)
	}

	res := &Result{Stop: StopBudget}
	finish := func() *Result {
		res.BestCost = s.bestCost
		if s.bestPosition != nil {
			res.BestPosition = append([]float64(nil), s.bestPosition...)
		}
		log.Info("pso finished",
			zap.String("stop", res.Stop.String()),
			zap.Int("iterations", res.Iterations),
			zap.Float64("best_cost", res.BestCost))
		return res
	}

	if err := ctx.Err(); err != nil {
		res.Stop = StopCancelled
		return finish(), err
	}

	costs, _ := sc.scoreAll(ctx, p.positions(s))
	if err := ctx.Err(); err != nil {
		res.Stop = StopCancelled
		return finish(), err
	}
	s.absorb(costs)
	res.Evaluations += len(s.particles)
	res.History = append(res.History, s.bestCost)

	stale := 0
	for iter := 1; iter <= p.cfg.Iterations; iter++ {
		if p.cfg.TargetCost > 0 && s.bestCost <= p.cfg.TargetCost {
			res.Stop = StopTarget
			break
		}
		if err := ctx.Err(); err != nil {
			res.Stop = StopCancelled
			return finish(), err
		}

		w := p.inertia(iter)
		for _, part := range s.particles {
			p.move(part, s, w, rng)
		}

		costs, _ := sc.scoreAll(ctx, p.positions(s))
		if err := ctx.Err(); err != nil {
			// an interrupted iteration is discarded whole
			res.Stop = StopCancelled
			return finish(), err
		}
		prev := s.bestCost
		improved := s.absorb(costs)
		res.Evaluations += len(s.particles)
		res.Iterations = iter
		res.History = append(res.History, s.bestCost)

		if improved && prev-s.bestCost > 1e-12*math.Max(1, math.Abs(prev)) {
			stale = 0
		} else {
			stale++
		}

		log.Debug("pso iteration",
			zap.Int("iter", iter),
			zap.Float64("inertia", w),
			zap.Float64("best_cost", s.bestCost),
			zap.Int("stale", stale))

		if p.cfg.Stagnation > 0 && stale >= p.cfg.Stagnation {
			res.Stop = StopStagnation
			break
		}
	}
	if res.Stop == StopBudget && p.cfg.TargetCost > 0 && s.bestCost <= p.cfg.TargetCost {
		res.Stop = StopTarget
	}

	finish()
	if res.BestPosition == nil {
		return res, ErrNoFeasible
	}
	return res, nil
}
