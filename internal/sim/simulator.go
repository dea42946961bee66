package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/dipsmc/internal/control"
	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/metrics"
)

// Simulator steps one controller against one plant. Integrators may keep
// scratch buffers, so a Simulator must not run two trials at once.
type Simulator struct {
	plant      dynamo.System
	integrator dynamo.Integrator
	controller control.Controller
	metrics    []dynamo.Metric
	observers  []Observer
	watch      []int
	logger     *zap.Logger
}

func New(plant dynamo.System, integrator dynamo.Integrator, controller control.Controller) *Simulator {
	return &Simulator{
		plant:      plant,
		integrator: integrator,
		controller: controller,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]Observer, 0),
		logger:     zap.NewNop(),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric) { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer)    { s.observers = append(s.observers, o) }

// Watch selects the state components that form the tracking error.
func (s *Simulator) Watch(indices ...int) { s.watch = indices }

func (s *Simulator) SetLogger(l *zap.Logger) {
	if l != nil {
		s.logger = l
	}
}

func (s *Simulator) Controller() control.Controller { return s.controller }

// Run executes one trial from x0. The returned error covers invalid input
// and context cancellation only; aborted trials are reported through
// Result.Failure.
func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(x0) != s.plant.StateDim() {
		return nil, fmt.Errorf("%w: initial state has %d components, want %d",
			dynamo.ErrDimensionMismatch, len(x0), s.plant.StateDim())
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	dt := cfg.Dt
	result := &Result{
		Trajectory: Trajectory{
			Times:    make([]float64, 0, steps+1),
			States:   make([]dynamo.State, 0, steps+1),
			Controls: make([]float64, 0, steps),
			Surface:  make([]float64, 0, steps),
		},
		Metrics: make(map[string]float64),
	}
	traj := &result.Trajectory

	for _, m := range s.metrics {
		m.Reset()
	}

	fail := func(i int, t float64, x dynamo.State, err error) {
		result.Failure = &dynamo.SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: err}
		s.logger.Debug("trial aborted",
			zap.String("controller", s.controller.Name()),
			zap.Int("step", i),
			zap.Float64("t", t),
			zap.Error(err))
	}

	x := x0.Clone()
	traj.States = append(traj.States, x.Clone())
	traj.Times = append(traj.Times, 0)

	st := s.controller.Initial()
	rng := rand.New(rand.NewSource(cfg.Seed))
	estimator, estimates := s.integrator.(dynamo.ErrorEstimator)
	estimates = estimates && estimator.Embedded()
	start := time.Now()

	if !x.IsValid() {
		fail(0, 0, x, dynamo.ErrInvalidState)
	}

	for i := 0; i < steps && result.Failure == nil; i++ {
		select {
		case <-ctx.Done():
			s.finish(result, st, cfg)
			return result, ctx.Err()
		default:
		}

		t := float64(i) * dt
		if cfg.MaxSteps > 0 && i >= cfg.MaxSteps {
			fail(i, t, x, fmt.Errorf("%w: %d steps", dynamo.ErrBudgetExceeded, cfg.MaxSteps))
			break
		}
		if cfg.MaxWallTime > 0 && time.Since(start) > cfg.MaxWallTime {
			fail(i, t, x, fmt.Errorf("%w: wall time %v", dynamo.ErrBudgetExceeded, cfg.MaxWallTime))
			break
		}

		var out control.Output
		out, st = s.controller.Compute(x, st, dt)
		u := dynamo.Control{out.Force}

		traj.Controls = append(traj.Controls, out.Force)
		traj.Surface = append(traj.Surface, out.Surface)
		if out.Gains != nil {
			traj.Gains = append(traj.Gains, append([]float64(nil), out.Gains...))
		}

		for _, m := range s.metrics {
			m.Observe(x, u, t)
		}
		for _, obs := range s.observers {
			obs.OnStep(Sample{
				Step:    i,
				Time:    t,
				State:   x,
				Force:   out.Force,
				Surface: out.Surface,
				Gains:   out.Gains,
				Safety:  st.Safety,
				Mode:    st.Mode,
			})
		}

		applied := u
		if cfg.Disturbance != nil {
			applied = dynamo.Control{out.Force + cfg.Disturbance.Force(t, rng)}
		}

		var next dynamo.State
		var err error
		if estimates {
			var local float64
			next, local, err = estimator.StepWithError(s.plant, x, applied, t, dt)
			result.MaxLocalError = math.Max(result.MaxLocalError, local)
		} else {
			next, err = s.integrator.Step(s.plant, x, applied, t, dt)
		}
		switch {
		case err != nil:
			if !errors.Is(err, dynamo.ErrNonPhysical) && !errors.Is(err, dynamo.ErrInvalidState) {
				err = fmt.Errorf("%w: %w", dynamo.ErrNonPhysical, err)
			}
			fail(i, t, x, err)
		case !next.IsValid():
			fail(i, t, x, dynamo.ErrInvalidState)
		case cfg.MaxVelocity > 0 && next.Rates().MaxAbs() > cfg.MaxVelocity:
			fail(i, t, x, fmt.Errorf("%w: velocity above %g", dynamo.ErrUnstable, cfg.MaxVelocity))
		default:
			x = next
			traj.States = append(traj.States, x.Clone())
			traj.Times = append(traj.Times, t+dt)
			result.Steps++
		}
	}

	s.finish(result, st, cfg)
	return result, nil
}

func (s *Simulator) finish(result *Result, st control.State, cfg Config) {
	traj := &result.Trajectory
	traj.Resets = st.Resets
	result.Final = st

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	result.Summary = metrics.Summarize(traj.Times, traj.States, traj.Controls, cfg.SettleTolerance, s.watch...)
}
