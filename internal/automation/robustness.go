package automation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/experiment"
	"github.com/san-kum/dipsmc/internal/metrics"
	"github.com/san-kum/dipsmc/internal/physics"
	"github.com/san-kum/dipsmc/internal/sim"
)

const defaultAngleLimit = 0.05

// Robustness runs the base experiment from Trials initial states, each
// component in Components shifted uniformly within ±Spread. An empty
// Components shifts every component; Seed 0 draws a time-based seed.
type Robustness struct {
	Spread     float64
	Components []int
	Trials     int
	Seed       int64
	Workers    int

	// AngleLimit bounds both final link angles of a stable trial.
	AngleLimit float64
}

type Trial struct {
	ID      int
	Start   dynamo.State
	End     dynamo.State
	Summary metrics.Summary
	Stable  bool
}

// Report aggregates trials. MeanRMS averages tracking RMS over stable
// trials and is NaN when none are stable.
type Report struct {
	Stable   int
	Unstable int
	MeanRMS  float64
}

func (r Report) Fraction() float64 {
	n := r.Stable + r.Unstable
	if n == 0 {
		return 0
	}
	return float64(r.Stable) / float64(n)
}

func (r Robustness) starts(x0 dynamo.State) []dynamo.State {
	seed := r.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	comps := r.Components
	if len(comps) == 0 {
		comps = make([]int, len(x0))
		for i := range comps {
			comps[i] = i
		}
	}
	out := make([]dynamo.State, r.Trials)
	for i := range out {
		x := x0.Clone()
		for _, c := range comps {
			x[c] += r.Spread * (2*rng.Float64() - 1)
		}
		out[i] = x
	}
	return out
}

// Run executes the trials on a worker pool.
func (r Robustness) Run(ctx context.Context, base experiment.Config, registry *experiment.Registry, logger *zap.Logger) ([]Trial, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if r.Trials <= 0 {
		return nil, fmt.Errorf("robustness needs a positive trial count, got %d", r.Trials)
	}
	limit := r.AngleLimit
	if limit <= 0 {
		limit = defaultAngleLimit
	}

	starts := r.starts(dynamo.State(base.InitState))
	ens := sim.NewEnsemble(registry.Builder(base, logger), r.Workers)
	runs, err := ens.Run(ctx, starts, base.Sim)
	if err != nil {
		return nil, err
	}

	trials := make([]Trial, len(runs))
	for i, res := range runs {
		end := res.Trajectory.Final()
		trials[i] = Trial{
			ID:      i,
			Start:   starts[i],
			End:     end,
			Summary: res.Summary,
			Stable:  !res.Failed() && end != nil && end.MaxAbs(physics.Theta1, physics.Theta2) <= limit,
		}
	}

	rep := Tally(trials)
	logger.Info("robustness trials done",
		zap.String("variant", base.Variant),
		zap.Int("trials", len(trials)),
		zap.Int("stable", rep.Stable))
	return trials, nil
}

func Tally(trials []Trial) Report {
	var rep Report
	var rms []float64
	for _, t := range trials {
		if !t.Stable {
			rep.Unstable++
			continue
		}
		rep.Stable++
		rms = append(rms, t.Summary.TrackingRMS)
	}
	rep.MeanRMS = math.NaN()
	if len(rms) > 0 {
		rep.MeanRMS = stat.Mean(rms, nil)
	}
	return rep
}
