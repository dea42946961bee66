package tuning_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/experiment"
	"github.com/san-kum/dipsmc/internal/optim"
	"github.com/san-kum/dipsmc/internal/physics"
	"github.com/san-kum/dipsmc/internal/sim"
	"github.com/san-kum/dipsmc/internal/tuning"
)

func shortExperiment() experiment.Config {
	cfg := experiment.DefaultConfig()
	cfg.Sim.Duration = 1
	return cfg
}

func smallRequest(variant string) tuning.Request {
	return tuning.Request{
		Variant:    variant,
		Weights:    tuning.DefaultWeights(),
		SwarmSize:  4,
		Iterations: 2,
		Seed:       11,
		Experiment: shortExperiment(),
	}
}

var _ = Describe("Cost", func() {
	w := tuning.DefaultWeights()

	It("charges aborted trials more the earlier they fail", func() {
		early := &sim.Result{Failure: &dynamo.SimulationError{Time: 1}}
		late := &sim.Result{Failure: &dynamo.SimulationError{Time: 9}}

		ce := w.Cost(early, 10)
		cl := w.Cost(late, 10)
		Expect(ce.Failed).To(BeTrue())
		Expect(ce.Total).To(BeNumerically("~", w.FailurePenalty*1.9, 1e-9))
		Expect(cl.Total).To(BeNumerically("~", w.FailurePenalty*1.1, 1e-9))
		Expect(ce.Total).To(BeNumerically(">", cl.Total))
	})

	It("integrates angle, force and force rate of a completed trial", func() {
		res := &sim.Result{Trajectory: sim.Trajectory{
			Times:    []float64{0, 1, 2},
			States:   []dynamo.State{{0, 0.3, 0, 0, 0, 0}, {0, 0.3, 0, 0, 0, 0}, {0, 0.3, 0, 0, 0, 0}},
			Controls: []float64{1, 3},
		}}
		b := w.Cost(res, 2)
		Expect(b.Failed).To(BeFalse())
		Expect(b.State).To(BeNumerically("~", 0.18, 1e-12))
		Expect(b.Control).To(BeNumerically("~", 10, 1e-12))
		Expect(b.ControlRate).To(BeNumerically("~", 4, 1e-12))
		Expect(b.Excursion).To(BeNumerically("~", 0.02, 1e-12))
		Expect(b.Total).To(BeNumerically("~", w.State*0.18+w.Control*10+w.ControlRate*4+w.Stability*0.02, 1e-9))
	})

	It("rejects invalid weights", func() {
		bad := tuning.DefaultWeights()
		bad.State = -1
		Expect(bad.Validate()).To(HaveOccurred())
		bad = tuning.DefaultWeights()
		bad.FailurePenalty = 0
		Expect(bad.Validate()).To(HaveOccurred())
		Expect(tuning.DefaultWeights().Validate()).To(Succeed())
	})
})

var _ = Describe("Scenarios", func() {
	It("is reproducible for a seed and keeps the nominal state first", func() {
		nominal := dynamo.State{0, 0.1, 0.1, 0, 0, 0}
		a := tuning.Scenarios(nominal, 3, 0.05, 5, physics.Theta1, physics.Theta2)
		b := tuning.Scenarios(nominal, 3, 0.05, 5, physics.Theta1, physics.Theta2)

		Expect(a).To(HaveLen(4))
		Expect(a).To(Equal(b))
		Expect(a[0]).To(Equal(nominal))
		for _, x := range a[1:] {
			Expect(x[physics.CartPos]).To(BeZero())
			Expect(math.Abs(x[physics.Theta1] - 0.1)).To(BeNumerically("<=", 0.05))
		}
	})
})

var _ = Describe("Objective", func() {
	registry := experiment.NewRegistry()
	scenarios := []dynamo.State{{0, 0.1, 0.1, 0, 0, 0}}

	newObjective := func(variant string) *tuning.Objective {
		base := shortExperiment()
		base.Variant = variant
		return tuning.NewObjective(registry, base, tuning.DefaultWeights(), scenarios, nil)
	}

	It("scores the default classical gains below the failure penalty", func() {
		cost := newObjective("classical").Evaluate(context.Background(), []float64{1, 3, 2, 10, 4, 2})
		Expect(math.IsInf(cost, 0)).To(BeFalse())
		Expect(cost).To(BeNumerically("<", tuning.DefaultWeights().FailurePenalty))
	})

	It("gives negative gains infinite cost", func() {
		cost := newObjective("classical").Evaluate(context.Background(), []float64{1, 3, -2, 10, 4, 2})
		Expect(math.IsInf(cost, 1)).To(BeTrue())
	})

	It("gives surfaces with a negative upright input gain infinite cost", func() {
		for _, gains := range [][]float64{{5, 1, 2, 10, 4, 2}, {5, 3, 2, 10, 4, 2}} {
			cost := newObjective("classical").Evaluate(context.Background(), gains)
			Expect(math.IsInf(cost, 1)).To(BeTrue(), "gains %v", gains)
		}
		cost := newObjective("classical").Evaluate(context.Background(), []float64{1, 3, 2, 10, 4, 2})
		Expect(math.IsInf(cost, 0)).To(BeFalse())
	})

	It("gives super-twisting gains with K1 <= K2 infinite cost", func() {
		cost := newObjective("sta").Evaluate(context.Background(), []float64{2, 4, 1, 3, 2, 10})
		Expect(math.IsInf(cost, 1)).To(BeTrue())
	})
})

var _ = Describe("Optimize", func() {
	It("is deterministic for a fixed seed", func() {
		a, err := tuning.Optimize(context.Background(), smallRequest("classical"))
		Expect(err).NotTo(HaveOccurred())
		b, err := tuning.Optimize(context.Background(), smallRequest("classical"))
		Expect(err).NotTo(HaveOccurred())

		Expect(b.BestGains).To(Equal(a.BestGains))
		Expect(b.BestCost).To(Equal(a.BestCost))
		Expect(b.History).To(Equal(a.History))
		Expect(a.History).To(HaveLen(3))
		Expect(a.GainNames).To(Equal([]string{"k1", "k2", "lambda1", "lambda2", "K", "kd"}))
	})

	It("never returns a negative-gain candidate as the best", func() {
		req := smallRequest("classical")
		req.Bounds = optim.Bounds{
			{Min: -5, Max: 5}, {Min: 1, Max: 10}, {Min: 0.5, Max: 10}, {Min: 1, Max: 20}, {Min: 0.5, Max: 30}, {Min: 0.1, Max: 10},
		}
		req.SwarmSize = 8
		req.Iterations = 3

		out, err := tuning.Optimize(context.Background(), req)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.BestGains[0]).To(BeNumerically(">", 0))
		Expect(math.IsInf(out.BestCost, 0)).To(BeFalse())
	})

	It("honours the ordering constraint of super-twisting", func() {
		req := smallRequest("sta")
		req.SwarmSize = 8
		out, err := tuning.Optimize(context.Background(), req)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.BestGains[0]).To(BeNumerically(">", out.BestGains[1]))
	})

	It("returns the context error when cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		out, err := tuning.Optimize(ctx, smallRequest("classical"))
		Expect(err).To(MatchError(context.Canceled))
		Expect(out).NotTo(BeNil())
		Expect(out.Stop).To(Equal(optim.StopCancelled))
	})

	It("rejects unknown variants and mismatched bounds", func() {
		_, err := tuning.Optimize(context.Background(), smallRequest("pid"))
		Expect(err).To(MatchError(experiment.ErrUnknownVariant))

		req := smallRequest("hybrid")
		req.Bounds = optim.Bounds{{Min: 0, Max: 1}}
		_, err = tuning.Optimize(context.Background(), req)
		Expect(err).To(MatchError(optim.ErrInvalidBounds))
	})
})

var _ = Describe("Grid", func() {
	It("scores every grid point and returns a feasible best", func() {
		out, err := tuning.Grid(context.Background(), smallRequest("hybrid"), 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Evaluations).To(Equal(16))
		Expect(out.BestGains).To(HaveLen(4))
		Expect(math.IsInf(out.BestCost, 0)).To(BeFalse())
	})

	It("rejects an empty grid", func() {
		_, err := tuning.Grid(context.Background(), smallRequest("hybrid"), 0)
		Expect(err).To(MatchError(optim.ErrInvalidConfig))
	})
})
