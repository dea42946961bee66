package control

import (
	"errors"
	"math"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/integrators"
	"github.com/san-kum/dipsmc/internal/physics"
	"github.com/san-kum/dipsmc/internal/regularize"
)

func newPlant(t *testing.T) *physics.DoubleInvertedPendulum {
	t.Helper()
	plant, err := physics.NewDoubleInvertedPendulum(physics.DefaultParams(), regularize.New())
	if err != nil {
		t.Fatalf("new plant: %v", err)
	}
	return plant
}

type step struct {
	x   dynamo.State
	out Output
	st  State
}

// closedLoop runs ctrl against the plant with RK4 and returns every step.
func closedLoop(t *testing.T, plant *physics.DoubleInvertedPendulum, ctrl Controller, x0 dynamo.State, dt float64, n int) []step {
	t.Helper()
	return closedLoopFrom(t, plant, ctrl, x0, ctrl.Initial(), dt, n)
}

func closedLoopFrom(t *testing.T, plant *physics.DoubleInvertedPendulum, ctrl Controller, x0 dynamo.State, st State, dt float64, n int) []step {
	t.Helper()
	rk4 := integrators.NewRK4()
	x := x0.Clone()
	steps := make([]step, 0, n)
	for i := 0; i < n; i++ {
		var out Output
		out, st = ctrl.Compute(x, st, dt)
		next, err := rk4.Step(plant, x, dynamo.Control{out.Force}, float64(i)*dt, dt)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		x = next
		steps = append(steps, step{x: x, out: out, st: st})
	}
	return steps
}

func TestSat(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{0.4, 0.4},
		{-0.7, -0.7},
		{3, 1},
		{-12, -1},
	}
	for _, tt := range tests {
		if got := sat(tt.in); got != tt.want {
			t.Errorf("sat(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

func TestSurfaceValue(t *testing.T) {
	s := Surface{K1: 1, K2: 3, Lambda1: 2, Lambda2: 10}

	if v := s.Value(dynamo.State{5, 0, 0, -2, 0, 0}); v != 0 {
		t.Errorf("cart motion leaked into surface: %g", v)
	}
	// 1·(0.5 + 2·0.1) + 3·(-1 + 10·0.2)
	x := dynamo.State{0, 0.1, 0.2, 0, 0.5, -1}
	if v := s.Value(x); math.Abs(v-3.7) > 1e-12 {
		t.Errorf("Value = %g, want 3.7", v)
	}
}

func TestConstructorsRejectBadGains(t *testing.T) {
	g := NewWithT(t)
	plant := newPlant(t)

	_, err := NewClassical(plant, []float64{1, 3, 2, 10, 4}, DefaultClassicalConfig())
	g.Expect(errors.Is(err, ErrInvalidGains)).To(BeTrue())

	_, err = NewClassical(plant, []float64{1, 3, -2, 10, 4, 2}, DefaultClassicalConfig())
	g.Expect(errors.Is(err, ErrInvalidGains)).To(BeTrue())

	_, err = NewSuperTwisting(plant, []float64{2, 4, 1, 3, 2, 10}, DefaultSTAConfig())
	g.Expect(errors.Is(err, ErrInvalidGains)).To(BeTrue())

	_, err = NewAdaptive(plant, []float64{1, 3, 2, 10, math.NaN()}, DefaultAdaptiveConfig())
	g.Expect(errors.Is(err, ErrInvalidGains)).To(BeTrue())

	_, err = NewHybridAdaptiveSTA(plant, []float64{1, 2, 3}, DefaultHybridConfig())
	g.Expect(errors.Is(err, ErrInvalidGains)).To(BeTrue())
}

func TestConfigValidation(t *testing.T) {
	g := NewWithT(t)

	c := DefaultClassicalConfig()
	c.Epsilon = 0
	g.Expect(c.Validate()).To(MatchError(ErrInvalidConfig))

	c = DefaultClassicalConfig()
	c.ControllabilityThreshold = 0
	g.Expect(c.Validate()).To(MatchError(ErrInvalidConfig))

	a := DefaultAdaptiveConfig()
	a.KInit = a.KMax + 1
	g.Expect(a.Validate()).To(MatchError(ErrInvalidConfig))

	h := DefaultHybridConfig()
	h.K1Init = h.K1Max
	g.Expect(h.Validate()).To(MatchError(ErrInvalidConfig))

	h = DefaultHybridConfig()
	h.IntegralBlowup = h.IntegralLimit
	g.Expect(h.Validate()).To(MatchError(ErrInvalidConfig))

	g.Expect(DefaultSTAConfig().Validate()).To(Succeed())
	g.Expect(DefaultHybridConfig().Validate()).To(Succeed())
}

func TestEquivalentControlIndependentOfBoundaryLayer(t *testing.T) {
	g := NewWithT(t)
	plant := newPlant(t)
	surf := Surface{K1: 1, K2: 3, Lambda1: 2, Lambda2: 10}
	x := dynamo.State{0, 0.1, -0.05, 0, 0.2, 0.1}

	narrow := DefaultCommon()
	narrow.Epsilon = 0.01
	wide := DefaultCommon()
	wide.Epsilon = 2

	un, dn := narrow.equivalent(plant, surf, x)
	uw, dw := wide.equivalent(plant, surf, x)
	g.Expect(un).To(Equal(uw))
	g.Expect(dn).To(Equal(dw))
	g.Expect(dn).To(Equal(1.0))

	// a threshold above |β| disables equivalent control entirely
	blocked := DefaultCommon()
	blocked.ControllabilityThreshold = 1e6
	ueq, dir := blocked.equivalent(plant, surf, x)
	g.Expect(ueq).To(BeZero())
	g.Expect(dir).To(Equal(1.0))
	ueq, dir = blocked.equivalent(nil, surf, x)
	g.Expect(ueq).To(BeZero())
	g.Expect(dir).To(Equal(1.0))
}

func TestUprightInputGainSign(t *testing.T) {
	plant := newPlant(t)
	upright := make(dynamo.State, 6)

	tests := []struct {
		name   string
		k1, k2 float64
		want   float64 // sign of β
	}{
		{"k2 dominant", 1, 3, 1},
		{"just above the crossover", 3, 3.2, 1},
		{"k1 dominant", 5, 1, -1},
		{"k1 slightly dominant", 5, 3, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			surf := Surface{K1: tt.k1, K2: tt.k2, Lambda1: 2, Lambda2: 10}
			beta, err := surf.InputGain(plant, upright)
			if err != nil {
				t.Fatal(err)
			}
			if beta*tt.want <= 0 {
				t.Fatalf("β = %g, want sign %g", beta, tt.want)
			}
			_, dir := DefaultCommon().equivalent(plant, surf, upright)
			if dir != tt.want {
				t.Errorf("direction %g, want %g", dir, tt.want)
			}
		})
	}
}

func TestConstructorsRejectUnstableSurface(t *testing.T) {
	plant := newPlant(t)

	tests := []struct {
		name  string
		build func(Model) error
		ok    bool
	}{
		{"classical k2 dominant", func(m Model) error {
			_, err := NewClassical(m, []float64{1, 3, 2, 10, 4, 2}, DefaultClassicalConfig())
			return err
		}, true},
		{"classical k1 dominant", func(m Model) error {
			_, err := NewClassical(m, []float64{5, 1, 2, 10, 4, 2}, DefaultClassicalConfig())
			return err
		}, false},
		{"classical k1 slightly dominant", func(m Model) error {
			_, err := NewClassical(m, []float64{5, 3, 2, 10, 4, 2}, DefaultClassicalConfig())
			return err
		}, false},
		{"sta k2 dominant", func(m Model) error {
			_, err := NewSuperTwisting(m, []float64{4, 2, 1, 3, 2, 10}, DefaultSTAConfig())
			return err
		}, true},
		{"sta k1 dominant", func(m Model) error {
			_, err := NewSuperTwisting(m, []float64{4, 2, 5, 1, 2, 10}, DefaultSTAConfig())
			return err
		}, false},
		{"adaptive k2 dominant", func(m Model) error {
			_, err := NewAdaptive(m, []float64{1, 3, 2, 10, 2}, DefaultAdaptiveConfig())
			return err
		}, true},
		{"adaptive k1 dominant", func(m Model) error {
			_, err := NewAdaptive(m, []float64{5, 3, 2, 10, 2}, DefaultAdaptiveConfig())
			return err
		}, false},
		{"hybrid c2 dominant", func(m Model) error {
			_, err := NewHybridAdaptiveSTA(m, []float64{1, 2, 3, 10}, DefaultHybridConfig())
			return err
		}, true},
		{"hybrid c1 dominant", func(m Model) error {
			_, err := NewHybridAdaptiveSTA(m, []float64{5, 2, 3, 10}, DefaultHybridConfig())
			return err
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build(plant)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidGains) {
				t.Fatalf("error = %v, want ErrInvalidGains", err)
			}
			// without a model nothing is known about β
			if err := tt.build(nil); err != nil {
				t.Errorf("nil model: %v", err)
			}
		})
	}
}

func TestReachingFollowsInputGainSign(t *testing.T) {
	plant := newPlant(t)
	// built directly: the constructor refuses this surface
	ctrl := &Classical{
		model:   plant,
		surface: Surface{K1: 5, K2: 1, Lambda1: 2, Lambda2: 10},
		k:       4,
		kd:      2,
		cfg:     DefaultClassicalConfig(),
	}
	x0 := dynamo.State{0, 0.05, 0, 0, 0, 0}

	// the reaching phase still drives |s| down
	steps := closedLoop(t, plant, ctrl, x0, 0.01, 30)
	prev := math.Abs(ctrl.Surface().Value(x0))
	reached := false
	for i, s := range steps {
		cur := math.Abs(ctrl.Surface().Value(s.x))
		if prev > 0.05 && cur >= prev {
			t.Fatalf("step %d: |s| grew from %g to %g", i, prev, cur)
		}
		reached = reached || cur < 0.05
		prev = cur
	}
	if !reached {
		t.Fatalf("|s| stayed at or above 0.05, last %g", prev)
	}

	// but the motion on s = 0 is unstable
	rk4 := integrators.NewRK4()
	x, st := x0.Clone(), ctrl.Initial()
	for i := 0; i < 300; i++ {
		var out Output
		out, st = ctrl.Compute(x, st, 0.01)
		next, err := rk4.Step(plant, x, dynamo.Control{out.Force}, float64(i)*0.01, 0.01)
		if err != nil || x.MaxAbs(physics.Theta1, physics.Theta2) > 0.5 {
			return
		}
		x = next
	}
	t.Errorf("angles stayed within 0.5 rad, final %v", x)
}

func TestClassicalReachingCondition(t *testing.T) {
	plant := newPlant(t)
	ctrl, err := NewClassical(plant, []float64{1, 3, 2, 10, 4, 2}, DefaultClassicalConfig())
	if err != nil {
		t.Fatal(err)
	}

	starts := []dynamo.State{
		{0, 0.3, -0.2, 0, 0, 0},
		{0, 0.05, 0, 0, 0, 0},
		{0, -0.1, 0.15, 0, 0.2, 0},
		{0.5, 0, 0.1, 0, 0, -0.3},
		{0, 0.15, 0.15, 0, -0.2, 0.2},
	}
	for _, x0 := range starts {
		// V = s²/2 must decrease at every step taken outside the dead band
		steps := closedLoop(t, plant, ctrl, x0, 0.01, 300)
		prev := math.Abs(ctrl.Surface().Value(x0))
		for i, s := range steps {
			cur := math.Abs(ctrl.Surface().Value(s.x))
			if prev > 0.05 && cur >= prev {
				t.Fatalf("x0=%v step %d: |s| grew from %g to %g", x0, i, prev, cur)
			}
			prev = cur
		}
	}
}

func TestClassicalStabilizes(t *testing.T) {
	plant := newPlant(t)
	ctrl, err := NewClassical(plant, []float64{1, 3, 2, 10, 4, 2}, DefaultClassicalConfig())
	if err != nil {
		t.Fatal(err)
	}

	steps := closedLoop(t, plant, ctrl, dynamo.State{0.1, 0, 0.1, 0, 0, 0}, 0.01, 1000)
	for i, s := range steps {
		if !s.x.IsValid() {
			t.Fatalf("non-finite state at step %d", i)
		}
		if math.Abs(s.out.Force) > DefaultCommon().MaxForce {
			t.Fatalf("force %g exceeds bound at step %d", s.out.Force, i)
		}
	}
	final := steps[len(steps)-1].x
	if a := final.MaxAbs(physics.Theta1, physics.Theta2); a >= 0.01 {
		t.Errorf("final angle %g, want < 0.01", a)
	}
}

func TestSuperTwistingConverges(t *testing.T) {
	plant := newPlant(t)
	cfg := DefaultSTAConfig()
	ctrl, err := NewSuperTwisting(plant, []float64{4, 2, 1, 3, 2, 10}, cfg)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		x0   dynamo.State
	}{
		{"both leaning", dynamo.State{0, 0.1, 0.1, 0, 0, 0}},
		{"folded", dynamo.State{0, -0.1, 0.05, 0, 0, 0}},
		{"spinning", dynamo.State{0, 0.05, -0.1, 0, 0.2, 0}},
		{"cart offset", dynamo.State{0.3, 0, 0.1, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			steps := closedLoop(t, plant, ctrl, tt.x0, 0.01, 1000)
			for _, s := range steps {
				g.Expect(math.Abs(s.st.Z)).To(BeNumerically("<=", cfg.IntegralLimit))
			}
			for _, s := range steps[800:] {
				g.Expect(math.Abs(ctrl.Surface().Value(s.x))).To(BeNumerically("<", 0.01))
			}
		})
	}
}

func TestSuperTwistingIntegralClamp(t *testing.T) {
	g := NewWithT(t)
	cfg := DefaultSTAConfig()
	cfg.IntegralLimit = 1
	ctrl, err := NewSuperTwisting(nil, []float64{4, 2, 1, 3, 2, 10}, cfg)
	g.Expect(err).NotTo(HaveOccurred())

	st := ctrl.Initial()
	x := dynamo.State{0, 0.5, 0.5, 0, 0, 0}
	for i := 0; i < 1000; i++ {
		_, st = ctrl.Compute(x, st, 0.01)
	}
	g.Expect(st.Z).To(Equal(-1.0))
}

func TestAdaptiveGainBounds(t *testing.T) {
	plant := newPlant(t)
	cfg := DefaultAdaptiveConfig()
	ctrl, err := NewAdaptive(plant, []float64{1, 3, 2, 10, 2}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if ctrl.Initial().K != cfg.KInit {
		t.Fatalf("initial K %g, want %g", ctrl.Initial().K, cfg.KInit)
	}

	tests := []struct {
		name string
		k0   float64
		x0   dynamo.State
	}{
		{"from k_min", cfg.KMin, dynamo.State{0, 0.2, -0.1, 0, 0, 0}},
		{"from k_init", cfg.KInit, dynamo.State{0, 0.2, -0.1, 0, 0, 0}},
		{"from k_max", cfg.KMax, dynamo.State{0, 0.2, -0.1, 0, 0, 0}},
		{"from k_max near upright", cfg.KMax, dynamo.State{0, 0.02, 0, 0, 0, 0}},
		{"from k_min spinning", cfg.KMin, dynamo.State{0, 0.1, 0.05, 0, -0.3, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			steps := closedLoopFrom(t, plant, ctrl, tt.x0, State{K: tt.k0}, 0.01, 1000)
			for _, s := range steps {
				g.Expect(s.x.IsValid()).To(BeTrue())
				g.Expect(s.st.K).To(BeNumerically(">=", cfg.KMin))
				g.Expect(s.st.K).To(BeNumerically("<=", cfg.KMax))
				g.Expect(s.out.Gains).To(Equal([]float64{s.st.K}))
			}
		})
	}

	steps := closedLoop(t, plant, ctrl, dynamo.State{0, 0.2, -0.1, 0, 0, 0}, 0.01, 1000)
	if a := steps[len(steps)-1].x.MaxAbs(physics.Theta1, physics.Theta2); a >= 0.01 {
		t.Errorf("final angle %g, want < 0.01", a)
	}
}

func TestAdaptiveDeadZoneFreezesGain(t *testing.T) {
	g := NewWithT(t)
	ctrl, err := NewAdaptive(nil, []float64{1, 3, 2, 10, 2}, DefaultAdaptiveConfig())
	g.Expect(err).NotTo(HaveOccurred())

	st := State{K: 7}
	_, next := ctrl.Compute(dynamo.State{0, 0.001, 0, 0, 0, 0}, st, 0.01)
	g.Expect(next.K).To(Equal(7.0))

	_, next = ctrl.Compute(dynamo.State{0, 0.5, 0, 0, 0, 0}, st, 0.01)
	g.Expect(next.K).To(BeNumerically(">", 7.0))

	st = State{K: 1e9}
	_, next = ctrl.Compute(dynamo.State{0, 0.5, 0, 0, 0, 0}, st, 0.01)
	g.Expect(next.K).To(Equal(DefaultAdaptiveConfig().KMax))
}

func TestNextSafety(t *testing.T) {
	tests := []struct {
		current   SafetyMode
		violation bool
		want      SafetyMode
	}{
		{Normal, false, Normal},
		{Normal, true, EmergencyReset},
		{EmergencyReset, true, EmergencyReset},
		{EmergencyReset, false, Normal},
	}
	for _, tt := range tests {
		if got := nextSafety(tt.current, tt.violation); got != tt.want {
			t.Errorf("nextSafety(%v, %v) = %v, want %v", tt.current, tt.violation, got, tt.want)
		}
	}
}

func TestHybridResetOncePerViolation(t *testing.T) {
	g := NewWithT(t)
	plant := newPlant(t)
	cfg := DefaultHybridConfig()
	ctrl, err := NewHybridAdaptiveSTA(plant, []float64{1, 2, 3, 10}, cfg)
	g.Expect(err).NotTo(HaveOccurred())

	st := ctrl.Initial()
	st.Z = 3
	bad := dynamo.State{0, math.NaN(), 0, 0, 0, 0}
	out, st := ctrl.Compute(bad, st, 0.01)

	g.Expect(out.Force).To(BeZero())
	g.Expect(st.Safety).To(Equal(EmergencyReset))
	g.Expect(st.Resets).To(Equal(1))
	g.Expect(st.Z).To(BeZero())
	g.Expect(st.K1).To(BeNumerically("~", 0.05*cfg.K1Init, 1e-12))
	g.Expect(st.K2).To(BeNumerically("~", 0.05*cfg.K2Init, 1e-12))

	// recovery on the next clean step
	out, st = ctrl.Compute(dynamo.State{0, 0.05, 0, 0, 0, 0}, st, 0.01)
	g.Expect(st.Safety).To(Equal(Normal))
	g.Expect(st.Resets).To(Equal(1))
	g.Expect(math.IsNaN(out.Force)).To(BeFalse())

	// three separate injections, three resets
	for i := 0; i < 3; i++ {
		_, st = ctrl.Compute(bad, st, 0.01)
		_, st = ctrl.Compute(dynamo.State{0, 0.05, 0, 0, 0, 0}, st, 0.01)
	}
	g.Expect(st.Resets).To(Equal(4))
}

func TestHybridNoResetCyclingNominal(t *testing.T) {
	g := NewWithT(t)
	plant := newPlant(t)
	ctrl, err := NewHybridAdaptiveSTA(plant, []float64{1, 2, 3, 10}, DefaultHybridConfig())
	g.Expect(err).NotTo(HaveOccurred())

	steps := closedLoop(t, plant, ctrl, dynamo.State{0, 0.1, 0.1, 0, 0, 0}, 0.01, 1000)
	last := steps[len(steps)-1]
	g.Expect(last.st.Resets).To(BeZero())
	g.Expect(last.x.MaxAbs(physics.Theta1, physics.Theta2)).To(BeNumerically("<", 0.01))
	g.Expect(last.out.Gains).To(HaveLen(2))
}

func TestHybridSurfaceBlowupResets(t *testing.T) {
	g := NewWithT(t)
	cfg := DefaultHybridConfig()
	cfg.UseEquivalent = false
	ctrl, err := NewHybridAdaptiveSTA(nil, []float64{1, 2, 3, 10}, cfg)
	g.Expect(err).NotTo(HaveOccurred())

	out, st := ctrl.Compute(dynamo.State{0, 0, 0, 0, 0, 200}, ctrl.Initial(), 0.01)
	g.Expect(out.Force).To(BeZero())
	g.Expect(st.Safety).To(Equal(EmergencyReset))
}

func TestHybridIntegralSaturationIsNotAFault(t *testing.T) {
	g := NewWithT(t)
	cfg := DefaultHybridConfig()
	cfg.UseEquivalent = false
	cfg.IntegralLimit = 1
	cfg.IntegralBlowup = 2
	ctrl, err := NewHybridAdaptiveSTA(nil, []float64{1, 2, 3, 10}, cfg)
	g.Expect(err).NotTo(HaveOccurred())

	// s = 0.1 held: z ramps into the clamp and stays there
	x := dynamo.State{0, 0.05, 0, 0, 0, 0}
	st := ctrl.Initial()
	for i := 0; i < 500; i++ {
		_, st = ctrl.Compute(x, st, 0.01)
	}
	g.Expect(st.Z).To(Equal(-1.0))
	g.Expect(st.Resets).To(BeZero())
	g.Expect(st.Safety).To(Equal(Normal))

	// an integral beyond the blow-up threshold is still caught
	st.Z = 5
	out, st := ctrl.Compute(x, st, 0.01)
	g.Expect(out.Force).To(BeZero())
	g.Expect(st.Safety).To(Equal(EmergencyReset))
	g.Expect(st.Resets).To(Equal(1))
}

func TestSwingUpHysteresisValidation(t *testing.T) {
	g := NewWithT(t)
	plant := newPlant(t)
	stab, err := NewClassical(plant, []float64{1, 3, 2, 10, 4, 2}, DefaultClassicalConfig())
	g.Expect(err).NotTo(HaveOccurred())

	inverted := DefaultSwingUpConfig()
	inverted.SwitchEnergyFactor, inverted.ExitEnergyFactor = 0.9, 0.95
	_, err = NewSwingUp(plant, stab, inverted)
	g.Expect(err).To(MatchError(ErrInvalidConfig))

	inverted = DefaultSwingUpConfig()
	inverted.SwitchAngleTol, inverted.ReentryAngleTol = 0.5, 0.3
	_, err = NewSwingUp(plant, stab, inverted)
	g.Expect(err).To(MatchError(ErrInvalidConfig))

	_, err = NewSwingUp(plant, nil, DefaultSwingUpConfig())
	g.Expect(err).To(MatchError(ErrInvalidConfig))
}

func TestSwingUpModes(t *testing.T) {
	g := NewWithT(t)
	plant := newPlant(t)
	stab, err := NewClassical(plant, []float64{1, 3, 2, 10, 4, 2}, DefaultClassicalConfig())
	g.Expect(err).NotTo(HaveOccurred())
	ctrl, err := NewSwingUp(plant, stab, DefaultSwingUpConfig())
	g.Expect(err).NotTo(HaveOccurred())

	st := ctrl.Initial()
	g.Expect(st.Mode).To(Equal(Swing))

	hanging := dynamo.State{0, math.Pi, 0, 0, 2, 0}
	out, st := ctrl.Compute(hanging, st, 0.01)
	g.Expect(st.Mode).To(Equal(Swing))
	// cos(π)·2·KSwing
	g.Expect(out.Force).To(BeNumerically("~", -100, 1e-9))

	nearUp := dynamo.State{0, 0.1, -0.05, 0, 0, 0}
	_, st = ctrl.Compute(nearUp, st, 0.01)
	g.Expect(st.Mode).To(Equal(Stabilize))

	// inside the re-entry band the mode holds
	_, st = ctrl.Compute(dynamo.State{0, 0.4, 0, 0, 0, 0}, st, 0.01)
	g.Expect(st.Mode).To(Equal(Stabilize))

	_, st = ctrl.Compute(dynamo.State{0, 0.6, 0, 0, 0, 0}, st, 0.01)
	g.Expect(st.Mode).To(Equal(Swing))

	// a full turn is upright again
	_, st = ctrl.Compute(dynamo.State{0, 2*math.Pi + 0.1, 0, 0, 0, 0}, st, 0.01)
	g.Expect(st.Mode).To(Equal(Stabilize))
}

func TestSwingUpOutputBounded(t *testing.T) {
	plant := newPlant(t)
	stab, err := NewClassical(plant, []float64{1, 3, 2, 10, 4, 2}, DefaultClassicalConfig())
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultSwingUpConfig()
	ctrl, err := NewSwingUp(plant, stab, cfg)
	if err != nil {
		t.Fatal(err)
	}

	steps := closedLoop(t, plant, ctrl, dynamo.State{0, math.Pi - 0.1, 0, 0, 0, 0}, 0.005, 2000)
	for i, s := range steps {
		if !s.x.IsValid() {
			t.Fatalf("non-finite state at step %d", i)
		}
		if math.Abs(s.out.Force) > cfg.MaxForce {
			t.Fatalf("force %g exceeds %g at step %d", s.out.Force, cfg.MaxForce, i)
		}
	}
}

func TestNone(t *testing.T) {
	ctrl := NewNone()
	out, st := ctrl.Compute(dynamo.State{0, 1, 1, 0, 0, 0}, ctrl.Initial(), 0.01)
	if out.Force != 0 || st != (State{}) {
		t.Errorf("none produced %+v, %+v", out, st)
	}
}

func TestLQRStabilizes(t *testing.T) {
	g := NewWithT(t)
	plant := newPlant(t)

	ctrl, err := NewLQR(plant, []float64{10, 100, 100, 1, 1, 1}, DefaultLQRConfig())
	g.Expect(err).NotTo(HaveOccurred())
	for i, k := range ctrl.Gain() {
		g.Expect(math.IsNaN(k) || math.IsInf(k, 0)).To(BeFalse(), "gain %d", i)
	}

	steps := closedLoop(t, plant, ctrl, dynamo.State{0, 0.1, 0.1, 0, 0, 0}, 0.01, 1000)
	final := steps[len(steps)-1].x
	g.Expect(final.MaxAbs()).To(BeNumerically("<", 1e-3))
	for _, s := range steps {
		g.Expect(math.Abs(s.out.Force)).To(BeNumerically("<=", 150))
		g.Expect(s.out.Surface).To(BeZero())
	}
}

func TestLQRTracksCartTarget(t *testing.T) {
	plant := newPlant(t)
	cfg := DefaultLQRConfig()
	cfg.Target = []float64{0.5, 0, 0, 0, 0, 0}

	ctrl, err := NewLQR(plant, []float64{10, 100, 100, 1, 1, 1}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	steps := closedLoop(t, plant, ctrl, make(dynamo.State, 6), 0.01, 1000)
	final := steps[len(steps)-1].x
	if math.Abs(final[physics.CartPos]-0.5) > 1e-3 {
		t.Errorf("cart settled at %g, want 0.5", final[physics.CartPos])
	}
	if math.Abs(final[physics.Theta1]) > 1e-3 || math.Abs(final[physics.Theta2]) > 1e-3 {
		t.Errorf("links not upright: %v", final)
	}
}

func TestLQRRejects(t *testing.T) {
	plant := newPlant(t)
	q := []float64{10, 100, 100, 1, 1, 1}

	if _, err := NewLQR(plant, []float64{10, -1, 100, 1, 1, 1}, DefaultLQRConfig()); !errors.Is(err, ErrInvalidGains) {
		t.Errorf("negative weight: got %v", err)
	}
	if _, err := NewLQR(nil, q, DefaultLQRConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil model: got %v", err)
	}

	cfg := DefaultLQRConfig()
	cfg.Target = []float64{1}
	if _, err := NewLQR(plant, q, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("short target: got %v", err)
	}
	cfg = DefaultLQRConfig()
	cfg.ControlWeight = 0
	if _, err := NewLQR(plant, q, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero control weight: got %v", err)
	}
}
