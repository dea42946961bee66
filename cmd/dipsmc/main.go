package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/san-kum/dipsmc/internal/analysis"
	"github.com/san-kum/dipsmc/internal/automation"
	"github.com/san-kum/dipsmc/internal/config"
	"github.com/san-kum/dipsmc/internal/experiment"
	"github.com/san-kum/dipsmc/internal/physics"
	"github.com/san-kum/dipsmc/internal/sim"
	"github.com/san-kum/dipsmc/internal/tuning"
)

var (
	configFile string
	verbose    bool

	dt         float64
	integrator string
	preset     string
	gains      []float64
	theta1     float64
	theta2     float64
	noise      float64
	lyapunov   bool

	swarm        int
	iterations   int
	perturbed    int
	perturbation float64
	workers      int
	write        bool
	points       int

	trials      int
	stableAngle float64

	param     string
	paramMin  float64
	paramMax  float64
	numPoints int
)

// main registers the dipsmc commands and executes the root command,
// exiting with status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:           "dipsmc",
		Short:         "sliding mode control lab for a double inverted pendulum on a cart",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	simulateCmd := &cobra.Command{
		Use:   "simulate [variant]",
		Short: "run one closed-loop simulation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulate,
	}
	simulateCmd.Flags().Float64Var(&dt, "dt", 0.01, "timestep")
	simulateCmd.Flags().Float64("time", 10.0, "duration")
	simulateCmd.Flags().Int64("seed", 0, "disturbance seed")
	simulateCmd.Flags().StringVar(&integrator, "integrator", config.DefaultIntegrator, "integrator")
	simulateCmd.Flags().StringVar(&preset, "preset", "", "initial condition preset")
	simulateCmd.Flags().Float64SliceVar(&gains, "gains", nil, "controller gains (comma separated)")
	simulateCmd.Flags().Float64Var(&theta1, "theta1", config.DefaultTheta, "initial angle of link 1")
	simulateCmd.Flags().Float64Var(&theta2, "theta2", config.DefaultTheta, "initial angle of link 2")
	simulateCmd.Flags().Float64Var(&noise, "noise", 0, "bounded cart force noise amplitude")
	simulateCmd.Flags().BoolVar(&lyapunov, "lyapunov", false, "estimate the closed-loop Lyapunov exponent")

	tuneCmd := &cobra.Command{
		Use:   "tune [variant]",
		Short: "tune controller gains with particle swarm optimization",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTune,
	}
	tuneCmd.Flags().IntVar(&swarm, "swarm", 0, "swarm size (0 selects 10+2*sqrt(D))")
	tuneCmd.Flags().IntVar(&iterations, "iters", 50, "iterations")
	tuneCmd.Flags().Int64("seed", 42, "optimizer seed")
	addTuningFlags(tuneCmd)
	tuneCmd.Flags().BoolVar(&write, "write", false, "store the tuned gains in the config file")

	gridCmd := &cobra.Command{
		Use:   "grid [variant]",
		Short: "grid search baseline over the gain bounds",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGrid,
	}
	gridCmd.Flags().IntVar(&points, "points", 3, "points per gain")
	gridCmd.Flags().Int64("seed", 42, "scenario seed")
	addTuningFlags(gridCmd)

	robustnessCmd := &cobra.Command{
		Use:   "robustness [variant]",
		Short: "robustness over perturbed initial conditions",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRobustness,
	}
	robustnessCmd.Flags().IntVar(&trials, "trials", 50, "number of trials")
	robustnessCmd.Flags().Float64Var(&perturbation, "perturbation", config.DefaultPerturbation, "uniform perturbation of the link angles")
	robustnessCmd.Flags().Float64Var(&stableAngle, "stable-angle", 0.05, "final angle bound of a stable trial")
	robustnessCmd.Flags().Int64("seed", 1, "perturbation seed")
	robustnessCmd.Flags().IntVar(&workers, "workers", 0, "parallel trials (0 selects NumCPU)")
	robustnessCmd.Flags().Float64SliceVar(&gains, "gains", nil, "controller gains (comma separated)")

	sweepCmd := &cobra.Command{
		Use:   "sweep [variant]",
		Short: "vary one plant parameter against the nominal controller",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&param, "param", "cart_mass", "plant parameter")
	sweepCmd.Flags().Float64Var(&paramMin, "min", 1.0, "lowest value")
	sweepCmd.Flags().Float64Var(&paramMax, "max", 2.5, "highest value")
	sweepCmd.Flags().IntVar(&numPoints, "steps", 7, "number of values")
	sweepCmd.Flags().Float64SliceVar(&gains, "gains", nil, "controller gains (comma separated)")

	scriptCmd := &cobra.Command{
		Use:   "script [file]",
		Short: "run a scripted sequence of simulations",
		Args:  cobra.ExactArgs(1),
		RunE:  runScript,
	}

	variantsCmd := &cobra.Command{
		Use:   "variants",
		Short: "list controller variants and integrators",
		RunE:  listVariants,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list initial condition presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVARIANT\tINIT STATE\tDESCRIPTION")
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				variant := p.Variant
				if variant == "" {
					variant = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, variant, formatVector(p.InitState), p.Description)
			}
			return w.Flush()
		},
	}

	rootCmd.AddCommand(simulateCmd, tuneCmd, gridCmd, robustnessCmd, sweepCmd, scriptCmd, variantsCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addTuningFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("time", 5.0, "duration of each trial")
	cmd.Flags().IntVar(&perturbed, "perturbed", config.DefaultPerturbed, "perturbed scenarios besides the nominal one")
	cmd.Flags().Float64Var(&perturbation, "perturbation", config.DefaultPerturbation, "scenario perturbation of angles and rates")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel evaluations (0 selects NumCPU)")
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	return cfg.Build()
}

// loadConfig reads --config when given, applies the variant argument and
// then every flag the user set explicitly.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if len(args) > 0 {
		cfg.Variant = args[0]
	}

	flags := cmd.Flags()
	// Without a config file the command's own flag defaults apply.
	use := func(name string) bool {
		return flags.Changed(name) || (configFile == "" && flags.Lookup(name) != nil)
	}
	if flags.Lookup("preset") != nil && preset != "" {
		if err := cfg.ApplyPreset(preset); err != nil {
			return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(config.ListPresets(), ", "))
		}
		if len(args) > 0 {
			cfg.Variant = args[0]
		}
	}
	if flags.Changed("dt") {
		cfg.Simulation.Dt = dt
	}
	if flags.Changed("time") || (use("time") && preset == "") {
		cfg.Simulation.Duration, _ = flags.GetFloat64("time")
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("theta1") {
		cfg.InitState[physics.Theta1] = theta1
	}
	if flags.Changed("theta2") {
		cfg.InitState[physics.Theta2] = theta2
	}
	if flags.Changed("noise") {
		cfg.Disturbance = config.DisturbanceConfig{Kind: "noise", Amplitude: noise}
	}
	if flags.Changed("gains") {
		cfg.SetGains(cfg.Variant, gains)
	}
	if use("perturbed") {
		cfg.Tuning.Perturbed = perturbed
	}
	if use("perturbation") {
		cfg.Tuning.Perturbation = perturbation
	}
	if flags.Changed("swarm") {
		cfg.PSO.SwarmSize = swarm
	}
	if use("iters") {
		cfg.PSO.Iterations = iterations
	}
	if flags.Changed("workers") {
		cfg.PSO.Workers = workers
	}
	if use("seed") {
		seed, _ := flags.GetInt64("seed")
		cfg.Simulation.Seed = seed
		cfg.PSO.Seed = seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	expCfg, err := cfg.Experiment()
	if err != nil {
		return err
	}

	registry := experiment.NewRegistry()
	exp := experiment.New(expCfg, registry, logger)
	if err := exp.Setup(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %s (%s, dt=%.4f, duration=%.1fs)\n", expCfg.Variant, expCfg.Integrator, expCfg.Sim.Dt, expCfg.Sim.Duration)
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil && result == nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v (%d steps)\n", elapsed, result.Steps)
	if result.Failed() {
		fmt.Printf("aborted: %v\n", result.Failure)
	}
	fmt.Printf("final state: %s\n\n", formatVector(result.Trajectory.Final()))

	printSummary(result)

	traj := result.Trajectory
	band := cfg.Controllers.Classical.Epsilon
	phase := analysis.SlidingPhases(traj.Times, traj.Surface, band)
	decrease, counted := analysis.LyapunovDecrease(traj.Surface, band)
	hf := analysis.HighFrequencyRatio(traj.Controls, expCfg.Sim.Dt, 10)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nANALYSIS\tVALUE")
	fmt.Fprintf(w, "reaching time\t%s\n", formatSeconds(phase.ReachingTime))
	fmt.Fprintf(w, "sliding fraction\t%.3f\n", phase.SlidingFraction)
	fmt.Fprintf(w, "band crossings\t%d\n", phase.Crossings)
	fmt.Fprintf(w, "lyapunov decrease\t%.3f of %d steps\n", decrease, counted)
	fmt.Fprintf(w, "control power above 10 hz\t%.4f\n", hf)
	if traj.Resets > 0 || expCfg.Variant == "hybrid" {
		rate := analysis.ResetRate(traj.Resets, expCfg.Sim.Duration)
		fmt.Fprintf(w, "safety resets\t%d (%.2f/s)\n", traj.Resets, rate)
		if err := analysis.CheckResetRate(traj.Resets, expCfg.Sim.Duration, cfg.Controllers.Hybrid.MaxResetRate); err != nil {
			fmt.Fprintf(w, "warning\t%v\n", err)
		}
	}
	if lyapunov {
		exponent, err := closedLoopExponent(registry, expCfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "lyapunov exponent\t%.4f\n", exponent)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func closedLoopExponent(registry *experiment.Registry, cfg experiment.Config) (float64, error) {
	plant, err := physics.NewDoubleInvertedPendulum(cfg.Plant, cfg.Regularizer)
	if err != nil {
		return 0, err
	}
	integ, err := registry.Integrator(cfg.Integrator)
	if err != nil {
		return 0, err
	}
	ctrl, err := registry.Controller(cfg.Variant, plant, cfg.Gains, cfg.Controllers)
	if err != nil {
		return 0, err
	}
	return analysis.ClosedLoopExponent(plant, integ, ctrl, cfg.InitState, physics.Theta1, cfg.Sim.Dt, cfg.Sim.Duration, 1e-8)
}

func printSummary(result *sim.Result) {
	s := result.Summary
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE")
	fmt.Fprintf(w, "tracking rms\t%.6f\n", s.TrackingRMS)
	fmt.Fprintf(w, "settling time\t%s\n", formatSeconds(s.SettlingTime))
	fmt.Fprintf(w, "overshoot\t%.6f\n", s.Overshoot)
	fmt.Fprintf(w, "control effort\t%.4f\n", s.ControlEffort)
	fmt.Fprintf(w, "control energy\t%.4f\n", s.ControlEnergy)
	fmt.Fprintf(w, "chattering\t%.4f\n", s.Chattering)
	if result.MaxLocalError > 0 {
		fmt.Fprintf(w, "max local error\t%.3e\n", result.MaxLocalError)
	}

	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%.6f\n", name, result.Metrics[name])
	}
	w.Flush()
}

func runTune(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	req, err := cfg.TuningRequest()
	if err != nil {
		return err
	}
	req.Logger = logger

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("tuning %s: %d iterations, %d scenarios of %.1fs\n", req.Variant, req.Iterations, req.Perturbed+1, req.Experiment.Sim.Duration)
	start := time.Now()
	out, err := tuning.Optimize(ctx, req)
	if out == nil {
		return err
	}
	printOutcome(out, time.Since(start))

	if write && err == nil {
		path := configFile
		if path == "" {
			path = "dipsmc.yaml"
		}
		cfg.SetGains(out.Variant, out.BestGains)
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		fmt.Printf("\ngains written to %s\n", path)
	}
	return err
}

func runGrid(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	req, err := cfg.TuningRequest()
	if err != nil {
		return err
	}
	req.Logger = logger

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	out, err := tuning.Grid(ctx, req, points)
	if out == nil {
		return err
	}
	printOutcome(out, time.Since(start))
	return err
}

func printOutcome(out *tuning.Outcome, elapsed time.Duration) {
	fmt.Printf("\nstopped: %s after %d iterations, %d evaluations in %v\n", out.Stop, out.Iterations, out.Evaluations, elapsed.Round(time.Millisecond))
	fmt.Printf("best cost: %.6g\n\n", out.BestCost)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GAIN\tVALUE")
	for i, name := range out.GainNames {
		if i < len(out.BestGains) {
			fmt.Fprintf(w, "%s\t%.6f\n", name, out.BestGains[i])
		}
	}
	w.Flush()

	if len(out.History) > 1 {
		fmt.Println("\nconvergence:")
		step := int(math.Max(1, float64(len(out.History))/10))
		for i := 0; i < len(out.History); i += step {
			fmt.Printf("  iter %3d  %.6g\n", i, out.History[i])
		}
	}
	if len(out.BestGains) > 0 {
		fmt.Printf("\n--gains %s\n", formatGains(out.BestGains))
	}
}

func runRobustness(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	base, err := cfg.Experiment()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	r := automation.Robustness{
		Spread:     cfg.Tuning.Perturbation,
		Components: []int{physics.Theta1, physics.Theta2},
		Trials:     trials,
		Seed:       cfg.Simulation.Seed,
		Workers:    workers,
		AngleLimit: stableAngle,
	}
	results, err := r.Run(ctx, base, experiment.NewRegistry(), logger)
	if err != nil {
		return err
	}

	rep := automation.Tally(results)
	fmt.Printf("%s: %d/%d stable (%.1f%%), %d unstable\n", base.Variant, rep.Stable, len(results), 100*rep.Fraction(), rep.Unstable)
	if !math.IsNaN(rep.MeanRMS) {
		fmt.Printf("mean tracking rms over stable trials: %.6f\n", rep.MeanRMS)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nTRIAL\tTHETA1\tTHETA2\tSTABLE\tRMS\tSETTLING")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%t\t%.5f\t%s\n",
			r.ID,
			r.Start[physics.Theta1],
			r.Start[physics.Theta2],
			r.Stable,
			r.Summary.TrackingRMS,
			formatSeconds(r.Summary.SettlingTime),
		)
	}
	return w.Flush()
}

func runSweep(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	base, err := cfg.Experiment()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	sw := automation.Sweep{Param: param, From: paramMin, To: paramMax, Points: numPoints}
	results, err := automation.RunSweep(ctx, sw, base, experiment.NewRegistry(), logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tFAILED\tRMS\tSETTLING\tEFFORT\tENERGY RANGE\n", strings.ToUpper(param))
	for _, r := range results {
		fmt.Fprintf(w, "%.4f\t%t\t%.5f\t%s\t%.3f\t%.4f\n",
			r.Value,
			r.Failed,
			r.Summary.TrackingRMS,
			formatSeconds(r.Summary.SettlingTime),
			r.Summary.ControlEffort,
			r.Energy.Width(),
		)
	}
	return w.Flush()
}

func runScript(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	script, err := automation.LoadScript(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	base, err := cfg.Experiment()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("script %s: %s\n\n", script.Name, script.Description)
	results, err := script.Execute(ctx, base, experiment.NewRegistry(), logger)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTEPS\tFAILED\tRMS\tSETTLING\tEFFORT")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%d\t%t\t%.5f\t%s\t%.3f\n",
			r.Label,
			r.Result.Steps,
			r.Result.Failed(),
			r.Result.Summary.TrackingRMS,
			formatSeconds(r.Result.Summary.SettlingTime),
			r.Result.Summary.ControlEffort,
		)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func listVariants(cmd *cobra.Command, args []string) error {
	registry := experiment.NewRegistry()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tGAINS\tDEFAULTS")
	for _, name := range registry.ListVariants() {
		v, err := registry.Variant(name)
		if err != nil {
			return err
		}
		names := "-"
		if len(v.GainNames) > 0 {
			names = strings.Join(v.GainNames, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, names, formatGains(v.DefaultGains))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nintegrators: %s\n", strings.Join(registry.ListIntegrators(), ", "))
	return nil
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4f", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatGains(g []float64) string {
	if len(g) == 0 {
		return "-"
	}
	parts := make([]string, len(g))
	for i, x := range g {
		parts[i] = fmt.Sprintf("%.4g", x)
	}
	return strings.Join(parts, ",")
}

func formatSeconds(t float64) string {
	if math.IsInf(t, 1) {
		return "never"
	}
	return fmt.Sprintf("%.3fs", t)
}
