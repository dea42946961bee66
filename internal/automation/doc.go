// Package automation runs batches of experiments: scripted sequences of
// runs, one-parameter robustness sweeps and randomized initial-state
// trials. Every run is an experiment.Config built by the same registry as
// a single simulation.
package automation
