package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/metagen/internal/config"
	"github.com/cwbudde/metagen/internal/fit"
	"github.com/cwbudde/metagen/internal/opt"
	"github.com/cwbudde/metagen/internal/solution"
	"github.com/cwbudde/metagen/internal/store"
)

var (
	problem   string
	dimension int
	algorithm string
	iters     int
	popSize   int
	strains   int
	seed      int64
	timeout   time.Duration
	save      bool
	dataDir   string
	backend   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run single-shot optimization",
	Long: `Runs one built-in problem through the selected algorithm and prints the best
solution. With --save the best solution is stored as a checkpoint that
"metagen resume" can continue from.`,
	RunE: runOptimization,
}

func init() {
	addRunFlags(runCmd)
	runCmd.Flags().StringVar(&problem, "problem", "sphere", "Built-in problem (see 'metagen problems')")
	runCmd.Flags().IntVar(&dimension, "dim", 0, "Vector dimension for sphere and rastrigin (0 = default)")
	runCmd.Flags().BoolVar(&save, "save", false, "Save the best solution as a checkpoint")
	rootCmd.AddCommand(runCmd)
}

// addRunFlags registers the flags shared by run and resume.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&algorithm, "algorithm", opt.AlgorithmRandomSearch, "Algorithm name")
	cmd.Flags().IntVar(&iters, "iters", 0, "Max iterations (0 = engine default)")
	cmd.Flags().IntVar(&popSize, "pop", 0, "Population size (0 = engine default)")
	cmd.Flags().IntVar(&strains, "strains", 0, "Concurrent CVOA strains (0 = config value)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 = time based)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop after this duration (0 = no limit)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Checkpoint directory (default from config)")
	cmd.Flags().StringVar(&backend, "backend", "", "Checkpoint backend: fs or sqlite (default from config)")
}

// applyFlags layers the changed command-line flags over cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("problem") {
		cfg.Problem = problem
	}
	if flags.Changed("dim") {
		cfg.Dimension = dimension
	}
	if flags.Changed("algorithm") {
		cfg.Algorithm = algorithm
	}
	if flags.Changed("iters") {
		cfg.Budget.Iterations = iters
	}
	if flags.Changed("pop") {
		cfg.Budget.PopulationSize = popSize
	}
	if flags.Changed("strains") {
		cfg.CVOA.Strains = strains
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("timeout") {
		cfg.Budget.Timeout = timeout
	}
	if flags.Changed("data-dir") {
		cfg.Checkpoint.DataDir = dataDir
	}
	if flags.Changed("backend") {
		cfg.Checkpoint.Backend = backend
	}
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(c *config.Config) { applyFlags(cmd, c) })
	if err != nil {
		return err
	}

	var checkpointStore store.Store
	if save {
		checkpointStore, err = store.Open(commandContext(cmd), cfg.Checkpoint.Backend, cfg.Checkpoint.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		defer store.CloseIfSupported(checkpointStore)
	}

	return execute(commandContext(cmd), cfg, uuid.NewString(), checkpointStore, nil)
}

// execute runs cfg, writing a trace and a final checkpoint under runID when
// checkpointStore is set. An interrupt stops the run and keeps its best.
func execute(parent context.Context, cfg config.Config, runID string, checkpointStore store.Store, from *store.Checkpoint) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := cfg.Settings()
	if checkpointStore != nil && cfg.Checkpoint.Trace {
		tw, err := store.NewTraceWriter(cfg.Checkpoint.DataDir, runID, from != nil)
		if err != nil {
			return fmt.Errorf("failed to create trace writer: %w", err)
		}
		defer tw.Close()
		settings.Observer = func(p opt.Progress) { tw.Observe(p, false) }
	}

	req := fit.Request{
		Problem:   cfg.Problem,
		Dimension: cfg.Dimension,
		Algorithm: cfg.Algorithm,
		Settings:  settings,
		Timeout:   cfg.Budget.Timeout,
	}
	if from != nil {
		req.Incumbent = &from.Best
	}

	slog.Info("Starting run", "run_id", runID, "problem", cfg.Problem, "algorithm", cfg.Algorithm)
	result, runErr := fit.Optimize(ctx, req)
	if result == nil {
		return runErr
	}
	stopped := errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)
	if runErr != nil && !stopped {
		return runErr
	}

	iterations, evaluations := result.Iterations, result.Evaluations
	initial := result.InitialFitness
	if from != nil {
		iterations += from.Iteration
		evaluations += from.Evaluations
		initial = max(initial, from.InitialFitness)
	}
	initial = max(initial, result.Best.Fitness())

	if checkpointStore != nil {
		checkpoint := store.NewCheckpoint(runID, result.Best.Snapshot(), initial, iterations, evaluations, store.JobConfig{
			Problem:    cfg.Problem,
			Algorithm:  cfg.Algorithm,
			Dimension:  cfg.Dimension,
			Iterations: max(cfg.Budget.Iterations, 1),
			PopSize:    cfg.Budget.PopulationSize,
			Seed:       cfg.Seed,
		})
		if err := checkpointStore.SaveCheckpoint(runID, checkpoint); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		slog.Info("Saved checkpoint", "run_id", runID, "best_fitness", result.Best.Fitness())
	}

	printResult(runID, result.Best, initial, evaluations, result.Elapsed, stopped)
	return nil
}

func printResult(runID string, best *solution.Solution, initial float64, evaluations int, elapsed time.Duration, stopped bool) {
	status := "completed"
	if stopped {
		status = "stopped"
	}
	fmt.Printf("Run %s %s in %s (%d evaluations)\n", runID, status, elapsed.Round(time.Millisecond), evaluations)
	fmt.Printf("Fitness: %g -> %g\n", initial, best.Fitness())
	fmt.Println(best.String())
}
