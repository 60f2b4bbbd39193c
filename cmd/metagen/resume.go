package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/metagen/internal/config"
	"github.com/cwbudde/metagen/internal/store"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume a run from its checkpoint",
	Long: `Continues a saved run. The checkpoint's best solution is kept as the
incumbent, so the resumed best never gets worse. The algorithm and budget may
be changed with flags; the problem and dimension come from the checkpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	addRunFlags(resumeCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	runID := args[0]

	// The store location comes from config and flags; the rest from the checkpoint.
	base, err := loadConfig(func(c *config.Config) { applyFlags(cmd, c) })
	if err != nil {
		return err
	}
	checkpointStore, err := store.Open(commandContext(cmd), base.Checkpoint.Backend, base.Checkpoint.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer store.CloseIfSupported(checkpointStore)

	checkpoint, err := checkpointStore.LoadCheckpoint(runID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no checkpoint for run %s in %s", runID, base.Checkpoint.DataDir)
	}
	if err != nil {
		return err
	}

	cfg, err := loadConfig(func(c *config.Config) {
		c.Problem = checkpoint.Config.Problem
		c.Dimension = checkpoint.Config.Dimension
		c.Algorithm = checkpoint.Config.Algorithm
		c.Budget.Iterations = checkpoint.Config.Iterations
		c.Budget.PopulationSize = checkpoint.Config.PopSize
		c.Seed = checkpoint.Config.Seed
		applyFlags(cmd, c)
	})
	if err != nil {
		return err
	}
	if err := checkpoint.IsCompatible(store.JobConfig{Problem: cfg.Problem, Dimension: cfg.Dimension}); err != nil {
		return fmt.Errorf("cannot resume %s: %w", runID, err)
	}

	fmt.Printf("Resuming %s from iteration %d (best fitness %g)\n", runID, checkpoint.Iteration, checkpoint.Best.Fitness)
	return execute(commandContext(cmd), cfg, runID, checkpointStore, checkpoint)
}
