package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/metagen/internal/config"
	"github.com/cwbudde/metagen/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage optimization checkpoints",
	Long: `Manage optimization checkpoints including listing, inspecting and cleaning
old checkpoints. Checkpoints allow resuming runs from their best solution.`,
}

var listCheckpointsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available checkpoints",
	RunE:  runListCheckpoints,
}

var showCheckpointCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Print a checkpoint as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowCheckpoint,
}

var deleteCheckpointCmd = &cobra.Command{
	Use:   "delete [run-id]",
	Short: "Delete a checkpoint and its trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteCheckpoint,
}

var cleanCheckpointsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old checkpoints",
	Long: `Delete old checkpoints based on retention policy.
You can keep only the newest N checkpoints or delete checkpoints older than N days.`,
	RunE: runCleanCheckpoints,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(listCheckpointsCmd, showCheckpointCmd, deleteCheckpointCmd, cleanCheckpointsCmd)

	checkpointsCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Checkpoint directory (default from config)")
	checkpointsCmd.PersistentFlags().StringVar(&backend, "backend", "", "Checkpoint backend: fs or sqlite (default from config)")

	cleanCheckpointsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N checkpoints (0 = keep all)")
	cleanCheckpointsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete checkpoints older than N days (0 = no age limit)")
	cleanCheckpointsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

// openCheckpointStore opens the store named by config, --data-dir and --backend.
func openCheckpointStore(cmd *cobra.Command) (store.Store, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, cfg, err
	}
	if dataDir != "" {
		cfg.Checkpoint.DataDir = dataDir
	}
	if backend != "" {
		cfg.Checkpoint.Backend = backend
	}
	s, err := store.Open(commandContext(cmd), cfg.Checkpoint.Backend, cfg.Checkpoint.DataDir)
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	return s, cfg, nil
}

func runListCheckpoints(cmd *cobra.Command, args []string) error {
	checkpointStore, cfg, err := openCheckpointStore(cmd)
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(checkpointStore)

	infos, err := checkpointStore.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No checkpoints found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tPROBLEM\tALGORITHM\tITERATION\tBEST FITNESS\tSIZE")
	fmt.Fprintln(w, "------\t---------\t-------\t---------\t---------\t------------\t----")

	for _, info := range infos {
		sizeStr := "-"
		if cfg.Checkpoint.Backend != store.BackendSQLite {
			if size, err := getDirSize(filepath.Join(cfg.Checkpoint.DataDir, "jobs", info.JobID)); err == nil {
				sizeStr = formatBytes(size)
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%g\t%s\n",
			shortID(info.JobID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Problem,
			info.Algorithm,
			info.Iteration,
			info.BestFitness,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal checkpoints: %d\n", len(infos))
	return nil
}

func runShowCheckpoint(cmd *cobra.Command, args []string) error {
	checkpointStore, _, err := openCheckpointStore(cmd)
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(checkpointStore)

	checkpoint, err := checkpointStore.LoadCheckpoint(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(checkpoint)
}

func runDeleteCheckpoint(cmd *cobra.Command, args []string) error {
	checkpointStore, _, err := openCheckpointStore(cmd)
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(checkpointStore)

	if err := checkpointStore.DeleteCheckpoint(args[0]); err != nil {
		return err
	}
	slog.Info("Deleted checkpoint", "job_id", args[0])
	return nil
}

func runCleanCheckpoints(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	checkpointStore, _, err := openCheckpointStore(cmd)
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(checkpointStore)

	infos, err := checkpointStore.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No checkpoints to clean.")
		return nil
	}

	toDelete := selectCheckpointsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Println("No checkpoints match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d checkpoint(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%s, iteration %d, %s)\n",
			shortID(info.JobID),
			info.Problem,
			info.Iteration,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := checkpointStore.DeleteCheckpoint(info.JobID); err != nil {
			slog.Error("Failed to delete checkpoint", "job_id", info.JobID, "error", err)
			failed++
		} else {
			slog.Info("Deleted checkpoint", "job_id", info.JobID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d checkpoint(s), %d failed.\n", deleted, failed)
	return nil
}

// selectCheckpointsForDeletion applies the retention policy. A checkpoint is
// selected when it is older than olderThanDays or outside the newest keepLast.
func selectCheckpointsForDeletion(infos []store.CheckpointInfo, keepLast int, olderThanDays int, now time.Time) []store.CheckpointInfo {
	sorted := slices.Clone(infos)
	slices.SortFunc(sorted, func(a, b store.CheckpointInfo) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	cutoff := now.AddDate(0, 0, -olderThanDays)
	var toDelete []store.CheckpointInfo
	for i, info := range sorted {
		tooOld := olderThanDays > 0 && info.Timestamp.Before(cutoff)
		beyondKeep := keepLast > 0 && i >= keepLast
		if tooOld || beyondKeep {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
