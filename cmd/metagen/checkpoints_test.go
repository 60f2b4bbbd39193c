package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/metagen/internal/config"
	"github.com/cwbudde/metagen/internal/opt"
	"github.com/cwbudde/metagen/internal/solution"
	"github.com/cwbudde/metagen/internal/store"
)

func TestSelectCheckpointsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectCheckpointsForDeletion(infos, 0, 7, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 checkpoints to delete, got %d", len(toDelete))
	}
	ids := map[string]bool{}
	for _, info := range toDelete {
		ids[info.JobID] = true
	}
	if !ids["job1"] || !ids["job4"] {
		t.Error("Expected job1 and job4 to be selected for deletion")
	}
}

func TestSelectCheckpointsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectCheckpointsForDeletion(infos, 2, 0, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 checkpoints to delete, got %d", len(toDelete))
	}
	// Newest first, so the oldest two come out as job1 then job4.
	if toDelete[0].JobID != "job1" || toDelete[1].JobID != "job4" {
		t.Errorf("Expected job1 and job4 (oldest), got %s and %s", toDelete[0].JobID, toDelete[1].JobID)
	}
}

func TestSelectCheckpointsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
		{JobID: "job5", Timestamp: now.AddDate(0, 0, -2)},
	}

	// Age selects job1 and job4; keeping 2 also selects job2. No duplicates.
	toDelete := selectCheckpointsForDeletion(infos, 2, 7, now)
	if len(toDelete) != 3 {
		t.Errorf("Expected 3 checkpoints to delete, got %d", len(toDelete))
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	content := []byte("Hello, World!")
	if err := os.WriteFile(filepath.Join(tmpDir, "test.txt"), content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		if result := formatBytes(tt.bytes); result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

// useDataDir points the checkpoint commands at dir for one test.
func useDataDir(t *testing.T, dir string) {
	t.Helper()
	originalDataDir, originalBackend := dataDir, backend
	dataDir, backend = dir, store.BackendFS
	t.Cleanup(func() { dataDir, backend = originalDataDir, originalBackend })
}

func saveTestCheckpoint(t *testing.T, dir, id string, age time.Duration) {
	t.Helper()
	fs, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	checkpoint := store.NewCheckpoint(id,
		solution.Snapshot{Fitness: 0.5, Variables: map[string]any{"x": []any{0.1, 0.2}}},
		1.0, 10, 100,
		store.JobConfig{Problem: "sphere", Algorithm: opt.AlgorithmGenetic, Dimension: 2, Iterations: 100},
	)
	checkpoint.Timestamp = time.Now().Add(-age)
	if err := fs.SaveCheckpoint(id, checkpoint); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}
}

func TestCheckpointsListCommand(t *testing.T) {
	tmpDir := t.TempDir()
	useDataDir(t, tmpDir)

	if err := runListCheckpoints(nil, nil); err != nil {
		t.Errorf("Expected no error on an empty store, got %v", err)
	}

	saveTestCheckpoint(t, tmpDir, "test-job-id", 0)
	if err := runListCheckpoints(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := runShowCheckpoint(nil, []string{"test-job-id"}); err != nil {
		t.Errorf("Expected show to succeed, got %v", err)
	}
}

func TestCheckpointsCleanCommand_NoFlags(t *testing.T) {
	useDataDir(t, t.TempDir())
	keepLast, olderThanDays = 0, 0

	if err := runCleanCheckpoints(nil, nil); err == nil {
		t.Error("Expected error when no flags specified")
	}
}

func TestCheckpointsCleanCommand_WithForce(t *testing.T) {
	tmpDir := t.TempDir()
	useDataDir(t, tmpDir)
	saveTestCheckpoint(t, tmpDir, "old-job", 30*24*time.Hour)
	saveTestCheckpoint(t, tmpDir, "new-job", 0)

	keepLast, olderThanDays, forceClean = 0, 7, true
	t.Cleanup(func() { keepLast, olderThanDays, forceClean = 0, 0, false })

	if err := runCleanCheckpoints(nil, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	fs, _ := store.NewFSStore(tmpDir)
	if _, err := fs.LoadCheckpoint("old-job"); err == nil {
		t.Error("Expected old checkpoint to be deleted")
	}
	if _, err := fs.LoadCheckpoint("new-job"); err != nil {
		t.Errorf("Expected new checkpoint to be kept: %v", err)
	}

	if err := runDeleteCheckpoint(nil, []string{"new-job"}); err != nil {
		t.Errorf("Expected delete to succeed, got %v", err)
	}
	if err := runDeleteCheckpoint(nil, []string{"new-job"}); err == nil {
		t.Error("Expected deleting a missing checkpoint to fail")
	}
}

func TestExecute_SaveAndResume(t *testing.T) {
	tmpDir := t.TempDir()
	fs, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Problem = "mixed"
	cfg.Algorithm = opt.AlgorithmSteadyState
	cfg.Budget.Iterations = 20
	cfg.Seed = 3
	cfg.Checkpoint.DataDir = tmpDir
	cfg.Checkpoint.Trace = true

	if err := execute(context.Background(), cfg, "run-1", fs, nil); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	first, err := fs.LoadCheckpoint("run-1")
	if err != nil {
		t.Fatalf("Expected a checkpoint: %v", err)
	}

	cfg.Algorithm = opt.AlgorithmRandomSearch
	cfg.Budget.Iterations = 2
	if err := execute(context.Background(), cfg, "run-1", fs, first); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	second, err := fs.LoadCheckpoint("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if second.Best.Fitness > first.Best.Fitness {
		t.Errorf("Resumed best %v is worse than %v", second.Best.Fitness, first.Best.Fitness)
	}
	if second.Evaluations <= first.Evaluations {
		t.Errorf("Evaluations should continue: %d <= %d", second.Evaluations, first.Evaluations)
	}
	if second.Config.Algorithm != opt.AlgorithmRandomSearch {
		t.Errorf("Expected the resumed algorithm to be recorded, got %s", second.Config.Algorithm)
	}

	reader, err := store.NewTraceReader(tmpDir, "run-1")
	if err != nil {
		t.Fatalf("Expected a trace: %v", err)
	}
	defer reader.Close()
	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Error("Expected trace entries")
	}
}
