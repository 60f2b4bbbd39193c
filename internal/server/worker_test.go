package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cwbudde/metagen/internal/opt"
	"github.com/cwbudde/metagen/internal/solution"
	"github.com/cwbudde/metagen/internal/store"
)

func TestRunJob_Success(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{
		Problem:    "sphere",
		Dimension:  3,
		Algorithm:  opt.AlgorithmGenetic,
		Iterations: 10,
		PopSize:    8,
		Seed:       42,
	})

	if err := runJob(context.Background(), jm, nil, "", job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	done, _ := jm.GetJob(job.ID)
	if done.State != StateCompleted {
		t.Fatalf("Expected completed state, got %s (%s)", done.State, done.Error)
	}
	if done.Best == nil {
		t.Fatal("Expected a best solution")
	}
	if done.BestFitness() > done.InitialFitness {
		t.Errorf("Best fitness %v worse than initial %v", done.BestFitness(), done.InitialFitness)
	}
	if done.Evaluations == 0 || done.Iterations == 0 {
		t.Errorf("Expected progress counters, got %d iterations and %d evaluations", done.Iterations, done.Evaluations)
	}
	if done.EndTime == nil {
		t.Error("Expected an end time")
	}
}

func TestRunJob_EngineError(t *testing.T) {
	jm := NewJobManager()
	// Mayfly cannot encode the group variable of the mixed problem.
	job := jm.CreateJob(JobConfig{Problem: "mixed", Algorithm: opt.AlgorithmMayfly, Iterations: 5})

	err := runJob(context.Background(), jm, nil, "", job.ID)
	if !errors.Is(err, opt.ErrUnsupportedDomain) {
		t.Fatalf("Expected ErrUnsupportedDomain, got %v", err)
	}

	failed, _ := jm.GetJob(job.ID)
	if failed.State != StateFailed || failed.Error == "" {
		t.Errorf("Expected failed state with a message, got %s %q", failed.State, failed.Error)
	}
}

func TestRunJob_Cancellation(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Problem: "rastrigin", Algorithm: opt.AlgorithmRandomSearch, Iterations: 1_000_000})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runJob(ctx, jm, nil, "", job.ID) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Job did not stop after cancellation")
	}

	cancelled, _ := jm.GetJob(job.ID)
	if cancelled.State != StateCancelled {
		t.Errorf("Expected cancelled state, got %s", cancelled.State)
	}
	if cancelled.Best == nil {
		t.Error("The partial best should be kept")
	}
}

func TestRunJob_SavesCheckpointAndTrace(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{
		Problem:            "mixed",
		Algorithm:          opt.AlgorithmSteadyState,
		Iterations:         20,
		CheckpointInterval: 60,
	})
	if err := runJob(context.Background(), jm, fs, dir, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	checkpoint, err := fs.LoadCheckpoint(job.ID)
	if err != nil {
		t.Fatalf("Expected a final checkpoint: %v", err)
	}
	done, _ := jm.GetJob(job.ID)
	if checkpoint.Best.Fitness != done.BestFitness() {
		t.Errorf("Checkpoint fitness %v differs from job best %v", checkpoint.Best.Fitness, done.BestFitness())
	}
	if checkpoint.Evaluations != done.Evaluations {
		t.Errorf("Checkpoint evaluations %d differ from job %d", checkpoint.Evaluations, done.Evaluations)
	}

	reader, err := store.NewTraceReader(dir, job.ID)
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

func TestRunJob_ResumeKeepsIncumbent(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Problem: "sphere", Dimension: 2, Algorithm: opt.AlgorithmRandomSearch, Iterations: 2, PopSize: 2})
	jm.UpdateJob(job.ID, func(j *Job) {
		j.incumbent = &solution.Snapshot{Fitness: 0, Variables: map[string]any{"x": []any{0.0, 0.0}}}
		j.baseIterations, j.Iterations = 40, 40
		j.baseEvaluations, j.Evaluations = 400, 400
	})

	if err := runJob(context.Background(), jm, nil, "", job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}
	done, _ := jm.GetJob(job.ID)
	if done.BestFitness() != 0 {
		t.Errorf("Expected the optimal incumbent to survive, got %v", done.BestFitness())
	}
	if done.Iterations <= 40 || done.Evaluations <= 400 {
		t.Errorf("Counters should continue from the checkpoint: %d/%d", done.Iterations, done.Evaluations)
	}
}
