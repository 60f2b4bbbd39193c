package server

import (
	"context"
	"sync"
	"testing"

	"github.com/cwbudde/metagen/internal/opt"
	"github.com/cwbudde/metagen/internal/solution"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{
		Problem:    "sphere",
		Algorithm:  "genetic",
		Iterations: 100,
		PopSize:    30,
		Seed:       42,
	})

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}
	if job.Config.Problem != "sphere" {
		t.Errorf("Config not set correctly")
	}
	if job.BestFitness() != solution.Unevaluated {
		t.Errorf("A new job has no best fitness, got %v", job.BestFitness())
	}
}

func TestJobManager_GetJobReturnsCopy(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Problem: "sphere"})

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Fatal("Job should exist")
	}
	retrieved.State = StateFailed

	again, _ := jm.GetJob(job.ID)
	if again.State != StatePending {
		t.Error("Mutating a returned job must not change the manager's state")
	}

	if _, exists := jm.GetJob("nonexistent"); exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()
	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	jm.CreateJob(JobConfig{Problem: "sphere"})
	jm.CreateJob(JobConfig{Problem: "mixed"})

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[1].StartTime.Before(jobs[0].StartTime) {
		t.Error("Jobs should be listed oldest first")
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Problem: "sphere"})

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Iterations = 50
	})
	if err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning || updated.Iterations != 50 {
		t.Errorf("Update not applied: %+v", updated)
	}
	if len(jm.GetRunningJobs()) != 1 {
		t.Error("Expected one running job")
	}

	if err := jm.UpdateJob("nonexistent", func(j *Job) {}); err == nil {
		t.Error("Should error for nonexistent job")
	}
}

func TestJobManager_CancelJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Problem: "sphere"})

	if jm.CancelJob(job.ID) {
		t.Error("A job without a context cannot be cancelled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	jm.UpdateJob(job.ID, func(j *Job) { j.cancel = cancel })
	if !jm.CancelJob(job.ID) {
		t.Fatal("Expected the pending job to be cancelled")
	}
	if ctx.Err() == nil {
		t.Error("Expected the job context to be cancelled")
	}

	jm.UpdateJob(job.ID, func(j *Job) { j.State = StateCompleted })
	if jm.CancelJob(job.ID) {
		t.Error("A finished job cannot be cancelled")
	}
	if jm.CancelJob("nonexistent") {
		t.Error("Unknown jobs cannot be cancelled")
	}
}

func TestApplyProgress(t *testing.T) {
	j := &Job{InitialFitness: solution.Unevaluated}

	report := func(it, ev int, f float64) int {
		return applyProgress(j, opt.Progress{
			Iteration:   it,
			Evaluations: ev,
			BestFitness: f,
			Best:        solution.Snapshot{Fitness: f, Variables: map[string]any{"a": it}},
		})
	}

	if d := report(1, 10, 5); d != 10 {
		t.Errorf("Expected 10 new evaluations, got %d", d)
	}
	if d := report(2, 20, 3); d != 10 {
		t.Errorf("Expected 10 new evaluations, got %d", d)
	}
	// A late report from a slower strain.
	if d := report(1, 15, 4); d != 0 {
		t.Errorf("Out of order reports add no evaluations, got %d", d)
	}

	if j.InitialFitness != 5 {
		t.Errorf("Expected initial fitness 5, got %v", j.InitialFitness)
	}
	if j.Best.Fitness != 3 || j.Iterations != 2 || j.Evaluations != 20 {
		t.Errorf("Unexpected job state: best %v, iterations %d, evaluations %d", j.Best.Fitness, j.Iterations, j.Evaluations)
	}

	resumed := &Job{InitialFitness: solution.Unevaluated, baseIterations: 100, baseEvaluations: 1000, Evaluations: 1000}
	if d := applyProgress(resumed, opt.Progress{Iteration: 1, Evaluations: 7, BestFitness: 1}); d != 7 {
		t.Errorf("Expected 7 new evaluations on a resumed job, got %d", d)
	}
	if resumed.Iterations != 101 || resumed.Evaluations != 1007 {
		t.Errorf("Resumed counters should continue: %d/%d", resumed.Iterations, resumed.Evaluations)
	}
}

func TestJobManager_ThreadSafety(t *testing.T) {
	jm := NewJobManager()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := jm.CreateJob(JobConfig{Problem: "sphere"})
			for k := 0; k < 10; k++ {
				jm.UpdateJob(job.ID, func(j *Job) {
					applyProgress(j, opt.Progress{Iteration: k, Evaluations: k * 10, BestFitness: float64(100 - k)})
				})
				jm.GetJob(job.ID)
				jm.ListJobs()
			}
		}()
	}
	wg.Wait()

	if len(jm.ListJobs()) != 10 {
		t.Errorf("Expected 10 jobs, got %d", len(jm.ListJobs()))
	}
}
