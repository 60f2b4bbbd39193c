package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/metagen/internal/fit"
	"github.com/cwbudde/metagen/internal/opt"
	"github.com/cwbudde/metagen/internal/solution"
	"github.com/cwbudde/metagen/internal/store"
)

// progressInterval throttles SSE progress events to two per second.
const progressInterval = 500 * time.Millisecond

// runJob executes an optimization job in the background.
// If checkpointStore is not nil and the job has a checkpoint interval,
// periodic checkpoints are saved and the fitness trace is written to traceDir.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, traceDir string, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}
	jobsRunning.Inc()
	defer jobsRunning.Dec()

	slog.Info("Starting job", "job_id", jobID, "problem", job.Config.Problem, "algorithm", job.Config.Algorithm)

	checkpointing := checkpointStore != nil && job.Config.CheckpointInterval > 0

	var trace *store.TraceWriter
	if checkpointing && traceDir != "" {
		tw, err := store.NewTraceWriter(traceDir, jobID, false)
		if err != nil {
			slog.Warn("Trace disabled", "job_id", jobID, "error", err)
		} else {
			trace = tw
			defer trace.Close()
		}
	}

	observer := func(p opt.Progress) {
		var delta int
		jm.UpdateJob(jobID, func(j *Job) {
			delta = applyProgress(j, p)
		})
		if delta > 0 {
			evaluationsTotal.WithLabelValues(job.Config.Algorithm).Add(float64(delta))
		}
		bestFitness.WithLabelValues(jobID, job.Config.Problem).Set(p.BestFitness)
		if trace != nil {
			trace.Observe(p, false)
		}
	}

	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	checkpointDone := make(chan struct{})
	if checkpointing {
		go monitorCheckpoints(ctx, jm, checkpointStore, jobID, checkpointDone)
	}

	result, err := fit.Optimize(ctx, fit.Request{
		Problem:   job.Config.Problem,
		Dimension: job.Config.Dimension,
		Algorithm: job.Config.Algorithm,
		Settings: opt.Settings{
			Iterations:     job.Config.Iterations,
			PopulationSize: job.Config.PopSize,
			Seed:           job.Config.Seed,
			Observer:       observer,
		},
		Incumbent: job.incumbent,
	})

	close(progressDone)
	if checkpointing {
		close(checkpointDone)
	}

	if result != nil {
		jm.UpdateJob(jobID, func(j *Job) {
			snap := result.Best.Snapshot()
			if j.Best == nil || snap.Fitness <= j.Best.Fitness {
				j.Best = &snap
			}
			if j.InitialFitness == solution.Unevaluated {
				j.InitialFitness = result.InitialFitness
			}
			j.InitialFitness = max(j.InitialFitness, j.Best.Fitness)
			j.Iterations = max(j.Iterations, j.baseIterations+result.Iterations)
			j.Evaluations = max(j.Evaluations, j.baseEvaluations+result.Evaluations)
		})
	}

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		markJobCancelled(jm, jobID)
	case err != nil:
		markJobFailed(jm, jobID, err)
	default:
		markJobCompleted(jm, jobID)
	}

	// The final state is saved so that cancelled jobs can be resumed.
	if checkpointing && result != nil {
		if cpErr := saveCheckpoint(jm, checkpointStore, jobID); cpErr != nil {
			slog.Error("Failed to save final checkpoint", "job_id", jobID, "error", cpErr)
		}
	}

	final, _ := jm.GetJob(jobID)
	jobsFinished.WithLabelValues(job.Config.Algorithm, string(final.State)).Inc()
	if final.EndTime != nil {
		jobDuration.WithLabelValues(job.Config.Algorithm).Observe(final.EndTime.Sub(final.StartTime).Seconds())
	}
	jm.broadcaster.Broadcast(eventFor(final))

	slog.Info("Job finished",
		"job_id", jobID,
		"state", final.State,
		"initial_fitness", final.InitialFitness,
		"best_fitness", final.BestFitness(),
		"evaluations", final.Evaluations,
		"evaluations_per_second", evaluationsPerSecond(final),
	)
	return err
}

// applyProgress folds a progress report into the job and returns the number
// of new evaluations. Reports from concurrent strains may arrive out of
// order, so counters only grow and the best snapshot only improves.
func applyProgress(j *Job, p opt.Progress) int {
	if j.InitialFitness == solution.Unevaluated {
		j.InitialFitness = p.BestFitness
	}
	evaluations := j.baseEvaluations + p.Evaluations
	delta := evaluations - j.Evaluations
	j.Iterations = max(j.Iterations, j.baseIterations+p.Iteration)
	j.Evaluations = max(j.Evaluations, evaluations)
	if j.Best == nil || p.BestFitness < j.Best.Fitness {
		best := p.Best
		j.Best = &best
	}
	return max(delta, 0)
}

// monitorProgress periodically broadcasts progress events during optimization
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}
			jm.broadcaster.Broadcast(eventFor(job))
		}
	}
}

func markJobCompleted(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.EndTime = &endTime
	})
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}

// monitorCheckpoints periodically saves checkpoints during optimization
func monitorCheckpoints(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string, done chan struct{}) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	ticker := time.NewTicker(time.Duration(job.Config.CheckpointInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint saves a checkpoint for the given job
func saveCheckpoint(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.Best == nil {
		slog.Debug("Skipping checkpoint, no evaluated solution yet", "job_id", jobID)
		return nil
	}

	checkpoint := store.NewCheckpoint(jobID, *job.Best, job.InitialFitness, job.Iterations, job.Evaluations, job.Config)
	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		checkpointsSaved.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	checkpointsSaved.WithLabelValues("ok").Inc()

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"iteration", job.Iterations,
		"best_fitness", job.Best.Fitness,
	)
	return nil
}
