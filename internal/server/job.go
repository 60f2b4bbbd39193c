package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/metagen/internal/solution"
	"github.com/cwbudde/metagen/internal/store"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether the job has stopped.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig is an alias to avoid duplication with store.JobConfig
type JobConfig = store.JobConfig

// Job is an optimization job. Values returned by JobManager are copies.
type Job struct {
	ID             string             `json:"id"`
	State          JobState           `json:"state"`
	Config         JobConfig          `json:"config"`
	Best           *solution.Snapshot `json:"best,omitempty"`
	InitialFitness float64            `json:"initialFitness"`
	Iterations     int                `json:"iterations"`
	Evaluations    int                `json:"evaluations"`
	StartTime      time.Time          `json:"startTime"`
	EndTime        *time.Time         `json:"endTime,omitempty"`
	Error          string             `json:"error,omitempty"`

	// ResumedFrom is the job whose checkpoint seeded this one.
	ResumedFrom string `json:"resumedFrom,omitempty"`

	incumbent *solution.Snapshot
	cancel    context.CancelFunc

	// Counters carried over from the resumed checkpoint.
	baseIterations  int
	baseEvaluations int
}

// BestFitness returns the best fitness so far, or solution.Unevaluated.
func (j Job) BestFitness() float64 {
	if j.Best == nil {
		return solution.Unevaluated
	}
	return j.Best.Fitness
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a pending job with the given configuration.
func (jm *JobManager) CreateJob(config JobConfig) Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:             uuid.New().String(),
		State:          StatePending,
		Config:         config,
		InitialFitness: solution.Unevaluated,
		StartTime:      time.Now(),
	}
	jm.jobs[job.ID] = job
	jobsCreated.WithLabelValues(config.Algorithm).Inc()
	return *job
}

// GetJob returns a copy of a job by ID.
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

// ListJobs returns copies of all jobs, oldest first.
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].StartTime.Before(jobs[k].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	updateFn(job)
	return nil
}

// CancelJob stops a pending or running job. It returns false for unknown
// jobs and jobs that already finished.
func (jm *JobManager) CancelJob(id string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists || job.State.Terminal() || job.cancel == nil {
		return false
	}
	job.cancel()
	return true
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	running := make([]Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			running = append(running, *job)
		}
	}
	return running
}
