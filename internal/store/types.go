package store

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/metagen/internal/solution"
)

// JobConfig holds the configuration of an optimization job (checkpoint copy).
// This avoids import cycles with the server package.
type JobConfig struct {
	Problem            string `json:"problem"`
	Algorithm          string `json:"algorithm"`
	Dimension          int    `json:"dimension,omitempty"`
	Iterations         int    `json:"iterations"`
	PopSize            int    `json:"popSize,omitempty"`
	Seed               int64  `json:"seed"`
	CheckpointInterval int    `json:"checkpointInterval,omitempty"` // Checkpoint every N seconds (0 = disabled)
}

// Checkpoint is a saved optimization state that can be resumed later.
//
// Only the best solution is kept. Engine state (populations, strain sets,
// temperature) is rebuilt on resume and the restored best stays the
// incumbent, so the best fitness of a resumed job never gets worse.
type Checkpoint struct {
	JobID string `json:"jobId"`

	// Best is the best solution found so far.
	Best solution.Snapshot `json:"best"`

	// InitialFitness is the best fitness of the first report, for tracking improvement.
	InitialFitness float64 `json:"initialFitness"`

	Iteration   int       `json:"iteration"`
	Evaluations int       `json:"evaluations"`
	Timestamp   time.Time `json:"timestamp"`

	// Config is compared against the resume request by IsCompatible.
	Config JobConfig `json:"config"`
}

// CheckpointInfo is checkpoint metadata without the solution values.
type CheckpointInfo struct {
	JobID       string    `json:"jobId"`
	BestFitness float64   `json:"bestFitness"`
	Iteration   int       `json:"iteration"`
	Evaluations int       `json:"evaluations"`
	Timestamp   time.Time `json:"timestamp"`
	Problem     string    `json:"problem"`
	Algorithm   string    `json:"algorithm"`
}

// NewCheckpoint creates a checkpoint from job state.
func NewCheckpoint(jobID string, best solution.Snapshot, initialFitness float64, iteration, evaluations int, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:          jobID,
		Best:           best,
		InitialFitness: initialFitness,
		Iteration:      iteration,
		Evaluations:    evaluations,
		Timestamp:      time.Now(),
		Config:         config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:       c.JobID,
		BestFitness: c.Best.Fitness,
		Iteration:   c.Iteration,
		Evaluations: c.Evaluations,
		Timestamp:   c.Timestamp,
		Problem:     c.Config.Problem,
		Algorithm:   c.Config.Algorithm,
	}
}

// Validate checks if the checkpoint has valid data.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.Best.Variables) == 0 {
		return &ValidationError{Field: "Best.Variables", Reason: "cannot be empty"}
	}
	if !finite(c.Best.Fitness) || c.Best.Fitness == solution.Unevaluated {
		return &ValidationError{Field: "Best.Fitness", Reason: "must be an evaluated finite value"}
	}
	if !finite(c.InitialFitness) {
		return &ValidationError{Field: "InitialFitness", Reason: "must be finite"}
	}
	if c.Best.Fitness > c.InitialFitness {
		return &ValidationError{
			Field:  "Best.Fitness",
			Reason: fmt.Sprintf("worse than initial fitness %g", c.InitialFitness),
		}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "Iteration", Reason: "cannot be negative"}
	}
	if c.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Problem == "" {
		return &ValidationError{Field: "Config.Problem", Reason: "cannot be empty"}
	}
	if c.Config.Algorithm == "" {
		return &ValidationError{Field: "Config.Algorithm", Reason: "cannot be empty"}
	}
	if c.Config.Iterations <= 0 {
		return &ValidationError{Field: "Config.Iterations", Reason: "must be positive"}
	}
	if c.Config.Dimension < 0 || c.Config.PopSize < 0 {
		return &ValidationError{Field: "Config", Reason: "dimension and popSize cannot be negative"}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given config.
// The problem and its dimension must match; the algorithm may change.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.Problem != config.Problem {
		return &CompatibilityError{
			Field:    "Problem",
			Expected: c.Config.Problem,
			Actual:   config.Problem,
		}
	}
	if c.Config.Dimension != config.Dimension {
		return &CompatibilityError{
			Field:    "Dimension",
			Expected: fmt.Sprintf("%d", c.Config.Dimension),
			Actual:   fmt.Sprintf("%d", config.Dimension),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
