package opt

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines when an engine stops early for lack of progress.
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool

	// Patience is the number of iterations without significant improvement
	// before stopping.
	Patience int

	// Threshold is the minimum relative improvement of the best fitness that
	// counts as progress, e.g. 0.001 for 0.1%.
	Threshold float64
}

// DefaultConvergenceConfig returns detection with a patience of 5 iterations
// and a 0.1% threshold.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  5,
		Threshold: 0.001,
	}
}

// DisabledConvergenceConfig never reports convergence.
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{Enabled: false}
}

// ConvergenceTracker follows the best fitness of a run and detects stagnation.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	best            float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a tracker for config.
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records the best fitness after an iteration and reports whether
// the run has converged.
func (c *ConvergenceTracker) Update(fitness float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.history = append(c.history, fitness)
	if fitness < c.best {
		c.best = fitness
	}
	if len(c.history) == 1 {
		c.lastSignificant = fitness
		return false
	}

	// Fitness may be zero or negative; scale by magnitude with a floor of 1.
	scale := math.Max(math.Abs(c.lastSignificant), 1)
	improvement := (c.lastSignificant - fitness) / scale

	if improvement >= c.config.Threshold && improvement > 0 {
		c.lastSignificant = fitness
		c.staleCount = 0
		slog.Debug("Fitness improvement detected",
			"fitness", fitness,
			"relative_improvement", improvement,
		)
		return false
	}

	c.staleCount++
	slog.Debug("No significant fitness improvement",
		"fitness", fitness,
		"last_significant", c.lastSignificant,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)
	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"best_fitness", c.best,
		)
		return true
	}
	return false
}

// Best returns the best fitness seen so far.
func (c *ConvergenceTracker) Best() float64 {
	return c.best
}

// History returns a copy of the recorded fitness values.
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the number of consecutive updates without progress.
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}
