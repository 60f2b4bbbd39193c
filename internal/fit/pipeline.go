// Package fit runs a built-in problem through a registered engine. It is the
// pipeline shared by the CLI and the job server.
package fit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/metagen/internal/opt"
	"github.com/cwbudde/metagen/internal/problems"
	"github.com/cwbudde/metagen/internal/solution"
)

// Request describes one optimization run.
type Request struct {
	Problem   string
	Dimension int
	Algorithm string
	Settings  opt.Settings

	// Timeout bounds the run. Zero means no limit.
	Timeout time.Duration

	// Incumbent is a previously found best, for resumed runs. It is
	// re-evaluated and returned when the engine does not beat it.
	Incumbent *solution.Snapshot
}

// OptimizationResult holds the output of a run.
type OptimizationResult struct {
	Best           *solution.Solution
	InitialFitness float64
	Iterations     int
	Evaluations    int
	Elapsed        time.Duration

	// Resumed is set when the incumbent was kept over the engine's best.
	Resumed bool
}

// Optimize builds the problem domain and engine named by req and runs it.
// A run stopped by ctx or Timeout returns its partial result together with
// the context error.
func Optimize(ctx context.Context, req Request) (*OptimizationResult, error) {
	p, err := problems.Get(req.Problem)
	if err != nil {
		return nil, err
	}
	d, err := p.Build(req.Dimension)
	if err != nil {
		return nil, fmt.Errorf("build %s domain: %w", req.Problem, err)
	}

	var incumbent *solution.Solution
	if req.Incumbent != nil {
		incumbent, err = solution.Restore(d, nil, *req.Incumbent)
		if err != nil {
			return nil, fmt.Errorf("restore incumbent: %w", err)
		}
		if _, err := incumbent.Evaluate(p.Fitness); err != nil {
			return nil, fmt.Errorf("evaluate incumbent: %w", err)
		}
	}

	result := &OptimizationResult{InitialFitness: solution.Unevaluated}
	var mu sync.Mutex
	settings := req.Settings
	forward := settings.Observer
	settings.Observer = func(pr opt.Progress) {
		mu.Lock()
		if result.InitialFitness == solution.Unevaluated {
			result.InitialFitness = pr.BestFitness
		}
		result.Iterations = max(result.Iterations, pr.Iteration)
		result.Evaluations = max(result.Evaluations, pr.Evaluations)
		mu.Unlock()
		if forward != nil {
			forward(pr)
		}
	}

	engine, err := opt.Build(req.Algorithm, d, p.Fitness, settings)
	if err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	slog.Info("Starting optimization", "problem", req.Problem, "algorithm", engine.Name(), "dimension", req.Dimension)
	start := time.Now()
	best, runErr := engine.Run(ctx)
	result.Elapsed = time.Since(start)

	if best == nil && incumbent == nil {
		if runErr == nil {
			runErr = errors.New("engine returned no solution")
		}
		return nil, runErr
	}

	result.Best = best
	if incumbent != nil && (best == nil || incumbent.Less(best)) {
		result.Best = incumbent
		result.Resumed = true
	}
	if result.InitialFitness == solution.Unevaluated {
		result.InitialFitness = result.Best.Fitness()
	}

	slog.Info("Optimization complete",
		"problem", req.Problem,
		"algorithm", engine.Name(),
		"initial_fitness", result.InitialFitness,
		"best_fitness", result.Best.Fitness(),
		"evaluations", result.Evaluations,
		"elapsed", result.Elapsed,
	)
	return result, runErr
}
