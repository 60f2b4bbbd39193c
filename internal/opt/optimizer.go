// Package opt contains the search engines. Every engine explores a
// domain.Domain, scores candidates with a solution.FitnessFunc (lower is
// better) and returns the best solution found under its budget.
package opt

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/solution"
)

// ErrInvalidConfig is wrapped by every engine constructor validation error.
var ErrInvalidConfig = errors.New("invalid optimizer configuration")

// Optimizer defines a search engine.
type Optimizer interface {
	// Name returns the algorithm identifier used by the registry.
	Name() string

	// Run executes the search and returns the best evaluated solution.
	// On cancellation the best solution found so far is returned together
	// with ctx.Err().
	Run(ctx context.Context) (*solution.Solution, error)
}

// Progress is reported to an Observer after every iteration.
type Progress struct {
	Algorithm   string
	Iteration   int
	Evaluations int
	BestFitness float64
	Best        solution.Snapshot
}

// Observer receives progress reports. It is called from the engine goroutine
// (from the strain goroutines for CVOA) and must not block for long.
type Observer func(Progress)

func (o Observer) report(algorithm string, iteration, evaluations int, best *solution.Solution) {
	if o == nil || best == nil {
		return
	}
	o(Progress{
		Algorithm:   algorithm,
		Iteration:   iteration,
		Evaluations: evaluations,
		BestFitness: best.Fitness(),
		Best:        best.Snapshot(),
	})
}

// evaluator counts fitness evaluations of a single-threaded engine.
type evaluator struct {
	fn    solution.FitnessFunc
	count int
}

func (e *evaluator) evaluate(s *solution.Solution) error {
	e.count++
	_, err := s.Evaluate(e.fn)
	return err
}

func (e *evaluator) evaluateAll(p Population) error {
	for _, s := range p {
		if err := e.evaluate(s); err != nil {
			return err
		}
	}
	return nil
}

func checkCommon(d *domain.Domain, fitness solution.FitnessFunc) error {
	if d == nil {
		return fmt.Errorf("%w: domain is nil", ErrInvalidConfig)
	}
	if fitness == nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, solution.ErrNilFitness)
	}
	return nil
}

func positive(name string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, name, v)
	}
	return nil
}

func probability(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: %s must be in [0, 1], got %g", ErrInvalidConfig, name, v)
	}
	return nil
}

// newPopulation builds n independently initialized solutions.
func newPopulation(d *domain.Domain, c *solution.Connector, n int) (Population, error) {
	p := make(Population, 0, n)
	for i := 0; i < n; i++ {
		s, err := solution.New(d, c)
		if err != nil {
			return nil, err
		}
		p = append(p, s)
	}
	return p, nil
}
