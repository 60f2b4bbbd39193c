package opt

import (
	"context"
	"log/slog"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/solution"
)

// RandomSearchConfig configures RandomSearch.
type RandomSearchConfig struct {
	SearchSpaceSize int
	Iterations      int
	Connector       *solution.Connector
	Observer        Observer
	Convergence     ConvergenceConfig
}

// DefaultRandomSearchConfig returns a pool of 30 solutions mutated for 20 iterations.
func DefaultRandomSearchConfig() RandomSearchConfig {
	return RandomSearchConfig{
		SearchSpaceSize: 30,
		Iterations:      20,
		Convergence:     DisabledConvergenceConfig(),
	}
}

// RandomSearch mutates a pool of independent solutions and keeps a copy of
// the best one ever evaluated.
type RandomSearch struct {
	domain  *domain.Domain
	fitness solution.FitnessFunc
	cfg     RandomSearchConfig
}

// NewRandomSearch validates cfg and builds the engine.
func NewRandomSearch(d *domain.Domain, fitness solution.FitnessFunc, cfg RandomSearchConfig) (*RandomSearch, error) {
	if err := checkCommon(d, fitness); err != nil {
		return nil, err
	}
	if err := positive("search space size", cfg.SearchSpaceSize); err != nil {
		return nil, err
	}
	if err := positive("iterations", cfg.Iterations); err != nil {
		return nil, err
	}
	return &RandomSearch{domain: d, fitness: fitness, cfg: cfg}, nil
}

func (r *RandomSearch) Name() string { return AlgorithmRandomSearch }

func (r *RandomSearch) Run(ctx context.Context) (*solution.Solution, error) {
	ev := &evaluator{fn: r.fitness}
	pool, err := newPopulation(r.domain, r.cfg.Connector, r.cfg.SearchSpaceSize)
	if err != nil {
		return nil, err
	}
	if err := ev.evaluateAll(pool); err != nil {
		return nil, err
	}
	best := pool.Best().Clone()

	slog.Info("Starting random search",
		"search_space_size", r.cfg.SearchSpaceSize,
		"iterations", r.cfg.Iterations,
		"initial_fitness", best.Fitness(),
	)

	tracker := NewConvergenceTracker(r.cfg.Convergence)
	for it := 1; it <= r.cfg.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return best, err
		}
		for _, s := range pool {
			s.Mutate(0)
			if err := ev.evaluate(s); err != nil {
				return best, err
			}
			if s.Less(best) {
				best = s.Clone()
			}
		}

		slog.Debug("Random search iteration",
			"algorithm", AlgorithmRandomSearch,
			"iteration", it,
			"best_fitness", best.Fitness(),
		)
		r.cfg.Observer.report(AlgorithmRandomSearch, it, ev.count, best)
		if tracker.Update(best.Fitness()) {
			break
		}
	}

	slog.Info("Random search complete", "best_fitness", best.Fitness(), "evaluations", ev.count)
	return best, nil
}
