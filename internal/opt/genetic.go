package opt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/rnd"
	"github.com/cwbudde/metagen/internal/solution"
)

// GeneticConfig configures GeneticAlgorithm and SteadyStateGA. Generations
// is the number of generations for the GA and the number of iterations for
// the steady-state variant. A nil Connector means solution.GAConnector().
type GeneticConfig struct {
	PopulationSize int
	MutationRate   float64
	Generations    int
	Connector      *solution.Connector
	Observer       Observer
	Convergence    ConvergenceConfig
}

// DefaultGeneticConfig returns a population of 10 evolved for 20 generations.
func DefaultGeneticConfig() GeneticConfig {
	return GeneticConfig{
		PopulationSize: 10,
		MutationRate:   0.1,
		Generations:    20,
		Convergence:    DisabledConvergenceConfig(),
	}
}

func (c GeneticConfig) validate() error {
	if err := positive("generations", c.Generations); err != nil {
		return err
	}
	if c.PopulationSize < 2 {
		return fmt.Errorf("%w: population size must be at least 2, got %d", ErrInvalidConfig, c.PopulationSize)
	}
	return probability("mutation rate", c.MutationRate)
}

func (c GeneticConfig) connector() *solution.Connector {
	if c.Connector != nil {
		return c.Connector
	}
	return solution.GAConnector()
}

// breeder holds the operators shared by both genetic engines.
type breeder struct {
	rate float64
	ev   *evaluator
}

// offspring crosses the two best members of a sorted population, mutates
// each child with the configured probability and evaluates both.
func (b *breeder) offspring(pop Population) (*solution.Solution, *solution.Solution, error) {
	c1, c2, err := pop[0].Crossover(pop[1])
	if err != nil {
		return nil, nil, err
	}
	for _, c := range []*solution.Solution{c1, c2} {
		if rnd.Float64() < b.rate {
			c.Mutate(0)
		}
		if err := b.ev.evaluate(c); err != nil {
			return nil, nil, err
		}
	}
	return c1, c2, nil
}

func (b *breeder) seed(d *domain.Domain, c *solution.Connector, n int) (Population, error) {
	pop, err := newPopulation(d, c, n)
	if err != nil {
		return nil, err
	}
	if err := b.ev.evaluateAll(pop); err != nil {
		return nil, err
	}
	pop.Sort()
	return pop, nil
}

// GeneticAlgorithm replaces the whole population each generation with
// offspring of the two fittest members.
type GeneticAlgorithm struct {
	domain  *domain.Domain
	fitness solution.FitnessFunc
	cfg     GeneticConfig
}

// NewGeneticAlgorithm validates cfg and builds the engine.
func NewGeneticAlgorithm(d *domain.Domain, fitness solution.FitnessFunc, cfg GeneticConfig) (*GeneticAlgorithm, error) {
	if err := checkCommon(d, fitness); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &GeneticAlgorithm{domain: d, fitness: fitness, cfg: cfg}, nil
}

func (g *GeneticAlgorithm) Name() string { return AlgorithmGenetic }

func (g *GeneticAlgorithm) Run(ctx context.Context) (*solution.Solution, error) {
	b := &breeder{rate: g.cfg.MutationRate, ev: &evaluator{fn: g.fitness}}
	pop, err := b.seed(g.domain, g.cfg.connector(), g.cfg.PopulationSize)
	if err != nil {
		return nil, err
	}

	slog.Info("Starting genetic algorithm",
		"population_size", g.cfg.PopulationSize,
		"generations", g.cfg.Generations,
		"mutation_rate", g.cfg.MutationRate,
	)

	tracker := NewConvergenceTracker(g.cfg.Convergence)
	for gen := 1; gen <= g.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return pop[0], err
		}

		next := make(Population, 0, g.cfg.PopulationSize)
		for len(next) < g.cfg.PopulationSize {
			c1, c2, err := b.offspring(pop)
			if err != nil {
				return pop[0], err
			}
			next = append(next, c1)
			if len(next) < g.cfg.PopulationSize {
				next = append(next, c2)
			}
		}
		next.Sort()
		pop = next

		slog.Debug("Generation complete",
			"algorithm", AlgorithmGenetic,
			"iteration", gen,
			"best_fitness", pop[0].Fitness(),
			"worst_fitness", pop[len(pop)-1].Fitness(),
		)
		g.cfg.Observer.report(AlgorithmGenetic, gen, b.ev.count, pop[0])
		if tracker.Update(pop[0].Fitness()) {
			break
		}
	}

	slog.Info("Genetic algorithm complete", "best_fitness", pop[0].Fitness(), "evaluations", b.ev.count)
	return pop[0], nil
}

// SteadyStateGA keeps a sorted population in which each child replaces the
// worst member only when strictly better.
type SteadyStateGA struct {
	domain    *domain.Domain
	fitness   solution.FitnessFunc
	cfg       GeneticConfig
	discarded int
}

// NewSteadyStateGA validates cfg and builds the engine.
func NewSteadyStateGA(d *domain.Domain, fitness solution.FitnessFunc, cfg GeneticConfig) (*SteadyStateGA, error) {
	if err := checkCommon(d, fitness); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SteadyStateGA{domain: d, fitness: fitness, cfg: cfg}, nil
}

func (g *SteadyStateGA) Name() string { return AlgorithmSteadyState }

// Discarded returns the number of iterations of the last run whose children
// had equal fitness and were dropped.
func (g *SteadyStateGA) Discarded() int { return g.discarded }

func (g *SteadyStateGA) Run(ctx context.Context) (*solution.Solution, error) {
	g.discarded = 0
	b := &breeder{rate: g.cfg.MutationRate, ev: &evaluator{fn: g.fitness}}
	pop, err := b.seed(g.domain, g.cfg.connector(), g.cfg.PopulationSize)
	if err != nil {
		return nil, err
	}

	slog.Info("Starting steady-state genetic algorithm",
		"population_size", g.cfg.PopulationSize,
		"iterations", g.cfg.Generations,
	)

	tracker := NewConvergenceTracker(g.cfg.Convergence)
	for it := 1; it <= g.cfg.Generations; it++ {
		if err := ctx.Err(); err != nil {
			return pop[0], err
		}

		c1, c2, err := b.offspring(pop)
		if err != nil {
			return pop[0], err
		}
		if c1.Equal(c2) {
			g.discarded++
		} else {
			pop.ReplaceWorst(c1)
			pop.ReplaceWorst(c2)
		}

		slog.Debug("Steady-state iteration",
			"algorithm", AlgorithmSteadyState,
			"iteration", it,
			"best_fitness", pop[0].Fitness(),
		)
		g.cfg.Observer.report(AlgorithmSteadyState, it, b.ev.count, pop[0])
		if tracker.Update(pop[0].Fitness()) {
			break
		}
	}

	slog.Info("Steady-state genetic algorithm complete",
		"best_fitness", pop[0].Fitness(),
		"discarded", g.discarded,
	)
	return pop[0], nil
}
