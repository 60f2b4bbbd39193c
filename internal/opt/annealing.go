package opt

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/rnd"
	"github.com/cwbudde/metagen/internal/solution"
)

// SimulatedAnnealingConfig configures SimulatedAnnealing.
type SimulatedAnnealingConfig struct {
	Iterations         int
	AlterationLimit    float64
	InitialTemperature float64
	CoolingRate        float64
	Connector          *solution.Connector
	Observer           Observer
}

// DefaultSimulatedAnnealingConfig mirrors the usual textbook settings.
func DefaultSimulatedAnnealingConfig() SimulatedAnnealingConfig {
	return SimulatedAnnealingConfig{
		Iterations:         50,
		AlterationLimit:    0.1,
		InitialTemperature: 50,
		CoolingRate:        0.99,
	}
}

// AnnealingStats counts neighbor decisions of the last run.
type AnnealingStats struct {
	AcceptedBetter int
	AcceptedWorse  int
	Rejected       int
}

// SimulatedAnnealing walks a single solution, accepting worse neighbors with
// a probability that decays with the temperature.
type SimulatedAnnealing struct {
	domain  *domain.Domain
	fitness solution.FitnessFunc
	cfg     SimulatedAnnealingConfig
	stats   AnnealingStats
}

// NewSimulatedAnnealing validates cfg and builds the engine.
func NewSimulatedAnnealing(d *domain.Domain, fitness solution.FitnessFunc, cfg SimulatedAnnealingConfig) (*SimulatedAnnealing, error) {
	if err := checkCommon(d, fitness); err != nil {
		return nil, err
	}
	if err := positive("iterations", cfg.Iterations); err != nil {
		return nil, err
	}
	if cfg.InitialTemperature <= 0 {
		return nil, fmt.Errorf("%w: initial temperature must be positive, got %g", ErrInvalidConfig, cfg.InitialTemperature)
	}
	if cfg.CoolingRate <= 0 || cfg.CoolingRate > 1 {
		return nil, fmt.Errorf("%w: cooling rate must be in (0, 1], got %g", ErrInvalidConfig, cfg.CoolingRate)
	}
	if cfg.AlterationLimit < 0 {
		return nil, fmt.Errorf("%w: alteration limit cannot be negative", ErrInvalidConfig)
	}
	return &SimulatedAnnealing{domain: d, fitness: fitness, cfg: cfg}, nil
}

func (a *SimulatedAnnealing) Name() string { return AlgorithmSimulatedAnnealing }

// Stats returns the decision counters of the last run.
func (a *SimulatedAnnealing) Stats() AnnealingStats { return a.stats }

func (a *SimulatedAnnealing) Run(ctx context.Context) (*solution.Solution, error) {
	a.stats = AnnealingStats{}
	ev := &evaluator{fn: a.fitness}

	current, err := solution.New(a.domain, a.cfg.Connector)
	if err != nil {
		return nil, err
	}
	if err := ev.evaluate(current); err != nil {
		return nil, err
	}
	best := current.Clone()
	temperature := a.cfg.InitialTemperature

	slog.Info("Starting simulated annealing",
		"iterations", a.cfg.Iterations,
		"initial_temperature", temperature,
		"cooling_rate", a.cfg.CoolingRate,
	)

	for it := 1; it <= a.cfg.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return best, err
		}

		neighbor := current.Clone()
		neighbor.Mutate(a.cfg.AlterationLimit)
		if err := ev.evaluate(neighbor); err != nil {
			return best, err
		}

		switch {
		case neighbor.Less(current):
			current = neighbor
			a.stats.AcceptedBetter++
		case rnd.Float64() < math.Exp((current.Fitness()-neighbor.Fitness())/temperature):
			current = neighbor
			a.stats.AcceptedWorse++
		default:
			a.stats.Rejected++
		}
		if current.Less(best) {
			best = current.Clone()
		}
		temperature *= a.cfg.CoolingRate

		slog.Debug("Annealing iteration",
			"algorithm", AlgorithmSimulatedAnnealing,
			"iteration", it,
			"temperature", temperature,
			"current_fitness", current.Fitness(),
			"best_fitness", best.Fitness(),
		)
		a.cfg.Observer.report(AlgorithmSimulatedAnnealing, it, ev.count, best)
	}

	slog.Info("Simulated annealing complete",
		"best_fitness", best.Fitness(),
		"accepted_better", a.stats.AcceptedBetter,
		"accepted_worse", a.stats.AcceptedWorse,
		"rejected", a.stats.Rejected,
	)
	return best, nil
}
