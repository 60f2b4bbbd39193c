package opt

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/rnd"
	"github.com/cwbudde/metagen/internal/solution"
)

// Registered algorithm names.
const (
	AlgorithmRandomSearch       = "random"
	AlgorithmSimulatedAnnealing = "annealing"
	AlgorithmGenetic            = "genetic"
	AlgorithmSteadyState        = "steady-state"
	AlgorithmCVOA               = "cvoa"
	AlgorithmMayfly             = "mayfly"
)

var (
	ErrAlgorithmExists   = errors.New("algorithm already registered")
	ErrAlgorithmNotFound = errors.New("algorithm not found")
)

// Settings is the algorithm independent configuration used by the CLI and
// the job server. Zero values keep the engine defaults.
type Settings struct {
	Iterations     int
	PopulationSize int
	MutationRate   float64
	Strains        int
	Seed           int64 // reseeds the shared source when non-zero
	Observer       Observer
	Convergence    ConvergenceConfig
}

// Builder constructs an engine from Settings.
type Builder func(d *domain.Domain, fitness solution.FitnessFunc, s Settings) (Optimizer, error)

var algorithms = struct {
	mu sync.RWMutex
	m  map[string]Builder
}{
	m: make(map[string]Builder),
}

// Register adds an algorithm under name.
func Register(name string, b Builder) error {
	if name == "" {
		return errors.New("algorithm name is required")
	}
	if b == nil {
		return errors.New("algorithm builder is required")
	}
	algorithms.mu.Lock()
	defer algorithms.mu.Unlock()
	if _, exists := algorithms.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlgorithmExists, name)
	}
	algorithms.m[name] = b
	return nil
}

// Build constructs the named algorithm. A non-zero s.Seed reseeds the shared
// random source first, so a run with one strain is reproducible.
func Build(name string, d *domain.Domain, fitness solution.FitnessFunc, s Settings) (Optimizer, error) {
	algorithms.mu.RLock()
	b, ok := algorithms.m[name]
	algorithms.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlgorithmNotFound, name)
	}
	if s.Seed != 0 {
		rnd.Seed(s.Seed)
	}
	return b(d, fitness, s)
}

// Algorithms returns the registered names in sorted order.
func Algorithms() []string {
	algorithms.mu.RLock()
	defer algorithms.mu.RUnlock()
	names := make([]string, 0, len(algorithms.m))
	for name := range algorithms.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func override(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func init() {
	builtins := map[string]Builder{
		AlgorithmRandomSearch: func(d *domain.Domain, f solution.FitnessFunc, s Settings) (Optimizer, error) {
			cfg := DefaultRandomSearchConfig()
			override(&cfg.Iterations, s.Iterations)
			override(&cfg.SearchSpaceSize, s.PopulationSize)
			cfg.Observer, cfg.Convergence = s.Observer, s.Convergence
			return NewRandomSearch(d, f, cfg)
		},
		AlgorithmSimulatedAnnealing: func(d *domain.Domain, f solution.FitnessFunc, s Settings) (Optimizer, error) {
			cfg := DefaultSimulatedAnnealingConfig()
			override(&cfg.Iterations, s.Iterations)
			cfg.Observer = s.Observer
			return NewSimulatedAnnealing(d, f, cfg)
		},
		AlgorithmGenetic: func(d *domain.Domain, f solution.FitnessFunc, s Settings) (Optimizer, error) {
			return NewGeneticAlgorithm(d, f, s.genetic())
		},
		AlgorithmSteadyState: func(d *domain.Domain, f solution.FitnessFunc, s Settings) (Optimizer, error) {
			return NewSteadyStateGA(d, f, s.genetic())
		},
		AlgorithmCVOA: func(d *domain.Domain, f solution.FitnessFunc, s Settings) (Optimizer, error) {
			cfg := DefaultCVOAConfig()
			override(&cfg.PandemicDuration, s.Iterations)
			override(&cfg.Strains, s.Strains)
			cfg.Observer = s.Observer
			return NewCVOA(d, f, cfg)
		},
		AlgorithmMayfly: func(d *domain.Domain, f solution.FitnessFunc, s Settings) (Optimizer, error) {
			cfg := DefaultMayflyConfig()
			override(&cfg.Iterations, s.Iterations)
			override(&cfg.PopulationSize, s.PopulationSize)
			cfg.Seed, cfg.Observer = s.Seed, s.Observer
			return NewMayfly(d, f, cfg)
		},
	}
	for name, b := range builtins {
		if err := Register(name, b); err != nil {
			panic(err)
		}
	}
}

func (s Settings) genetic() GeneticConfig {
	cfg := DefaultGeneticConfig()
	override(&cfg.Generations, s.Iterations)
	override(&cfg.PopulationSize, s.PopulationSize)
	if s.MutationRate > 0 {
		cfg.MutationRate = s.MutationRate
	}
	cfg.Observer, cfg.Convergence = s.Observer, s.Convergence
	return cfg
}
