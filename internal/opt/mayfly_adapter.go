package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/rnd"
	"github.com/cwbudde/metagen/internal/solution"
)

// ErrUnsupportedDomain is returned when a domain cannot be encoded as a
// real vector.
var ErrUnsupportedDomain = errors.New("domain cannot be encoded as a vector")

// MayflyConfig configures the Mayfly adapter.
type MayflyConfig struct {
	Iterations     int
	PopulationSize int

	// Seed drives the library's random source. Zero derives one from rnd.
	Seed      int64
	Connector *solution.Connector
	Observer  Observer
}

// DefaultMayflyConfig returns 100 iterations over a population of 20, the
// smallest population the library accepts.
func DefaultMayflyConfig() MayflyConfig {
	return MayflyConfig{Iterations: 100, PopulationSize: 20}
}

// MayflyAdapter runs the external Mayfly library on domains made of basic
// variables and static structures of basic elements. Each leaf becomes one
// dimension of the normalized [0, 1] search vector.
type MayflyAdapter struct {
	domain  *domain.Domain
	fitness solution.FitnessFunc
	cfg     MayflyConfig
	dims    []dimension
}

// dimension locates one leaf: a top-level variable and, for structures, the
// element index (-1 for basic variables).
type dimension struct {
	name  string
	index int
	def   domain.Definition
}

// NewMayfly validates cfg, checks that d can be encoded and builds the adapter.
func NewMayfly(d *domain.Domain, fitness solution.FitnessFunc, cfg MayflyConfig) (*MayflyAdapter, error) {
	if err := checkCommon(d, fitness); err != nil {
		return nil, err
	}
	if err := positive("iterations", cfg.Iterations); err != nil {
		return nil, err
	}
	if cfg.PopulationSize < 20 {
		return nil, fmt.Errorf("%w: mayfly needs a population of at least 20, got %d", ErrInvalidConfig, cfg.PopulationSize)
	}
	dims, err := encode(d)
	if err != nil {
		return nil, err
	}
	return &MayflyAdapter{domain: d, fitness: fitness, cfg: cfg, dims: dims}, nil
}

func encode(d *domain.Domain) ([]dimension, error) {
	var dims []dimension
	for _, name := range d.Variables() {
		def, _ := d.Definition(name)
		switch {
		case domain.IsBasic(def):
			dims = append(dims, dimension{name: name, index: -1, def: def})
		case def.Kind() == domain.KindStaticStructure:
			st := def.(domain.Structure)
			elem := st.ElementDefinition()
			if elem == nil || !domain.IsBasic(elem) {
				return nil, fmt.Errorf("%w: structure %s has composite elements", ErrUnsupportedDomain, name)
			}
			length, _ := st.LengthBounds()
			for i := 0; i < length; i++ {
				dims = append(dims, dimension{name: name, index: i, def: elem})
			}
		default:
			return nil, fmt.Errorf("%w: %s is a %s", ErrUnsupportedDomain, name, def.Kind())
		}
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: no variables", ErrUnsupportedDomain)
	}
	return dims, nil
}

func (m *MayflyAdapter) Name() string { return AlgorithmMayfly }

// Dimensions returns the length of the search vector.
func (m *MayflyAdapter) Dimensions() int { return len(m.dims) }

// Run executes the Mayfly optimization using the external library. The
// library has no cancellation hook, so after ctx is done every remaining
// objective call returns immediately with the worst cost.
func (m *MayflyAdapter) Run(ctx context.Context) (*solution.Solution, error) {
	work, err := solution.New(m.domain, m.cfg.Connector)
	if err != nil {
		return nil, err
	}

	var (
		best        *solution.Solution
		firstErr    error
		evaluations int
	)
	objective := func(pos []float64) float64 {
		if firstErr != nil {
			return math.MaxFloat64
		}
		if err := ctx.Err(); err != nil {
			firstErr = err
			return math.MaxFloat64
		}
		if err := m.decode(work, pos); err != nil {
			firstErr = err
			return math.MaxFloat64
		}
		evaluations++
		f, err := work.Evaluate(m.fitness)
		if err != nil {
			firstErr = err
			return math.MaxFloat64
		}
		if best == nil || work.Less(best) {
			best = work.Clone()
		}
		if evaluations%m.cfg.PopulationSize == 0 {
			m.cfg.Observer.report(AlgorithmMayfly, evaluations/m.cfg.PopulationSize, evaluations, best)
		}
		return f
	}

	seed := m.cfg.Seed
	if seed == 0 {
		seed = rnd.New().Int63()
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = objective
	config.ProblemSize = len(m.dims)
	config.MaxIterations = m.cfg.Iterations
	config.NPop = m.cfg.PopulationSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(seed))

	slog.Info("Starting mayfly",
		"dimensions", len(m.dims),
		"iterations", m.cfg.Iterations,
		"population_size", m.cfg.PopulationSize,
		"seed", seed,
	)

	result, err := mayfly.Optimize(config)
	if err != nil {
		return best, fmt.Errorf("mayfly: %w", err)
	}
	if firstErr != nil {
		return best, firstErr
	}
	if best == nil {
		return nil, errors.New("mayfly: no evaluation performed")
	}

	slog.Info("Mayfly complete",
		"best_fitness", best.Fitness(),
		"library_cost", result.GlobalBest.Cost,
		"evaluations", evaluations,
	)
	return best, nil
}

// decode writes a normalized position into s.
func (m *MayflyAdapter) decode(s *solution.Solution, pos []float64) error {
	if len(pos) != len(m.dims) {
		return fmt.Errorf("mayfly: position has %d dimensions, want %d", len(pos), len(m.dims))
	}
	for i, dim := range m.dims {
		v := leafValue(dim.def, pos[i])
		if dim.index < 0 {
			if err := s.Set(dim.name, v); err != nil {
				return err
			}
			continue
		}
		n, _ := s.Node(dim.name)
		sn, ok := n.(solution.StructureNode)
		if !ok {
			return fmt.Errorf("%w: %s is not a structure node", ErrUnsupportedDomain, dim.name)
		}
		if err := sn.SetAt(dim.index, v); err != nil {
			return err
		}
	}
	return nil
}

// leafValue maps x in [0, 1] onto the values of a basic definition.
func leafValue(def domain.Definition, x float64) any {
	x = math.Min(1, math.Max(0, x))
	switch d := def.(type) {
	case *domain.IntegerDefinition:
		return d.Min + bucket(x, d.Grid())*d.Step
	case *domain.RealDefinition:
		return math.Min(d.Max, d.Min+x*(d.Max-d.Min))
	case *domain.CategoricalDefinition:
		return d.Values[bucket(x, len(d.Values))]
	}
	return nil
}

func bucket(x float64, n int) int {
	return min(n-1, int(x*float64(n)))
}
