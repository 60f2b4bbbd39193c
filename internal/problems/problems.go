// Package problems holds the built-in benchmark problems used by the CLI and
// the job server. Each problem builds a fresh domain per run because a domain
// is sealed by the first solution built from it.
package problems

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/solution"
)

// DefaultDimension is used by vector problems when no dimension is given.
const DefaultDimension = 5

var ErrUnknownProblem = errors.New("unknown problem")

// Problem pairs a domain builder with its fitness function.
type Problem struct {
	Name        string
	Description string

	// Build returns a new domain. Vector problems use dim; the others ignore it.
	Build   func(dim int) (*domain.Domain, error)
	Fitness solution.FitnessFunc
}

var registry = map[string]Problem{}

// Register adds a problem to the registry, replacing one with the same name.
func Register(p Problem) {
	registry[p.Name] = p
}

// Get returns a problem by name.
func Get(name string) (Problem, error) {
	p, ok := registry[name]
	if !ok {
		return Problem{}, fmt.Errorf("%w: %s", ErrUnknownProblem, name)
	}
	return p, nil
}

// Names returns all registered problem names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(Problem{
		Name:        "sphere",
		Description: "sum of squares over a real vector in [-5.12, 5.12], minimum 0 at the origin",
		Build:       vector,
		Fitness:     sphere,
	})
	Register(Problem{
		Name:        "rastrigin",
		Description: "multimodal Rastrigin function over a real vector in [-5.12, 5.12], minimum 0 at the origin",
		Build:       vector,
		Fitness:     rastrigin,
	})
	Register(Problem{
		Name:        "mixed",
		Description: "integer, real, categorical and group variables with a known optimum of 0",
		Build:       mixed,
		Fitness:     mixedFitness,
	})
	Register(Problem{
		Name:        "layers",
		Description: "network-like layout: dynamic structures of categoricals and of layer groups",
		Build:       layers,
		Fitness:     layersFitness,
	})
}

func vector(dim int) (*domain.Domain, error) {
	if dim <= 0 {
		dim = DefaultDimension
	}
	d := domain.New()
	if err := d.DefineStaticStructure("x", dim); err != nil {
		return nil, err
	}
	if err := d.SetStructureToReal("x", -5.12, 5.12); err != nil {
		return nil, err
	}
	return d, nil
}

func coordinates(s *solution.Solution) []float64 {
	values := s.Variables()["x"].([]any)
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.(float64)
	}
	return out
}

func sphere(s *solution.Solution) (float64, error) {
	var sum float64
	for _, x := range coordinates(s) {
		sum += x * x
	}
	return sum, nil
}

func rastrigin(s *solution.Solution) (float64, error) {
	x := coordinates(s)
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum, nil
}

func mixed(int) (*domain.Domain, error) {
	d := domain.New()
	steps := []error{
		d.DefineInteger("I", 0, 100, 5),
		d.DefineReal("R", 0, 1),
		d.DefineCategorical("C", []string{"C1", "C2", "C3"}),
		d.DefineGroup("params"),
		d.DefineRealInGroup("params", "alpha", 0, 1),
		d.DefineIntegerInGroup("params", "beta", 1, 10, 1),
		d.DefineGroupVariable("P", "params"),
	}
	if err := errors.Join(steps...); err != nil {
		return nil, err
	}
	return d, nil
}

func mixedFitness(s *solution.Solution) (float64, error) {
	p := s.Variables()["P"].(map[string]any)
	f := math.Abs(float64(s.Get("I").(int)-50)) / 10
	f += 10 * math.Pow(s.Get("R").(float64)-0.3, 2)
	if s.Get("C") != "C2" {
		f++
	}
	f += math.Abs(p["alpha"].(float64) - 0.5)
	f += math.Abs(float64(p["beta"].(int) - 3))
	return f, nil
}

func layers(int) (*domain.Domain, error) {
	d := domain.New()
	steps := []error{
		d.DefineInteger("I", 0, 100, 1),
		d.DefineDynamicStructure("VC", 2, 8),
		d.SetStructureToCategorical("VC", []string{"V1", "V2", "V3"}),
		d.DefineGroup("layer"),
		d.DefineIntegerInGroup("layer", "el1", 10, 20, 1),
		d.DefineRealInGroup("layer", "el2", 0.1, 0.5),
		d.DefineCategoricalInGroup("layer", "el3", []string{"1", "2", "3"}),
		d.DefineDynamicStructure("VL", 2, 4),
		d.SetStructureToVariable("VL", "layer"),
	}
	if err := errors.Join(steps...); err != nil {
		return nil, err
	}
	return d, nil
}

func layersFitness(s *solution.Solution) (float64, error) {
	vars := s.Variables()
	f := math.Pow(float64(vars["I"].(int)-30), 2) / 100
	for _, v := range vars["VC"].([]any) {
		if v != "V2" {
			f++
		}
	}
	layers := vars["VL"].([]any)
	f += math.Abs(float64(len(layers) - 3))
	for _, l := range layers {
		layer := l.(map[string]any)
		f += math.Abs(float64(layer["el1"].(int) - 15))
		f += 10 * math.Abs(layer["el2"].(float64)-0.3)
		if layer["el3"] != "2" {
			f++
		}
	}
	return f, nil
}
