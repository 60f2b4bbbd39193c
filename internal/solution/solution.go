package solution

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cwbudde/metagen/internal/domain"
)

// Unevaluated is the fitness of a solution that has not been scored yet.
// Lower fitness is better, so an unevaluated solution never looks better
// than a scored one.
const Unevaluated = math.MaxFloat64

// FitnessFunc scores a solution. Lower is better. An error aborts the run
// that requested the evaluation.
type FitnessFunc func(s *Solution) (float64, error)

// Solution is one candidate point of a domain together with its fitness.
// A Solution is owned by a single engine goroutine; share it only through Clone.
type Solution struct {
	domain    *domain.Domain
	conn      *Connector
	root      RecordNode
	fitness   float64
	evaluated bool
}

// New seals d, builds the representation selected by c and initializes every
// variable at random. A nil connector means DefaultConnector().
func New(d *domain.Domain, c *Connector) (*Solution, error) {
	if c == nil {
		c = DefaultConnector()
	}
	if err := d.Seal(); err != nil {
		return nil, err
	}
	n, err := c.New(d.Base())
	if err != nil {
		return nil, err
	}
	root, ok := n.(RecordNode)
	if !ok {
		return nil, fmt.Errorf("%w: base representation %T is not a record", ErrUnregisteredKind, n)
	}
	root.Initialize()
	return &Solution{domain: d, conn: c, root: root, fitness: Unevaluated}, nil
}

func (s *Solution) Domain() *domain.Domain { return s.domain }
func (s *Solution) Connector() *Connector  { return s.conn }

// Root returns the top-level record node.
func (s *Solution) Root() RecordNode { return s.root }

// Get returns the primitive value of a basic variable, or the node of a
// group or structure variable. Unknown names yield nil.
func (s *Solution) Get(name string) any {
	n, ok := s.root.Field(name)
	if !ok {
		return nil
	}
	return plain(n)
}

// Node returns the representation node of a variable.
func (s *Solution) Node(name string) (Node, bool) {
	return s.root.Field(name)
}

// Value returns the plain value of a variable.
func (s *Solution) Value(name string) (any, error) {
	n, ok := s.root.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	return n.Value(), nil
}

// Set assigns a variable and invalidates the fitness.
func (s *Solution) Set(name string, v any) error {
	if err := s.root.SetField(name, v); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// Load assigns every variable present in vars, as produced by Variables.
func (s *Solution) Load(vars map[string]any) error {
	if err := s.root.Set(vars); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// Variables returns the full name to plain value mapping.
func (s *Solution) Variables() map[string]any {
	return s.root.Value().(map[string]any)
}

// Fitness returns the last evaluated fitness, or Unevaluated.
func (s *Solution) Fitness() float64 { return s.fitness }

func (s *Solution) Evaluated() bool { return s.evaluated }

// Evaluate scores the solution with fn and stores the result.
func (s *Solution) Evaluate(fn FitnessFunc) (float64, error) {
	if fn == nil {
		return Unevaluated, ErrNilFitness
	}
	f, err := fn(s)
	if err != nil {
		return Unevaluated, fmt.Errorf("fitness evaluation: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Unevaluated, fmt.Errorf("%w: %v", ErrNonFiniteFitness, f)
	}
	s.fitness = f
	s.evaluated = true
	return f, nil
}

// SetFitness stores an externally computed fitness.
func (s *Solution) SetFitness(f float64) {
	s.fitness = f
	s.evaluated = true
}

// Initialize redraws every variable at random.
func (s *Solution) Initialize() {
	s.root.Initialize()
	s.invalidate()
}

// Mutate applies the representation mutation to a random non-empty subset
// of the variables.
func (s *Solution) Mutate(limit float64) {
	s.root.Mutate(limit)
	s.invalidate()
}

// Crossover recombines s with other. It requires a crossover capable root,
// such as the one built by GAConnector. Children are unevaluated.
func (s *Solution) Crossover(other *Solution) (*Solution, *Solution, error) {
	c, ok := s.root.(Crosser)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %T", ErrCrossoverUnsupported, s.root)
	}
	a, b, err := c.Crossover(other.root)
	if err != nil {
		return nil, nil, err
	}
	ra, okA := a.(RecordNode)
	rb, okB := b.(RecordNode)
	if !okA || !okB {
		return nil, nil, fmt.Errorf("%w: crossover returned %T", ErrCrossoverMismatch, a)
	}
	return s.derive(ra), s.derive(rb), nil
}

// Clone returns an independent deep copy including the fitness.
func (s *Solution) Clone() *Solution {
	c := *s
	c.root = s.root.Clone().(RecordNode)
	return &c
}

func (s *Solution) derive(root RecordNode) *Solution {
	return &Solution{domain: s.domain, conn: s.conn, root: root, fitness: Unevaluated}
}

func (s *Solution) invalidate() {
	s.fitness = Unevaluated
	s.evaluated = false
}

// Less reports whether s is strictly better than other.
func (s *Solution) Less(other *Solution) bool { return s.fitness < other.fitness }

// Equal compares fitness only; two different points with the same fitness are equal.
func (s *Solution) Equal(other *Solution) bool { return s.fitness == other.fitness }

// Compare returns -1, 0 or 1 ordering by fitness.
func (s *Solution) Compare(other *Solution) int {
	switch {
	case s.fitness < other.fitness:
		return -1
	case s.fitness > other.fitness:
		return 1
	}
	return 0
}

// Fingerprint identifies the variable values independently of the fitness.
// Equal fingerprints mean equal points of the domain.
func (s *Solution) Fingerprint() string {
	return s.root.String()
}

// String renders "F = <fitness>\t{a = v , b = v}" with names sorted.
func (s *Solution) String() string {
	return "F = " + strconv.FormatFloat(s.fitness, 'g', -1, 64) + "\t" + s.root.String()
}

// Snapshot is an immutable copy of a solution's values and fitness.
type Snapshot struct {
	Fitness   float64        `json:"fitness"`
	Variables map[string]any `json:"variables"`
}

// Snapshot captures the current values and fitness.
func (s *Solution) Snapshot() Snapshot {
	return Snapshot{Fitness: s.fitness, Variables: s.Variables()}
}

// Restore builds a solution over d holding the snapshot values.
func Restore(d *domain.Domain, c *Connector, snap Snapshot) (*Solution, error) {
	s, err := New(d, c)
	if err != nil {
		return nil, err
	}
	if err := s.Load(snap.Variables); err != nil {
		return nil, err
	}
	s.SetFitness(snap.Fitness)
	return s, nil
}
