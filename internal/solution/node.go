// Package solution implements the mutable value trees searched by the engines.
//
// Every variable of a domain is held by a Node whose concrete type is chosen
// by a Connector. Engines only use the Node capability surface, so a custom
// Connector can substitute representation types (for example the crossover
// capable GA types) without touching any engine.
package solution

import (
	"errors"

	"github.com/cwbudde/metagen/internal/domain"
)

var (
	ErrUnregisteredKind     = errors.New("definition kind not registered in connector")
	ErrInvalidValue         = errors.New("value not valid for definition")
	ErrUnknownVariable      = errors.New("unknown variable")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrLengthBounds         = errors.New("structure length out of bounds")
	ErrCrossoverUnsupported = errors.New("representation does not support crossover")
	ErrCrossoverMismatch    = errors.New("crossover parents have different shapes")
	ErrDynamicCrossover     = errors.New("crossover over dynamic structures is not supported")
	ErrNilFitness           = errors.New("fitness function is nil")
	ErrNonFiniteFitness     = errors.New("fitness function returned a non-finite value")
)

// Node is the capability surface every representation type provides.
type Node interface {
	// Definition returns the definition this node was built from.
	Definition() domain.Definition

	// Initialize assigns fresh random values to every leaf below the node.
	Initialize()

	// Mutate alters the node in place. A positive limit bounds the
	// perturbation of numeric leaves; zero or less redraws within the range.
	Mutate(limit float64)

	// Value returns the plain value: int, float64 or string for leaves,
	// map[string]any for records and []any for structures.
	Value() any

	// Set replaces the node value. Composites accept the shapes Value returns.
	Set(v any) error

	// Clone returns a deep copy of the same representation type.
	Clone() Node

	String() string
}

// Crosser is implemented by representation types that support recombination.
// The two children are complements of each other over the exchanged positions.
type Crosser interface {
	Node
	Crossover(other Node) (Node, Node, error)
}

// RecordNode is a node holding named fields. The root of every Solution is one.
type RecordNode interface {
	Node
	Names() []string
	Field(name string) (Node, bool)
	SetField(name string, v any) error
}

// StructureNode is a node holding an ordered sequence of elements.
type StructureNode interface {
	Node
	Len() int
	At(i int) (Node, error)
	SetAt(i int, v any) error
}

// Mutabler is implemented by nodes that can report whether Mutate is able
// to change their value.
type Mutabler interface {
	Mutable() bool
}

// mutable reports whether n can change under Mutate. Nodes that do not
// implement Mutabler are assumed mutable.
func mutable(n Node) bool {
	m, ok := n.(Mutabler)
	return !ok || m.Mutable()
}

// plain returns the primitive value for leaves and the node itself for composites.
func plain(n Node) any {
	if domain.IsBasic(n.Definition()) {
		return n.Value()
	}
	return n
}
