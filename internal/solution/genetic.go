package solution

import (
	"fmt"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/rnd"
)

// GAConnector returns a connector whose composite types support crossover.
// Basic kinds keep the default representations.
func GAConnector() *Connector {
	c := DefaultConnector()
	c.Register(domain.KindGroup, NewGARecord, PrimitiveRecord)
	c.Register(domain.KindBase, NewGARecord, PrimitiveRecord)
	c.Register(domain.KindStaticStructure, NewGAStaticStructure, PrimitiveList)
	c.Register(domain.KindDynamicStructure, NewGADynamicStructure, PrimitiveList)
	return c
}

// GARecord is a Record that exchanges fields with another record.
type GARecord struct {
	*Record
}

// NewGARecord is the Factory for crossover capable records.
func NewGARecord(def domain.Definition, c *Connector) (Node, error) {
	r, err := newRecord(def, c)
	if err != nil {
		return nil, err
	}
	return &GARecord{Record: r}, nil
}

func (r *GARecord) Clone() Node {
	return &GARecord{Record: r.Record.clone()}
}

// Crossover recurses into crossover capable fields and swaps a random
// non-empty subset of the remaining fields. Without exchangeable fields the
// children are copies of the parents.
func (r *GARecord) Crossover(other Node) (Node, Node, error) {
	o, ok := other.(*GARecord)
	if !ok || len(o.names) != len(r.names) {
		return nil, nil, fmt.Errorf("%w: %T", ErrCrossoverMismatch, other)
	}
	a, b := r.Record.clone(), o.Record.clone()

	var exchangeable []string
	for _, name := range r.names {
		fa, okA := a.fields[name]
		fb, okB := b.fields[name]
		if !okA || !okB {
			return nil, nil, fmt.Errorf("%w: field %s", ErrCrossoverMismatch, name)
		}
		c, crosses := fa.(Crosser)
		if !crosses {
			exchangeable = append(exchangeable, name)
			continue
		}
		ca, cb, err := c.Crossover(fb)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		a.fields[name], b.fields[name] = ca, cb
	}

	for _, i := range rnd.Subset(len(exchangeable)) {
		name := exchangeable[i]
		a.fields[name], b.fields[name] = b.fields[name], a.fields[name]
	}
	return &GARecord{Record: a}, &GARecord{Record: b}, nil
}

// GAStaticStructure is a StaticStructure that exchanges positions.
type GAStaticStructure struct {
	*StaticStructure
}

// NewGAStaticStructure is the Factory for crossover capable static structures.
func NewGAStaticStructure(def domain.Definition, c *Connector) (Node, error) {
	s, err := newStaticStructure(def, c)
	if err != nil {
		return nil, err
	}
	return &GAStaticStructure{StaticStructure: s}, nil
}

func (s *GAStaticStructure) Clone() Node {
	return &GAStaticStructure{StaticStructure: s.StaticStructure.Clone().(*StaticStructure)}
}

// Crossover swaps the elements at a random non-empty subset of positions.
func (s *GAStaticStructure) Crossover(other Node) (Node, Node, error) {
	o, ok := other.(*GAStaticStructure)
	if !ok || o.Len() != s.Len() {
		return nil, nil, fmt.Errorf("%w: %T", ErrCrossoverMismatch, other)
	}
	a := s.StaticStructure.Clone().(*StaticStructure)
	b := o.StaticStructure.Clone().(*StaticStructure)
	for _, i := range rnd.Subset(a.Len()) {
		a.items[i], b.items[i] = b.items[i], a.items[i]
	}
	return &GAStaticStructure{StaticStructure: a}, &GAStaticStructure{StaticStructure: b}, nil
}

// GADynamicStructure marks dynamic structures inside a GA representation.
// Crossover between sequences of different length is not defined, so it
// always fails with ErrDynamicCrossover.
type GADynamicStructure struct {
	*DynamicStructure
}

// NewGADynamicStructure is the Factory for dynamic structures under GAConnector.
func NewGADynamicStructure(def domain.Definition, c *Connector) (Node, error) {
	s, err := newDynamicStructure(def, c)
	if err != nil {
		return nil, err
	}
	return &GADynamicStructure{DynamicStructure: s}, nil
}

func (s *GADynamicStructure) Clone() Node {
	return &GADynamicStructure{DynamicStructure: s.DynamicStructure.Clone().(*DynamicStructure)}
}

func (s *GADynamicStructure) Crossover(Node) (Node, Node, error) {
	return nil, nil, ErrDynamicCrossover
}
