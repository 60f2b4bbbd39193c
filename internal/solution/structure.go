package solution

import (
	"fmt"
	"strings"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/rnd"
)

// resizeProbability is the chance that a dynamic structure mutation changes
// the length instead of mutating elements.
const resizeProbability = 0.5

// elements is the storage shared by the structure types. proto is an
// uninitialized element used to build new entries.
type elements struct {
	def   domain.Structure
	proto Node
	items []Node
}

func newElements(def domain.Definition, c *Connector) (elements, error) {
	sd, ok := def.(domain.Structure)
	if !ok {
		return elements{}, fmt.Errorf("%w: structure factory got %s", ErrInvalidValue, def.Kind())
	}
	if sd.ElementDefinition() == nil {
		return elements{}, fmt.Errorf("%w: structure element type not bound", ErrInvalidValue)
	}
	proto, err := c.New(sd.ElementDefinition())
	if err != nil {
		return elements{}, fmt.Errorf("structure element: %w", err)
	}
	return elements{def: sd, proto: proto}, nil
}

func (e *elements) Definition() domain.Definition { return e.def }
func (e *elements) Len() int                      { return len(e.items) }

func (e *elements) At(i int) (Node, error) {
	if i < 0 || i >= len(e.items) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(e.items))
	}
	return e.items[i], nil
}

// Get returns the primitive value of a leaf element or the element node itself.
func (e *elements) Get(i int) (any, error) {
	n, err := e.At(i)
	if err != nil {
		return nil, err
	}
	return plain(n), nil
}

func (e *elements) SetAt(i int, v any) error {
	n, err := e.At(i)
	if err != nil {
		return err
	}
	return n.Set(v)
}

func (e *elements) Value() any {
	out := make([]any, len(e.items))
	for i, n := range e.items {
		out[i] = n.Value()
	}
	return out
}

func (e *elements) String() string {
	parts := make([]string, len(e.items))
	for i, n := range e.items {
		parts[i] = n.String()
	}
	return "[" + strings.Join(parts, " , ") + "]"
}

// mutableItems returns the elements that can change.
func (e *elements) mutableItems() []Node {
	var out []Node
	for _, n := range e.items {
		if mutable(n) {
			out = append(out, n)
		}
	}
	return out
}

// mutateSubset mutates a random non-empty subset of the elements that can
// change. It reports false when none can.
func (e *elements) mutateSubset(limit float64) bool {
	candidates := e.mutableItems()
	for _, i := range rnd.Subset(len(candidates)) {
		candidates[i].Mutate(limit)
	}
	return len(candidates) > 0
}

func (e *elements) fresh() Node {
	n := e.proto.Clone()
	n.Initialize()
	return n
}

// build creates a new element holding v.
func (e *elements) build(v any) (Node, error) {
	n := e.proto.Clone()
	if err := n.Set(v); err != nil {
		return nil, err
	}
	return n, nil
}

// assign replaces all items from a []any, enforcing the length bounds.
func (e *elements) assign(v any) error {
	values, ok := v.([]any)
	if !ok {
		if sn, isNode := v.(StructureNode); isNode {
			values, ok = sn.Value().([]any)
		}
	}
	if !ok {
		return fmt.Errorf("%w: %T for %s", ErrInvalidValue, v, e.def.Kind())
	}
	lo, hi := e.def.LengthBounds()
	if len(values) < lo || len(values) > hi {
		return fmt.Errorf("%w: length %d not in [%d, %d]", ErrLengthBounds, len(values), lo, hi)
	}
	items := make([]Node, len(values))
	for i, ev := range values {
		n, err := e.build(ev)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		items[i] = n
	}
	e.items = items
	return nil
}

func (e elements) clone() elements {
	c := elements{def: e.def, proto: e.proto, items: make([]Node, len(e.items))}
	for i, n := range e.items {
		c.items[i] = n.Clone()
	}
	return c
}

// StaticStructure is a fixed-length sequence.
type StaticStructure struct {
	elements
}

// NewStaticStructure is the Factory for static structure definitions.
func NewStaticStructure(def domain.Definition, c *Connector) (Node, error) {
	return newStaticStructure(def, c)
}

func newStaticStructure(def domain.Definition, c *Connector) (*StaticStructure, error) {
	e, err := newElements(def, c)
	if err != nil {
		return nil, err
	}
	length, _ := e.def.LengthBounds()
	e.items = make([]Node, length)
	for i := range e.items {
		e.items[i] = e.proto.Clone()
	}
	return &StaticStructure{elements: e}, nil
}

func (s *StaticStructure) Initialize() {
	for _, n := range s.items {
		n.Initialize()
	}
}

// Mutable reports whether any element can change.
func (s *StaticStructure) Mutable() bool { return len(s.mutableItems()) > 0 }

// Mutate mutates a random non-empty subset of positions.
func (s *StaticStructure) Mutate(limit float64) {
	s.mutateSubset(limit)
}

func (s *StaticStructure) Set(v any) error { return s.assign(v) }

func (s *StaticStructure) Clone() Node {
	return &StaticStructure{elements: s.elements.clone()}
}

// DynamicStructure is a sequence whose length stays within the definition bounds.
type DynamicStructure struct {
	elements
}

// NewDynamicStructure is the Factory for dynamic structure definitions.
func NewDynamicStructure(def domain.Definition, c *Connector) (Node, error) {
	return newDynamicStructure(def, c)
}

func newDynamicStructure(def domain.Definition, c *Connector) (*DynamicStructure, error) {
	e, err := newElements(def, c)
	if err != nil {
		return nil, err
	}
	return &DynamicStructure{elements: e}, nil
}

// Initialize draws a length within the bounds and fills it with fresh elements.
func (s *DynamicStructure) Initialize() {
	lo, hi := s.def.LengthBounds()
	s.items = make([]Node, rnd.IntRange(lo, hi))
	for i := range s.items {
		s.items[i] = s.fresh()
	}
}

// Mutable reports whether the length can change or any element can.
func (s *DynamicStructure) Mutable() bool {
	lo, hi := s.def.LengthBounds()
	return lo < hi || len(s.mutableItems()) > 0
}

// Mutate either resizes by one element or mutates a subset of elements.
// An empty structure, or one whose elements cannot change, resizes.
func (s *DynamicStructure) Mutate(limit float64) {
	lo, hi := s.def.LengthBounds()
	n := len(s.items)
	canGrow, canShrink := n < hi, n > lo
	if !canGrow && !canShrink {
		s.mutateSubset(limit)
		return
	}
	if n > 0 && rnd.Float64() >= resizeProbability && s.mutateSubset(limit) {
		return
	}
	if canGrow && (!canShrink || rnd.Intn(2) == 0) {
		s.insert(rnd.IntRange(0, n), s.fresh())
	} else {
		s.remove(rnd.Intn(n))
	}
}

func (s *DynamicStructure) Set(v any) error { return s.assign(v) }

// Append adds v at the end.
func (s *DynamicStructure) Append(v any) error {
	return s.Insert(len(s.items), v)
}

// Insert adds v before position i. i == Len() appends.
func (s *DynamicStructure) Insert(i int, v any) error {
	if i < 0 || i > len(s.items) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.items))
	}
	if _, hi := s.def.LengthBounds(); len(s.items) >= hi {
		return fmt.Errorf("%w: already at maximum length %d", ErrLengthBounds, hi)
	}
	n, err := s.build(v)
	if err != nil {
		return err
	}
	s.insert(i, n)
	return nil
}

// Remove deletes the element at position i.
func (s *DynamicStructure) Remove(i int) error {
	if i < 0 || i >= len(s.items) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.items))
	}
	if lo, _ := s.def.LengthBounds(); len(s.items) <= lo {
		return fmt.Errorf("%w: already at minimum length %d", ErrLengthBounds, lo)
	}
	s.remove(i)
	return nil
}

func (s *DynamicStructure) insert(i int, n Node) {
	s.items = append(s.items, nil)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = n
}

func (s *DynamicStructure) remove(i int) {
	s.items = append(s.items[:i], s.items[i+1:]...)
}

func (s *DynamicStructure) Clone() Node {
	return &DynamicStructure{elements: s.elements.clone()}
}
