package solution

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cwbudde/metagen/internal/domain"
)

// Primitive names the underlying type exposed to user code for a kind.
type Primitive string

const (
	PrimitiveInt    Primitive = "int"
	PrimitiveFloat  Primitive = "float64"
	PrimitiveString Primitive = "string"
	PrimitiveRecord Primitive = "map[string]any"
	PrimitiveList   Primitive = "[]any"
)

// Factory builds the representation of one definition. Composite factories
// must call c.New for their children so that substitutions propagate.
type Factory func(def domain.Definition, c *Connector) (Node, error)

type registration struct {
	factory   Factory
	primitive Primitive
}

// Connector maps definition kinds to representation types. It is safe for
// concurrent use; registrations normally happen before the first Solution.
type Connector struct {
	mu      sync.RWMutex
	entries map[domain.Kind]registration
}

// NewConnector returns an empty connector.
func NewConnector() *Connector {
	return &Connector{entries: make(map[domain.Kind]registration)}
}

// DefaultConnector returns a new connector with the built-in representation
// types registered for every kind.
func DefaultConnector() *Connector {
	c := NewConnector()
	c.Register(domain.KindInteger, NewInteger, PrimitiveInt)
	c.Register(domain.KindReal, NewReal, PrimitiveFloat)
	c.Register(domain.KindCategorical, NewCategorical, PrimitiveString)
	c.Register(domain.KindGroup, NewRecord, PrimitiveRecord)
	c.Register(domain.KindStaticStructure, NewStaticStructure, PrimitiveList)
	c.Register(domain.KindDynamicStructure, NewDynamicStructure, PrimitiveList)
	c.Register(domain.KindBase, NewRecord, PrimitiveRecord)
	return c
}

// Register inserts or overwrites the mapping for kind.
func (c *Connector) Register(kind domain.Kind, factory Factory, primitive Primitive) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[kind] = registration{factory: factory, primitive: primitive}
}

// Type resolves the factory registered for kind.
func (c *Connector) Type(kind domain.Kind) (Factory, error) {
	reg, err := c.lookup(kind)
	if err != nil {
		return nil, err
	}
	return reg.factory, nil
}

// Primitive resolves the primitive type registered for kind.
func (c *Connector) Primitive(kind domain.Kind) (Primitive, error) {
	reg, err := c.lookup(kind)
	if err != nil {
		return "", err
	}
	return reg.primitive, nil
}

// Builtin resolves the primitive type of a representation instance.
func (c *Connector) Builtin(n Node) (Primitive, error) {
	return c.Primitive(n.Definition().Kind())
}

// New builds an uninitialized node for def.
func (c *Connector) New(def domain.Definition) (Node, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", ErrUnregisteredKind)
	}
	factory, err := c.Type(def.Kind())
	if err != nil {
		return nil, err
	}
	return factory(def, c)
}

// Kinds returns the registered kinds in ascending order.
func (c *Connector) Kinds() []domain.Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]domain.Kind, 0, len(c.entries))
	for k := range c.entries {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Clone returns an independent copy, so overrides do not leak into the original.
func (c *Connector) Clone() *Connector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := NewConnector()
	for k, v := range c.entries {
		out.entries[k] = v
	}
	return out
}

func (c *Connector) lookup(kind domain.Kind) (registration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reg, ok := c.entries[kind]
	if !ok {
		return registration{}, fmt.Errorf("%w: %s", ErrUnregisteredKind, kind)
	}
	return reg, nil
}
