package solution

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/rnd"
)

// Record holds the fields of a group or of the base definition.
type Record struct {
	def    domain.Record
	names  []string
	fields map[string]Node
}

// NewRecord is the Factory for group and base definitions.
func NewRecord(def domain.Definition, c *Connector) (Node, error) {
	return newRecord(def, c)
}

func newRecord(def domain.Definition, c *Connector) (*Record, error) {
	rd, ok := def.(domain.Record)
	if !ok {
		return nil, fmt.Errorf("%w: record factory got %s", ErrInvalidValue, def.Kind())
	}
	r := &Record{
		def:    rd,
		names:  rd.FieldNames(),
		fields: make(map[string]Node),
	}
	for _, name := range r.names {
		fd, _ := rd.Field(name)
		n, err := c.New(fd)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		r.fields[name] = n
	}
	return r, nil
}

func (r *Record) Definition() domain.Definition { return r.def }

// Names returns the field names in declaration order.
func (r *Record) Names() []string { return append([]string(nil), r.names...) }

func (r *Record) Field(name string) (Node, bool) {
	n, ok := r.fields[name]
	return n, ok
}

// Get returns the primitive value of a leaf field or the field node itself
// for composites. It returns nil for unknown names.
func (r *Record) Get(name string) any {
	n, ok := r.fields[name]
	if !ok {
		return nil
	}
	return plain(n)
}

func (r *Record) SetField(name string, v any) error {
	n, ok := r.fields[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	if err := n.Set(v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (r *Record) Initialize() {
	for _, name := range r.names {
		r.fields[name].Initialize()
	}
}

// Mutable reports whether any field can change.
func (r *Record) Mutable() bool {
	for _, name := range r.names {
		if mutable(r.fields[name]) {
			return true
		}
	}
	return false
}

// Mutate mutates a random non-empty subset of the fields that can change.
func (r *Record) Mutate(limit float64) {
	var candidates []Node
	for _, name := range r.names {
		if f := r.fields[name]; mutable(f) {
			candidates = append(candidates, f)
		}
	}
	for _, i := range rnd.Subset(len(candidates)) {
		candidates[i].Mutate(limit)
	}
}

func (r *Record) Value() any {
	out := make(map[string]any, len(r.names))
	for _, name := range r.names {
		out[name] = r.fields[name].Value()
	}
	return out
}

// Set accepts a map[string]any or a RecordNode. Fields absent from the
// map are left unchanged.
func (r *Record) Set(v any) error {
	switch x := v.(type) {
	case map[string]any:
		for name, fv := range x {
			if err := r.SetField(name, fv); err != nil {
				return err
			}
		}
		return nil
	case RecordNode:
		return r.Set(x.Value())
	}
	return fmt.Errorf("%w: %T for %s", ErrInvalidValue, v, r.def.Kind())
}

func (r *Record) Clone() Node {
	return r.clone()
}

func (r *Record) clone() *Record {
	c := &Record{
		def:    r.def,
		names:  r.names,
		fields: make(map[string]Node, len(r.fields)),
	}
	for name, n := range r.fields {
		c.fields[name] = n.Clone()
	}
	return c
}

// String renders the fields sorted by name as {a = 1 , b = x}.
func (r *Record) String() string {
	names := r.Names()
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" = "+r.fields[name].String())
	}
	return "{" + strings.Join(parts, " , ") + "}"
}
