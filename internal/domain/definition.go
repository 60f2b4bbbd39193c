package domain

import (
	"fmt"
	"strings"
)

// Kind tags a Definition variant. The Connector maps kinds to representation types.
type Kind int

const (
	KindInteger Kind = iota
	KindReal
	KindCategorical
	KindGroup
	KindStaticStructure
	KindDynamicStructure
	KindBase
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindCategorical:
		return "categorical"
	case KindGroup:
		return "group"
	case KindStaticStructure:
		return "static_structure"
	case KindDynamicStructure:
		return "dynamic_structure"
	case KindBase:
		return "base"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Definition describes the type and constraints of one variable.
// Definitions are read-only once the owning Domain is sealed.
type Definition interface {
	Kind() Kind
	String() string
}

// Record is implemented by definitions holding named fields (groups and the base).
type Record interface {
	Definition
	FieldNames() []string
	Field(name string) (Definition, bool)
}

// Structure is implemented by the static and dynamic structure definitions.
type Structure interface {
	Definition
	ElementDefinition() Definition
	LengthBounds() (min, max int)
}

// IsBasic reports whether def is a scalar leaf (integer, real or categorical).
func IsBasic(def Definition) bool {
	switch def.Kind() {
	case KindInteger, KindReal, KindCategorical:
		return true
	}
	return false
}

// IntegerDefinition is an integer range traversed with a fixed step.
type IntegerDefinition struct {
	Min, Max, Step int
}

func (d *IntegerDefinition) Kind() Kind { return KindInteger }

// Grid returns the number of reachable values min, min+step, ... <= max.
func (d *IntegerDefinition) Grid() int {
	return (d.Max-d.Min)/d.Step + 1
}

// Contains reports whether v lies on the definition's step grid.
func (d *IntegerDefinition) Contains(v int) bool {
	return v >= d.Min && v <= d.Max && (v-d.Min)%d.Step == 0
}

func (d *IntegerDefinition) String() string {
	return fmt.Sprintf("INTEGER [%d, %d] step %d", d.Min, d.Max, d.Step)
}

// RealDefinition is a closed real interval.
type RealDefinition struct {
	Min, Max float64
}

func (d *RealDefinition) Kind() Kind { return KindReal }

func (d *RealDefinition) Contains(v float64) bool {
	return v >= d.Min && v <= d.Max
}

func (d *RealDefinition) String() string {
	return fmt.Sprintf("REAL [%g, %g]", d.Min, d.Max)
}

// CategoricalDefinition is an ordered set of distinct labels.
type CategoricalDefinition struct {
	Values []string
}

func (d *CategoricalDefinition) Kind() Kind { return KindCategorical }

func (d *CategoricalDefinition) Contains(v string) bool {
	return d.Index(v) >= 0
}

// Index returns the position of v in Values, or -1.
func (d *CategoricalDefinition) Index(v string) int {
	for i, c := range d.Values {
		if c == v {
			return i
		}
	}
	return -1
}

func (d *CategoricalDefinition) String() string {
	return "CATEGORICAL " + fmt.Sprint(d.Values)
}

// fields keeps named definitions in declaration order.
type fields struct {
	order []string
	defs  map[string]Definition
}

func newFields() fields {
	return fields{defs: make(map[string]Definition)}
}

func (f *fields) add(name string, def Definition) {
	f.order = append(f.order, name)
	f.defs[name] = def
}

func (f *fields) has(name string) bool {
	_, ok := f.defs[name]
	return ok
}

func (f *fields) FieldNames() []string {
	return append([]string(nil), f.order...)
}

func (f *fields) Field(name string) (Definition, bool) {
	def, ok := f.defs[name]
	return def, ok
}

func (f *fields) render() string {
	parts := make([]string, 0, len(f.order))
	for _, name := range f.order {
		parts = append(parts, name+": "+f.defs[name].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// GroupDefinition is a named record type. Groups are declared once and
// referenced by structures or top-level group variables.
type GroupDefinition struct {
	Name string
	fields
}

func (d *GroupDefinition) Kind() Kind { return KindGroup }

func (d *GroupDefinition) String() string {
	return "GROUP " + d.Name + " " + d.render()
}

// StaticStructureDefinition is a fixed-length sequence of one element type.
type StaticStructureDefinition struct {
	Element Definition
	Length  int
}

func (d *StaticStructureDefinition) Kind() Kind                    { return KindStaticStructure }
func (d *StaticStructureDefinition) ElementDefinition() Definition { return d.Element }
func (d *StaticStructureDefinition) LengthBounds() (int, int)      { return d.Length, d.Length }

func (d *StaticStructureDefinition) String() string {
	return fmt.Sprintf("STATIC_STRUCTURE(%d) of %s", d.Length, elementString(d.Element))
}

// DynamicStructureDefinition is a variable-length sequence with length in [Min, Max].
type DynamicStructureDefinition struct {
	Element  Definition
	Min, Max int
}

func (d *DynamicStructureDefinition) Kind() Kind                    { return KindDynamicStructure }
func (d *DynamicStructureDefinition) ElementDefinition() Definition { return d.Element }
func (d *DynamicStructureDefinition) LengthBounds() (int, int)      { return d.Min, d.Max }

func (d *DynamicStructureDefinition) String() string {
	return fmt.Sprintf("DYNAMIC_STRUCTURE[%d, %d] of %s", d.Min, d.Max, elementString(d.Element))
}

func elementString(def Definition) string {
	if def == nil {
		return "<unbound>"
	}
	if g, ok := def.(*GroupDefinition); ok {
		return "GROUP " + g.Name
	}
	return def.String()
}

// BaseDefinition is the top-level schema: variable name to definition.
type BaseDefinition struct {
	fields
}

func (d *BaseDefinition) Kind() Kind { return KindBase }

func (d *BaseDefinition) String() string {
	return "BASE " + d.render()
}
