// Package domain provides the declarative description of a search space.
//
// A Domain is built once through its Define* methods, validated, and then
// sealed by the first Solution constructed from it. From that point on it is
// shared read-only by every Solution and search engine.
package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Domain is the builder and owner of a BaseDefinition.
type Domain struct {
	mu     sync.RWMutex
	base   *BaseDefinition
	groups map[string]*GroupDefinition
	sealed bool
}

// New creates an empty domain.
func New() *Domain {
	return &Domain{
		base:   &BaseDefinition{fields: newFields()},
		groups: make(map[string]*GroupDefinition),
	}
}

// DefineInteger adds a top-level integer variable. A step of 0 means 1.
func (d *Domain) DefineInteger(name string, min, max, step int) error {
	def, err := NewInteger(name, min, max, step)
	if err != nil {
		return err
	}
	return d.addVariable(name, def)
}

// DefineReal adds a top-level real variable.
func (d *Domain) DefineReal(name string, min, max float64) error {
	def, err := NewReal(name, min, max)
	if err != nil {
		return err
	}
	return d.addVariable(name, def)
}

// DefineCategorical adds a top-level categorical variable.
func (d *Domain) DefineCategorical(name string, values []string) error {
	def, err := NewCategorical(name, values)
	if err != nil {
		return err
	}
	return d.addVariable(name, def)
}

// DefineGroup declares a reusable record type. It does not add a variable;
// use DefineGroupVariable or SetStructureToVariable to reference it.
func (d *Domain) DefineGroup(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writable(name); err != nil {
		return err
	}
	if name == "" {
		return invalid(name, "group name cannot be empty")
	}
	if _, exists := d.groups[name]; exists {
		return invalid(name, "group already defined")
	}
	d.groups[name] = &GroupDefinition{Name: name, fields: newFields()}
	return nil
}

// DefineIntegerInGroup adds an integer field to a declared group.
func (d *Domain) DefineIntegerInGroup(group, field string, min, max, step int) error {
	def, err := NewInteger(group+"."+field, min, max, step)
	if err != nil {
		return err
	}
	return d.DefineInGroup(group, field, def)
}

// DefineRealInGroup adds a real field to a declared group.
func (d *Domain) DefineRealInGroup(group, field string, min, max float64) error {
	def, err := NewReal(group+"."+field, min, max)
	if err != nil {
		return err
	}
	return d.DefineInGroup(group, field, def)
}

// DefineCategoricalInGroup adds a categorical field to a declared group.
func (d *Domain) DefineCategoricalInGroup(group, field string, values []string) error {
	def, err := NewCategorical(group+"."+field, values)
	if err != nil {
		return err
	}
	return d.DefineInGroup(group, field, def)
}

// DefineInGroup adds an already built definition as a group field.
// Only basic kinds are accepted as group fields.
func (d *Domain) DefineInGroup(group, field string, def Definition) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	qualified := group + "." + field
	if err := d.writable(qualified); err != nil {
		return err
	}
	g, ok := d.groups[group]
	if !ok {
		return invalid(group, "group not defined")
	}
	if field == "" {
		return invalid(qualified, "field name cannot be empty")
	}
	if def == nil || !IsBasic(def) {
		return invalid(qualified, "unsupported group field type")
	}
	if g.has(field) {
		return invalid(qualified, "field already defined")
	}
	g.add(field, def)
	return nil
}

// DefineGroupVariable adds a top-level variable whose type is a declared group.
func (d *Domain) DefineGroupVariable(name, group string) error {
	d.mu.RLock()
	g, ok := d.groups[group]
	d.mu.RUnlock()
	if !ok {
		return invalid(name, "group "+group+" not defined")
	}
	return d.addVariable(name, g)
}

// DefineStaticStructure adds a fixed-length structure variable. Its element
// type must be bound with one of the SetStructureTo* methods.
func (d *Domain) DefineStaticStructure(name string, length int) error {
	if length <= 0 {
		return invalid(name, fmt.Sprintf("length must be positive, got %d", length))
	}
	return d.addVariable(name, &StaticStructureDefinition{Length: length})
}

// DefineDynamicStructure adds a variable-length structure variable with
// length in [min, max]. Its element type must be bound before use.
func (d *Domain) DefineDynamicStructure(name string, min, max int) error {
	if min < 0 {
		return invalid(name, fmt.Sprintf("minimum length cannot be negative, got %d", min))
	}
	if min > max {
		return invalid(name, fmt.Sprintf("inverted length bounds [%d, %d]", min, max))
	}
	if max == 0 {
		return invalid(name, "maximum length must be positive")
	}
	return d.addVariable(name, &DynamicStructureDefinition{Min: min, Max: max})
}

// SetStructureToVariable binds the element type of a structure to a declared group.
func (d *Domain) SetStructureToVariable(structure, group string) error {
	d.mu.RLock()
	g, ok := d.groups[group]
	d.mu.RUnlock()
	if !ok {
		return invalid(structure, "cannot bind to undefined group "+group)
	}
	return d.bind(structure, g)
}

// SetStructureToInteger binds the element type of a structure to an integer range.
func (d *Domain) SetStructureToInteger(structure string, min, max, step int) error {
	def, err := NewInteger(structure, min, max, step)
	if err != nil {
		return err
	}
	return d.bind(structure, def)
}

// SetStructureToReal binds the element type of a structure to a real range.
func (d *Domain) SetStructureToReal(structure string, min, max float64) error {
	def, err := NewReal(structure, min, max)
	if err != nil {
		return err
	}
	return d.bind(structure, def)
}

// SetStructureToCategorical binds the element type of a structure to a label set.
func (d *Domain) SetStructureToCategorical(structure string, values []string) error {
	def, err := NewCategorical(structure, values)
	if err != nil {
		return err
	}
	return d.bind(structure, def)
}

func (d *Domain) bind(structure string, element Definition) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writable(structure); err != nil {
		return err
	}
	def, ok := d.base.Field(structure)
	if !ok {
		return invalid(structure, "structure not defined")
	}
	switch s := def.(type) {
	case *StaticStructureDefinition:
		s.Element = element
	case *DynamicStructureDefinition:
		s.Element = element
	default:
		return invalid(structure, "variable is "+def.Kind().String()+", not a structure")
	}
	return nil
}

func (d *Domain) addVariable(name string, def Definition) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writable(name); err != nil {
		return err
	}
	if name == "" {
		return invalid(name, "variable name cannot be empty")
	}
	if d.base.has(name) {
		return invalid(name, "variable already defined")
	}
	d.base.add(name, def)
	return nil
}

// writable must be called with d.mu held.
func (d *Domain) writable(name string) error {
	if d.sealed {
		return &DefinitionError{Name: name, Reason: "cannot modify", Err: ErrDomainSealed}
	}
	return nil
}

// Validate checks that the domain is complete: at least one variable, every
// structure bound and every referenced group non-empty.
func (d *Domain) Validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.base.order) == 0 {
		return invalid("domain", "no variables defined")
	}
	for _, name := range d.base.order {
		if err := validateDefinition(name, d.base.defs[name]); err != nil {
			return err
		}
	}
	return nil
}

func validateDefinition(name string, def Definition) error {
	switch v := def.(type) {
	case *GroupDefinition:
		if len(v.order) == 0 {
			return invalid(name, "group "+v.Name+" has no fields")
		}
	case Structure:
		elem := v.ElementDefinition()
		if elem == nil {
			return invalid(name, "structure element type not bound")
		}
		return validateDefinition(name, elem)
	}
	return nil
}

// Seal validates the domain and freezes it. Sealing twice is a no-op.
func (d *Domain) Seal() error {
	if err := d.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	d.sealed = true
	d.mu.Unlock()
	return nil
}

// Sealed reports whether a Solution has been built from this domain.
func (d *Domain) Sealed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sealed
}

// Base returns the top-level schema.
func (d *Domain) Base() *BaseDefinition {
	return d.base
}

// Group returns a declared group.
func (d *Domain) Group(name string) (*GroupDefinition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[name]
	return g, ok
}

// Variables returns the top-level variable names in declaration order.
func (d *Domain) Variables() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.base.FieldNames()
}

// Definition returns the definition of a top-level variable.
func (d *Domain) Definition(name string) (Definition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.base.Field(name)
}

func (d *Domain) String() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := d.base.FieldNames()
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, name+": "+d.base.defs[name].String())
	}
	return strings.Join(lines, "\n")
}

// NewInteger builds a validated integer definition. A step of 0 means 1.
func NewInteger(name string, min, max, step int) (*IntegerDefinition, error) {
	if step == 0 {
		step = 1
	}
	if step < 0 {
		return nil, invalid(name, fmt.Sprintf("step must be positive, got %d", step))
	}
	if min > max {
		return nil, invalid(name, fmt.Sprintf("inverted bounds [%d, %d]", min, max))
	}
	return &IntegerDefinition{Min: min, Max: max, Step: step}, nil
}

// NewReal builds a validated real definition.
func NewReal(name string, min, max float64) (*RealDefinition, error) {
	if min > max || math.IsNaN(min) || math.IsNaN(max) {
		return nil, invalid(name, fmt.Sprintf("inverted bounds [%g, %g]", min, max))
	}
	return &RealDefinition{Min: min, Max: max}, nil
}

// NewCategorical builds a validated categorical definition.
func NewCategorical(name string, values []string) (*CategoricalDefinition, error) {
	if len(values) == 0 {
		return nil, invalid(name, "categorical needs at least one value")
	}
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			return nil, invalid(name, "duplicate categorical value "+v)
		}
		seen[v] = struct{}{}
	}
	return &CategoricalDefinition{Values: append([]string(nil), values...)}, nil
}
