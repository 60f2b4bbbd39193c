package solution

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/rnd"
)

// Integer holds one value on an IntegerDefinition step grid.
type Integer struct {
	def   *domain.IntegerDefinition
	value int
}

// NewInteger is the Factory for integer definitions.
func NewInteger(def domain.Definition, _ *Connector) (Node, error) {
	d, ok := def.(*domain.IntegerDefinition)
	if !ok {
		return nil, fmt.Errorf("%w: integer factory got %s", ErrInvalidValue, def.Kind())
	}
	return &Integer{def: d, value: d.Min}, nil
}

func (n *Integer) Definition() domain.Definition { return n.def }
func (n *Integer) Value() any                    { return n.value }
func (n *Integer) Int() int                      { return n.value }
func (n *Integer) String() string                { return strconv.Itoa(n.value) }

func (n *Integer) Initialize() {
	n.value = n.at(rnd.Intn(n.def.Grid()))
}

// Mutable reports whether the grid holds more than one value.
func (n *Integer) Mutable() bool { return n.def.Grid() > 1 }

// Mutate draws a different grid value. With a positive limit the draw is
// restricted to a window of max(step, ceil(limit)) around the current value.
func (n *Integer) Mutate(limit float64) {
	lo, hi := 0, n.def.Grid()-1
	if limit > 0 {
		w := int(math.Ceil(limit))
		if w < n.def.Step {
			w = n.def.Step
		}
		lo = n.index(max(n.def.Min, n.value-w) + n.def.Step - 1)
		hi = n.index(min(n.def.Max, n.value+w))
	}
	n.value = n.at(pickOther(lo, hi, n.index(n.value)))
}

func (n *Integer) Set(v any) error {
	i, ok := toInt(v)
	if !ok || !n.def.Contains(i) {
		return fmt.Errorf("%w: %v for %s", ErrInvalidValue, v, n.def)
	}
	n.value = i
	return nil
}

func (n *Integer) Clone() Node {
	c := *n
	return &c
}

// index maps a value to its grid position, rounding down.
func (n *Integer) index(v int) int {
	return (v - n.def.Min) / n.def.Step
}

func (n *Integer) at(i int) int {
	return n.def.Min + i*n.def.Step
}

// Real holds one value of a closed real interval.
type Real struct {
	def   *domain.RealDefinition
	value float64
}

// NewReal is the Factory for real definitions.
func NewReal(def domain.Definition, _ *Connector) (Node, error) {
	d, ok := def.(*domain.RealDefinition)
	if !ok {
		return nil, fmt.Errorf("%w: real factory got %s", ErrInvalidValue, def.Kind())
	}
	return &Real{def: d, value: d.Min}, nil
}

func (n *Real) Definition() domain.Definition { return n.def }
func (n *Real) Value() any                    { return n.value }
func (n *Real) Float() float64                { return n.value }
func (n *Real) String() string                { return strconv.FormatFloat(n.value, 'g', -1, 64) }

func (n *Real) Initialize() {
	n.value = rnd.Uniform(n.def.Min, n.def.Max)
}

// Mutable reports whether the interval is wider than a point.
func (n *Real) Mutable() bool { return n.def.Max > n.def.Min }

// Mutate redraws uniformly, within [value-limit, value+limit] when limit is positive.
func (n *Real) Mutate(limit float64) {
	lo, hi := n.def.Min, n.def.Max
	if limit > 0 {
		lo = math.Max(lo, n.value-limit)
		hi = math.Min(hi, n.value+limit)
	}
	n.value = rnd.Uniform(lo, hi)
}

func (n *Real) Set(v any) error {
	f, ok := toFloat(v)
	if !ok || !n.def.Contains(f) {
		return fmt.Errorf("%w: %v for %s", ErrInvalidValue, v, n.def)
	}
	n.value = f
	return nil
}

func (n *Real) Clone() Node {
	c := *n
	return &c
}

// Categorical holds one label of a CategoricalDefinition.
type Categorical struct {
	def   *domain.CategoricalDefinition
	index int
}

// NewCategorical is the Factory for categorical definitions.
func NewCategorical(def domain.Definition, _ *Connector) (Node, error) {
	d, ok := def.(*domain.CategoricalDefinition)
	if !ok {
		return nil, fmt.Errorf("%w: categorical factory got %s", ErrInvalidValue, def.Kind())
	}
	return &Categorical{def: d}, nil
}

func (n *Categorical) Definition() domain.Definition { return n.def }
func (n *Categorical) Value() any                    { return n.def.Values[n.index] }
func (n *Categorical) Label() string                 { return n.def.Values[n.index] }
func (n *Categorical) String() string                { return n.Label() }

func (n *Categorical) Initialize() {
	n.index = rnd.Intn(len(n.def.Values))
}

// Mutable reports whether more than one label exists.
func (n *Categorical) Mutable() bool { return len(n.def.Values) > 1 }

// Mutate always switches to a different label when more than one exists.
func (n *Categorical) Mutate(float64) {
	n.index = pickOther(0, len(n.def.Values)-1, n.index)
}

func (n *Categorical) Set(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: %v for %s", ErrInvalidValue, v, n.def)
	}
	i := n.def.Index(s)
	if i < 0 {
		return fmt.Errorf("%w: %q for %s", ErrInvalidValue, s, n.def)
	}
	n.index = i
	return nil
}

func (n *Categorical) Clone() Node {
	c := *n
	return &c
}

// pickOther draws uniformly from [lo, hi] excluding cur. It returns cur when
// the range holds no other value.
func pickOther(lo, hi, cur int) int {
	if hi <= lo {
		return cur
	}
	if cur < lo || cur > hi {
		return rnd.IntRange(lo, hi)
	}
	k := rnd.IntRange(lo, hi-1)
	if k >= cur {
		k++
	}
	return k
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
