package solution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/rnd"
)

func gaParents(t *testing.T) (*Solution, *Solution) {
	t.Helper()
	d := domain.New()
	require.NoError(t, d.DefineReal("x", 0, 10))
	require.NoError(t, d.DefineReal("y", 0, 10))
	require.NoError(t, d.DefineCategorical("c", []string{"lo", "hi"}))
	require.NoError(t, d.DefineStaticStructure("s", 6))
	require.NoError(t, d.SetStructureToInteger("s", 0, 9, 1))

	a, err := New(d, GAConnector())
	require.NoError(t, err)
	b, err := New(d, GAConnector())
	require.NoError(t, err)

	require.NoError(t, a.Load(map[string]any{"x": 1.0, "y": 1.0, "c": "lo", "s": []any{0, 0, 0, 0, 0, 0}}))
	require.NoError(t, b.Load(map[string]any{"x": 9.0, "y": 9.0, "c": "hi", "s": []any{9, 9, 9, 9, 9, 9}}))
	return a, b
}

func TestCrossoverChildrenAreComplements(t *testing.T) {
	rnd.Seed(11)
	a, b := gaParents(t)

	for n := 0; n < 50; n++ {
		c1, c2, err := a.Crossover(b)
		require.NoError(t, err)
		assert.False(t, c1.Evaluated())

		for _, name := range []string{"x", "y"} {
			v1, v2 := c1.Get(name).(float64), c2.Get(name).(float64)
			assert.ElementsMatch(t, []float64{1, 9}, []float64{v1, v2}, name)
		}
		assert.ElementsMatch(t, []any{"lo", "hi"}, []any{c1.Get("c"), c2.Get("c")})

		s1 := c1.Variables()["s"].([]any)
		s2 := c2.Variables()["s"].([]any)
		for i := range s1 {
			assert.Equal(t, 9, s1[i].(int)+s2[i].(int), "position %d", i)
		}
	}

	assert.Equal(t, 1.0, a.Get("x"), "parents are not modified")
	assert.Equal(t, 9.0, b.Get("x"))
}

func TestCrossoverExchangesSomething(t *testing.T) {
	rnd.Seed(12)
	a, b := gaParents(t)
	c1, _, err := a.Crossover(b)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c1.Fingerprint())
}

func TestCrossoverWithDynamicStructureFails(t *testing.T) {
	d := domain.New()
	require.NoError(t, d.DefineReal("x", 0, 1))
	require.NoError(t, d.DefineDynamicStructure("d", 1, 4))
	require.NoError(t, d.SetStructureToReal("d", 0, 1))

	a, err := New(d, GAConnector())
	require.NoError(t, err)
	b := a.Clone()
	b.Initialize()

	_, _, err = a.Crossover(b)
	assert.ErrorIs(t, err, ErrDynamicCrossover)
}

func TestCrossoverNeedsCapableRepresentation(t *testing.T) {
	d := domain.New()
	require.NoError(t, d.DefineReal("x", 0, 1))
	a, err := New(d, nil)
	require.NoError(t, err)

	_, _, err = a.Crossover(a.Clone())
	assert.ErrorIs(t, err, ErrCrossoverUnsupported)
}

func TestGARepresentationMutatesAndClones(t *testing.T) {
	rnd.Seed(13)
	a, _ := gaParents(t)
	c := a.Clone()
	_, ok := c.Root().(*GARecord)
	require.True(t, ok)
	n, _ := c.Node("s")
	_, ok = n.(*GAStaticStructure)
	require.True(t, ok)

	before := a.Fingerprint()
	for i := 0; i < 10; i++ {
		c.Mutate(0)
	}
	assert.Equal(t, before, a.Fingerprint())
}
