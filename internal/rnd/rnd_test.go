package rnd

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedIsReproducible(t *testing.T) {
	Seed(7)
	a := []int{Intn(100), Intn(100), Intn(100)}
	Seed(7)
	b := []int{Intn(100), Intn(100), Intn(100)}
	assert.Equal(t, a, b)
}

func TestIntRangeBounds(t *testing.T) {
	Seed(1)
	for i := 0; i < 500; i++ {
		v := IntRange(-3, 4)
		require.GreaterOrEqual(t, v, -3)
		require.LessOrEqual(t, v, 4)
	}
	assert.Equal(t, 5, IntRange(5, 5))
}

func TestSubset(t *testing.T) {
	Seed(3)
	assert.Nil(t, Subset(0))
	for i := 0; i < 200; i++ {
		s := Subset(6)
		require.NotEmpty(t, s)
		require.LessOrEqual(t, len(s), 6)
		require.True(t, sort.IntsAreSorted(s))
		seen := map[int]bool{}
		for _, v := range s {
			require.False(t, seen[v], "duplicate index %d", v)
			seen[v] = true
		}
	}
}

func TestUniform(t *testing.T) {
	Seed(4)
	for i := 0; i < 200; i++ {
		v := Uniform(1.5, 2.5)
		require.GreaterOrEqual(t, v, 1.5)
		require.LessOrEqual(t, v, 2.5)
	}
	assert.Equal(t, 3.0, Uniform(3, 3))
}
