// Package rnd holds the process-wide random source shared by every solution
// operator and search engine. All access is serialized, so concurrent strains
// may draw from it safely.
package rnd

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

var (
	mu  sync.Mutex
	src = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Seed replaces the shared source with a deterministic one.
// Intended for tests and reproducible runs.
func Seed(seed int64) {
	mu.Lock()
	defer mu.Unlock()
	src = rand.New(rand.NewSource(seed))
}

// Intn returns a uniform int in [0, n). It panics if n <= 0.
func Intn(n int) int {
	mu.Lock()
	defer mu.Unlock()
	return src.Intn(n)
}

// IntRange returns a uniform int in [lo, hi].
func IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + Intn(hi-lo+1)
}

// Float64 returns a uniform float in [0, 1).
func Float64() float64 {
	mu.Lock()
	defer mu.Unlock()
	return src.Float64()
}

// Uniform returns a uniform float in [lo, hi].
func Uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + Float64()*(hi-lo)
}

// Perm returns a random permutation of [0, n).
func Perm(n int) []int {
	mu.Lock()
	defer mu.Unlock()
	return src.Perm(n)
}

// Subset returns a random non-empty subset of [0, n) in ascending order.
// It returns nil when n == 0.
func Subset(n int) []int {
	if n <= 0 {
		return nil
	}
	k := IntRange(1, n)
	picked := Perm(n)[:k]
	sort.Ints(picked)
	return picked
}

// New returns an independent *rand.Rand seeded from the shared source.
// Used where a third-party library wants its own generator.
func New() *rand.Rand {
	mu.Lock()
	seed := src.Int63()
	mu.Unlock()
	return rand.New(rand.NewSource(seed))
}
