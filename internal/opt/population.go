package opt

import (
	"sort"

	"github.com/cwbudde/metagen/internal/solution"
)

// Population is a slice of solutions kept in ascending fitness order by the
// engines that need it.
type Population []*solution.Solution

// Sort orders the population by ascending fitness. Ties keep their order.
func (p Population) Sort() {
	sort.SliceStable(p, func(i, j int) bool { return p[i].Less(p[j]) })
}

// Sorted reports whether the population is in ascending fitness order.
func (p Population) Sorted() bool {
	return sort.SliceIsSorted(p, func(i, j int) bool { return p[i].Less(p[j]) })
}

// Best returns the first member with the lowest fitness, or nil.
func (p Population) Best() *solution.Solution {
	var best *solution.Solution
	for _, s := range p {
		if best == nil || s.Less(best) {
			best = s
		}
	}
	return best
}

// Worst returns the last member with the highest fitness, or nil.
func (p Population) Worst() *solution.Solution {
	var worst *solution.Solution
	for _, s := range p {
		if worst == nil || !s.Less(worst) {
			worst = s
		}
	}
	return worst
}

// ReplaceWorst swaps the last member of a sorted population for child when
// child is strictly better, and moves child to its sorted position after any
// members of equal fitness. It reports whether the replacement happened.
func (p Population) ReplaceWorst(child *solution.Solution) bool {
	n := len(p)
	if n == 0 || !child.Less(p[n-1]) {
		return false
	}
	i := n - 1
	for i > 0 && child.Less(p[i-1]) {
		p[i] = p[i-1]
		i--
	}
	p[i] = child
	return true
}
