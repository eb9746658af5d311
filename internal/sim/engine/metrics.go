package engine

import (
	"math"
	"sort"
)

// Gini computes the inequality coefficient of the current wealth
// distribution: 0 when everyone holds the same amount, approaching 1
// under maximal concentration. Undefined (NaN) when the population or
// the total wealth is zero; neither is reachable from a constructed
// engine, since everyone starts at 1 and transfers conserve the total.
func (e *Engine) Gini() float64 {
	n := len(e.agents)
	if n == 0 {
		return math.NaN()
	}
	xs := make([]int, n)
	total := 0
	for i, a := range e.agents {
		xs[i] = a.Wealth
		total += a.Wealth
	}
	if total <= 0 {
		return math.NaN()
	}
	sort.Ints(xs)
	var b float64
	for i, x := range xs {
		b += float64(x) * float64(n-i)
	}
	b /= float64(n) * float64(total)
	return 1 + 1/float64(n) - 2*b
}
