// Package workload provides small, deliberately inefficient units of work
// used by the CLI demo and the scenario tests: each one reproduces a known
// inefficiency signature the pattern matcher should detect.
package workload

import (
	"github.com/perflens/perflens/internal/adapter"
)

// Fibonacci computes fib(n) by naive binary recursion, instrumented with the
// call timer. fib(25) makes 242,785 calls over two call paths.
func Fibonacci(p *adapter.Probe, n int) int {
	defer p.Enter("workload.Fibonacci")()
	if n < 2 {
		return n
	}
	return Fibonacci(p, n-1) + Fibonacci(p, n-2)
}

// Grow appends chunk-sized blocks to an ever-growing buffer for the given
// number of iterations and never releases anything, the shape of an
// accumulating cache with no eviction. The returned slice keeps the memory
// reachable so the growth shows up as live heap, not churn.
func Grow(iterations, chunk int) [][]byte {
	kept := make([][]byte, 0, iterations)
	for i := 0; i < iterations; i++ {
		block := make([]byte, chunk)
		block[0] = byte(i)
		kept = append(kept, block)
	}
	return kept
}

// PairScan counts equal pairs by scanning all n*n combinations, with the two
// loop statements instrumented by the line timer. The inner statement runs
// n*n times against n outer invocations.
func PairScan(lt *adapter.LineTimer, values []int) int {
	count := 0
	for i := range values {
		endOuter := lt.Span("workload.PairScan", 44)
		for j := range values {
			endInner := lt.Span("workload.PairScan", 46)
			if i != j && values[i] == values[j] {
				count++
			}
			endInner()
		}
		endOuter()
	}
	return count
}

// LookupStorm calls Lookup once per element from a single loop body, the
// repeated-identical-call shape that should be batched.
func LookupStorm(p *adapter.Probe, keys []int) int {
	defer p.Enter("workload.LookupStorm")()
	sum := 0
	for _, k := range keys {
		sum += Lookup(p, k)
	}
	return sum
}

// Lookup simulates a constant-cost point query.
func Lookup(p *adapter.Probe, key int) int {
	defer p.Enter("workload.Lookup")()
	acc := key
	for i := 0; i < 64; i++ {
		acc = (acc*31 + i) % 97
	}
	return acc
}
