package workload

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/perflens/perflens/internal/adapter"
)

// Names lists the selectable demo workloads.
func Names() []string {
	return []string{"fib", "growth", "pairs", "lookup", "all"}
}

// BuildTarget assembles the closure the session coordinator runs for a named
// workload. The growth workload runs in three paced rounds so the allocation
// sampler observes a rising series rather than one opaque jump, and keeps its
// buffers reachable in growthSink until the final sample is taken.
func BuildTarget(name string, size, chunk int, pace time.Duration, timer *adapter.CallTimer, lines *adapter.LineTimer) (func() error, error) {
	switch name {
	case "fib":
		n := sizeOrDefault(size, 25)
		return func() error {
			Fibonacci(timer.Probe(), n)
			return nil
		}, nil
	case "growth":
		n := sizeOrDefault(size, 10000)
		return func() error {
			runGrowth(n, chunk, pace)
			return nil
		}, nil
	case "pairs":
		n := sizeOrDefault(size, 200)
		return func() error {
			PairScan(lines, randomValues(n))
			return nil
		}, nil
	case "lookup":
		n := sizeOrDefault(size, 200)
		return func() error {
			LookupStorm(timer.Probe(), randomValues(n))
			return nil
		}, nil
	case "all":
		return func() error {
			Fibonacci(timer.Probe(), sizeOrDefault(size, 25))
			runGrowth(sizeOrDefault(size*400, 10000), chunk, pace)
			PairScan(lines, randomValues(sizeOrDefault(size*8, 200)))
			LookupStorm(timer.Probe(), randomValues(sizeOrDefault(size*8, 200)))
			return nil
		}, nil
	}
	return nil, fmt.Errorf("unknown workload %q (want fib, growth, pairs, lookup, or all)", name)
}

// growthSink retains growth-workload buffers across the session so the final
// heap sample still sees them live.
var growthSink [][]byte

func runGrowth(iterations, chunk int, pace time.Duration) {
	growthSink = growthSink[:0]
	rounds := 3
	per := iterations / rounds
	if per < 1 {
		per = 1
	}
	for i := 0; i < rounds; i++ {
		growthSink = append(growthSink, Grow(per, chunk)...)
		time.Sleep(pace)
	}
}

func sizeOrDefault(size, def int) int {
	if size <= 0 {
		return def
	}
	return size
}

// randomValues is seeded so repeated runs of the same workload profile the
// same data.
func randomValues(n int) []int {
	rng := rand.New(rand.NewSource(42))
	bound := n / 4
	if bound < 1 {
		bound = 1
	}
	values := make([]int, n)
	for i := range values {
		values[i] = rng.Intn(bound)
	}
	return values
}
