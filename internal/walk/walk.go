// Package walk generates random walks over a graph.
//
// Two step rules are provided: Uniform, a first-order walk whose transition
// probabilities are proportional to edge weights, and Biased, the
// second-order node2vec walk. Corpus runs many walks in parallel while
// keeping the output independent of scheduling.
package walk

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/kce/internal/graph"
)

// Func produces one walk from start using rng.
type Func func(start string, rng *rand.Rand) []string

// Uniform returns a weighted random walk of the given length from start.
// A start without neighbors yields start repeated length times.
func Uniform(g *graph.Graph, start string, length int, rng *rand.Rand) []string {
	walk := make([]string, 0, length)
	walk = append(walk, start)
	cur := start
	var nbrs []string
	// Buffers and the visitor are reused across steps.
	var (
		prev    string
		nbrs    []string
		weights []float64
		total   float64
	)
	visit := func(n string, _ float64) {
		var w float64
		switch {
		case n == prev:
			w = 1 / p
		case g.HasEdge(n, prev):
			w = 1
		default:
			w = 1 / q
		}
		nbrs = append(nbrs, n)
		weights = append(weights, w)
		total += w
	}
	for len(walk) < length {
		prev = walk[len(walk)-2]
		nbrs, weights, total = nbrs[:0], weights[:0], 0
		g.WeightedNeighbors(walk[len(walk)-1], visit)
		walk = append(walk, nbrs[pick(weights, total, rng)])
	}
	return walk
}

func pick(weights []float64, total float64, rng *rand.Rand) int {
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return i
		}
	}
	return len(weights) - 1
}

// Options configures Corpus.
type Options struct {
	// Seed makes the corpus reproducible. Walk i draws from an RNG seeded
	// with (Seed, i), so results do not depend on Workers.
	Seed uint64
	// Workers bounds parallelism. Zero means runtime.GOMAXPROCS(0).
	Workers int
}

// Corpus generates one walk per entry of starts.
func Corpus(ctx context.Context, starts []string, opts Options, fn Func) ([][]string, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(starts) {
		workers = len(starts)
	}
	out := make([][]string, len(starts))
	if len(starts) == 0 {
		return out, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for w := 0; w < workers; w++ {
		eg.Go(func() error {
			for i := w; i < len(starts); i += workers {
				if i%256 == 0 {
					if err := egCtx.Err(); err != nil {
						return err
					}
				}
				rng := rand.New(rand.NewPCG(opts.Seed, uint64(i)))
				out[i] = fn(starts[i], rng)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("generate walks: %w", err)
	}
	return out, nil
}

// Shuffle permutes walks in place.
func Shuffle(walks [][]string, rng *rand.Rand) {
	rng.Shuffle(len(walks), func(i, j int) { walks[i], walks[j] = walks[j], walks[i] })
}

// Repeat returns nodes concatenated n times, the start list for n walks per node.
func Repeat(nodes []string, n int) []string {
	out := make([]string, 0, len(nodes)*n)
	for i := 0; i < n; i++ {
		out = append(out, nodes...)
	}
	return out
}
