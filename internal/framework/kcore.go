// Package framework holds propagation frameworks: embedders that delegate
// part of the graph to a sub-embedder and extend the result over the rest.
package framework

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/roach88/kce/internal/ctxlog"
	"github.com/roach88/kce/internal/embedder"
	"github.com/roach88/kce/internal/graph"
)

// ErrEmptyCore indicates the requested k-core has no nodes.
var ErrEmptyCore = errors.New("framework: k-core is empty")

// DefaultMaxIter is the number of propagation sweeps per layer.
const DefaultMaxIter = 20

// KCoreParams are the framework's own hyperparameters.
type KCoreParams struct {
	// MaxIter is the number of sweeps per propagation layer.
	MaxIter int `json:"max_iter"`
	// CoreIndex is used when the fit options do not choose a core.
	CoreIndex int `json:"core_index"`
}

// KCore embeds a k-core of the graph with a sub-embedder, then propagates
// vectors outward one frontier layer at a time.
type KCore struct {
	sub    embedder.Embedder
	params KCoreParams

	timings     embedder.Timings
	coreIndex   int
	coreSize    int
	layers      int
	unreachable []string
}

// NewKCore wraps sub. A zero MaxIter takes DefaultMaxIter.
func NewKCore(sub embedder.Embedder, p KCoreParams) (*KCore, error) {
	if sub == nil {
		return nil, fmt.Errorf("%w: k_core needs a sub-embedder", embedder.ErrInvalidParams)
	}
	if p.MaxIter == 0 {
		p.MaxIter = DefaultMaxIter
	}
	if p.MaxIter < 0 {
		return nil, fmt.Errorf("%w: max_iter must be positive, got %d", embedder.ErrInvalidParams, p.MaxIter)
	}
	return &KCore{sub: sub, params: p, timings: embedder.Timings{}}, nil
}

// Name implements embedder.Embedder.
func (k *KCore) Name() string { return "k_core" }

// Dim implements embedder.Embedder. It is the sub-embedder's dimension.
func (k *KCore) Dim() int { return k.sub.Dim() }

// Sub returns the wrapped embedder.
func (k *KCore) Sub() embedder.Embedder { return k.sub }

// Unreachable returns the nodes the last Fit could not reach from the core.
func (k *KCore) Unreachable() []string { return k.unreachable }

// Attributes implements embedder.Embedder. Sub-embedder attributes are
// included with a "sub_" prefix.
func (k *KCore) Attributes() map[string]any {
	attrs := map[string]any{
		"out_dim":       k.Dim(),
		"core_index":    k.coreIndex,
		"core_size":     k.coreSize,
		"max_iter":      k.params.MaxIter,
		"n_layers":      k.layers,
		"n_unreachable": len(k.unreachable),
		"sub_embedder":  k.sub.Name(),
	}
	for key, v := range k.sub.Attributes() {
		attrs["sub_"+key] = v
	}
	k.timings.Export(attrs)
	return attrs
}

// Fit implements embedder.Embedder.
func (k *KCore) Fit(ctx context.Context, g *graph.Graph, opts embedder.FitOptions) (*embedder.Embedding, error) {
	if g.Order() == 0 {
		return nil, embedder.ErrEmptyGraph
	}
	k.timings = embedder.Timings{}
	k.unreachable = nil
	k.layers = 0

	k.coreIndex = opts.CoreIndex
	if k.coreIndex <= 0 {
		k.coreIndex = k.params.CoreIndex
	}

	var core *graph.Graph
	err := k.timings.Measure("k_core", func() error {
		cores, err := g.CoreNumbers()
		if err != nil {
			return err
		}
		if k.coreIndex <= 0 {
			k.coreIndex = graph.MaxCore(cores)
		}
		core = g.Subgraph(func(id string) bool { return cores[id] >= k.coreIndex })
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("k_core: %w", err)
	}
	if core.Order() == 0 {
		return nil, fmt.Errorf("%w: core_index=%d", ErrEmptyCore, k.coreIndex)
	}
	k.coreSize = core.Order()

	var emb *embedder.Embedding
	err = k.timings.Measure("embed", func() error {
		var err error
		emb, err = k.sub.Fit(ctx, core, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("k_core: embed core: %w", err)
	}

	err = k.timings.Measure("propagate", func() error {
		return k.propagate(ctx, g, emb, rand.New(rand.NewPCG(opts.Seed, 2)))
	})
	if err != nil {
		return nil, fmt.Errorf("k_core: %w", err)
	}
	return emb, nil
}

// propagate extends emb, which covers the core, to every node of g.
//
// Each layer takes the frontier R of nodes adjacent to the embedded set E,
// starts R at uniform noise in [-1, 1] and runs MaxIter Jacobi sweeps of
//
//	z_r = Σ_{n ∈ N(r) ∩ (E ∪ R)} w(r, n) / d_r · z_n
//
// where d_r is r's total weight towards E ∪ R. Nodes never reached get zero
// vectors.
func (k *KCore) propagate(ctx context.Context, g *graph.Graph, emb *embedder.Embedding, rng *rand.Rand) error {
	logger := ctxlog.FromContext(ctx)
	dim := emb.Dim()
	embedded := make(map[string]bool, g.Order())
	for _, n := range emb.ID2Node {
		if g.HasNode(n) {
			embedded[n] = true
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frontier := g.Frontier(embedded)
		if len(frontier) == 0 {
			break
		}
		logger.Info("propagating",
			"embedded", len(embedded),
			"reachable", len(frontier),
			"total", g.Order())

		pos := make(map[string]int, len(frontier))
		for i, n := range frontier {
			pos[n] = i
		}

		type link struct {
			row   []float64 // vector of an embedded neighbor, nil for a frontier one
			idx   int       // frontier position when row is nil
			share float64
		}
		links := make([][]link, len(frontier))
		for i, r := range frontier {
			total := 0.0
			g.WeightedNeighbors(r, func(n string, w float64) {
				if vec, ok := emb.Vector(n); ok && embedded[n] {
					links[i] = append(links[i], link{row: vec, share: w})
					total += w
				} else if j, ok := pos[n]; ok {
					links[i] = append(links[i], link{idx: j, share: w})
					total += w
				}
			})
			if total == 0 {
				links[i] = nil
				continue
			}
			for l := range links[i] {
				links[i][l].share /= total
			}
		}

		z := make([][]float64, len(frontier))
		for i := range z {
			z[i] = make([]float64, dim)
			for d := range z[i] {
				z[i][d] = rng.Float64()*2 - 1
			}
		}
		next := make([][]float64, len(frontier))
		for i := range next {
			next[i] = make([]float64, dim)
		}
		for it := 0; it < k.params.MaxIter; it++ {
			for i := range frontier {
				out := next[i]
				for d := range out {
					out[d] = 0
				}
				for _, l := range links[i] {
					src := l.row
					if src == nil {
						src = z[l.idx]
					}
					for d := range out {
						out[d] += l.share * src[d]
					}
				}
			}
			z, next = next, z
		}

		for i, r := range frontier {
			vec := make([]float64, dim)
			copy(vec, z[i])
			emb.Append(r, vec)
			embedded[r] = true
		}
		k.layers++
	}

	for _, n := range g.Nodes() {
		if embedded[n] {
			continue
		}
		k.unreachable = append(k.unreachable, n)
		emb.Append(n, make([]float64, dim))
	}
	if len(k.unreachable) > 0 {
		logger.Warn("nodes unreachable from core", "count", len(k.unreachable))
	}
	return nil
}
