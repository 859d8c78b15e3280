package embedder

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/roach88/kce/internal/ctxlog"
	"github.com/roach88/kce/internal/graph"
	"github.com/roach88/kce/internal/walk"
	"github.com/roach88/kce/internal/word2vec"
)

// WalkParams are the hyperparameters shared by every walk-based embedder.
type WalkParams struct {
	OutDim     int `json:"out_dim"`
	NWalks     int `json:"n_walks"`
	WalkLength int `json:"walk_length"`
	WinSize    int `json:"win_size"`
	Epochs     int `json:"epochs"`
}

func (p WalkParams) validate() error {
	switch {
	case p.OutDim <= 0:
		return fmt.Errorf("%w: out_dim must be positive, got %d", ErrInvalidParams, p.OutDim)
	case p.NWalks <= 0:
		return fmt.Errorf("%w: n_walks must be positive, got %d", ErrInvalidParams, p.NWalks)
	case p.WalkLength <= 0:
		return fmt.Errorf("%w: walk_length must be positive, got %d", ErrInvalidParams, p.WalkLength)
	case p.WinSize <= 0:
		return fmt.Errorf("%w: win_size must be positive, got %d", ErrInvalidParams, p.WinSize)
	case p.Epochs < 0:
		return fmt.Errorf("%w: epochs must not be negative, got %d", ErrInvalidParams, p.Epochs)
	}
	return nil
}

// Budget decides how many walks start at a node of core number k in a graph
// whose largest core number is kMax.
type Budget interface {
	Walks(k, kMax int) int
	Attributes() map[string]any
}

// Walker is a walk-based embedder: it generates a corpus of random walks and
// trains skip-gram on it. DeepWalk, CoreWalk and node2vec are all Walkers
// with a different start budget or step rule.
type Walker struct {
	name   string
	params WalkParams

	// budget is nil for a flat n_walks per node.
	budget Budget

	// biased selects node2vec steps with return p and in-out q.
	biased bool
	p, q   float64

	timings   Timings
	generated int
}

// NewDeepWalk returns a DeepWalk embedder.
func NewDeepWalk(p WalkParams) (*Walker, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Walker{name: "deepwalk", params: p, timings: Timings{}}, nil
}

// NewCoreWalk returns a CoreWalk embedder whose walks per node follow b.
func NewCoreWalk(name string, p WalkParams, b Budget) (*Walker, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: corewalk needs a walk budget", ErrInvalidParams)
	}
	return &Walker{name: name, params: p, budget: b, timings: Timings{}}, nil
}

// Node2VecParams adds the node2vec bias parameters to WalkParams.
type Node2VecParams struct {
	WalkParams
	P float64 `json:"p"`
	Q float64 `json:"q"`
}

// Default node2vec bias parameters.
const (
	DefaultP = 0.7
	DefaultQ = 10
)

// NewNode2Vec returns a node2vec embedder. Zero P or Q take the defaults.
func NewNode2Vec(p Node2VecParams) (*Walker, error) {
	if err := p.WalkParams.validate(); err != nil {
		return nil, err
	}
	if p.P == 0 {
		p.P = DefaultP
	}
	if p.Q == 0 {
		p.Q = DefaultQ
	}
	if p.P < 0 || p.Q < 0 {
		return nil, fmt.Errorf("%w: p and q must be positive, got p=%g q=%g", ErrInvalidParams, p.P, p.Q)
	}
	return &Walker{name: "node2vec", params: p.WalkParams, biased: true, p: p.P, q: p.Q, timings: Timings{}}, nil
}

// Name implements Embedder.
func (w *Walker) Name() string { return w.name }

// Dim implements Embedder.
func (w *Walker) Dim() int { return w.params.OutDim }

// Attributes implements Embedder.
func (w *Walker) Attributes() map[string]any {
	attrs := map[string]any{
		"out_dim":           w.params.OutDim,
		"n_walks":           w.params.NWalks,
		"walk_length":       w.params.WalkLength,
		"window_size":       w.params.WinSize,
		"n_generated_walks": w.generated,
	}
	if w.budget != nil {
		for k, v := range w.budget.Attributes() {
			attrs[k] = v
		}
	}
	if w.biased {
		attrs["p"] = w.p
		attrs["q"] = w.q
	}
	w.timings.Export(attrs)
	return attrs
}

// Fit implements Embedder.
func (w *Walker) Fit(ctx context.Context, g *graph.Graph, opts FitOptions) (*Embedding, error) {
	if g.Order() == 0 {
		return nil, ErrEmptyGraph
	}
	w.timings = Timings{}
	logger := ctxlog.FromContext(ctx)
	rng := rand.New(rand.NewPCG(opts.Seed, 1))

	starts, err := w.starts(g, rng)
	if err != nil {
		return nil, err
	}

	var corpus [][]string
	err = w.timings.Measure("generate_walks", func() error {
		var err error
		corpus, err = walk.Corpus(ctx, starts, walk.Options{Seed: opts.Seed, Workers: opts.Workers}, w.step(g))
		return err
	})
	if err != nil {
		return nil, err
	}
	walk.Shuffle(corpus, rng)
	w.generated = len(corpus)
	logger.Debug("walks generated", "embedder", w.name, "walks", len(corpus), "nodes", g.Order())

	var vecs *word2vec.Vectors
	err = w.timings.Measure("skip_gram", func() error {
		opt := word2vec.DefaultOptions()
		opt.Dim = w.params.OutDim
		opt.Window = w.params.WinSize
		opt.Seed = opts.Seed
		if w.params.Epochs > 0 {
			opt.Epochs = w.params.Epochs
		}
		var err error
		vecs, err = word2vec.Train(ctx, corpus, opt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: train skip-gram: %w", w.name, err)
	}
	return NewEmbedding(vecs.Words, vecs.Data), nil
}

func (w *Walker) step(g *graph.Graph) walk.Func {
	length := w.params.WalkLength
	if w.biased {
		p, q := w.p, w.q
		return func(start string, rng *rand.Rand) []string {
			return walk.Biased(g, start, length, p, q, rng)
		}
	}
	return func(start string, rng *rand.Rand) []string {
		return walk.Uniform(g, start, length, rng)
	}
}

// starts returns the start node of every walk.
func (w *Walker) starts(g *graph.Graph, rng *rand.Rand) ([]string, error) {
	nodes := g.Nodes()
	if w.budget == nil {
		if !w.biased {
			return walk.Repeat(nodes, w.params.NWalks), nil
		}
		// node2vec visits the nodes in a fresh random order on every pass.
		out := make([]string, 0, len(nodes)*w.params.NWalks)
		for i := 0; i < w.params.NWalks; i++ {
			rng.Shuffle(len(nodes), func(a, b int) { nodes[a], nodes[b] = nodes[b], nodes[a] })
			out = append(out, nodes...)
		}
		return out, nil
	}

	var cores map[string]int
	err := w.timings.Measure("k_core_decomposition", func() error {
		var err error
		cores, err = g.CoreNumbers()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.name, err)
	}
	kMax := graph.MaxCore(cores)
	perCore := make(map[int]int)
	var out []string
	for _, n := range nodes {
		k := cores[n]
		count, ok := perCore[k]
		if !ok {
			count = w.budget.Walks(k, kMax)
			perCore[k] = count
		}
		for i := 0; i < count; i++ {
			out = append(out, n)
		}
	}
	return out, nil
}

func coreRatio(k, kMax int) float64 {
	if kMax <= 0 {
		return 0
	}
	return float64(k) / float64(kMax)
}

// LinearBudget scales walks linearly with the core ratio k/kMax, from
// Offset at k=0 to NWalks at the main core, never below NMin.
type LinearBudget struct {
	NWalks int     `json:"n_walks"`
	Offset float64 `json:"offset"`
	NMin   int     `json:"n_min"`
}

// Walks implements Budget.
func (b LinearBudget) Walks(k, kMax int) int {
	n := int((float64(b.NWalks)-b.Offset)*coreRatio(k, kMax) + b.Offset)
	return max(n, b.NMin)
}

// Attributes implements Budget.
func (b LinearBudget) Attributes() map[string]any {
	return map[string]any{"offset": b.Offset, "n_min": b.NMin}
}

// PowerBudget scales walks with (k/kMax)^Pow, at least one.
type PowerBudget struct {
	NWalks int     `json:"n_walks"`
	Pow    float64 `json:"pow"`
}

// Walks implements Budget.
func (b PowerBudget) Walks(k, kMax int) int {
	n := int(float64(b.NWalks) * math.Pow(coreRatio(k, kMax), b.Pow))
	return max(n, 1)
}

// Attributes implements Budget.
func (b PowerBudget) Attributes() map[string]any {
	return map[string]any{"pow": b.Pow}
}

// SigmoidBudget scales walks with a sigmoid centred on kMax/2, at least one.
type SigmoidBudget struct {
	NWalks int `json:"n_walks"`
}

// Walks implements Budget.
func (b SigmoidBudget) Walks(k, kMax int) int {
	x := 0.0
	if kMax > 0 {
		x = 10 * (float64(k) - float64(kMax)/2) / float64(kMax)
	}
	n := int(float64(b.NWalks) / (1 + math.Exp(-x)))
	return max(n, 1)
}

// Attributes implements Budget.
func (b SigmoidBudget) Attributes() map[string]any {
	return map[string]any{}
}
