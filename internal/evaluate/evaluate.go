// Package evaluate scores embeddings on downstream tasks: node
// classification and missing-edge (link) prediction.
//
// Both tasks split the samples at random, train one-vs-rest logistic
// regression on the training part and report F1 scores on the rest.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/roach88/kce/internal/embedder"
	"github.com/roach88/kce/internal/graph"
)

var (
	// ErrNoLabels indicates no node carries the label attribute.
	ErrNoLabels = errors.New("evaluate: no labelled nodes")

	// ErrShapeMismatch indicates misaligned truth and prediction data.
	ErrShapeMismatch = errors.New("evaluate: shape mismatch")

	// ErrSingleClass indicates a score needs both classes but saw one.
	ErrSingleClass = errors.New("evaluate: only one class present")

	// ErrTooFewSamples indicates the split leaves a side empty.
	ErrTooFewSamples = errors.New("evaluate: too few samples to split")

	// ErrMissingVector indicates a node has no row in the embedding.
	ErrMissingVector = errors.New("evaluate: node missing from embedding")
)

// Metric names reported by the tasks.
const (
	MicroF1 = "micro_f1"
	MacroF1 = "macro_f1"
	AUC     = "auc"
)

// Options configure both tasks.
type Options struct {
	// TestSize is the share of samples held out, in (0, 1).
	TestSize float64
	// Seed drives the split and negative sampling.
	Seed uint64
	// LabelAttr is the node attribute holding labels.
	LabelAttr string
	// C is the inverse L2 regularisation strength.
	C float64
	// MaxIter bounds the L-BFGS iterations of each fit.
	MaxIter int
}

// DefaultOptions returns a 60% test split with C=1.
func DefaultOptions() Options {
	return Options{
		TestSize:  0.6,
		LabelAttr: DefaultLabelAttr,
		C:         1,
		MaxIter:   100,
	}
}

func (o Options) validate() error {
	switch {
	case o.TestSize <= 0 || o.TestSize >= 1:
		return fmt.Errorf("evaluate: test size must be in (0, 1), got %g", o.TestSize)
	case o.C <= 0:
		return fmt.Errorf("evaluate: C must be positive, got %g", o.C)
	case o.MaxIter <= 0:
		return fmt.Errorf("evaluate: max iterations must be positive, got %d", o.MaxIter)
	}
	return nil
}

// NodeClassification predicts node labels from their vectors and returns
// micro_f1 and macro_f1.
func NodeClassification(ctx context.Context, g *graph.Graph, emb *embedder.Embedding, opts Options) (map[string]float64, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.LabelAttr == "" {
		opts.LabelAttr = DefaultLabelAttr
	}
	labels, err := ExtractLabels(g, opts.LabelAttr)
	if err != nil {
		return nil, err
	}
	x := make([][]float64, len(labels.Nodes))
	for i, n := range labels.Nodes {
		v, ok := emb.Vector(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingVector, n)
		}
		x[i] = v
	}

	rng := rand.New(rand.NewPCG(opts.Seed, 3))
	train, test, err := split(len(x), opts.TestSize, rng)
	if err != nil {
		return nil, err
	}
	model, err := fitOneVsRest(ctx, pickRows(x, train), pickRows(labels.Y, train), opts)
	if err != nil {
		return nil, err
	}
	pred := model.predict(pickRows(x, test), labels.MultiLabel)
	return scoreF1(pickRows(labels.Y, test), pred)
}

// LinkPrediction classifies node pairs as edges or non-edges from the
// Hadamard product of their vectors. Positives are the edges of g and
// negatives an equal number of sampled non-adjacent pairs. It returns auc,
// micro_f1 and macro_f1.
func LinkPrediction(ctx context.Context, g *graph.Graph, emb *embedder.Embedding, opts Options) (map[string]float64, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(opts.Seed, 4))

	edges := g.Edges()
	type pair struct{ u, v string }
	pairs := make([]pair, 0, 2*len(edges))
	var truth []bool
	for _, e := range edges {
		if e.U == e.V {
			continue
		}
		pairs = append(pairs, pair{e.U, e.V})
		truth = append(truth, true)
	}
	positives := len(pairs)

	nodes := g.Nodes()
	seen := make(map[pair]bool)
	for attempts := 0; len(pairs) < 2*positives && attempts < 100*positives+100; attempts++ {
		u, v := nodes[rng.IntN(len(nodes))], nodes[rng.IntN(len(nodes))]
		if u == v || g.HasEdge(u, v) || seen[pair{u, v}] || seen[pair{v, u}] {
			continue
		}
		seen[pair{u, v}] = true
		pairs = append(pairs, pair{u, v})
		truth = append(truth, false)
	}
	if positives == 0 || len(pairs) == positives {
		return nil, fmt.Errorf("%w: %d edges, %d non-edges", ErrTooFewSamples, positives, len(pairs)-positives)
	}

	x := make([][]float64, len(pairs))
	for i, p := range pairs {
		a, ok := emb.Vector(p.u)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingVector, p.u)
		}
		b, ok := emb.Vector(p.v)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingVector, p.v)
		}
		h := make([]float64, len(a))
		floats.MulTo(h, a, b)
		x[i] = h
	}

	train, test, err := split(len(x), opts.TestSize, rng)
	if err != nil {
		return nil, err
	}
	trainY := make([]bool, len(train))
	for i, j := range train {
		trainY[i] = truth[j]
	}
	hasPos, hasNeg := false, false
	for _, t := range trainY {
		hasPos = hasPos || t
		hasNeg = hasNeg || !t
	}
	if !hasPos || !hasNeg {
		return nil, fmt.Errorf("link prediction: %w in training split", ErrSingleClass)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, err := fitLogistic(pickRows(x, train), trainY, opts)
	if err != nil {
		return nil, fmt.Errorf("link prediction: %w", err)
	}

	scores := make([]float64, len(test))
	testY := make([]bool, len(test))
	trueRows := make([][]bool, len(test))
	predRows := make([][]bool, len(test))
	for i, j := range test {
		scores[i] = model.prob(x[j])
		testY[i] = truth[j]
		trueRows[i] = []bool{!truth[j], truth[j]}
		predRows[i] = []bool{scores[i] <= 0.5, scores[i] > 0.5}
	}

	out, err := scoreF1(trueRows, predRows)
	if err != nil {
		return nil, err
	}
	auc, err := ROCAUC(scores, testY)
	if err != nil {
		return nil, fmt.Errorf("link prediction: %w", err)
	}
	out[AUC] = auc
	return out, nil
}

func scoreF1(truth, pred [][]bool) (map[string]float64, error) {
	micro, err := F1Micro(truth, pred)
	if err != nil {
		return nil, err
	}
	macro, err := F1Macro(truth, pred)
	if err != nil {
		return nil, err
	}
	return map[string]float64{MicroF1: micro, MacroF1: macro}, nil
}

// split permutes 0..n-1 and holds out ceil(testSize·n) indices.
func split(n int, testSize float64, rng *rand.Rand) (train, test []int, err error) {
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < 1 || nTest >= n {
		return nil, nil, fmt.Errorf("%w: %d samples at test size %g", ErrTooFewSamples, n, testSize)
	}
	perm := rng.Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

func pickRows[T any](rows []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}
