package framework

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kce/internal/embedder"
	"github.com/roach88/kce/internal/graph"
)

// fixedEmbedder assigns preset vectors and zeros to everything else.
type fixedEmbedder struct {
	dim    int
	vecs   map[string][]float64
	fitted []string
}

func (f *fixedEmbedder) Name() string { return "fixed" }
func (f *fixedEmbedder) Dim() int     { return f.dim }
func (f *fixedEmbedder) Attributes() map[string]any {
	return map[string]any{"out_dim": f.dim}
}

func (f *fixedEmbedder) Fit(_ context.Context, g *graph.Graph, _ embedder.FitOptions) (*embedder.Embedding, error) {
	f.fitted = g.Nodes()
	vecs := make([][]float64, len(f.fitted))
	for i, n := range f.fitted {
		v, ok := f.vecs[n]
		if !ok {
			v = make([]float64, f.dim)
		}
		vecs[i] = append([]float64(nil), v...)
	}
	return embedder.NewEmbedding(f.fitted, vecs), nil
}

func build(t *testing.T, edges [][3]any) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, e := range edges {
		w := graph.DefaultWeight
		if e[2] != nil {
			w = e[2].(float64)
		}
		require.NoError(t, g.AddEdge(e[0].(string), e[1].(string), w))
	}
	return g
}

func TestKCore_PropagatesLayerByLayer(t *testing.T) {
	g := build(t, [][3]any{
		{"a", "b", nil}, {"b", "c", nil}, {"a", "c", nil},
		{"c", "d", nil}, {"d", "e", nil},
		{"f", "g", nil},
	})
	sub := &fixedEmbedder{dim: 2, vecs: map[string][]float64{
		"a": {1, 0}, "b": {1, 0}, "c": {1, 0},
	}}
	kc, err := NewKCore(sub, KCoreParams{})
	require.NoError(t, err)

	emb, err := kc.Fit(context.Background(), g, embedder.FitOptions{CoreIndex: 2, Seed: 1})
	require.NoError(t, err)
	require.NoError(t, emb.Validate())

	assert.Equal(t, []string{"a", "b", "c"}, sub.fitted)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g"}, emb.ID2Node)

	for _, n := range []string{"d", "e"} {
		v, _ := emb.Vector(n)
		assert.InDeltaSlice(t, []float64{1, 0}, v, 1e-12, n)
	}
	for _, n := range []string{"f", "g"} {
		v, _ := emb.Vector(n)
		assert.Equal(t, []float64{0, 0}, v, n)
	}
	assert.Equal(t, []string{"f", "g"}, kc.Unreachable())

	attrs := kc.Attributes()
	assert.Equal(t, 2, attrs["core_index"])
	assert.Equal(t, 3, attrs["core_size"])
	assert.Equal(t, 2, attrs["n_layers"])
	assert.Equal(t, 2, attrs["n_unreachable"])
	assert.Equal(t, DefaultMaxIter, attrs["max_iter"])
	assert.Equal(t, "fixed", attrs["sub_embedder"])
	assert.Equal(t, 2, attrs["sub_out_dim"])
	assert.Contains(t, attrs, "k_core_time")
	assert.Contains(t, attrs, "embed_time")
	assert.Contains(t, attrs, "propagate_time")
}

func TestKCore_WeightedMean(t *testing.T) {
	// K4 on a..d is the 3-core; x hangs off a and b with weights 1 and 3.
	g := build(t, [][3]any{
		{"a", "b", nil}, {"a", "c", nil}, {"a", "d", nil},
		{"b", "c", nil}, {"b", "d", nil}, {"c", "d", nil},
		{"x", "a", 1.0}, {"x", "b", 3.0},
	})
	sub := &fixedEmbedder{dim: 1, vecs: map[string][]float64{"a": {4}, "b": {8}}}
	kc, err := NewKCore(sub, KCoreParams{MaxIter: 3})
	require.NoError(t, err)

	emb, err := kc.Fit(context.Background(), g, embedder.FitOptions{})
	require.NoError(t, err)

	v, ok := emb.Vector("x")
	require.True(t, ok)
	assert.InDelta(t, 7.0, v[0], 1e-12)
	assert.Equal(t, 3, kc.Attributes()["core_index"])
}

func TestKCore_CoreIndexFromParams(t *testing.T) {
	g := build(t, [][3]any{
		{"a", "b", nil}, {"b", "c", nil}, {"a", "c", nil}, {"c", "d", nil},
	})
	sub := &fixedEmbedder{dim: 1}
	kc, err := NewKCore(sub, KCoreParams{CoreIndex: 1})
	require.NoError(t, err)

	_, err = kc.Fit(context.Background(), g, embedder.FitOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, sub.fitted)
}

func TestKCore_EmptyCore(t *testing.T) {
	g := build(t, [][3]any{{"a", "b", nil}})
	kc, err := NewKCore(&fixedEmbedder{dim: 1}, KCoreParams{})
	require.NoError(t, err)

	_, err = kc.Fit(context.Background(), g, embedder.FitOptions{CoreIndex: 5})
	assert.ErrorIs(t, err, ErrEmptyCore)
}

func TestKCore_EmptyGraph(t *testing.T) {
	kc, err := NewKCore(&fixedEmbedder{dim: 1}, KCoreParams{})
	require.NoError(t, err)
	_, err = kc.Fit(context.Background(), graph.New(), embedder.FitOptions{})
	assert.ErrorIs(t, err, embedder.ErrEmptyGraph)
}

func TestNewKCore_Validation(t *testing.T) {
	_, err := NewKCore(nil, KCoreParams{})
	assert.ErrorIs(t, err, embedder.ErrInvalidParams)

	_, err = NewKCore(&fixedEmbedder{dim: 1}, KCoreParams{MaxIter: -1})
	assert.ErrorIs(t, err, embedder.ErrInvalidParams)
}

func TestKCore_Cancelled(t *testing.T) {
	g := build(t, [][3]any{
		{"a", "b", nil}, {"b", "c", nil}, {"a", "c", nil}, {"c", "d", nil},
	})
	kc, err := NewKCore(&fixedEmbedder{dim: 1}, KCoreParams{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = kc.Fit(ctx, g, embedder.FitOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
