package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kce/internal/embedder"
	"github.com/roach88/kce/internal/framework"
)

func walkParams() map[string]any {
	return map[string]any{
		"out_dim":     16,
		"n_walks":     10,
		"walk_length": 20,
		"win_size":    5,
		"train":       map[string]any{"core_index": 2},
	}
}

func TestParse(t *testing.T) {
	for _, k := range Kinds() {
		got, err := Parse(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := Parse("line")
	assert.ErrorIs(t, err, ErrUnknownEmbedder)
}

func TestIsFramework(t *testing.T) {
	assert.True(t, KCore.IsFramework())
	assert.False(t, DeepWalk.IsFramework())
	assert.False(t, Node2Vec.IsFramework())
}

func TestNew_PlainEmbedders(t *testing.T) {
	for _, k := range []Kind{DeepWalk, CoreWalkLinear, CoreWalkPower, CoreWalkSigmoid, Node2Vec} {
		t.Run(string(k), func(t *testing.T) {
			e, err := New(k, walkParams(), "", nil)
			require.NoError(t, err)
			assert.Equal(t, string(k), e.Name())
			assert.Equal(t, 16, e.Dim())
		})
	}
}

func TestNew_CoreWalkDefaults(t *testing.T) {
	e, err := New(CoreWalkLinear, walkParams(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Attributes()["n_min"])
	assert.Equal(t, 0.0, e.Attributes()["offset"])

	e, err = New(CoreWalkPower, walkParams(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.Attributes()["pow"])

	p := walkParams()
	p["pow"] = 2.5
	e, err = New(CoreWalkPower, p, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 2.5, e.Attributes()["pow"])
}

func TestNew_Framework(t *testing.T) {
	e, err := New(KCore, map[string]any{"max_iter": 5}, DeepWalk, walkParams())
	require.NoError(t, err)

	kc, ok := e.(*framework.KCore)
	require.True(t, ok)
	assert.Equal(t, "deepwalk", kc.Sub().Name())
	assert.Equal(t, 16, kc.Dim())
	assert.Equal(t, 5, kc.Attributes()["max_iter"])
}

func TestNew_FrameworkErrors(t *testing.T) {
	_, err := New(KCore, nil, "", nil)
	assert.ErrorIs(t, err, embedder.ErrInvalidParams)

	_, err = New(KCore, nil, KCore, nil)
	assert.ErrorIs(t, err, embedder.ErrInvalidParams)

	_, err = New(KCore, nil, DeepWalk, map[string]any{"out_dim": 0})
	assert.ErrorIs(t, err, embedder.ErrInvalidParams)
}

func TestNew_Unknown(t *testing.T) {
	_, err := New(Kind("spectral"), walkParams(), "", nil)
	assert.ErrorIs(t, err, ErrUnknownEmbedder)
}

func TestNew_BadParams(t *testing.T) {
	_, err := New(DeepWalk, map[string]any{"out_dim": 16}, "", nil)
	assert.ErrorIs(t, err, embedder.ErrInvalidParams)
}
