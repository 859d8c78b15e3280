package word2vec

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clusteredCorpus() [][]string {
	rng := rand.New(rand.NewPCG(11, 12))
	a := []string{"a1", "a2", "a3", "a4"}
	b := []string{"b1", "b2", "b3", "b4"}
	var corpus [][]string
	for i := 0; i < 200; i++ {
		src := a
		if i%2 == 1 {
			src = b
		}
		s := make([]string, 10)
		for j := range s {
			s[j] = src[rng.IntN(len(src))]
		}
		corpus = append(corpus, s)
	}
	return corpus
}

func cosine(x, y []float64) float64 {
	var dot, nx, ny float64
	for i := range x {
		dot += x[i] * y[i]
		nx += x[i] * x[i]
		ny += y[i] * y[i]
	}
	return dot / (math.Sqrt(nx) * math.Sqrt(ny))
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Dim = 16
	opts.Window = 3
	opts.Seed = 7
	return opts
}

func TestTrain_SeparatesClusters(t *testing.T) {
	vecs, err := Train(context.Background(), clusteredCorpus(), testOptions())
	require.NoError(t, err)
	require.Len(t, vecs.Words, 8)

	a1, _ := vecs.Vector("a1")
	a2, _ := vecs.Vector("a2")
	b1, _ := vecs.Vector("b1")
	b2, _ := vecs.Vector("b2")

	assert.Greater(t, cosine(a1, a2), cosine(a1, b1))
	assert.Greater(t, cosine(b1, b2), cosine(b1, a2))
}

func TestTrain_Deterministic(t *testing.T) {
	corpus := clusteredCorpus()
	v1, err := Train(context.Background(), corpus, testOptions())
	require.NoError(t, err)
	v2, err := Train(context.Background(), corpus, testOptions())
	require.NoError(t, err)
	assert.Equal(t, v1.Words, v2.Words)
	assert.Equal(t, v1.Data, v2.Data)
}

func TestTrain_VocabularyOrder(t *testing.T) {
	corpus := [][]string{{"x", "y", "y", "z", "z", "z"}, {"w", "y"}}
	vecs, err := Train(context.Background(), corpus, testOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z", "w", "x"}, vecs.Words)
	assert.Equal(t, 0, vecs.Index["y"])
	for _, row := range vecs.Data {
		assert.Len(t, row, 16)
	}
}

func TestTrain_SingleToken(t *testing.T) {
	vecs, err := Train(context.Background(), [][]string{{"only", "only"}}, testOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, vecs.Words)
}

func TestTrain_Errors(t *testing.T) {
	_, err := Train(context.Background(), nil, testOptions())
	assert.ErrorIs(t, err, ErrEmptyCorpus)

	bad := testOptions()
	bad.Dim = 0
	_, err = Train(context.Background(), clusteredCorpus(), bad)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	bad = testOptions()
	bad.MinAlpha = 1
	_, err = Train(context.Background(), clusteredCorpus(), bad)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestTrain_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Train(ctx, clusteredCorpus(), testOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildHuffman_PrefixFreeCodes(t *testing.T) {
	corpus := [][]string{strings.Split("a a a a a b b b c c d e", " ")}
	vocab, _ := buildVocab(corpus)
	buildHuffman(vocab)

	codes := make([]string, len(vocab))
	for i, w := range vocab {
		require.NotEmpty(t, w.code)
		require.Len(t, w.point, len(w.code))
		var sb strings.Builder
		for _, c := range w.code {
			sb.WriteByte('0' + c)
		}
		codes[i] = sb.String()
		for _, p := range w.point {
			assert.GreaterOrEqual(t, p, 0)
			assert.Less(t, p, len(vocab)-1)
		}
	}
	for i := range codes {
		for j := range codes {
			if i != j {
				assert.False(t, strings.HasPrefix(codes[j], codes[i]), "%s prefixes %s", codes[i], codes[j])
			}
		}
	}
	// The most frequent word never gets a longer code than the rarest.
	assert.LessOrEqual(t, len(vocab[0].code), len(vocab[len(vocab)-1].code))
}
