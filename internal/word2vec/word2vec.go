// Package word2vec trains skip-gram token embeddings with hierarchical
// softmax. Walk-based embedders feed it random walks as sentences.
//
// Training is single-threaded and fully determined by Options.Seed.
package word2vec

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

var (
	// ErrEmptyCorpus indicates there was nothing to train on.
	ErrEmptyCorpus = errors.New("word2vec: empty corpus")

	// ErrInvalidOptions indicates a non-positive dimension, window or epoch count.
	ErrInvalidOptions = errors.New("word2vec: invalid options")
)

// Options configures training.
type Options struct {
	Dim      int
	Window   int
	Epochs   int
	Alpha    float64
	MinAlpha float64
	Seed     uint64
}

// DefaultOptions returns the usual skip-gram settings.
func DefaultOptions() Options {
	return Options{
		Dim:      128,
		Window:   5,
		Epochs:   5,
		Alpha:    0.025,
		MinAlpha: 0.0001,
	}
}

func (o Options) validate() error {
	if o.Dim <= 0 || o.Window <= 0 || o.Epochs <= 0 {
		return fmt.Errorf("%w: dim=%d window=%d epochs=%d", ErrInvalidOptions, o.Dim, o.Window, o.Epochs)
	}
	if o.Alpha <= 0 || o.MinAlpha < 0 || o.MinAlpha > o.Alpha {
		return fmt.Errorf("%w: alpha=%g min_alpha=%g", ErrInvalidOptions, o.Alpha, o.MinAlpha)
	}
	return nil
}

// Vectors holds trained embeddings. Words are ordered by descending
// frequency, ties broken by the token itself.
type Vectors struct {
	Words []string
	Index map[string]int
	Data  [][]float64
}

// Vector returns the embedding of word.
func (v *Vectors) Vector(word string) ([]float64, bool) {
	i, ok := v.Index[word]
	if !ok {
		return nil, false
	}
	return v.Data[i], true
}

type vocabWord struct {
	word  string
	count int64
	code  []uint8
	point []int
}

// Train learns one vector per distinct token of corpus.
func Train(ctx context.Context, corpus [][]string, opts Options) (*Vectors, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	vocab, index := buildVocab(corpus)
	if len(vocab) == 0 {
		return nil, ErrEmptyCorpus
	}
	buildHuffman(vocab)

	rng := rand.New(rand.NewPCG(opts.Seed, 0x9e3779b97f4a7c15))
	dim := opts.Dim
	syn0 := make([][]float64, len(vocab))
	for i := range syn0 {
		row := make([]float64, dim)
		for j := range row {
			row[j] = (rng.Float64() - 0.5) / float64(dim)
		}
		syn0[i] = row
	}
	syn1 := make([][]float64, max(len(vocab)-1, 0))
	for i := range syn1 {
		syn1[i] = make([]float64, dim)
	}

	sentences := make([][]int, 0, len(corpus))
	var total int64
	for _, s := range corpus {
		ids := make([]int, len(s))
		for i, tok := range s {
			ids[i] = index[tok]
		}
		sentences = append(sentences, ids)
		total += int64(len(ids))
	}
	total *= int64(opts.Epochs)

	neu1e := make([]float64, dim)
	var processed int64
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for si, sent := range sentences {
			if si%512 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			for pos, word := range sent {
				alpha := opts.Alpha - (opts.Alpha-opts.MinAlpha)*float64(processed)/float64(total)
				if alpha < opts.MinAlpha {
					alpha = opts.MinAlpha
				}
				processed++

				b := rng.IntN(opts.Window)
				for a := b; a < opts.Window*2+1-b; a++ {
					if a == opts.Window {
						continue
					}
					c := pos - opts.Window + a
					if c < 0 || c >= len(sent) {
						continue
					}
					trainPair(syn0[sent[c]], syn1, vocab[word], alpha, neu1e)
				}
			}
		}
	}

	words := make([]string, len(vocab))
	out := make(map[string]int, len(vocab))
	for i, w := range vocab {
		words[i] = w.word
		out[w.word] = i
	}
	return &Vectors{Words: words, Index: out, Data: syn0}, nil
}

// trainPair updates the context vector l1 and the inner nodes on target's
// Huffman path.
func trainPair(l1 []float64, syn1 [][]float64, target *vocabWord, alpha float64, neu1e []float64) {
	for i := range neu1e {
		neu1e[i] = 0
	}
	for d, node := range target.point {
		l2 := syn1[node]
		dot := 0.0
		for i := range l1 {
			dot += l1[i] * l2[i]
		}
		f := 1 / (1 + math.Exp(-dot))
		g := (1 - float64(target.code[d]) - f) * alpha
		for i := range l1 {
			neu1e[i] += g * l2[i]
			l2[i] += g * l1[i]
		}
	}
	for i := range l1 {
		l1[i] += neu1e[i]
	}
}

func buildVocab(corpus [][]string) ([]*vocabWord, map[string]int) {
	counts := make(map[string]int64)
	for _, s := range corpus {
		for _, tok := range s {
			counts[tok]++
		}
	}
	vocab := make([]*vocabWord, 0, len(counts))
	for w, c := range counts {
		vocab = append(vocab, &vocabWord{word: w, count: c})
	}
	sort.Slice(vocab, func(i, j int) bool {
		if vocab[i].count != vocab[j].count {
			return vocab[i].count > vocab[j].count
		}
		return vocab[i].word < vocab[j].word
	})
	index := make(map[string]int, len(vocab))
	for i, w := range vocab {
		index[w.word] = i
	}
	return vocab, index
}

// buildHuffman assigns codes and inner-node paths. vocab must be sorted by
// descending count. A single-word vocabulary gets an empty path.
func buildHuffman(vocab []*vocabWord) {
	n := len(vocab)
	if n < 2 {
		return
	}
	count := make([]int64, 2*n-1)
	binary := make([]uint8, 2*n-1)
	parent := make([]int, 2*n-1)
	for i, w := range vocab {
		count[i] = w.count
	}
	for i := n; i < 2*n-1; i++ {
		count[i] = math.MaxInt64
	}

	pos1, pos2 := n-1, n
	next := func() int {
		if pos1 >= 0 && count[pos1] < count[pos2] {
			pos1--
			return pos1 + 1
		}
		pos2++
		return pos2 - 1
	}
	for a := 0; a < n-1; a++ {
		min1 := next()
		min2 := next()
		count[n+a] = count[min1] + count[min2]
		parent[min1] = n + a
		parent[min2] = n + a
		binary[min2] = 1
	}

	root := 2*n - 2
	for a, w := range vocab {
		var code []uint8
		var point []int
		for b := a; b != root; b = parent[b] {
			code = append(code, binary[b])
			point = append(point, b)
		}
		// Reverse to root-first order; inner nodes are renumbered from 0.
		l := len(code)
		w.code = make([]uint8, l)
		w.point = make([]int, l)
		w.point[0] = root - n
		for i := 0; i < l; i++ {
			w.code[l-1-i] = code[i]
			if i > 0 {
				w.point[l-i] = point[i] - n
			}
		}
	}
}
