// Package embedder defines the Embedder contract and the walk-based
// embedders: DeepWalk, the three CoreWalk variants and node2vec.
//
// Propagation frameworks that wrap an embedder live in package framework;
// package registry maps configuration names to constructors.
package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/kce/internal/graph"
)

var (
	// ErrInvalidParams indicates a hyperparameter is missing or out of range.
	ErrInvalidParams = errors.New("embedder: invalid parameters")

	// ErrEmptyGraph indicates Fit was called on a graph without nodes.
	ErrEmptyGraph = errors.New("embedder: cannot embed an empty graph")
)

// Embedder maps the nodes of a graph to vectors.
type Embedder interface {
	// Name returns the registry name of the variant, e.g. "deepwalk".
	Name() string

	// Dim returns the dimension of the produced vectors.
	Dim() int

	// Fit computes an embedding of g.
	Fit(ctx context.Context, g *graph.Graph, opts FitOptions) (*Embedding, error)

	// Attributes reports hyperparameters, facts about the last Fit and
	// phase timings in seconds. Keys are stable; values are scalars.
	Attributes() map[string]any
}

// FitOptions carries per-fit settings that are not hyperparameters.
type FitOptions struct {
	// CoreIndex selects the core a framework embeds first. Zero or less
	// selects the main core. Ignored by plain embedders.
	CoreIndex int `json:"core_index"`

	// Seed drives every random choice of the fit.
	Seed uint64 `json:"-"`

	// Workers bounds walk generation parallelism; zero uses GOMAXPROCS.
	Workers int `json:"-"`
}

// Embedding is the result of a fit. Row i of Vectors belongs to ID2Node[i].
type Embedding struct {
	Vectors [][]float64    `json:"embeddings"`
	Node2ID map[string]int `json:"node2id"`
	ID2Node []string       `json:"id2node"`
}

// NewEmbedding builds an Embedding from parallel node and vector slices.
func NewEmbedding(nodes []string, vectors [][]float64) *Embedding {
	e := &Embedding{
		Vectors: make([][]float64, 0, len(nodes)),
		Node2ID: make(map[string]int, len(nodes)),
		ID2Node: make([]string, 0, len(nodes)),
	}
	for i, n := range nodes {
		e.Append(n, vectors[i])
	}
	return e
}

// Append adds a node with its vector as the next row.
func (e *Embedding) Append(node string, vec []float64) {
	e.Node2ID[node] = len(e.ID2Node)
	e.ID2Node = append(e.ID2Node, node)
	e.Vectors = append(e.Vectors, vec)
}

// Len returns the number of embedded nodes.
func (e *Embedding) Len() int { return len(e.ID2Node) }

// Dim returns the vector dimension, or 0 for an empty embedding.
func (e *Embedding) Dim() int {
	if len(e.Vectors) == 0 {
		return 0
	}
	return len(e.Vectors[0])
}

// Vector returns the vector of node.
func (e *Embedding) Vector(node string) ([]float64, bool) {
	i, ok := e.Node2ID[node]
	if !ok {
		return nil, false
	}
	return e.Vectors[i], true
}

// Validate checks that rows, names and the index agree.
func (e *Embedding) Validate() error {
	if len(e.Vectors) != len(e.ID2Node) || len(e.Node2ID) != len(e.ID2Node) {
		return fmt.Errorf("embedding: %d vectors, %d names, %d index entries",
			len(e.Vectors), len(e.ID2Node), len(e.Node2ID))
	}
	dim := e.Dim()
	for i, n := range e.ID2Node {
		if e.Node2ID[n] != i {
			return fmt.Errorf("embedding: node %q indexed at %d, stored at %d", n, e.Node2ID[n], i)
		}
		if len(e.Vectors[i]) != dim {
			return fmt.Errorf("embedding: node %q has dimension %d, want %d", n, len(e.Vectors[i]), dim)
		}
	}
	return nil
}

// Timings records how long each phase of a fit took.
type Timings map[string]time.Duration

// Measure runs fn and records its duration under name.
func (t Timings) Measure(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	t[name] = time.Since(start)
	return err
}

// Export writes each timing into attrs as "<name>_time" in seconds.
func (t Timings) Export(attrs map[string]any) {
	for k, v := range t {
		attrs[k+"_time"] = v.Seconds()
	}
}

// DecodeParams copies the fields of a free-form parameter object into dst,
// a pointer to a struct with json tags. Unknown keys are ignored since one
// params file usually serves several embedders.
func DecodeParams(params map[string]any, dst any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
