// Package graph provides the undirected, weighted graph used by the embedders.
//
// Nodes are identified by string names and keep their insertion order, as do
// neighbor lists. Every traversal in this package is therefore deterministic,
// which the walk generators and golden tests rely on.
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph operations.
var (
	// ErrNodeNotFound indicates an operation referenced a node that does not exist.
	ErrNodeNotFound = errors.New("graph: node not found")

	// ErrEmptyGraph indicates an operation that needs at least one node got none.
	ErrEmptyGraph = errors.New("graph: graph is empty")

	// ErrSelfLoop indicates core decomposition was attempted on a graph with self-loops.
	ErrSelfLoop = errors.New("graph: self-loops are not allowed in core decomposition")

	// ErrEmptyNodeID indicates a node name is the empty string.
	ErrEmptyNodeID = errors.New("graph: node ID is empty")
)

// DefaultWeight is the weight of an edge declared without one.
const DefaultWeight = 1.0

// Graph is an undirected simple graph with float64 edge weights and
// arbitrary node attributes.
//
// Graph is not safe for concurrent mutation. Concurrent reads are safe once
// construction is complete; the walk generators rely on this.
type Graph struct {
	ids   []string
	index map[string]int
	attrs []map[string]any

	// nbrs[i] lists neighbor positions of node i in insertion order.
	nbrs [][]int
	// wts[i][j] is the weight of edge (i, j).
	wts []map[int]float64

	edges int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{index: make(map[string]int)}
}

// AddNode adds a node, merging attrs into any existing attributes.
func (g *Graph) AddNode(id string, attrs map[string]any) error {
	if id == "" {
		return ErrEmptyNodeID
	}
	i := g.ensure(id)
	for k, v := range attrs {
		g.attrs[i][k] = v
	}
	return nil
}

func (g *Graph) ensure(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.ids)
	g.ids = append(g.ids, id)
	g.index[id] = i
	g.attrs = append(g.attrs, make(map[string]any))
	g.nbrs = append(g.nbrs, nil)
	g.wts = append(g.wts, make(map[int]float64))
	return i
}

// AddEdge adds the undirected edge {u, v}, creating missing endpoints.
// Adding an existing edge overwrites its weight.
func (g *Graph) AddEdge(u, v string, weight float64) error {
	if u == "" || v == "" {
		return ErrEmptyNodeID
	}
	a, b := g.ensure(u), g.ensure(v)
	if _, ok := g.wts[a][b]; ok {
		g.wts[a][b] = weight
		g.wts[b][a] = weight
		return nil
	}
	g.nbrs[a] = append(g.nbrs[a], b)
	g.wts[a][b] = weight
	if a != b {
		g.nbrs[b] = append(g.nbrs[b], a)
		g.wts[b][a] = weight
	}
	g.edges++
	return nil
}

// HasNode reports whether id is a node of g.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.index[id]
	return ok
}

// HasEdge reports whether {u, v} is an edge of g.
func (g *Graph) HasEdge(u, v string) bool {
	a, ok := g.index[u]
	if !ok {
		return false
	}
	b, ok := g.index[v]
	if !ok {
		return false
	}
	_, ok = g.wts[a][b]
	return ok
}

// Weight returns the weight of edge {u, v}.
func (g *Graph) Weight(u, v string) (float64, bool) {
	a, ok := g.index[u]
	if !ok {
		return 0, false
	}
	b, ok := g.index[v]
	if !ok {
		return 0, false
	}
	w, ok := g.wts[a][b]
	return w, ok
}

// Nodes returns node names in insertion order. The slice is a copy.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

// Neighbors returns the neighbors of id in insertion order.
func (g *Graph) Neighbors(id string) ([]string, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	out := make([]string, len(g.nbrs[i]))
	for k, j := range g.nbrs[i] {
		out[k] = g.ids[j]
	}
	return out, nil
}

// Degree returns the number of neighbors of id.
func (g *Graph) Degree(id string) (int, error) {
	i, ok := g.index[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return len(g.nbrs[i]), nil
}

// Order returns the number of nodes.
func (g *Graph) Order() int { return len(g.ids) }

// Size returns the number of edges.
func (g *Graph) Size() int { return g.edges }

// Attr returns the attribute key of node id.
func (g *Graph) Attr(id, key string) (any, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	v, ok := g.attrs[i][key]
	return v, ok
}

// SetAttr sets attribute key of node id.
func (g *Graph) SetAttr(id, key string, value any) error {
	i, ok := g.index[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	g.attrs[i][key] = value
	return nil
}

// Attrs returns a copy of the attributes of node id.
func (g *Graph) Attrs(id string) map[string]any {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(g.attrs[i]))
	for k, v := range g.attrs[i] {
		out[k] = v
	}
	return out
}

// Edge is one undirected edge as returned by Edges.
type Edge struct {
	U, V   string
	Weight float64
}

// Edges returns every edge once, ordered by the insertion order of U then V.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for a := range g.ids {
		for _, b := range g.nbrs[a] {
			if b < a {
				continue
			}
			out = append(out, Edge{U: g.ids[a], V: g.ids[b], Weight: g.wts[a][b]})
		}
	}
	return out
}

// Subgraph returns the subgraph induced by the nodes for which keep is true.
// Node and neighbor order follow g.
func (g *Graph) Subgraph(keep func(id string) bool) *Graph {
	out := New()
	for i, id := range g.ids {
		if keep(id) {
			out.ensure(id)
			for k, v := range g.attrs[i] {
				out.attrs[out.index[id]][k] = v
			}
		}
	}
	for a, id := range g.ids {
		if !out.HasNode(id) {
			continue
		}
		for _, b := range g.nbrs[a] {
			if b < a || !out.HasNode(g.ids[b]) {
				continue
			}
			_ = out.AddEdge(id, g.ids[b], g.wts[a][b])
		}
	}
	return out
}

// SubgraphOf is Subgraph restricted to the given set of node names.
func (g *Graph) SubgraphOf(nodes map[string]bool) *Graph {
	return g.Subgraph(func(id string) bool { return nodes[id] })
}

// RemoveSelfLoops deletes every edge {v, v} and returns how many were removed.
func (g *Graph) RemoveSelfLoops() int {
	removed := 0
	for i := range g.ids {
		if _, ok := g.wts[i][i]; !ok {
			continue
		}
		delete(g.wts[i], i)
		kept := g.nbrs[i][:0]
		for _, j := range g.nbrs[i] {
			if j != i {
				kept = append(kept, j)
			}
		}
		g.nbrs[i] = kept
		g.edges--
		removed++
	}
	return removed
}

// Preprocess removes self-loops and then every node left without neighbors.
func Preprocess(g *Graph) (*Graph, error) {
	g.RemoveSelfLoops()
	out, err := g.KCore(1)
	if err != nil {
		return nil, err
	}
	if out.Order() == 0 {
		return nil, ErrEmptyGraph
	}
	return out, nil
}

// position returns the internal index of id. Used by sibling files.
func (g *Graph) position(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}
