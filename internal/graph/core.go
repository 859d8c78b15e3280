package graph

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// CoreNumbers returns the core number of every node.
//
// The core number of v is the largest k such that v belongs to the k-core,
// the maximal subgraph in which every node has degree at least k. Nodes are
// handed to gonum by position, so the result does not depend on gonum's
// iteration order.
func (g *Graph) CoreNumbers() (map[string]int, error) {
	out := make(map[string]int, len(g.ids))
	if len(g.ids) == 0 {
		return out, nil
	}
	u := simple.NewUndirectedGraph()
	for i := range g.ids {
		if _, loop := g.wts[i][i]; loop {
			return nil, ErrSelfLoop
		}
		u.AddNode(simple.Node(int64(i)))
	}
	for i, nbrs := range g.nbrs {
		for _, j := range nbrs {
			if j > i {
				u.SetEdge(simple.Edge{F: simple.Node(int64(i)), T: simple.Node(int64(j))})
			}
		}
	}

	// shells[k] holds the nodes whose core number is exactly k.
	_, shells := topo.DegeneracyOrdering(u)
	for k, shell := range shells {
		for _, n := range shell {
			out[g.ids[n.ID()]] = k
		}
	}
	return out, nil
}

// MaxCore returns the largest core number in g, or 0 for an empty graph.
func MaxCore(cores map[string]int) int {
	m := 0
	for _, k := range cores {
		if k > m {
			m = k
		}
	}
	return m
}

// KCore returns the k-core of g. A k of zero or less selects the main
// (maximum) core. The result may be empty when k exceeds every core number.
func (g *Graph) KCore(k int) (*Graph, error) {
	cores, err := g.CoreNumbers()
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = MaxCore(cores)
	}
	return g.Subgraph(func(id string) bool { return cores[id] >= k }), nil
}

// Frontier returns the nodes outside embedded that are adjacent to at least
// one node in embedded, in g's node order.
func (g *Graph) Frontier(embedded map[string]bool) []string {
	var out []string
	for i, id := range g.ids {
		if embedded[id] {
			continue
		}
		for _, j := range g.nbrs[i] {
			if embedded[g.ids[j]] {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// WeightedNeighbors calls fn for each neighbor of id with the edge weight,
// in insertion order. It returns false if id is not a node.
func (g *Graph) WeightedNeighbors(id string, fn func(nbr string, w float64)) bool {
	i, ok := g.position(id)
	if !ok {
		return false
	}
	for _, j := range g.nbrs[i] {
		fn(g.ids[j], g.wts[i][j])
	}
	return true
}
