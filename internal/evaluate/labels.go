package evaluate

import (
	"fmt"
	"strconv"

	"github.com/roach88/kce/internal/graph"
)

// DefaultLabelAttr is the node attribute holding class labels.
const DefaultLabelAttr = "community"

// Labels is the ground truth of a node classification task.
type Labels struct {
	// Nodes are the labelled nodes in graph order.
	Nodes []string
	// Classes are the sorted class names.
	Classes []string
	// Y[i][c] reports whether Nodes[i] belongs to Classes[c].
	Y [][]bool
	// MultiLabel is set when nodes may carry several classes.
	MultiLabel bool
}

// ExtractLabels reads the attr attribute of every node of g.
//
// Scalar values make a multiclass task. If any node carries a list the task
// is multilabel and scalars count as one-element lists. When every value is
// a 0/1 list of one common length the lists are indicator vectors over class
// positions, as written by Binarize. Nodes without the attribute are left
// out.
func ExtractLabels(g *graph.Graph, attr string) (*Labels, error) {
	var (
		nodes  []string
		values []any
		multi  bool
	)
	for _, n := range g.Nodes() {
		v, ok := g.Attr(n, attr)
		if !ok {
			continue
		}
		if _, ok := v.([]any); ok {
			multi = true
		}
		nodes = append(nodes, n)
		values = append(values, v)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: attribute %q", ErrNoLabels, attr)
	}

	width, indicator := indicatorWidth(values)
	perNode := make([][]string, len(nodes))
	for i, v := range values {
		if indicator {
			for c, x := range v.([]any) {
				if f, _ := toFloat(x); f == 1 {
					perNode[i] = append(perNode[i], strconv.Itoa(c))
				}
			}
			continue
		}
		list, ok := v.([]any)
		if !ok {
			list = []any{v}
		}
		for _, x := range list {
			s, err := graph.LabelString(x)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", nodes[i], err)
			}
			perNode[i] = append(perNode[i], s)
		}
	}

	var classes []string
	if indicator {
		for c := 0; c < width; c++ {
			classes = append(classes, strconv.Itoa(c))
		}
	} else {
		seen := make(map[string]bool)
		for _, labels := range perNode {
			for _, l := range labels {
				if !seen[l] {
					seen[l] = true
					classes = append(classes, l)
				}
			}
		}
		graph.SortLabels(classes)
	}
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	out := &Labels{Nodes: nodes, Classes: classes, MultiLabel: multi}
	for _, labels := range perNode {
		y := make([]bool, len(classes))
		for _, l := range labels {
			y[index[l]] = true
		}
		out.Y = append(out.Y, y)
	}
	return out, nil
}

// indicatorWidth reports whether every value is a non-empty 0/1 list of the
// same length, and that length.
func indicatorWidth(values []any) (int, bool) {
	width := -1
	for _, v := range values {
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			return 0, false
		}
		if width >= 0 && len(list) != width {
			return 0, false
		}
		width = len(list)
		for _, x := range list {
			f, ok := toFloat(x)
			if !ok || (f != 0 && f != 1) {
				return 0, false
			}
		}
	}
	return width, width > 0
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
