package graph

import (
	"fmt"
	"sort"
	"strconv"
)

// Binarize rewrites the label attribute attr of every node into an indicator
// vector over the sorted set of all labels, so multi-label graphs can be fed
// to one-vs-rest classifiers. Scalar labels are treated as one-element lists
// and nodes without the attribute get an all-zero vector.
//
// It returns the sorted label set; position i of every vector refers to
// classes[i].
func Binarize(g *Graph, attr string) ([]string, error) {
	perNode := make([][]string, len(g.ids))
	seen := make(map[string]bool)
	for i := range g.ids {
		v, ok := g.attrs[i][attr]
		if !ok {
			continue
		}
		labels, err := labelList(v)
		if err != nil {
			return nil, fmt.Errorf("binarize node %q: %w", g.ids[i], err)
		}
		perNode[i] = labels
		for _, l := range labels {
			seen[l] = true
		}
	}

	classes := make([]string, 0, len(seen))
	for l := range seen {
		classes = append(classes, l)
	}
	SortLabels(classes)
	pos := make(map[string]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}

	for i := range g.ids {
		vec := make([]any, len(classes))
		for j := range vec {
			vec[j] = int64(0)
		}
		for _, l := range perNode[i] {
			vec[pos[l]] = int64(1)
		}
		g.attrs[i][attr] = vec
	}
	return classes, nil
}

func labelList(v any) ([]string, error) {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, x := range val {
			s, err := LabelString(x)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, err := LabelString(v)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

// LabelString renders a scalar label value as a string.
func LabelString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int:
		return strconv.Itoa(val), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported label type %T", v)
	}
}

// SortLabels sorts labels numerically when they all parse as numbers and
// lexically otherwise.
func SortLabels(labels []string) {
	numeric := true
	for _, l := range labels {
		if _, err := strconv.ParseFloat(l, 64); err != nil {
			numeric = false
			break
		}
	}
	if !numeric {
		sort.Strings(labels)
		return
	}
	sort.Slice(labels, func(i, j int) bool {
		a, _ := strconv.ParseFloat(labels[i], 64)
		b, _ := strconv.ParseFloat(labels[j], 64)
		if a != b {
			return a < b
		}
		return labels[i] < labels[j]
	})
}
