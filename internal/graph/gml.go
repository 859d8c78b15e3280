package graph

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// ParseError reports a malformed GML document.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("gml:%d: %s", e.Line, e.Msg)
	}
	return "gml: " + e.Msg
}

type tokenKind int

const (
	tokKey tokenKind = iota
	tokInt
	tokReal
	tokString
	tokOpen
	tokClose
)

type token struct {
	kind tokenKind
	text string
	line int
}

// entry is one key/value pair of a GML list. val is int64, float64, string
// or []entry.
type entry struct {
	key  string
	val  any
	line int
}

// LoadGML reads a GML file from disk.
func LoadGML(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	defer f.Close()
	g, err := ReadGML(f)
	if err != nil {
		return nil, fmt.Errorf("read graph %s: %w", path, err)
	}
	return g, nil
}

// ReadGML parses a GML document.
//
// Node names come from the node's label, falling back to its id. Keys that
// repeat within a node become lists. The directed flag is ignored: every
// graph is read as undirected.
func ReadGML(r io.Reader) (*Graph, error) {
	toks, err := lex(r)
	if err != nil {
		return nil, err
	}
	pos := 0
	top, err := parseList(toks, &pos, false)
	if err != nil {
		return nil, err
	}

	var body []entry
	for _, e := range top {
		if e.key == "graph" {
			list, ok := e.val.([]entry)
			if !ok {
				return nil, &ParseError{Line: e.line, Msg: "graph must be a list"}
			}
			body = list
			break
		}
	}
	if body == nil {
		return nil, &ParseError{Msg: "no graph found"}
	}

	g := New()
	names := make(map[string]string)
	var edges []entry
	for _, e := range body {
		switch e.key {
		case "node":
			list, ok := e.val.([]entry)
			if !ok {
				return nil, &ParseError{Line: e.line, Msg: "node must be a list"}
			}
			if err := addGMLNode(g, names, list, e.line); err != nil {
				return nil, err
			}
		case "edge":
			edges = append(edges, e)
		}
	}

	for _, e := range edges {
		list, ok := e.val.([]entry)
		if !ok {
			return nil, &ParseError{Line: e.line, Msg: "edge must be a list"}
		}
		var src, dst string
		var haveSrc, haveDst bool
		weight := DefaultWeight
		for _, f := range list {
			switch f.key {
			case "source":
				src, haveSrc = scalarString(f.val), true
			case "target":
				dst, haveDst = scalarString(f.val), true
			case "weight":
				w, ok := toFloat(f.val)
				if !ok {
					return nil, &ParseError{Line: f.line, Msg: "edge weight must be numeric"}
				}
				weight = w
			}
		}
		if !haveSrc || !haveDst {
			return nil, &ParseError{Line: e.line, Msg: "edge needs source and target"}
		}
		u, ok := names[src]
		if !ok {
			return nil, &ParseError{Line: e.line, Msg: fmt.Sprintf("edge source %q is not a node id", src)}
		}
		v, ok := names[dst]
		if !ok {
			return nil, &ParseError{Line: e.line, Msg: fmt.Sprintf("edge target %q is not a node id", dst)}
		}
		if err := g.AddEdge(u, v, weight); err != nil {
			return nil, &ParseError{Line: e.line, Msg: err.Error()}
		}
	}
	return g, nil
}

func addGMLNode(g *Graph, names map[string]string, list []entry, line int) error {
	var id, label string
	var haveID, haveLabel bool
	attrs := make(map[string]any)
	for _, f := range list {
		switch f.key {
		case "id":
			id, haveID = scalarString(f.val), true
		case "label":
			label, haveLabel = scalarString(f.val), true
		default:
			addAttr(attrs, f.key, toAttr(f.val))
		}
	}
	if !haveID {
		return &ParseError{Line: line, Msg: "node without id"}
	}
	if _, dup := names[id]; dup {
		return &ParseError{Line: line, Msg: fmt.Sprintf("node id %q is duplicated", id)}
	}
	name := id
	if haveLabel {
		name = label
	}
	if g.HasNode(name) {
		return &ParseError{Line: line, Msg: fmt.Sprintf("node label %q is duplicated", name)}
	}
	for k, x := range attrs {
		if l, ok := x.(multi); ok {
			attrs[k] = []any(l)
		}
	}
	names[id] = name
	if err := g.AddNode(name, attrs); err != nil {
		return &ParseError{Line: line, Msg: err.Error()}
	}
	return nil
}

func addAttr(attrs map[string]any, key string, val any) {
	prev, ok := attrs[key]
	if !ok {
		attrs[key] = val
		return
	}
	if list, isList := prev.(multi); isList {
		attrs[key] = append(list, val)
		return
	}
	attrs[key] = multi{prev, val}
}

// multi marks a list assembled from repeated keys while parsing.
type multi []any

func toAttr(v any) any {
	switch val := v.(type) {
	case []entry:
		m := make(map[string]any)
		for _, e := range val {
			addAttr(m, e.key, toAttr(e.val))
		}
		for k, x := range m {
			if l, ok := x.(multi); ok {
				m[k] = []any(l)
			}
		}
		return m
	default:
		return v
	}
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case int:
		return float64(val), true
	default:
		return 0, false
	}
}

func parseList(toks []token, pos *int, nested bool) ([]entry, error) {
	var out []entry
	for *pos < len(toks) {
		t := toks[*pos]
		if t.kind == tokClose {
			if !nested {
				return nil, &ParseError{Line: t.line, Msg: "unexpected ]"}
			}
			*pos++
			return out, nil
		}
		if t.kind != tokKey {
			return nil, &ParseError{Line: t.line, Msg: fmt.Sprintf("expected key, got %q", t.text)}
		}
		*pos++
		if *pos >= len(toks) {
			return nil, &ParseError{Line: t.line, Msg: fmt.Sprintf("key %q has no value", t.text)}
		}
		v := toks[*pos]
		e := entry{key: t.text, line: t.line}
		switch v.kind {
		case tokOpen:
			*pos++
			list, err := parseList(toks, pos, true)
			if err != nil {
				return nil, err
			}
			if list == nil {
				list = []entry{}
			}
			e.val = list
			out = append(out, e)
			continue
		case tokInt:
			n, err := strconv.ParseInt(v.text, 10, 64)
			if err != nil {
				return nil, &ParseError{Line: v.line, Msg: fmt.Sprintf("bad integer %q", v.text)}
			}
			e.val = n
		case tokReal:
			f, err := parseReal(v.text)
			if err != nil {
				return nil, &ParseError{Line: v.line, Msg: fmt.Sprintf("bad real %q", v.text)}
			}
			e.val = f
		case tokString:
			e.val = v.text
		default:
			return nil, &ParseError{Line: v.line, Msg: fmt.Sprintf("key %q has no value", t.text)}
		}
		*pos++
		out = append(out, e)
	}
	if nested {
		return nil, &ParseError{Msg: "unterminated list"}
	}
	return out, nil
}

func parseReal(s string) (float64, error) {
	switch strings.ToUpper(s) {
	case "INF", "+INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	case "NAN", "+NAN", "-NAN":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func lex(r io.Reader) ([]token, error) {
	br := bufio.NewReader(r)
	var toks []token
	line := 1
	for {
		c, _, err := br.ReadRune()
		if err == io.EOF {
			return toks, nil
		}
		if err != nil {
			return nil, err
		}
		switch {
		case c == '\n':
			line++
		case unicode.IsSpace(c):
		case c == '#':
			if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
				return nil, err
			}
			line++
		case c == '[':
			toks = append(toks, token{kind: tokOpen, text: "[", line: line})
		case c == ']':
			toks = append(toks, token{kind: tokClose, text: "]", line: line})
		case c == '"':
			s, err := br.ReadString('"')
			if err != nil {
				return nil, &ParseError{Line: line, Msg: "unterminated string"}
			}
			s = s[:len(s)-1]
			line += strings.Count(s, "\n")
			toks = append(toks, token{kind: tokString, text: html.UnescapeString(s), line: line})
		case c == '-' || c == '+' || c == '.' || unicode.IsDigit(c):
			text := readWhile(br, string(c), func(r rune) bool {
				return unicode.IsDigit(r) || unicode.IsLetter(r) || r == '.' || r == '-' || r == '+'
			})
			kind := tokInt
			if strings.ContainsAny(text, ".eEIiNn") {
				kind = tokReal
			}
			toks = append(toks, token{kind: kind, text: text, line: line})
		case unicode.IsLetter(c) || c == '_':
			text := readWhile(br, string(c), func(r rune) bool {
				return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
			})
			kind := tokKey
			if up := strings.ToUpper(text); up == "INF" || up == "NAN" {
				kind = tokReal
			}
			toks = append(toks, token{kind: kind, text: text, line: line})
		default:
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
}

func readWhile(br *bufio.Reader, prefix string, ok func(rune) bool) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	for {
		c, _, err := br.ReadRune()
		if err != nil {
			return sb.String()
		}
		if !ok(c) {
			_ = br.UnreadRune()
			return sb.String()
		}
		sb.WriteRune(c)
	}
}

// WriteGML writes g as a GML document. Node ids are positions in g's node
// order; names go to the label key. Attribute keys are written sorted, list
// values as repeated keys.
func WriteGML(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "graph [")
	for i, id := range g.ids {
		fmt.Fprintln(bw, "  node [")
		fmt.Fprintf(bw, "    id %d\n", i)
		fmt.Fprintf(bw, "    label %s\n", quote(id))
		if err := writeAttrs(bw, g.attrs[i], "    "); err != nil {
			return err
		}
		fmt.Fprintln(bw, "  ]")
	}
	for a := range g.ids {
		for _, b := range g.nbrs[a] {
			if b < a {
				continue
			}
			fmt.Fprintln(bw, "  edge [")
			fmt.Fprintf(bw, "    source %d\n", a)
			fmt.Fprintf(bw, "    target %d\n", b)
			if wt := g.wts[a][b]; wt != DefaultWeight {
				fmt.Fprintf(bw, "    weight %s\n", formatReal(wt))
			}
			fmt.Fprintln(bw, "  ]")
		}
	}
	fmt.Fprintln(bw, "]")
	return bw.Flush()
}

func writeAttrs(w io.Writer, attrs map[string]any, indent string) error {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writeValue(w, k, attrs[k], indent); err != nil {
			return err
		}
	}
	return nil
}

func writeValue(w io.Writer, key string, v any, indent string) error {
	switch val := v.(type) {
	case []any:
		for _, x := range val {
			if err := writeValue(w, key, x, indent); err != nil {
				return err
			}
		}
	case map[string]any:
		fmt.Fprintf(w, "%s%s [\n", indent, key)
		if err := writeAttrs(w, val, indent+"  "); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s]\n", indent)
	case string:
		fmt.Fprintf(w, "%s%s %s\n", indent, key, quote(val))
	case int64:
		fmt.Fprintf(w, "%s%s %d\n", indent, key, val)
	case int:
		fmt.Fprintf(w, "%s%s %d\n", indent, key, val)
	case float64:
		fmt.Fprintf(w, "%s%s %s\n", indent, key, formatReal(val))
	case bool:
		b := 0
		if val {
			b = 1
		}
		fmt.Fprintf(w, "%s%s %d\n", indent, key, b)
	default:
		return fmt.Errorf("gml: unsupported attribute type %T for %q", v, key)
	}
	return nil
}

func quote(s string) string {
	return `"` + html.EscapeString(s) + `"`
}

func formatReal(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case math.IsNaN(f):
		return "NAN"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
