// Package jsonpath implements the minimal JSONPath dialect the storage
// facade's query_cf operations need to filter a column family's worth of
// already-decoded JSON documents: root $, [*], integer index [i], filter
// expressions ?@.field OP literal combined with && and ||, and wildcarded
// array membership like tags[*]=='x'.
//
// No general-purpose JSONPath library appears anywhere in the retrieved
// example pack, so this is a small hand-rolled evaluator rather than an
// adaptation of an existing one — see DESIGN.md.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

type exprKind int

const (
	kindAll exprKind = iota
	kindIndex
	kindFilter
)

// Expr is a parsed, reusable JSONPath expression.
type Expr struct {
	kind   exprKind
	index  int
	filter *boolExpr
}

// Parse compiles a JSONPath expression. The root document the expression is
// evaluated against is always treated as an array (a column family's
// iterated values), matching how query_cf uses it.
func Parse(expr string) (*Expr, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr[0] != '$' {
		return nil, fmt.Errorf("jsonpath: expression must start with $: %q", expr)
	}
	rest := expr[1:]
	if rest == "" {
		return &Expr{kind: kindAll}, nil
	}
	if !strings.HasPrefix(rest, "[") || !strings.HasSuffix(rest, "]") {
		return nil, fmt.Errorf("jsonpath: expected a bracketed segment after $: %q", expr)
	}
	inner := rest[1 : len(rest)-1]

	switch {
	case inner == "*":
		return &Expr{kind: kindAll}, nil
	case strings.HasPrefix(inner, "?"):
		be, err := parseBoolExpr(strings.TrimSpace(inner[1:]))
		if err != nil {
			return nil, err
		}
		return &Expr{kind: kindFilter, filter: be}, nil
	default:
		idx, err := strconv.Atoi(strings.TrimSpace(inner))
		if err != nil {
			return nil, fmt.Errorf("jsonpath: invalid index %q: %w", inner, err)
		}
		return &Expr{kind: kindIndex, index: idx}, nil
	}
}

// Match evaluates the expression against root (a slice of decoded JSON
// values, in CF iteration order) and returns the matching subset, preserving
// order.
func (e *Expr) Match(root []any) ([]any, error) {
	idx, err := e.MatchIndices(root)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(idx))
	for i, j := range idx {
		out[i] = root[j]
	}
	return out, nil
}

// MatchIndices is Match but returns the matching positions in root instead
// of the values themselves, so a caller tracking side-channel data (such as
// the storage facade's keys) can re-associate it without relying on value
// equality.
func (e *Expr) MatchIndices(root []any) ([]int, error) {
	switch e.kind {
	case kindAll:
		idx := make([]int, len(root))
		for i := range root {
			idx[i] = i
		}
		return idx, nil
	case kindIndex:
		if e.index < 0 || e.index >= len(root) {
			return nil, nil
		}
		return []int{e.index}, nil
	case kindFilter:
		var idx []int
		for i, el := range root {
			ok, err := e.filter.eval(el)
			if err != nil {
				return nil, err
			}
			if ok {
				idx = append(idx, i)
			}
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("jsonpath: unreachable expr kind %d", e.kind)
	}
}

// op is a filter comparison operator.
type op int

const (
	opEq op = iota
	opNeq
	opGt
	opLt
	opGte
	opLte
)

type pathSeg struct {
	field    string
	wildcard bool // true when this segment was written as field[*]
}

type comparison struct {
	path []pathSeg
	op   op
	lit  any
}

// boolExpr is an OR of ANDs of comparisons: ors[i] is one AND-group, true
// overall if any group is fully true.
type boolExpr struct {
	ors [][]comparison
}

func parseBoolExpr(pred string) (*boolExpr, error) {
	if pred == "" {
		return nil, fmt.Errorf("jsonpath: empty filter predicate")
	}
	var be boolExpr
	for _, orPart := range strings.Split(pred, "||") {
		var group []comparison
		for _, andPart := range strings.Split(orPart, "&&") {
			c, err := parseComparison(strings.TrimSpace(andPart))
			if err != nil {
				return nil, err
			}
			group = append(group, c)
		}
		be.ors = append(be.ors, group)
	}
	return &be, nil
}

var opTable = []struct {
	text string
	op   op
}{
	// two-character operators first so ">=" and "<=" aren't mis-split as ">" and "<"
	{"==", opEq}, {"!=", opNeq}, {">=", opGte}, {"<=", opLte}, {">", opGt}, {"<", opLt},
}

func parseComparison(atom string) (comparison, error) {
	if !strings.HasPrefix(atom, "@.") {
		return comparison{}, fmt.Errorf("jsonpath: filter term must start with @.: %q", atom)
	}
	atom = atom[2:]

	for _, cand := range opTable {
		idx := strings.Index(atom, cand.text)
		if idx < 0 {
			continue
		}
		fieldPart := strings.TrimSpace(atom[:idx])
		litPart := strings.TrimSpace(atom[idx+len(cand.text):])
		path, err := parsePath(fieldPart)
		if err != nil {
			return comparison{}, err
		}
		lit, err := parseLiteral(litPart)
		if err != nil {
			return comparison{}, err
		}
		return comparison{path: path, op: cand.op, lit: lit}, nil
	}
	return comparison{}, fmt.Errorf("jsonpath: no comparison operator found in %q", atom)
}

func parsePath(s string) ([]pathSeg, error) {
	if s == "" {
		return nil, fmt.Errorf("jsonpath: empty field path")
	}
	parts := strings.Split(s, ".")
	segs := make([]pathSeg, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("jsonpath: empty field segment in %q", s)
		}
		if strings.HasSuffix(p, "[*]") {
			segs = append(segs, pathSeg{field: strings.TrimSuffix(p, "[*]"), wildcard: true})
		} else {
			segs = append(segs, pathSeg{field: p})
		}
	}
	return segs, nil
}

func parseLiteral(s string) (any, error) {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], nil
	}
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return nil, fmt.Errorf("jsonpath: cannot parse literal %q", s)
}

func (be *boolExpr) eval(el any) (bool, error) {
	for _, group := range be.ors {
		all := true
		for _, c := range group {
			ok, err := c.eval(el)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func (c comparison) eval(el any) (bool, error) {
	cur := el
	for i, seg := range c.path {
		m, ok := cur.(map[string]any)
		if !ok {
			return false, nil
		}
		next, present := m[seg.field]
		if !present {
			return false, nil
		}
		if seg.wildcard {
			arr, ok := next.([]any)
			if !ok {
				return false, nil
			}
			if i == len(c.path)-1 {
				for _, item := range arr {
					if compare(item, c.op, c.lit) {
						return true, nil
					}
				}
				return false, nil
			}
			// Wildcard mid-path: match if any element satisfies the rest.
			for _, item := range arr {
				rest := comparison{path: c.path[i+1:], op: c.op, lit: c.lit}
				ok, err := rest.eval(item)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		}
		cur = next
	}
	return compare(cur, c.op, c.lit), nil
}

func compare(a any, o op, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return compareFloat(af, o, bf)
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return compareString(as, o, bs)
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			switch o {
			case opEq:
				return ab == bb
			case opNeq:
				return ab != bb
			}
			return false
		}
	}
	if a == nil || b == nil {
		switch o {
		case opEq:
			return a == nil && b == nil
		case opNeq:
			return !(a == nil && b == nil)
		}
		return false
	}
	return false
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func compareFloat(a float64, o op, b float64) bool {
	switch o {
	case opEq:
		return a == b
	case opNeq:
		return a != b
	case opGt:
		return a > b
	case opLt:
		return a < b
	case opGte:
		return a >= b
	case opLte:
		return a <= b
	default:
		return false
	}
}

func compareString(a string, o op, b string) bool {
	switch o {
	case opEq:
		return a == b
	case opNeq:
		return a != b
	case opGt:
		return a > b
	case opLt:
		return a < b
	case opGte:
		return a >= b
	case opLte:
		return a <= b
	default:
		return false
	}
}
