// Package rseexpr evaluates the RSE boolean expression language of
// spec §4.2 — union, intersection, difference and attribute equality
// over a universe of RSEs — to a concrete, ordered, duplicate-free set
// of candidate RSEs.
package rseexpr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

// Evaluate parses expr and resolves it against universe, returning the
// matching RSEs ordered by name ascending with duplicates removed.
//
// A bare identifier matches RSEs whose Name equals the identifier, or
// whose Attributes map holds a truthy value under that key (the two
// idiomatic ways Rucio expressions name a target: by RSE name, or by a
// boolean tag such as "tier1"). identifier=value matches RSEs whose
// Attributes[identifier] stringifies to value. An identifier unknown to
// every RSE in the universe yields the empty set, not an error — only a
// syntactically invalid expression raises catalogerr.InvalidRSEExpression.
func Evaluate(expr string, universe []types.RSE) ([]types.RSE, error) {
	p := &parser{lex: newLexer(expr), universe: universe}
	p.advance()
	set, err := p.parseUnion()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, invalid(expr, fmt.Sprintf("unexpected token %q", p.tok.text))
	}
	return toSortedSlice(set), nil
}

func invalid(expr, reason string) error {
	return catalogerr.New(catalogerr.InvalidRSEExpression, fmt.Sprintf("%s: %s", expr, reason))
}

// rseSet is a set of RSEs keyed by id, preserving one representative
// types.RSE per id.
type rseSet map[string]types.RSE

func setOf(rses []types.RSE) rseSet {
	s := make(rseSet, len(rses))
	for _, r := range rses {
		s[r.ID] = r
	}
	return s
}

func union(a, b rseSet) rseSet {
	out := make(rseSet, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func intersect(a, b rseSet) rseSet {
	out := make(rseSet)
	for k, v := range a {
		if _, ok := b[k]; ok {
			out[k] = v
		}
	}
	return out
}

func diff(a, b rseSet) rseSet {
	out := make(rseSet)
	for k, v := range a {
		if _, ok := b[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func toSortedSlice(s rseSet) []types.RSE {
	out := make([]types.RSE, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// parser is a recursive-descent parser over the precedence chain
// union (loosest) > difference > intersection (tightest), left-
// associative within each level, per spec §4.2.
type parser struct {
	lex      *lexer
	tok      token
	universe []types.RSE
}

func (p *parser) advance() { p.tok = p.lex.next() }

func (p *parser) parseUnion() (rseSet, error) {
	left, err := p.parseDiff()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOr {
		p.advance()
		right, err := p.parseDiff()
		if err != nil {
			return nil, err
		}
		left = union(left, right)
	}
	return left, nil
}

func (p *parser) parseDiff() (rseSet, error) {
	left, err := p.parseIntersect()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokDiff {
		p.advance()
		right, err := p.parseIntersect()
		if err != nil {
			return nil, err
		}
		left = diff(left, right)
	}
	return left, nil
}

func (p *parser) parseIntersect() (rseSet, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokAnd {
		p.advance()
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = intersect(left, right)
	}
	return left, nil
}

func (p *parser) parseAtom() (rseSet, error) {
	switch p.tok.kind {
	case tokLParen:
		p.advance()
		inner, err := p.parseUnion()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, invalid(p.lex.src, "unmatched '('")
		}
		p.advance()
		return inner, nil
	case tokIdent:
		ident := p.tok.text
		p.advance()
		if p.tok.kind == tokEq {
			p.advance()
			if p.tok.kind != tokIdent {
				return nil, invalid(p.lex.src, "expected value after '='")
			}
			value := p.tok.text
			p.advance()
			return setOf(matchEquality(p.universe, ident, value)), nil
		}
		return setOf(matchBare(p.universe, ident)), nil
	default:
		return nil, invalid(p.lex.src, fmt.Sprintf("unexpected token %q", p.tok.text))
	}
}

func matchBare(universe []types.RSE, ident string) []types.RSE {
	var out []types.RSE
	for _, r := range universe {
		if r.Name == ident || isTruthy(r.Attributes[ident]) {
			out = append(out, r)
		}
	}
	return out
}

func matchEquality(universe []types.RSE, key, value string) []types.RSE {
	var out []types.RSE
	for _, r := range universe {
		v, ok := r.Attributes[key]
		if !ok {
			continue
		}
		if stringify(v) == value {
			out = append(out, r)
		}
	}
	return out
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		low := strings.ToLower(t)
		return low != "" && low != "false" && low != "0"
	default:
		return true
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}
