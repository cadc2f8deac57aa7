// Package rules implements the compiled predicate trees used to filter
// override table rows. The operation set is deliberately closed: equality,
// containment, regular expression match, numeric range, and boolean
// combinators. Predicates are evaluated by a side-effect free interpreter;
// no user-supplied code is ever executed.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Op identifies a predicate node variant.
type Op string

const (
	OpEq       Op = "eq"
	OpContains Op = "contains"
	OpRegex    Op = "regex"
	OpRange    Op = "range"
	OpAnd      Op = "and"
	OpOr       Op = "or"
	OpNot      Op = "not"
)

// Spec is the declarative form of a predicate node, decodable from the
// configuration file. Compile turns a Spec tree into a Predicate tree.
type Spec struct {
	Op    string  `mapstructure:"op"`
	Field string  `mapstructure:"field"`
	Value string  `mapstructure:"value"`
	Min   float64 `mapstructure:"min"`
	Max   float64 `mapstructure:"max"`
	Kids  []Spec  `mapstructure:"rules"`
}

// Predicate is a compiled predicate tree node.
type Predicate struct {
	op    Op
	field string
	value string
	re    *regexp.Regexp
	min   float64
	max   float64
	kids  []*Predicate
}

// Eq matches rows whose field equals value (case folded).
func Eq(field, value string) *Predicate {
	return &Predicate{op: OpEq, field: field, value: strings.ToUpper(value)}
}

// Contains matches rows whose field contains value as a substring.
func Contains(field, value string) *Predicate {
	return &Predicate{op: OpContains, field: field, value: strings.ToUpper(value)}
}

// Match matches rows whose field matches the given regular expression.
func Match(field, pattern string) (*Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid rule pattern %q: %w", pattern, err)
	}
	return &Predicate{op: OpRegex, field: field, re: re}, nil
}

// Range matches rows whose field parses as a number within [min, max].
func Range(field string, min, max float64) *Predicate {
	return &Predicate{op: OpRange, field: field, min: min, max: max}
}

// And matches rows matching every child predicate.
func And(kids ...*Predicate) *Predicate {
	return &Predicate{op: OpAnd, kids: kids}
}

// Or matches rows matching at least one child predicate.
func Or(kids ...*Predicate) *Predicate {
	return &Predicate{op: OpOr, kids: kids}
}

// Not inverts a predicate.
func Not(kid *Predicate) *Predicate {
	return &Predicate{op: OpNot, kids: []*Predicate{kid}}
}

// Compile builds a Predicate tree from its declarative Spec. Unknown
// operations are a compile error, keeping the operation set closed.
func Compile(spec Spec) (*Predicate, error) {
	switch Op(spec.Op) {
	case OpEq:
		return Eq(spec.Field, spec.Value), nil
	case OpContains:
		return Contains(spec.Field, spec.Value), nil
	case OpRegex:
		return Match(spec.Field, spec.Value)
	case OpRange:
		return Range(spec.Field, spec.Min, spec.Max), nil
	case OpAnd, OpOr:
		if len(spec.Kids) == 0 {
			return nil, fmt.Errorf("%s rule requires child rules", spec.Op)
		}
		kids := make([]*Predicate, 0, len(spec.Kids))
		for _, k := range spec.Kids {
			kid, err := Compile(k)
			if err != nil {
				return nil, err
			}
			kids = append(kids, kid)
		}
		return &Predicate{op: Op(spec.Op), kids: kids}, nil
	case OpNot:
		if len(spec.Kids) != 1 {
			return nil, fmt.Errorf("not rule requires exactly one child rule")
		}
		kid, err := Compile(spec.Kids[0])
		if err != nil {
			return nil, err
		}
		return Not(kid), nil
	default:
		return nil, fmt.Errorf("unknown rule operation %q", spec.Op)
	}
}

// Eval applies the predicate to a table row. A nil predicate matches
// everything.
func (p *Predicate) Eval(row map[string]string) bool {
	if p == nil {
		return true
	}
	switch p.op {
	case OpEq:
		return strings.ToUpper(row[p.field]) == p.value
	case OpContains:
		return strings.Contains(strings.ToUpper(row[p.field]), p.value)
	case OpRegex:
		return p.re.MatchString(row[p.field])
	case OpRange:
		v, err := strconv.ParseFloat(strings.TrimSpace(row[p.field]), 64)
		if err != nil {
			return false
		}
		return v >= p.min && v <= p.max
	case OpAnd:
		for _, k := range p.kids {
			if !k.Eval(row) {
				return false
			}
		}
		return true
	case OpOr:
		for _, k := range p.kids {
			if k.Eval(row) {
				return true
			}
		}
		return false
	case OpNot:
		return !p.kids[0].Eval(row)
	}
	return false
}
