package burs

import (
	"github.com/nxlang/nxcc/compiler/ir"
)

// Rule returns the winning rule deriving goal at x or nil if there is none.
func (l *Labels) Rule(x ir.Expr, goal Nonterm) *Rule {
	i := int(x)*l.n + int(goal)
	if x < 0 || goal <= 0 || int(goal) >= l.n || i >= len(l.rule) {
		return nil
	}

	return l.rule[i]
}

// Kids returns subtrees matched by the rule's nonterminal leaves
// in left to right order. Nodes consumed by the pattern itself are skipped.
func (l *Labels) Kids(x ir.Expr, r *Rule) (kids []ir.Expr, err error) {
	kids, ok := l.kids(kids, r.Pattern, x)
	if !ok || len(kids) != len(r.NTs) {
		return nil, newError(ErrOperands, l.f, x, r, "")
	}

	return kids, nil
}

func (l *Labels) kids(kids []ir.Expr, p *Pattern, x ir.Expr) ([]ir.Expr, bool) {
	if x == ir.Nil {
		return kids, false
	}

	if p.NT != 0 {
		return append(kids, x), true
	}

	n := &l.f.Nodes[x]
	if n.Op != p.Op {
		return kids, false
	}

	for i, kp := range p.Kids {
		var ok bool

		kids, ok = l.kids(kids, kp, n.Kids[i])
		if !ok {
			return kids, false
		}
	}

	return kids, true
}
