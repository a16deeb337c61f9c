package burs

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/nxlang/nxcc/compiler/ir"
	"github.com/nxlang/nxcc/compiler/set"
)

type (
	// Labels is the per function side table of best costs and rules
	// indexed by node and nonterminal.
	Labels struct {
		g *Grammar
		f *ir.Func

		n int // nonterminals + 1

		cost []Cost
		rule []*Rule

		done set.Bits[ir.Expr]
	}
)

func NewLabels(g *Grammar, f *ir.Func) *Labels {
	l := &Labels{
		g:    g,
		f:    f,
		n:    len(g.Nonterms),
		done: set.MakeBits[ir.Expr](0),
	}

	l.grow()

	return l
}

func (l *Labels) Grammar() *Grammar { return l.g }

// Label labels the statement tree rooted at root.
// Shared subtrees are labeled once. The root must derive the start nonterminal.
func (l *Labels) Label(ctx context.Context, root ir.Expr) (err error) {
	l.grow()

	err = l.label(root)
	if err != nil {
		return err
	}

	if l.Rule(root, l.g.Start) == nil {
		return newError(ErrNoCover, l.f, root, nil, l.g.Name(l.g.Start))
	}

	if tr := tlog.SpanFromContext(ctx); tr.If("dump_labels") {
		tr.Printw("labeled", "root", root, "op", l.f.Nodes[root].Op, "cost", l.Cost(root, l.g.Start), "rule", l.Rule(root, l.g.Start))
	}

	return nil
}

func (l *Labels) label(x ir.Expr) (err error) {
	if l.done.IsSet(x) {
		return nil
	}

	l.done.Set(x)

	n := &l.f.Nodes[x]

	for _, k := range n.Kids {
		if k == ir.Nil {
			continue
		}

		if err = l.label(k); err != nil {
			return err
		}
	}

	if !l.g.Known(n.Op) {
		return newError(ErrNoRule, l.f, x, nil, "")
	}

	for _, r := range l.g.byOp[n.Op] {
		c, ok := l.match(r.Pattern, x)
		if !ok {
			continue
		}

		rc := r.CostAt(l.f, x)
		if rc >= Inf {
			continue
		}

		l.record(x, r.LHS, add(c, rc), r)
	}

	return nil
}

func (l *Labels) match(p *Pattern, x ir.Expr) (Cost, bool) {
	if x == ir.Nil {
		return 0, false
	}

	if p.NT != 0 {
		c := l.cost[int(x)*l.n+int(p.NT)]
		return c, c < Inf
	}

	n := &l.f.Nodes[x]
	if n.Op != p.Op {
		return 0, false
	}

	var sum Cost

	for i, kp := range p.Kids {
		c, ok := l.match(kp, n.Kids[i])
		if !ok {
			return 0, false
		}

		sum = add(sum, c)
	}

	return sum, true
}

// record keeps strictly better derivations only, so the first rule wins ties.
func (l *Labels) record(x ir.Expr, nt Nonterm, c Cost, r *Rule) {
	i := int(x)*l.n + int(nt)

	if c >= l.cost[i] {
		return
	}

	l.cost[i] = c
	l.rule[i] = r

	l.closure(x, nt, c)
}

func (l *Labels) closure(x ir.Expr, nt Nonterm, c Cost) {
	for _, r := range l.g.chains[nt] {
		rc := r.CostAt(l.f, x)
		if rc >= Inf {
			continue
		}

		l.record(x, r.LHS, add(c, rc), r)
	}
}

// grow extends the side table to the current arena size.
func (l *Labels) grow() {
	need := len(l.f.Nodes) * l.n

	for len(l.cost) < need {
		l.cost = append(l.cost, Inf)
		l.rule = append(l.rule, nil)
	}
}

// Cost returns the best cost of deriving nt at x or Inf.
func (l *Labels) Cost(x ir.Expr, nt Nonterm) Cost {
	i := int(x)*l.n + int(nt)
	if x < 0 || i >= len(l.cost) {
		return Inf
	}

	return l.cost[i]
}

// Labeled reports whether x was labeled.
func (l *Labels) Labeled(x ir.Expr) bool {
	return l.done.IsSet(x)
}
