package burs

import (
	"context"
	"math"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"

	"github.com/nxlang/nxcc/compiler/ir"
	"github.com/nxlang/nxcc/compiler/parse"
)

type (
	Nonterm int

	Cost int

	// CostFunc computes a context dependent rule cost.
	// Inf means the rule doesn't apply to the node.
	CostFunc func(f *ir.Func, x ir.Expr) Cost

	// Pattern is either an operator with child patterns or a nonterminal leaf.
	Pattern struct {
		Op   ir.Op
		NT   Nonterm
		Kids []*Pattern
	}

	Rule struct {
		ID  int
		LHS Nonterm

		Pattern *Pattern

		Cost     Cost
		CostFunc CostFunc

		Template string

		// Instruction rules emit code, others produce operand text.
		Instruction bool

		// NTs lists the nonterminal leaves in left-to-right order.
		NTs []Nonterm

		Text string
	}

	// RuleDef is a rule written in lburg notation: "reg: ADDI2(reg,con2)".
	RuleDef struct {
		Rule     string
		Cost     Cost
		CostFunc CostFunc
		Template string
	}

	Grammar struct {
		Nonterms []string
		Start    Nonterm

		Rules []*Rule

		nts    map[string]Nonterm
		byOp   map[ir.Op][]*Rule
		chains [][]*Rule
		known  map[ir.Op]struct{}
	}

	patternParser struct {
		g *Grammar
	}
)

const Inf Cost = math.MaxInt32 / 4

var ErrGrammar = errors.New("bad grammar")

// NewGrammar builds a grammar. The first nonterminal is the start one.
// Rules keep their table order which is the tie breaking order.
func NewGrammar(nonterms []string, defs []RuleDef) (*Grammar, error) {
	if len(nonterms) == 0 {
		return nil, errors.Wrap(ErrGrammar, "no nonterminals")
	}

	g := &Grammar{
		Nonterms: append([]string{""}, nonterms...),
		Start:    1,
		nts:      map[string]Nonterm{},
		byOp:     map[ir.Op][]*Rule{},
		chains:   make([][]*Rule, len(nonterms)+1),
		known:    map[ir.Op]struct{}{},
	}

	for i, n := range nonterms {
		if _, ok := g.nts[n]; ok {
			return nil, errors.Wrap(ErrGrammar, "duplicate nonterminal %v", n)
		}

		g.nts[n] = Nonterm(i + 1)
	}

	for i, d := range defs {
		r, err := g.parseRule(d)
		if err != nil {
			return nil, errors.Wrap(err, "rule %d: %q", i+1, d.Rule)
		}

		r.ID = i + 1

		g.Rules = append(g.Rules, r)

		if r.Pattern.NT != 0 {
			g.chains[r.Pattern.NT] = append(g.chains[r.Pattern.NT], r)
			continue
		}

		g.byOp[r.Pattern.Op] = append(g.byOp[r.Pattern.Op], r)
		g.addKnown(r.Pattern)
	}

	return g, nil
}

func (g *Grammar) Nonterm(name string) Nonterm {
	return g.nts[name]
}

func (g *Grammar) Name(nt Nonterm) string {
	if nt <= 0 || int(nt) >= len(g.Nonterms) {
		return "nt?"
	}

	return g.Nonterms[nt]
}

// Known reports whether op appears in any pattern.
func (g *Grammar) Known(op ir.Op) bool {
	_, ok := g.known[op]
	return ok
}

func (g *Grammar) addKnown(p *Pattern) {
	if p.NT != 0 {
		return
	}

	g.known[p.Op] = struct{}{}

	for _, k := range p.Kids {
		g.addKnown(k)
	}
}

func (g *Grammar) parseRule(d RuleDef) (r *Rule, err error) {
	ctx := context.Background()
	b := []byte(d.Rule)

	x, i, err := parse.AllOf{
		parse.Spaced(parse.Ident{}, parse.SpaceTab),
		parse.Spaced(parse.Const(":"), parse.SpaceTab),
		parse.Spaced(patternParser{g: g}, parse.SpaceTab),
	}.Parse(ctx, b, 0)
	if err != nil {
		return nil, errors.Wrap(ErrGrammar, "%v", err)
	}

	if i = parse.SpaceTab.Skip(b, i); i != len(b) {
		return nil, errors.Wrap(ErrGrammar, "trailing text at %d", i)
	}

	xs := x.([]any)

	lhs, ok := g.nts[string(xs[0].(parse.Ident))]
	if !ok {
		return nil, errors.Wrap(ErrGrammar, "unknown nonterminal %s", xs[0])
	}

	r = &Rule{
		LHS:         lhs,
		Pattern:     xs[2].(*Pattern),
		Cost:        d.Cost,
		CostFunc:    d.CostFunc,
		Template:    d.Template,
		Instruction: strings.HasSuffix(d.Template, "\n"),
		Text:        d.Rule,
	}

	r.NTs = r.Pattern.nonterms(nil)

	if r.Pattern.NT == lhs {
		return nil, errors.Wrap(ErrGrammar, "rule derives itself")
	}

	return r, nil
}

func (p patternParser) Parse(ctx context.Context, b []byte, st int) (x any, i int, err error) {
	x, i, err = parse.Ident{}.Parse(ctx, b, st)
	if err != nil {
		return nil, st, err
	}

	name := string(x.(parse.Ident))

	if nt, ok := p.g.nts[name]; ok {
		return &Pattern{NT: nt}, i, nil
	}

	op, err := ir.ParseOp(name)
	if err != nil {
		return nil, st, errors.Wrap(err, "neither nonterminal nor operator")
	}

	pat := &Pattern{Op: op}

	if i == len(b) || b[i] != '(' {
		return pat, i, nil
	}

	x, i, err = parse.AllOf{
		parse.Const("("),
		parse.SepBy{
			Of:  parse.Spaced(p, parse.SpaceTab),
			Sep: parse.Spaced(parse.Const(","), parse.SpaceTab),
		},
		parse.Spaced(parse.Const(")"), parse.SpaceTab),
	}.Parse(ctx, b, i)
	if err != nil {
		return nil, i, errors.Wrap(err, "%v operands", op)
	}

	for _, k := range x.([]any)[1].([]any) {
		pat.Kids = append(pat.Kids, k.(*Pattern))
	}

	if len(pat.Kids) > 3 {
		return nil, i, errors.New("%v: too many operands", op)
	}

	return pat, i, nil
}

func (p *Pattern) nonterms(nts []Nonterm) []Nonterm {
	if p.NT != 0 {
		return append(nts, p.NT)
	}

	for _, k := range p.Kids {
		nts = k.nonterms(nts)
	}

	return nts
}

// CostAt returns the rule cost at the node.
func (r *Rule) CostAt(f *ir.Func, x ir.Expr) Cost {
	if r.CostFunc != nil {
		return r.CostFunc(f, x)
	}

	return r.Cost
}

// IsChain reports whether the rule is a nonterminal to nonterminal rule.
func (r *Rule) IsChain() bool {
	return r.Pattern.NT != 0
}

func (r *Rule) String() string {
	if r == nil {
		return "<nil>"
	}

	return r.Text
}

func (r *Rule) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if r == nil {
		return e.AppendNil(b)
	}

	b = e.AppendMap(b, 2)
	b = e.AppendKeyInt(b, "id", r.ID)
	b = e.AppendKeyString(b, "rule", r.Text)

	return b
}

func add(a, b Cost) Cost {
	if a >= Inf || b >= Inf {
		return Inf
	}

	if c := a + b; c < Inf {
		return c
	}

	return Inf
}
