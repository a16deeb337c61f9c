package back

import (
	"context"
	"strings"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/nxlang/nxcc/compiler/burs"
	"github.com/nxlang/nxcc/compiler/ir"
)

type (
	// fn is a function code generation context.
	// It's created per function and dropped after.
	fn struct {
		*Compiler
		u *unit

		f  *ir.Func
		l  *burs.Labels
		sl *Slots
		fr *Layout

		args int // bytes of arguments pushed for the next call

		refs  map[ir.Expr]int
		temps map[ir.Expr]int64 // frame offsets of evaluated values

		b []byte
	}
)

var (
	ErrTemplate  = errors.New("bad template")
	ErrCallInArg = errors.New("call inside an argument while arguments are pending")
)

func (c *Compiler) newFn(u *unit, f *ir.Func) *fn {
	lo, hi := c.cfg.CalleeSaved, c.cfg.Slots
	if f.NCalls > 0 {
		lo, hi = 0, c.cfg.CalleeSaved
	}

	return &fn{
		Compiler: c,
		u:        u,
		f:        f,
		l:        burs.NewLabels(c.g, f),
		sl:       NewSlots(lo, hi),
		fr:       c.cfg.Layout(f),
		refs:     countRefs(f),
		temps:    map[ir.Expr]int64{},
	}
}

// countRefs counts parents of each node over all statements.
func countRefs(f *ir.Func) map[ir.Expr]int {
	refs := map[ir.Expr]int{}

	var walk func(x ir.Expr)
	walk = func(x ir.Expr) {
		if x == ir.Nil {
			return
		}

		refs[x]++
		if refs[x] > 1 {
			return
		}

		for _, k := range f.Nodes[x].Kids {
			walk(k)
		}
	}

	for _, x := range f.Stmts {
		walk(x)
	}

	return refs
}

// stmt labels and emits one statement tree.
func (e *fn) stmt(ctx context.Context, x ir.Expr) (err error) {
	err = e.l.Label(ctx, x)
	if err != nil {
		return err
	}

	if tr := tlog.SpanFromContext(ctx); tr.If("dump_stmt") {
		tr.Printw("stmt", "x", x, "tree", string(e.f.AppendTree(nil, x)), "cost", e.l.Cost(x, e.g.Start), "rule", e.l.Rule(x, e.g.Start))
	}

	if e.args != 0 && e.f.Nodes[x].Op.Kind == ir.ARG && e.hasCall(x) {
		return burs.NewError(ErrCallInArg, e.f, x, nil, "")
	}

	_, err = e.reduce(ctx, x, e.g.Start)

	return err
}

// reduce emits code for x derived as goal. Value nonterminals leave
// the result in AC and produce no operand. Operand nonterminals produce
// an operand for the parent template.
//
// A shared node is evaluated once. Its value is kept in a frame temp
// and reloaded at later uses.
func (e *fn) reduce(ctx context.Context, x ir.Expr, goal burs.Nonterm) (o Operand, err error) {
	if off, ok := e.temps[x]; ok && goal == e.regNT {
		e.load(x, off)
		return o, nil
	}

	r := e.l.Rule(x, goal)
	if r == nil {
		return o, burs.NewError(burs.ErrNoCover, e.f, x, nil, e.g.Name(goal))
	}

	kids, err := e.l.Kids(x, r)
	if err != nil {
		return o, err
	}

	value := e.isValue(r.LHS)

	err = e.stage(ctx, r, kids)
	if err != nil {
		return o, err
	}

	ops := make([]Operand, len(kids))

	for i, k := range kids {
		nt := r.NTs[i]

		ops[i], err = e.reduce(ctx, k, nt)
		if err != nil {
			return o, err
		}

		if e.isValue(nt) && e.laterValue(r.NTs[i+1:]) {
			e.b = append(e.b, "    PUSH\n"...)
		}
	}

	if tr := tlog.SpanFromContext(ctx); tr.If("dump_reduce") {
		tr.Printw("reduce", "x", x, "goal", e.g.Name(goal), "rule", r, "ops", ops)
	}

	if !value {
		return e.operand(x, r, ops)
	}

	switch {
	case strings.HasPrefix(r.Template, "#"):
		err = e.peep(x, r, ops)
	default:
		e.b, err = e.expand(e.b, x, r.Template, ops)
	}
	if err != nil {
		return o, err
	}

	if n := &e.f.Nodes[x]; n.Op.Kind == ir.ARG {
		e.args += roundup(int(n.Op.Size), 2)
	}

	if goal == e.regNT && e.refs[x] > 1 {
		e.spill(x)
	}

	return o, nil
}

// stage evaluates operands containing calls ahead of the rule
// when an earlier operand would be pushed before them.
// Calls keep their order and nothing is pushed between
// a call and its arguments.
func (e *fn) stage(ctx context.Context, r *burs.Rule, kids []ir.Expr) error {
	first, last := -1, -1

	for i, k := range kids {
		if !e.isValue(r.NTs[i]) {
			continue
		}

		if first < 0 {
			first = i
		}

		if e.hasCall(k) {
			last = i
		}
	}

	if last <= first {
		return nil
	}

	for i, k := range kids[:last+1] {
		if r.NTs[i] != e.regNT || !e.hasCall(k) {
			continue
		}

		_, err := e.reduce(ctx, k, e.regNT)
		if err != nil {
			return err
		}

		if _, ok := e.temps[k]; !ok {
			e.spill(k)
		}

		if e.f.Nodes[k].Op.Size == 4 {
			e.b = append(e.b, "    POP\n"...)
		}

		if tr := tlog.SpanFromContext(ctx); tr.If("dump_stage") {
			tr.Printw("staged", "x", k, "op", e.f.Nodes[k].Op, "off", e.temps[k])
		}
	}

	return nil
}

// hasCall reports whether evaluating x makes a call.
func (e *fn) hasCall(x ir.Expr) bool {
	if x == ir.Nil {
		return false
	}

	if _, ok := e.temps[x]; ok {
		return false
	}

	n := &e.f.Nodes[x]
	if n.Op.Kind == ir.CALL {
		return true
	}

	for _, k := range n.Kids {
		if e.hasCall(k) {
			return true
		}
	}

	return false
}

// spill copies the value just computed into a new frame temp.
// The value stays where it is.
func (e *fn) spill(x ir.Expr) {
	size := int(e.f.Nodes[x].Op.Size)
	off := e.fr.Temp(size)

	e.temps[x] = off

	lo, hi := Frame(off).String(), Frame(off+2).String()

	if size != 4 {
		e.b = hfmt.Appendf(e.b, "    STA %s\n", lo)
		return
	}

	e.b = hfmt.Appendf(e.b, "    STA %s\n    POP\n    STA %s\n    PUSH\n    LDA %s\n", hi, lo, hi)
}

func (e *fn) load(x ir.Expr, off int64) {
	lo, hi := Frame(off).String(), Frame(off+2).String()

	if e.f.Nodes[x].Op.Size != 4 {
		e.b = hfmt.Appendf(e.b, "    LDA %s\n", lo)
		return
	}

	e.b = hfmt.Appendf(e.b, "    LDA %s\n    PUSH\n    LDA %s\n", lo, hi)
}

func (e *fn) isValue(nt burs.Nonterm) bool {
	return nt == e.stmtNT || nt == e.regNT
}

func (e *fn) laterValue(nts []burs.Nonterm) bool {
	for _, nt := range nts {
		if e.isValue(nt) {
			return true
		}
	}

	return false
}

// operand evaluates an operand rule template.
func (e *fn) operand(x ir.Expr, r *burs.Rule, ops []Operand) (Operand, error) {
	switch tmpl := r.Template; {
	case tmpl == "%a":
		return e.literal(x)
	case tmpl == "%a,FP":
		o, err := e.literal(x)
		if err != nil {
			return o, err
		}

		return Frame(o.Value), nil
	case len(tmpl) == 2 && tmpl[0] == '%' && tmpl[1] >= '0' && tmpl[1] <= '9':
		i := int(tmpl[1] - '0')
		if i >= len(ops) {
			return Operand{}, burs.NewError(errors.Wrap(ErrTemplate, "%q", tmpl), e.f, x, r, "")
		}

		return ops[i], nil
	}

	return Operand{}, burs.NewError(errors.Wrap(ErrTemplate, "%q", r.Template), e.f, x, r, "")
}

// literal is the node's own operand: constant value, symbol address
// or frame offset.
func (e *fn) literal(x ir.Expr) (Operand, error) {
	n := &e.f.Nodes[x]

	if n.Sym == nil {
		return Operand{}, burs.NewError(errors.New("no symbol"), e.f, x, nil, "")
	}

	switch n.Op.Kind {
	case ir.CNST:
		return Imm(n.Sym.Value), nil
	case ir.ADDRF, ir.ADDRL:
		off, err := e.fr.Offset(n.Sym)
		if err != nil {
			return Operand{}, err
		}

		return Imm(off + n.Off), nil
	}

	return Mem(e.u.name(n.Sym), n.Off), nil
}

// expand appends template text substituting operands.
//
//	%N %lN %hN  operand, its low and high word
//	%a          node literal
//	%u          number unique within the unit
//	%c          argument cleanup after a call, on its own line
//	$name       scratch location
func (e *fn) expand(b []byte, x ir.Expr, tmpl string, ops []Operand) (_ []byte, err error) {
	uniq := -1

	for tmpl != "" {
		line := tmpl
		if i := strings.IndexByte(tmpl, '\n'); i >= 0 {
			line, tmpl = tmpl[:i+1], tmpl[i+1:]
		} else {
			tmpl = ""
		}

		if strings.TrimSpace(line) == "%c" {
			b = e.cleanup(b, x)
			continue
		}

		for i := 0; i < len(line); i++ {
			c := line[i]

			switch {
			case c == '$':
				j := i + 1
				for j < len(line) && (line[j] >= 'a' && line[j] <= 'z' || line[j] >= '0' && line[j] <= '9' || line[j] == '_') {
					j++
				}

				s, ok := e.cfg.scratch(line[i+1 : j])
				if !ok {
					return b, e.templateError(x, line)
				}

				b = append(b, s...)
				i = j - 1
			case c == '%' && i+1 < len(line):
				i++

				switch c := line[i]; {
				case c == '%':
					b = append(b, '%')
				case c == 'a':
					o, err := e.literal(x)
					if err != nil {
						return b, err
					}

					b = o.Append(b)
				case c == 'u':
					if uniq < 0 {
						uniq = e.u.next()
					}

					b = hfmt.Appendf(b, "%d", uniq)
				case c == 'l' || c == 'h' || c >= '0' && c <= '9':
					half := c
					if c == 'l' || c == 'h' {
						i++
					}

					if i >= len(line) || line[i] < '0' || line[i] > '9' || int(line[i]-'0') >= len(ops) {
						return b, e.templateError(x, line)
					}

					o := ops[line[i]-'0']

					switch half {
					case 'l':
						o = o.Low()
					case 'h':
						o = o.High()
					}

					b = o.Append(b)
				default:
					return b, e.templateError(x, line)
				}
			default:
				b = append(b, c)
			}
		}
	}

	return b, nil
}

// cleanup drops pushed arguments keeping the call result.
func (e *fn) cleanup(b []byte, x ir.Expr) []byte {
	words := e.args / 2
	e.args = 0

	size := e.f.Nodes[x].Op.Size

	pops := func(b []byte) []byte {
		for i := 0; i < words; i++ {
			b = append(b, "    POP\n"...)
		}

		return b
	}

	switch {
	case size == 0:
		return pops(b)
	case size == 4:
		b = append(b, "    TAX\n"...)
		b = pops(b)

		return append(b, "    TYA\n    PUSH\n    TXA\n"...)
	case words == 0:
		return b
	}

	b = append(b, "    TAX\n"...)
	b = pops(b)

	return append(b, "    TXA\n"...)
}

func (e *fn) templateError(x ir.Expr, line string) error {
	return burs.NewError(errors.Wrap(ErrTemplate, "%q", strings.TrimSpace(line)), e.f, x, nil, "")
}
