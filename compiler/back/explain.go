package back

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/nxlang/nxcc/compiler/burs"
	"github.com/nxlang/nxcc/compiler/ir"
)

type (
	// Choice is one node of the selected cover.
	Choice struct {
		Depth int
		Node  ir.Expr
		Op    ir.Op
		Goal  string
		Rule  *burs.Rule
		Cost  burs.Cost // total cost of deriving Goal at Node
	}

	// Selection is the cover chosen for one statement.
	Selection struct {
		Func  string
		Index int
		Root  ir.Expr
		Cost  burs.Cost

		Choices []Choice
	}
)

// Explain labels every statement of the unit and returns the chosen covers.
// No code is emitted.
func (c *Compiler) Explain(ctx context.Context, u *ir.Unit) (sels []Selection, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: explain", "unit", u.Name)
	defer tr.Finish("err", &err)

	for _, f := range u.Funcs {
		l := burs.NewLabels(c.g, f)

		for i, x := range f.Stmts {
			err = l.Label(ctx, x)
			if err != nil {
				return nil, errors.Wrap(err, "func %v: stmt %d", f.Name(), i)
			}

			s := Selection{
				Func:  f.Name(),
				Index: i,
				Root:  x,
				Cost:  l.Cost(x, c.g.Start),
			}

			s.Choices, err = c.cover(s.Choices, l, f, x, c.g.Start, 0)
			if err != nil {
				return nil, errors.Wrap(err, "func %v: stmt %d", f.Name(), i)
			}

			sels = append(sels, s)
		}
	}

	return sels, nil
}

func (c *Compiler) cover(cs []Choice, l *burs.Labels, f *ir.Func, x ir.Expr, goal burs.Nonterm, depth int) ([]Choice, error) {
	r := l.Rule(x, goal)
	if r == nil {
		return cs, burs.NewError(burs.ErrNoCover, f, x, nil, c.g.Name(goal))
	}

	cs = append(cs, Choice{
		Depth: depth,
		Node:  x,
		Op:    f.Nodes[x].Op,
		Goal:  c.g.Name(goal),
		Rule:  r,
		Cost:  l.Cost(x, goal),
	})

	kids, err := l.Kids(x, r)
	if err != nil {
		return cs, err
	}

	for i, k := range kids {
		cs, err = c.cover(cs, l, f, k, r.NTs[i], depth+1)
		if err != nil {
			return cs, err
		}
	}

	return cs, nil
}

// Costliest returns up to n selections with the highest cost, costliest first.
// Ties keep the earlier statement.
func Costliest(sels []Selection, n int) []Selection {
	h := heap.Heap[Selection]{Less: cheaper}

	for _, s := range sels {
		h.Push(s)

		if h.Len() > n {
			h.Pop()
		}
	}

	res := make([]Selection, h.Len())

	for i := len(res) - 1; i >= 0; i-- {
		res[i] = h.Pop()
	}

	return res
}

// cheaper orders the min heap: the root is the first one to drop.
func cheaper(d []Selection, i, j int) bool {
	if d[i].Cost != d[j].Cost {
		return d[i].Cost < d[j].Cost
	}

	if d[i].Func != d[j].Func {
		return d[i].Func > d[j].Func
	}

	return d[i].Index > d[j].Index
}

func (s Selection) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 4)
	b = e.AppendKeyString(b, "func", s.Func)
	b = e.AppendKeyInt(b, "stmt", s.Index)
	b = e.AppendKeyInt(b, "cost", int(s.Cost))
	b = e.AppendKeyInt(b, "nodes", len(s.Choices))

	return b
}
