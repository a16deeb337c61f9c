package burs

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/nxlang/nxcc/compiler/ir"
)

var testRules = []RuleDef{
	{Rule: "con: CNSTI2", Cost: 0, Template: "%a"},
	{Rule: "reg: CNSTI2", Cost: 2, Template: "big\n"},
	{Rule: "reg: con", Cost: 1, Template: "ldi\n"},
	{Rule: "mem: INDIRI2(reg)", Cost: 0, Template: "%0"},
	{Rule: "reg: mem", Cost: 3, Template: "lda\n"},
	{Rule: "reg: INDIRI2(reg)", Cost: 2, Template: "ldx\n"},
	{Rule: "reg: ADDI2(reg,reg)", Cost: 4, Template: "add\n"},
	{Rule: "reg: ADDI2(reg,con)", Cost: 1, Template: "addi\n"},
	{Rule: "reg: ADDI2(reg,INDIRI2(reg))", Cost: 2, Template: "addm\n"},
	{Rule: "stmt: reg", Cost: 0, Template: ""},
	{Rule: "stmt: ASGNI2(reg,reg)", Cost: 1, Template: "st\n"},
	{Rule: "stmt: ASGNI2(reg,ADDI2(INDIRI2(reg),con))", Cost: 1, Template: "inc\n"},
}

func testGrammar(t testing.TB) *Grammar {
	t.Helper()

	g, err := NewGrammar([]string{"stmt", "reg", "con", "mem"}, testRules)
	require.NoError(t, err)

	return g
}

var (
	cnst  = ir.MakeOp(ir.CNST, ir.I, 2)
	indir = ir.MakeOp(ir.INDIR, ir.I, 2)
	addi  = ir.MakeOp(ir.ADD, ir.I, 2)
	asgn  = ir.MakeOp(ir.ASGN, ir.I, 2)
)

func TestGrammar(t *testing.T) {
	g := testGrammar(t)

	assert.Equal(t, Nonterm(1), g.Start)
	assert.Equal(t, "reg", g.Name(g.Nonterm("reg")))
	assert.Equal(t, "nt?", g.Name(0))
	assert.True(t, g.Known(indir))
	assert.False(t, g.Known(ir.MakeOp(ir.SUB, ir.I, 2)))

	r := g.Rules[11]
	assert.Equal(t, 12, r.ID)
	assert.True(t, r.Instruction)
	assert.Equal(t, []Nonterm{g.Nonterm("reg"), g.Nonterm("reg"), g.Nonterm("con")}, r.NTs)

	assert.True(t, g.Rules[2].IsChain())
	assert.False(t, g.Rules[0].Instruction)

	for _, tc := range []struct {
		nts  []string
		rule string
	}{
		{nil, "reg: CNSTI2"},
		{[]string{"reg", "reg"}, "reg: CNSTI2"},
		{[]string{"reg"}, "foo: CNSTI2"},
		{[]string{"reg"}, "reg: reg"},
		{[]string{"reg"}, "reg: FOOI2"},
		{[]string{"reg"}, "reg: ADDI2(reg,reg"},
		{[]string{"reg"}, "reg: CNSTI2 x"},
	} {
		_, err := NewGrammar(tc.nts, []RuleDef{{Rule: tc.rule}})
		assert.ErrorIs(t, err, ErrGrammar, "%v %q", tc.nts, tc.rule)
	}
}

// brute finds the minimal derivation cost by trying every rule.
func brute(g *Grammar, f *ir.Func, x ir.Expr, nt Nonterm, depth int) Cost {
	if depth > 8 {
		return Inf
	}

	best := Inf

	for _, r := range g.Rules {
		if r.LHS != nt {
			continue
		}

		rc := r.CostAt(f, x)
		if rc >= Inf {
			continue
		}

		var c Cost

		if r.IsChain() {
			c = add(rc, brute(g, f, x, r.Pattern.NT, depth+1))
		} else {
			c = add(rc, bruteMatch(g, f, r.Pattern, x, depth))
		}

		if c < best {
			best = c
		}
	}

	return best
}

func bruteMatch(g *Grammar, f *ir.Func, p *Pattern, x ir.Expr, depth int) Cost {
	if x == ir.Nil {
		return Inf
	}

	if p.NT != 0 {
		return brute(g, f, x, p.NT, 0)
	}

	n := &f.Nodes[x]
	if n.Op != p.Op {
		return Inf
	}

	var sum Cost

	for i, kp := range p.Kids {
		sum = add(sum, bruteMatch(g, f, kp, n.Kids[i], depth))
	}

	return sum
}

func randTree(rnd *rand.Rand, f *ir.Func, depth int) ir.Expr {
	if depth == 0 {
		return f.Add(cnst, &ir.Symbol{Class: ir.Const, Value: rnd.Int63n(10)})
	}

	switch rnd.Intn(3) {
	case 0:
		return f.Add(cnst, &ir.Symbol{Class: ir.Const, Value: rnd.Int63n(10)})
	case 1:
		return f.Add(indir, nil, randTree(rnd, f, depth-1))
	default:
		return f.Add(addi, nil, randTree(rnd, f, depth-1), randTree(rnd, f, depth-1))
	}
}

func TestMinimalCost(t *testing.T) {
	ctx := context.Background()
	g := testGrammar(t)
	rnd := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		f := ir.NewFunc(&ir.Symbol{Name: "f"})

		var root ir.Expr
		if rnd.Intn(2) == 0 {
			root = f.Add(asgn, nil, randTree(rnd, f, 2), randTree(rnd, f, 4))
		} else {
			root = randTree(rnd, f, 4)
		}

		l := NewLabels(g, f)

		err := l.Label(ctx, root)
		require.NoError(t, err)

		for x := range f.Nodes {
			for nt := Nonterm(1); int(nt) < len(g.Nonterms); nt++ {
				want := brute(g, f, ir.Expr(x), nt, 0)

				assert.Equal(t, want, l.Cost(ir.Expr(x), nt), "tree %d node %d %v nt %v", i, x, f.Nodes[x].Op, g.Name(nt))

				r := l.Rule(ir.Expr(x), nt)
				if want >= Inf {
					assert.Nil(t, r)
					continue
				}

				require.NotNil(t, r)

				kids, err := l.Kids(ir.Expr(x), r)
				require.NoError(t, err)
				require.Len(t, kids, len(r.NTs))

				for j, k := range kids {
					assert.NotNil(t, l.Rule(k, r.NTs[j]), "kid %d of rule %v", j, r)
				}
			}
		}
	}
}

func TestSelection(t *testing.T) {
	ctx := context.Background()
	g := testGrammar(t)

	f := ir.NewFunc(&ir.Symbol{Name: "f"})

	p := f.Add(cnst, &ir.Symbol{Class: ir.Const, Value: 100})
	one := f.Add(cnst, &ir.Symbol{Class: ir.Const, Value: 1})
	sum := f.Add(addi, nil, f.Add(indir, nil, p), one)
	root := f.Add(asgn, nil, p, sum)

	l := NewLabels(g, f)

	require.NoError(t, l.Label(ctx, root))

	r := l.Rule(root, g.Start)
	require.NotNil(t, r)
	assert.Equal(t, "stmt: ASGNI2(reg,ADDI2(INDIRI2(reg),con))", r.Text)
	assert.Equal(t, Cost(1+1+1), l.Cost(root, g.Start))

	kids, err := l.Kids(root, r)
	require.NoError(t, err)
	assert.Equal(t, []ir.Expr{p, p, one}, kids)

	assert.True(t, l.Labeled(p))

	// chain: con -> reg is cheaper than the direct rule
	assert.Equal(t, "reg: con", l.Rule(one, g.Nonterm("reg")).Text)
	assert.Equal(t, Cost(1), l.Cost(one, g.Nonterm("reg")))

	_, err = l.Kids(root, g.Rules[6])
	assert.ErrorIs(t, err, ErrOperands)
}

func TestTies(t *testing.T) {
	ctx := context.Background()

	g, err := NewGrammar([]string{"stmt", "reg"}, []RuleDef{
		{Rule: "reg: CNSTI2", Cost: 1, Template: "first\n"},
		{Rule: "reg: CNSTI2", Cost: 1, Template: "second\n"},
		{Rule: "stmt: reg", Cost: 0},
	})
	require.NoError(t, err)

	f := ir.NewFunc(&ir.Symbol{Name: "f"})
	x := f.Add(cnst, &ir.Symbol{Class: ir.Const, Value: 1})

	l := NewLabels(g, f)
	require.NoError(t, l.Label(ctx, x))

	assert.Equal(t, "first\n", l.Rule(x, g.Nonterm("reg")).Template)
}

func TestCostFunc(t *testing.T) {
	ctx := context.Background()

	small := func(f *ir.Func, x ir.Expr) Cost {
		if f.Nodes[x].Sym.Value < 256 {
			return 0
		}

		return Inf
	}

	g, err := NewGrammar([]string{"stmt", "reg"}, []RuleDef{
		{Rule: "reg: CNSTI2", CostFunc: small, Template: "short\n"},
		{Rule: "reg: CNSTI2", Cost: 2, Template: "long\n"},
		{Rule: "stmt: reg", Cost: 0},
	})
	require.NoError(t, err)

	f := ir.NewFunc(&ir.Symbol{Name: "f"})
	a := f.Add(cnst, &ir.Symbol{Class: ir.Const, Value: 5})
	b := f.Add(cnst, &ir.Symbol{Class: ir.Const, Value: 500})

	l := NewLabels(g, f)
	require.NoError(t, l.Label(ctx, a))
	require.NoError(t, l.Label(ctx, b))

	assert.Equal(t, "short\n", l.Rule(a, g.Nonterm("reg")).Template)
	assert.Equal(t, "long\n", l.Rule(b, g.Nonterm("reg")).Template)
}

func TestErrors(t *testing.T) {
	ctx := context.Background()

	g, err := NewGrammar([]string{"stmt", "reg"}, []RuleDef{
		{Rule: "reg: CNSTI2", Cost: 0},
		{Rule: "stmt: ASGNI2(reg,reg)", Cost: 1},
	})
	require.NoError(t, err)

	f := ir.NewFunc(&ir.Symbol{Name: "f"})
	c := f.Add(cnst, &ir.Symbol{Class: ir.Const, Value: 1})
	neg := f.Add(ir.MakeOp(ir.NEG, ir.I, 2), nil, c)

	l := NewLabels(g, f)

	err = l.Label(ctx, neg)
	assert.ErrorIs(t, err, ErrNoRule)

	var ie *InternalError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "f", ie.Func)
	assert.Equal(t, neg, ie.Node)
	assert.Equal(t, "NEGI2", ie.Op.String())
	assert.Contains(t, err.Error(), "NEGI2")

	err = l.Label(ctx, c)
	assert.ErrorIs(t, err, ErrNoCover)
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "stmt", ie.Goal)

	assert.Nil(t, l.Rule(c, 0))
	assert.Nil(t, l.Rule(ir.Nil, 1))
	assert.Equal(t, Inf, l.Cost(ir.Nil, 1))
}
