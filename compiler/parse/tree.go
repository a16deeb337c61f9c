package parse

import (
	"context"
	"strconv"

	"tlog.app/go/errors"

	"github.com/nxlang/nxcc/compiler/ir"
)

type (
	// Tree parses an IR tree into the current function:
	//
	//	OP [sym][+off] [(kid, ...)]
	//	#n=TREE  defines a shared node
	//	#n       refers to it
	Tree struct{}

	// Sym parses a symbol reference: a name or a number with an optional displacement.
	Sym struct{}

	symRef struct {
		Name  string
		Num   int64
		IsNum bool
		Off   int64
	}
)

var (
	ErrNoFunc    = errors.New("statement outside of func")
	ErrArity     = errors.New("wrong number of operands")
	ErrUndefined = errors.New("undefined")
)

func (p Tree) Parse(ctx context.Context, b []byte, st int) (x any, i int, err error) {
	s := StateFromContext(ctx)
	if s == nil || s.f == nil {
		return nil, st, ErrNoFunc
	}

	if st < len(b) && b[st] == '#' {
		return p.shared(ctx, s, b, st)
	}

	x, i, err = Ident{}.Parse(ctx, b, st)
	if err != nil {
		return nil, st, errors.Wrap(err, "operator")
	}

	op, err := ir.ParseOp(string(x.(Ident)))
	if err != nil {
		return nil, i, err
	}

	var ref *symRef

	j := SpaceTab.Skip(b, i)
	if j > i && j < len(b) && b[j] != '(' && b[j] != ',' && b[j] != ')' {
		x, i, err = Sym{}.Parse(ctx, b, j)
		if err != nil {
			return nil, i, errors.Wrap(err, "%v: symbol", op)
		}

		r := x.(symRef)
		ref = &r
	}

	var kids []ir.Expr

	j = SpaceTab.Skip(b, i)
	if j < len(b) && b[j] == '(' {
		list := AllOf{
			Const("("),
			SepBy{
				Of:  Spaced(Tree{}, SpaceTab),
				Sep: Spaced(Const(","), SpaceTab),
			},
			Spaced(Const(")"), SpaceTab),
		}

		x, i, err = list.Parse(ctx, b, j)
		if err != nil {
			return nil, i, errors.Wrap(err, "%v: operands", op)
		}

		for _, k := range x.([]any)[1].([]any) {
			kids = append(kids, k.(ir.Expr))
		}
	}

	if want := arity(op); len(kids) != want {
		return nil, i, errors.Wrap(ErrArity, "%v: have %d, want %d", op, len(kids), want)
	}

	sym, err := s.resolve(op, ref)
	if err != nil {
		return nil, i, errors.Wrap(err, "%v", op)
	}

	id := s.f.Add(op, sym, kids...)

	if ref != nil && op.Kind != ir.CNST {
		s.f.Nodes[id].Off = ref.Off
	}

	return id, i, nil
}

func (p Tree) shared(ctx context.Context, s *State, b []byte, st int) (x any, i int, err error) {
	x, i, err = Int{}.Parse(ctx, b, st+1)
	if err != nil {
		return nil, i, errors.Wrap(err, "shared node number")
	}

	n := x.(int64)

	if i < len(b) && b[i] == '=' {
		x, i, err = p.Parse(ctx, b, i+1)
		if err != nil {
			return nil, i, err
		}

		if s.shared == nil {
			s.shared = map[int64]ir.Expr{}
		}

		s.shared[n] = x.(ir.Expr)

		return x, i, nil
	}

	id, ok := s.shared[n]
	if !ok {
		return nil, i, errors.Wrap(ErrUndefined, "shared node #%d", n)
	}

	return id, i, nil
}

func (Sym) Parse(ctx context.Context, b []byte, st int) (x any, i int, err error) {
	var r symRef

	x, i, err = AnyOf{Int{}, Ident{}}.Parse(ctx, b, st)
	if err != nil {
		return nil, i, err
	}

	switch x := x.(type) {
	case int64:
		r.Num = x
		r.IsNum = true
		r.Name = strconv.FormatInt(x, 10)
	case Ident:
		r.Name = string(x)
	}

	if !r.IsNum && i < len(b) && (b[i] == '+' || b[i] == '-') {
		x, i, err = Int{}.Parse(ctx, b, i)
		if err != nil {
			return nil, i, errors.Wrap(err, "displacement")
		}

		r.Off = x.(int64)
	}

	return r, i, nil
}

func arity(op ir.Op) int {
	switch op.Kind {
	case ir.CNST, ir.ADDRG, ir.ADDRF, ir.ADDRL, ir.VREG, ir.LABEL:
		return 0
	case ir.RET:
		if op.Type == ir.V {
			return 0
		}

		return 1
	case ir.INDIR, ir.CVI, ir.CVU, ir.CVP, ir.NEG, ir.BCOM, ir.ARG, ir.CALL, ir.LOAD, ir.JUMP:
		return 1
	default:
		return 2
	}
}

func (s *State) resolve(op ir.Op, r *symRef) (sym *ir.Symbol, err error) {
	need := true

	switch op.Kind {
	case ir.CNST:
		if r == nil || !r.IsNum {
			return nil, errors.New("constant value expected")
		}

		return &ir.Symbol{Name: r.Name, Class: ir.Const, Value: r.Num, Size: int(op.Size)}, nil
	case ir.ADDRF:
		sym, err = s.local(r, ir.ParamSym)
	case ir.ADDRL:
		sym, err = s.local(r, ir.Local)
	case ir.VREG:
		sym, err = s.local(r, ir.VReg)
	case ir.ADDRG:
		if r == nil {
			break
		}

		if l, ok := s.labels[r.Name]; ok || r.IsNum {
			if !ok {
				l = s.label(r.Name)
			}

			return l, nil
		}

		if l, ok := s.fsyms[r.Name]; ok && l.Class == ir.Static {
			return l, nil
		}

		return s.global(r.Name), nil
	case ir.LABEL, ir.EQ, ir.GE, ir.GT, ir.LE, ir.LT, ir.NE:
		if r == nil {
			break
		}

		return s.label(r.Name), nil
	default:
		need = false
	}

	if err != nil {
		return nil, err
	}

	if need && r == nil {
		return nil, errors.New("symbol expected")
	}

	if !need && r != nil {
		return nil, errors.New("unexpected symbol %v", r.Name)
	}

	return sym, nil
}

func (s *State) local(r *symRef, cl ir.Class) (*ir.Symbol, error) {
	if r == nil {
		return nil, errors.New("%v expected", cl)
	}

	sym, ok := s.fsyms[r.Name]
	if !ok || sym.Class != cl {
		return nil, errors.Wrap(ErrUndefined, "%v %v", cl, r.Name)
	}

	return sym, nil
}

func (s *State) label(name string) *ir.Symbol {
	if l, ok := s.labels[name]; ok {
		return l
	}

	l := &ir.Symbol{Name: name, Class: ir.Label, Generated: true}
	s.labels[name] = l

	return l
}

// global returns a unit level symbol, declaring it as an import if it's not yet known.
func (s *State) global(name string) *ir.Symbol {
	if g, ok := s.syms[name]; ok {
		return g
	}

	g := &ir.Symbol{Name: name, Class: ir.Extern, Size: 2, Align: 2}
	s.syms[name] = g

	s.unit.Imports = append(s.unit.Imports, g)

	return g
}
