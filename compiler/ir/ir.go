package ir

import (
	"tlog.app/go/tlog/tlwire"
)

type (
	Expr int

	Kind uint8
	Type uint8

	// Op is an lcc style operator: generic kind, type suffix and width in bytes.
	Op struct {
		Kind Kind
		Type Type
		Size uint8
	}

	Node struct {
		Op   Op
		Kids [3]Expr

		Sym *Symbol
		Off int64 // address displacement for ADDR* and named operands
	}

	Class uint8

	Symbol struct {
		Name  string
		Class Class

		Value int64 // Const

		Size  int
		Align int

		Generated bool
		Exported  bool
	}

	Param struct {
		Caller *Symbol
		Callee *Symbol
	}

	Func struct {
		Sym *Symbol

		Params []Param
		Locals []*Symbol
		VRegs  []*Symbol

		NCalls int

		Nodes []Node
		Stmts []Expr
	}

	Segment uint8

	ItemKind uint8

	Item struct {
		Kind  ItemKind
		Size  int
		Value int64
		Sym   *Symbol
		Str   []byte
	}

	Data struct {
		Sym     *Symbol
		Segment Segment
		Items   []Item
	}

	Unit struct {
		Name string

		Funcs   []*Func
		Data    []*Data
		Imports []*Symbol
	}
)

const (
	Nil Expr = -1
)

// Classes.
const (
	Const Class = iota
	Global
	Static
	Extern
	ParamSym
	Local
	VReg
	Label
)

const (
	_ Segment = iota
	Code
	BSS
	DataSeg
	Lit
)

const (
	ItemConst ItemKind = iota
	ItemAddr
	ItemString
	ItemSpace
)

func NewFunc(sym *Symbol) *Func {
	return &Func{Sym: sym}
}

// Add appends a node to the arena and returns its index.
func (f *Func) Add(op Op, sym *Symbol, kids ...Expr) Expr {
	n := Node{
		Op:   op,
		Sym:  sym,
		Kids: [3]Expr{Nil, Nil, Nil},
	}

	copy(n.Kids[:], kids)

	f.Nodes = append(f.Nodes, n)

	return Expr(len(f.Nodes) - 1)
}

func (f *Func) Stmt(x Expr) {
	f.Stmts = append(f.Stmts, x)
}

func (f *Func) Node(x Expr) *Node {
	return &f.Nodes[x]
}

func (f *Func) Name() string {
	if f.Sym == nil {
		return ""
	}

	return f.Sym.Name
}

// Arity returns the number of non-nil kids.
func (n *Node) Arity() (k int) {
	for k < len(n.Kids) && n.Kids[k] != Nil {
		k++
	}

	return k
}

// CountCalls counts CALL nodes reachable from the statements.
func (f *Func) CountCalls() (n int) {
	seen := make([]bool, len(f.Nodes))

	var walk func(x Expr)
	walk = func(x Expr) {
		if x == Nil || seen[x] {
			return
		}

		seen[x] = true

		nd := &f.Nodes[x]
		if nd.Op.Kind == CALL {
			n++
		}

		for _, k := range nd.Kids {
			walk(k)
		}
	}

	for _, s := range f.Stmts {
		walk(s)
	}

	return n
}

func (c Class) String() string {
	switch c {
	case Const:
		return "const"
	case Global:
		return "global"
	case Static:
		return "static"
	case Extern:
		return "extern"
	case ParamSym:
		return "param"
	case Local:
		return "local"
	case VReg:
		return "vreg"
	case Label:
		return "label"
	default:
		return "class?"
	}
}

func (s Segment) String() string {
	switch s {
	case Code:
		return "text"
	case BSS:
		return "bss"
	case DataSeg:
		return "data"
	case Lit:
		return "rodata"
	default:
		return ""
	}
}

func (s *Symbol) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if s == nil {
		return e.AppendNil(b)
	}

	b = e.AppendMap(b, 3)
	b = e.AppendKeyString(b, "name", s.Name)
	b = e.AppendKeyString(b, "class", s.Class.String())
	b = e.AppendKeyInt(b, "size", s.Size)

	return b
}

func (n Node) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	l := 1
	if n.Sym != nil {
		l++
	}

	for _, k := range n.Kids {
		if k != Nil {
			l++
		}
	}

	b = e.AppendMap(b, l)
	b = e.AppendKeyString(b, "op", n.Op.String())

	if n.Sym != nil {
		b = e.AppendKeyString(b, "sym", n.Sym.Name)
	}

	for i, k := range n.Kids {
		if k == Nil {
			continue
		}

		b = e.AppendKeyInt64(b, kidKeys[i], int64(k))
	}

	return b
}

var kidKeys = [3]string{"l", "r", "x"}
