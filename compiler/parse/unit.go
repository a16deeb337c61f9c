package parse

import (
	"context"
	"strconv"

	"tlog.app/go/errors"

	"github.com/nxlang/nxcc/compiler/ir"
)

var (
	ErrDirective = errors.New("bad directive")
	ErrRedefined = errors.New("redefined")
)

var segments = map[string]ir.Segment{
	"text": ir.Code,
	"data": ir.DataSeg,
	"bss":  ir.BSS,
	"lit":  ir.Lit,
}

var itemSizes = map[string]int{
	"byte":  1,
	"short": 2,
	"word":  2,
	"long":  4,
}

func (s *State) line(ctx context.Context, st, end int) (err error) {
	end = stripComment(s.b, st, end)
	st = SpaceTab.Skip(s.b, st)
	end = NewSpaces(' ', '\t', '\r').TrimRight(s.b, st, end)

	if st == end {
		return nil
	}

	b := s.b[:end]

	x, i, err := Ident{}.Parse(ctx, b, st)
	if err != nil {
		// shared node definitions start with #
		return s.stmt(ctx, b, st)
	}

	word := string(x.(Ident))

	switch word {
	case "import":
		return s.importLine(ctx, b, i)
	case "func":
		return s.funcLine(ctx, b, i)
	case "data":
		return s.dataLine(ctx, b, i)
	case "end":
		return s.endLine(ctx, b, i)
	case "param", "local", "static", "vreg":
		if s.f == nil {
			return errors.Wrap(ErrDirective, "%v outside of func", word)
		}

		return s.declLine(ctx, word, b, i)
	case "string":
		if s.d == nil {
			return errors.Wrap(ErrDirective, "%v outside of data", word)
		}

		x, i, err = Spaced(Str{}, SpaceTab).Parse(ctx, b, i)
		if err != nil {
			return err
		}

		str := x.([]byte)

		s.d.Items = append(s.d.Items, ir.Item{Kind: ir.ItemString, Size: len(str), Str: str})
		s.d.Sym.Size += len(str)

		return s.eol(b, i)
	case "addr":
		if s.d == nil {
			return errors.Wrap(ErrDirective, "%v outside of data", word)
		}

		x, i, err = Spaced(Sym{}, SpaceTab).Parse(ctx, b, i)
		if err != nil {
			return err
		}

		r := x.(symRef)

		var sym *ir.Symbol
		if r.IsNum {
			sym = s.label(r.Name)
		} else {
			sym = s.global(r.Name)
		}

		s.d.Items = append(s.d.Items, ir.Item{Kind: ir.ItemAddr, Size: 2, Sym: sym, Value: r.Off})
		s.d.Sym.Size += 2

		return s.eol(b, i)
	case "space", "byte", "short", "word", "long":
		if s.d == nil {
			return errors.Wrap(ErrDirective, "%v outside of data", word)
		}

		x, i, err = Spaced(Int{}, SpaceTab).Parse(ctx, b, i)
		if err != nil {
			return err
		}

		v := x.(int64)

		if word == "space" {
			if v < 0 {
				return errors.Wrap(ErrDirective, "negative space")
			}

			s.d.Items = append(s.d.Items, ir.Item{Kind: ir.ItemSpace, Size: int(v)})
			s.d.Sym.Size += int(v)
		} else {
			size := itemSizes[word]

			s.d.Items = append(s.d.Items, ir.Item{Kind: ir.ItemConst, Size: size, Value: v})
			s.d.Sym.Size += size
		}

		return s.eol(b, i)
	}

	return s.stmt(ctx, b, st)
}

func (s *State) stmt(ctx context.Context, b []byte, st int) error {
	if s.f == nil {
		return ErrNoFunc
	}

	x, i, err := Tree{}.Parse(ctx, b, st)
	if err != nil {
		return s.errorAt(i, err)
	}

	if err = s.eol(b, i); err != nil {
		return err
	}

	s.f.Stmt(x.(ir.Expr))

	return nil
}

func (s *State) importLine(ctx context.Context, b []byte, st int) error {
	x, i, err := Spaced(Ident{}, SpaceTab).Parse(ctx, b, st)
	if err != nil {
		return errors.Wrap(err, "import")
	}

	s.global(string(x.(Ident)))

	return s.eol(b, i)
}

func (s *State) funcLine(ctx context.Context, b []byte, st int) error {
	if s.f != nil || s.d != nil {
		return errors.Wrap(ErrDirective, "nested func")
	}

	x, i, err := Spaced(Ident{}, SpaceTab).Parse(ctx, b, st)
	if err != nil {
		return errors.Wrap(err, "func name")
	}

	sym, err := s.define(string(x.(Ident)))
	if err != nil {
		return err
	}

	s.f = ir.NewFunc(sym)
	s.fsyms = map[string]*ir.Symbol{}
	s.shared = nil
	s.calls = -1

	opts, i, err := s.options(ctx, b, i)
	if err != nil {
		return err
	}

	for k, v := range opts {
		switch k {
		case "export":
			sym.Exported = true
		case "calls":
			if v < 0 {
				return errors.Wrap(ErrDirective, "calls=%d", v)
			}

			s.calls = int(v)
		default:
			return errors.Wrap(ErrDirective, "func option %q", k)
		}
	}

	return s.eol(b, i)
}

func (s *State) dataLine(ctx context.Context, b []byte, st int) error {
	if s.f != nil || s.d != nil {
		return errors.Wrap(ErrDirective, "nested data")
	}

	x, i, err := AllOf{
		Spaced(Ident{}, SpaceTab),
		Spaced(Ident{}, SpaceTab),
	}.Parse(ctx, b, st)
	if err != nil {
		return errors.Wrap(err, "data")
	}

	xs := x.([]any)

	seg, ok := segments[string(xs[1].(Ident))]
	if !ok {
		return errors.Wrap(ErrDirective, "segment %q", xs[1])
	}

	sym, err := s.define(string(xs[0].(Ident)))
	if err != nil {
		return err
	}

	sym.Size = 0
	sym.Align = 2

	opts, i, err := s.options(ctx, b, i)
	if err != nil {
		return err
	}

	for k := range opts {
		if k != "export" {
			return errors.Wrap(ErrDirective, "data option %q", k)
		}

		sym.Exported = true
	}

	s.d = &ir.Data{Sym: sym, Segment: seg}

	return s.eol(b, i)
}

func (s *State) endLine(ctx context.Context, b []byte, i int) error {
	switch {
	case s.f != nil:
		if s.calls >= 0 {
			s.f.NCalls = s.calls
		} else {
			s.f.NCalls = s.f.CountCalls()
		}

		s.unit.Funcs = append(s.unit.Funcs, s.f)
		s.f = nil
	case s.d != nil:
		s.unit.Data = append(s.unit.Data, s.d)
		s.d = nil
	default:
		return errors.Wrap(ErrDirective, "end without func or data")
	}

	return s.eol(b, i)
}

func (s *State) declLine(ctx context.Context, word string, b []byte, st int) error {
	x, i, err := AllOf{
		Spaced(Ident{}, SpaceTab),
		Spaced(AnyOf{Ident{}, Int{}}, SpaceTab),
	}.Parse(ctx, b, st)
	if err != nil {
		return errors.Wrap(err, "%v", word)
	}

	xs := x.([]any)
	name := string(xs[0].(Ident))

	if _, ok := s.fsyms[name]; ok {
		return errors.Wrap(ErrRedefined, "%v", name)
	}

	ti, err := s.typ(xs[1])
	if err != nil {
		return errors.Wrap(err, "%v %v", word, name)
	}

	sym := &ir.Symbol{Name: name, Size: ti.Size, Align: ti.Align}

	switch word {
	case "param":
		sym.Class = ir.ParamSym

		caller := *sym

		j := SpaceTab.Skip(b, i)
		if j < len(b) {
			x, i, err = Spaced(AnyOf{Ident{}, Int{}}, SpaceTab).Parse(ctx, b, i)
			if err != nil {
				return errors.Wrap(err, "caller type")
			}

			cti, err := s.typ(x)
			if err != nil {
				return errors.Wrap(err, "param %v caller type", name)
			}

			caller.Size, caller.Align = cti.Size, cti.Align
		}

		s.f.Params = append(s.f.Params, ir.Param{Caller: &caller, Callee: sym})
	case "local":
		sym.Class = ir.Local
		s.f.Locals = append(s.f.Locals, sym)
	case "vreg":
		sym.Class = ir.VReg
		s.f.VRegs = append(s.f.VRegs, sym)
	case "static":
		sym.Class = ir.Static

		s.unit.Data = append(s.unit.Data, &ir.Data{
			Sym:     sym,
			Segment: ir.BSS,
			Items:   []ir.Item{{Kind: ir.ItemSpace, Size: sym.Size}},
		})
	}

	s.fsyms[name] = sym

	return s.eol(b, i)
}

// define declares a unit level symbol, resolving earlier forward references.
func (s *State) define(name string) (*ir.Symbol, error) {
	sym, ok := s.syms[name]
	if ok && sym.Class != ir.Extern {
		return nil, errors.Wrap(ErrRedefined, "%v", name)
	}

	if !ok {
		sym = &ir.Symbol{Name: name, Size: 2, Align: 2}
		s.syms[name] = sym
	}

	sym.Class = ir.Global

	for j, imp := range s.unit.Imports {
		if imp == sym {
			s.unit.Imports = append(s.unit.Imports[:j], s.unit.Imports[j+1:]...)
			break
		}
	}

	return sym, nil
}

// options parses trailing words and key=value pairs.
func (s *State) options(ctx context.Context, b []byte, st int) (opts map[string]int64, i int, err error) {
	opts = map[string]int64{}
	i = st

	for {
		j := SpaceTab.Skip(b, i)
		if j == len(b) {
			return opts, i, nil
		}

		x, k, err := Ident{}.Parse(ctx, b, j)
		if err != nil {
			return nil, j, errors.Wrap(err, "option")
		}

		i = k
		key := string(x.(Ident))
		opts[key] = 1

		if i < len(b) && b[i] == '=' {
			x, i, err = Int{}.Parse(ctx, b, i+1)
			if err != nil {
				return nil, i, errors.Wrap(err, "option %v", key)
			}

			opts[key] = x.(int64)
		}
	}
}

func (s *State) typ(x any) (ir.TypeInfo, error) {
	switch x := x.(type) {
	case Ident:
		return s.Types.Lookup(string(x))
	case int64:
		return s.Types.Lookup(strconv.FormatInt(x, 10))
	}

	return ir.TypeInfo{}, NewTypeExpectedError(ir.TypeInfo{})
}

func (s *State) eol(b []byte, i int) error {
	i = SpaceTab.Skip(b, i)
	if i != len(b) {
		return s.errorAt(i, PartialReadError{End: i})
	}

	return nil
}

// stripComment cuts a ';' comment outside of string literals.
func stripComment(b []byte, st, end int) int {
	q := false

	for i := st; i < end; i++ {
		switch {
		case b[i] == '\\' && q:
			i++
		case b[i] == '"':
			q = !q
		case b[i] == ';' && !q:
			return i
		}
	}

	return end
}
