package back

import (
	"strconv"

	"github.com/google/btree"
	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/nxlang/nxcc/compiler/ir"
)

type (
	// unit is the per unit emission state.
	unit struct {
		c *Compiler
		u *ir.Unit

		entry string

		seg     ir.Segment
		uniq    int
		statics int

		names map[*ir.Symbol]string

		// assembly level symbol table ordered by name
		syms *btree.BTreeG[symEntry]
	}

	symEntry struct {
		name string
		sym  *ir.Symbol
	}
)

var (
	ErrDuplicate = errors.New("duplicate assembly symbol")
	ErrItem      = errors.New("bad data item")
)

func newUnit(c *Compiler, u *ir.Unit) *unit {
	return &unit{
		c:     c,
		u:     u,
		names: map[*ir.Symbol]string{},
		syms: btree.NewG[symEntry](8, func(a, b symEntry) bool {
			return a.name < b.name
		}),
	}
}

// declare enters unit level symbols into the table.
func (u *unit) declare() error {
	add := func(s *ir.Symbol) error {
		e := symEntry{name: u.name(s), sym: s}

		if old, ok := u.syms.Get(e); ok && old.sym != s {
			return errors.Wrap(ErrDuplicate, "%v (%v %v and %v %v)", e.name, old.sym.Class, old.sym.Name, s.Class, s.Name)
		}

		u.syms.ReplaceOrInsert(e)

		return nil
	}

	for _, f := range u.u.Funcs {
		if err := add(f.Sym); err != nil {
			return err
		}

		if f.Name() == Entry {
			u.entry = u.name(f.Sym)
		}
	}

	for _, d := range u.u.Data {
		if err := add(d.Sym); err != nil {
			return err
		}
	}

	for _, s := range u.u.Imports {
		if err := add(s); err != nil {
			return err
		}
	}

	return nil
}

// name returns the assembly name of the symbol.
//
//	static      _S<n>
//	generated   _L<name>
//	global      _<name>
func (u *unit) name(s *ir.Symbol) string {
	if n, ok := u.names[s]; ok {
		return n
	}

	var n string

	switch {
	case s.Class == ir.Static:
		u.statics++
		n = "_S" + strconv.Itoa(u.statics)
	case s.Generated:
		n = "_L" + s.Name
	case s.Class == ir.Global || s.Class == ir.Extern:
		n = "_" + s.Name
	default:
		n = s.Name
	}

	u.names[s] = n

	return n
}

func (u *unit) next() int {
	u.uniq++
	return u.uniq
}

func (u *unit) segment(b []byte, s ir.Segment) []byte {
	if u.seg == s {
		return b
	}

	u.seg = s

	return hfmt.Appendf(b, "\n    .%s\n", s.String())
}

func (u *unit) imports(b []byte) []byte {
	u.syms.Ascend(func(e symEntry) bool {
		if e.sym.Class == ir.Extern {
			b = hfmt.Appendf(b, "    .extern %s\n", e.name)
		}

		return true
	})

	return b
}

func (u *unit) data(b []byte, d *ir.Data) (_ []byte, err error) {
	b = u.segment(b, d.Segment)

	name := u.name(d.Sym)

	b = append(b, '\n')

	if d.Sym.Align >= 2 {
		b = append(b, "    .align 2\n"...)
	}

	if d.Sym.Exported {
		b = hfmt.Appendf(b, "    .global %s\n", name)
	}

	b = hfmt.Appendf(b, "%s:\n", name)

	for i, it := range d.Items {
		switch it.Kind {
		case ir.ItemConst:
			b, err = defconst(b, it.Size, it.Value)
		case ir.ItemAddr:
			b = hfmt.Appendf(b, "    .word %s\n", Mem(u.name(it.Sym), it.Value).String())
		case ir.ItemString:
			for _, c := range it.Str {
				b = hfmt.Appendf(b, "    .byte %d\n", c)
			}
		case ir.ItemSpace:
			b = hfmt.Appendf(b, "    .space %d\n", it.Size)
		default:
			err = errors.Wrap(ErrItem, "kind %d", it.Kind)
		}

		if err != nil {
			return nil, errors.Wrap(err, "item %d", i)
		}
	}

	return b, nil
}

// defconst emits a little endian constant byte by byte.
func defconst(b []byte, size int, v int64) ([]byte, error) {
	if size != 1 && size != 2 && size != 4 {
		return b, errors.Wrap(ErrItem, "constant size %d", size)
	}

	for i := 0; i < size; i++ {
		b = hfmt.Appendf(b, "    .byte %d\n", uint8(v>>(8*i)))
	}

	return b, nil
}
