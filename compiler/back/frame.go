package back

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"

	"github.com/nxlang/nxcc/compiler/ir"
)

type (
	// Layout is a function stack frame.
	//
	//	FP+4+2*Saved...  parameters
	//	FP+2+2*Saved     return address
	//	FP+2*Saved       caller FP
	//	FP+0...          saved slots
	//	FP-Size...       locals
	Layout struct {
		Saved int // slot words saved by the prologue
		Size  int // locals and temps bytes
		Temps int

		off map[*ir.Symbol]int64
	}
)

var ErrNoFrame = errors.New("symbol has no frame offset")

// Layout assigns frame offsets to parameters and locals.
func (c *Config) Layout(f *ir.Func) *Layout {
	l := &Layout{
		off: map[*ir.Symbol]int64{},
	}

	if f.NCalls > 0 {
		l.Saved = c.CalleeSaved
	}

	off := int64(4 + 2*l.Saved)

	for _, p := range f.Params {
		s := p.Caller
		if s == nil {
			s = p.Callee
		}

		if p.Callee != nil {
			l.off[p.Callee] = off
		}

		if p.Caller != nil {
			l.off[p.Caller] = off
		}

		off += int64(roundup(s.Size, 2))
	}

	for _, s := range f.Locals {
		l.Size = roundup(l.Size+s.Size, max(s.Align, 2))
		l.off[s] = -int64(l.Size)
	}

	return l
}

func (l *Layout) Offset(s *ir.Symbol) (int64, error) {
	off, ok := l.off[s]
	if !ok {
		return 0, errors.Wrap(ErrNoFrame, "%v %v", s.Class, s.Name)
	}

	return off, nil
}

// Temp reserves frame space below the locals for a compiler temporary.
func (l *Layout) Temp(size int) int64 {
	l.Size += roundup(size, 2)
	l.Temps++

	return -int64(l.Size)
}

func (l *Layout) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 4)
	b = e.AppendKeyInt(b, "saved", l.Saved)
	b = e.AppendKeyInt(b, "locals", l.Size)
	b = e.AppendKeyInt(b, "temps", l.Temps)
	b = e.AppendKeyInt(b, "syms", len(l.off))

	return b
}

func roundup(x, n int) int {
	if n <= 1 {
		return x
	}

	return (x + n - 1) / n * n
}
