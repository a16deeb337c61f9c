package back

import (
	"context"

	"github.com/docker/go-units"
	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/nxlang/nxcc/compiler/burs"
	"github.com/nxlang/nxcc/compiler/ir"
)

type (
	// Compiler translates IR units to NEANDER-X assembly.
	// It holds no per unit state and can be used concurrently.
	Compiler struct {
		cfg *Config
		g   *burs.Grammar

		stmtNT burs.Nonterm
		regNT  burs.Nonterm
	}
)

// Entry is the function the startup code calls.
const Entry = "main"

func New(cfg *Config) (*Compiler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	g, err := Grammar()
	if err != nil {
		return nil, errors.Wrap(err, "grammar")
	}

	return &Compiler{
		cfg:    cfg,
		g:      g,
		stmtNT: g.Nonterm("stmt"),
		regNT:  g.Nonterm("reg"),
	}, nil
}

func (c *Compiler) Config() *Config { return c.cfg }

func (c *Compiler) Grammar() *burs.Grammar { return c.g }

// CompileUnit appends the unit assembly to b.
func (c *Compiler) CompileUnit(ctx context.Context, b []byte, u *ir.Unit) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile unit", "name", u.Name, "funcs", len(u.Funcs), "data", len(u.Data))
	defer tr.Finish("err", &err)

	st := len(b)

	us := newUnit(c, u)

	err = us.declare()
	if err != nil {
		return nil, err
	}

	b = c.header(b, us)
	b = us.imports(b)

	for _, f := range u.Funcs {
		b, err = c.compileFunc(ctx, b, us, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name())
		}
	}

	for _, d := range u.Data {
		b, err = us.data(b, d)
		if err != nil {
			return nil, errors.Wrap(err, "data %v", d.Sym.Name)
		}
	}

	b = append(b, "\n; end of unit\n    HLT\n"...)

	tr.Printw("unit compiled", "text", units.HumanSize(float64(len(b)-st)), "labels", us.uniq)

	return b, nil
}

func (c *Compiler) header(b []byte, u *unit) []byte {
	s := &c.cfg.Scratch

	b = hfmt.Appendf(b, "; NEANDER-X 16-bit assembly\n; unit %s\n\n", u.u.Name)

	b = append(b, "    .org 0x0000\n    JMP _start\n\n"...)

	for _, w := range []struct {
		name string
		val  int
	}{
		{s.Tmp, 0},
		{s.TmpHi, 0},
		{s.Tmp2, 0},
		{s.Tmp2Hi, 0},
		{s.MaskFF, 0x00ff},
		{s.Sign80, 0x0080},
	} {
		b = hfmt.Appendf(b, "%s: .word 0x%04x\n", w.name, w.val)
	}

	b = hfmt.Appendf(b, "%s: .space %d\n\n", s.VReg, 2*c.cfg.Slots)

	b = hfmt.Appendf(b, "    .org 0x%04x\n_start:\n", c.cfg.CodeOrg)

	if u.entry != "" {
		b = hfmt.Appendf(b, "    CALL %s\n", u.entry)
	}

	b = append(b, "    HLT\n"...)

	u.seg = ir.Code

	return b
}

func (c *Compiler) compileFunc(ctx context.Context, b []byte, u *unit, f *ir.Func) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "func", "name", f.Name(), "stmts", len(f.Stmts), "calls", f.NCalls)
	defer tr.Finish("err", &err)

	if tr.If("hide_func_" + f.Name()) {
		tr.Printw("hide func logs")
		tr.Logger = nil
		ctx = tlog.ContextWithSpan(ctx, tr)
	}

	e := c.newFn(u, f)

	for i, x := range f.Stmts {
		err = e.stmt(ctx, x)
		if err != nil {
			return nil, errors.Wrap(err, "stmt %d", i)
		}
	}

	if tr.If("dump_frame") {
		tr.Printw("frame", "layout", e.fr, "slots", e.sl)
	}

	name := u.name(f.Sym)

	b = u.segment(b, ir.Code)
	b = hfmt.Appendf(b, "\n; func %s\n", f.Name())

	if f.Sym.Exported {
		b = hfmt.Appendf(b, "    .global %s\n", name)
	}

	b = hfmt.Appendf(b, "%s:\n", name)

	b = c.prologue(b, e)
	b = append(b, e.b...)
	b = c.epilogue(b, e)

	return b, nil
}

func (c *Compiler) prologue(b []byte, e *fn) []byte {
	b = append(b, "    PUSH_FP\n"...)

	for i := 0; i < e.fr.Saved; i++ {
		b = hfmt.Appendf(b, "    LDA %s\n    PUSH\n", Mem(c.cfg.Scratch.VReg, int64(2*i)).String())
	}

	b = append(b, "    TSF\n"...)

	for i := 0; i < e.fr.Size/2; i++ {
		b = append(b, "    LDI 0\n    PUSH\n"...)
	}

	return b
}

// epilogue keeps AC and Y which hold the return value.
func (c *Compiler) epilogue(b []byte, e *fn) []byte {
	b = append(b, "    TFS\n"...)

	if e.fr.Saved != 0 {
		b = append(b, "    TAX\n"...)

		for i := e.fr.Saved - 1; i >= 0; i-- {
			b = hfmt.Appendf(b, "    POP\n    STA %s\n", Mem(c.cfg.Scratch.VReg, int64(2*i)).String())
		}

		b = append(b, "    TXA\n"...)
	}

	return append(b, "    POP_FP\n    RET\n"...)
}
