package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/nxlang/nxcc/compiler/asm"
	"github.com/nxlang/nxcc/compiler/back"
	"github.com/nxlang/nxcc/compiler/parse"
	"github.com/nxlang/nxcc/compiler/vm"
)

type (
	Compiler struct {
		cfg  *back.Config
		back *back.Compiler
	}
)

var ErrNoStack = errors.New("program image reaches the stack")

func New(cfg *back.Config) (*Compiler, error) {
	if cfg == nil {
		cfg = back.DefaultConfig()
	}

	b, err := back.New(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "back end")
	}

	return &Compiler{cfg: cfg, back: b}, nil
}

func (c *Compiler) Back() *back.Compiler { return c.back }

func (c *Compiler) CompileFile(ctx context.Context, name string) (obj []byte, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return c.Compile(ctx, name, text)
}

// Compile translates IR text into NEANDER-X assembly.
func (c *Compiler) Compile(ctx context.Context, name string, text []byte) (obj []byte, err error) {
	u, err := parse.Parse(ctx, name, text, c.cfg.Types)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	obj, err = c.back.CompileUnit(ctx, nil, u)
	if err != nil {
		return nil, errors.Wrap(err, "compile")
	}

	return obj, nil
}

// Build compiles and assembles.
func (c *Compiler) Build(ctx context.Context, name string, text []byte) (*asm.Program, error) {
	obj, err := c.Compile(ctx, name, text)
	if err != nil {
		return nil, err
	}

	p, err := asm.Assemble(ctx, obj)
	if err != nil {
		return nil, errors.Wrap(err, "assemble")
	}

	return p, nil
}

// Run loads the program into a fresh simulator and runs it to HLT.
func (c *Compiler) Run(ctx context.Context, p *asm.Program, limit int) (cpu *vm.CPU, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "run", "image", len(p.Image), "limit", limit)
	defer tr.Finish("err", &err)

	if len(p.Image) > c.cfg.StackTop {
		return nil, errors.Wrap(ErrNoStack, "image ends at 0x%04x, stack_top 0x%04x", len(p.Image), c.cfg.StackTop)
	}

	cpu = vm.New()
	cpu.Load(p.Image, uint16(c.cfg.StackTop))

	err = cpu.Run(ctx, limit)

	tr.Printw("stopped", "steps", cpu.Steps, "cpu", cpu)

	if err != nil {
		return cpu, errors.Wrap(err, "run")
	}

	return cpu, nil
}
