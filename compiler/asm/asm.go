package asm

import (
	"context"
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/nxlang/nxcc/compiler/vm"
)

type (
	// Program is an assembled memory image starting at address 0.
	Program struct {
		Image []byte

		Labels map[string]uint16

		// Lines maps instruction addresses to source lines.
		Lines map[uint16]int
	}

	Assembler struct {
		labels  map[string]uint16
		externs map[string]int
	}

	line struct {
		no       int
		labels   []string
		mnemonic string
		operand  string
	}

	// Error is an error at a source line.
	Error struct {
		Line int
		Text string
		Err  error
	}
)

var (
	ErrSyntax    = errors.New("syntax error")
	ErrUnknown   = errors.New("unknown instruction")
	ErrMode      = errors.New("addressing mode not supported")
	ErrUndefined = errors.New("undefined symbol")
	ErrDuplicate = errors.New("duplicate label")
	ErrRange     = errors.New("out of range")
)

func Assemble(ctx context.Context, src []byte) (*Program, error) {
	return New().Assemble(ctx, src)
}

func New() *Assembler {
	return &Assembler{
		labels:  map[string]uint16{},
		externs: map[string]int{},
	}
}

func (a *Assembler) Assemble(ctx context.Context, src []byte) (p *Program, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "asm: assemble", "src_len", len(src))
	defer tr.Finish("err", &err)

	var lines []line

	for i, raw := range strings.Split(string(src), "\n") {
		l, err := parseLine(raw, i+1)
		if err != nil {
			return nil, err
		}

		if len(l.labels) != 0 || l.mnemonic != "" {
			lines = append(lines, l)
		}
	}

	err = a.pass1(lines)
	if err != nil {
		return nil, err
	}

	p, err = a.pass2(lines)
	if err != nil {
		return nil, err
	}

	tr.Printw("assembled", "bytes", len(p.Image), "labels", len(p.Labels))

	return p, nil
}

// pass1 assigns label addresses.
func (a *Assembler) pass1(lines []line) error {
	var addr int

	for _, l := range lines {
		for _, lbl := range l.labels {
			if _, ok := a.labels[lbl]; ok {
				return l.errorf(ErrDuplicate, "%v", lbl)
			}

			a.labels[lbl] = uint16(addr)
		}

		if l.mnemonic == "" {
			continue
		}

		next, err := a.size(l, addr)
		if err != nil {
			return err
		}

		if next > 0x10000 {
			return l.errorf(ErrRange, "program too large")
		}

		addr = next
	}

	for name, no := range a.externs {
		if _, ok := a.labels[name]; !ok {
			return (line{no: no}).errorf(ErrUndefined, "extern %v", name)
		}
	}

	return nil
}

// size returns the address after the line.
func (a *Assembler) size(l line, addr int) (int, error) {
	switch l.mnemonic {
	case ".org":
		v, err := number(l.operand)
		if err != nil {
			return 0, l.errorf(err, ".org")
		}

		if v < int64(addr) || v > 0xffff {
			return 0, l.errorf(ErrRange, ".org 0x%x at 0x%x", v, addr)
		}

		return int(v), nil
	case ".word":
		return addr + 2, nil
	case ".byte":
		return addr + 1, nil
	case ".space":
		v, err := number(l.operand)
		if err != nil || v < 0 {
			return 0, l.errorf(ErrSyntax, ".space %q", l.operand)
		}

		return addr + int(v), nil
	case ".align":
		v, err := number(l.operand)
		if err != nil || v <= 0 {
			return 0, l.errorf(ErrSyntax, ".align %q", l.operand)
		}

		return (addr + int(v) - 1) / int(v) * int(v), nil
	case ".extern":
		a.externs[l.operand] = l.no
		return addr, nil
	case ".global", ".text", ".data", ".bss", ".rodata":
		return addr, nil
	}

	if strings.HasPrefix(l.mnemonic, ".") {
		return 0, l.errorf(ErrUnknown, "directive %v", l.mnemonic)
	}

	if !vm.Known(l.mnemonic) {
		return 0, l.errorf(ErrUnknown, "%v", l.mnemonic)
	}

	if l.operand == "" {
		return addr + 1, nil
	}

	return addr + 3, nil
}

func (a *Assembler) pass2(lines []line) (*Program, error) {
	p := &Program{
		Labels: a.labels,
		Lines:  map[uint16]int{},
	}

	emit := func(b ...byte) {
		p.Image = append(p.Image, b...)
	}

	word := func(v uint16) {
		emit(byte(v), byte(v>>8))
	}

	for _, l := range lines {
		if l.mnemonic == "" {
			continue
		}

		addr := len(p.Image)

		switch l.mnemonic {
		case ".org", ".space", ".align":
			next, err := a.size(l, addr)
			if err != nil {
				return nil, err
			}

			for len(p.Image) < next {
				emit(0)
			}

			continue
		case ".word":
			v, err := a.expr(l.operand)
			if err != nil {
				return nil, l.errorf(err, ".word")
			}

			word(uint16(v))

			continue
		case ".byte":
			v, err := a.expr(l.operand)
			if err != nil {
				return nil, l.errorf(err, ".byte")
			}

			if v < -128 || v > 255 {
				return nil, l.errorf(ErrRange, ".byte %d", v)
			}

			emit(byte(v))

			continue
		case ".extern", ".global", ".text", ".data", ".bss", ".rodata":
			continue
		}

		mode, arg, err := a.operand(l.operand)
		if err != nil {
			return nil, l.errorf(err, "%v", l.mnemonic)
		}

		if mode == vm.Abs && l.mnemonic == "LDI" {
			mode = vm.Imm
		}

		op, ok := vm.Lookup(l.mnemonic, mode)
		if !ok {
			return nil, l.errorf(ErrMode, "%v %v", l.mnemonic, mode)
		}

		p.Lines[uint16(addr)] = l.no

		emit(byte(op))

		if mode != vm.None {
			word(uint16(arg))
		}
	}

	return p, nil
}

// operand parses
//
//	expr  expr,X  expr,Y  expr,FP  expr,FP,X
//
// LDI takes an immediate.
func (a *Assembler) operand(s string) (vm.Mode, int64, error) {
	if s == "" {
		return vm.None, 0, nil
	}

	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	v, err := a.expr(parts[0])
	if err != nil {
		return 0, 0, err
	}

	suffix := strings.ToUpper(strings.Join(parts[1:], ","))

	switch suffix {
	case "":
		return vm.Abs, v, nil
	case "X":
		return vm.AbsX, v, nil
	case "Y":
		return vm.AbsY, v, nil
	case "FP":
		return vm.Frame, v, nil
	case "FP,X":
		return vm.FrameX, v, nil
	}

	return 0, 0, errors.Wrap(ErrSyntax, "operand %q", s)
}

// expr is a number or a symbol with an optional displacement.
func (a *Assembler) expr(s string) (int64, error) {
	if s == "" {
		return 0, errors.Wrap(ErrSyntax, "empty operand")
	}

	if c := s[0]; c >= '0' && c <= '9' || c == '-' || c == '+' {
		v, err := number(s)
		if err != nil {
			return 0, err
		}

		if v < -0x8000 || v > 0xffff {
			return 0, errors.Wrap(ErrRange, "%v", s)
		}

		return v, nil
	}

	name, off := s, int64(0)

	if i := strings.IndexAny(s, "+-"); i > 0 {
		v, err := number(s[i:])
		if err != nil {
			return 0, err
		}

		name, off = s[:i], v
	}

	addr, ok := a.labels[name]
	if !ok {
		return 0, errors.Wrap(ErrUndefined, "%v", name)
	}

	return int64(addr) + off, nil
}

func number(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimPrefix(s, "+"), 0, 64)
	if err != nil {
		return 0, errors.Wrap(ErrSyntax, "number %q", s)
	}

	return v, nil
}

func parseLine(raw string, no int) (l line, err error) {
	l.no = no

	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = raw[:i]
	}

	raw = strings.TrimSpace(raw)

	for {
		i := strings.IndexByte(raw, ':')
		if i < 0 {
			break
		}

		lbl := strings.TrimSpace(raw[:i])
		if !isIdent(lbl) {
			return l, (line{no: no}).errorf(ErrSyntax, "label %q", lbl)
		}

		l.labels = append(l.labels, lbl)
		raw = strings.TrimSpace(raw[i+1:])
	}

	if raw == "" {
		return l, nil
	}

	l.mnemonic, l.operand, _ = strings.Cut(raw, " ")
	l.operand = strings.TrimSpace(l.operand)

	if !strings.HasPrefix(l.mnemonic, ".") {
		l.mnemonic = strings.ToUpper(l.mnemonic)
	}

	return l, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		switch {
		case c == '_' || c == '.' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}

	return true
}

func (l line) errorf(err error, format string, args ...any) error {
	return &Error{Line: l.no, Text: l.mnemonic, Err: errors.Wrap(err, format, args...)}
}

func (e *Error) Error() string {
	return "line " + strconv.Itoa(e.Line) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
