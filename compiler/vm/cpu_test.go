package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prog []byte

func (p prog) op(t testing.TB, name string, m Mode, arg ...uint16) prog {
	t.Helper()

	op, ok := Lookup(name, m)
	require.True(t, ok, "%v %v", name, m)

	p = append(p, byte(op))

	if m != None {
		require.Len(t, arg, 1)
		p = append(p, byte(arg[0]), byte(arg[0]>>8))
	}

	return p
}

func (p prog) i(t testing.TB, names ...string) prog {
	t.Helper()

	for _, n := range names {
		p = p.op(t, n, None)
	}

	return p
}

func run(t testing.TB, p prog) *CPU {
	t.Helper()

	c := New()
	c.Load(p, 0x8000)

	err := c.Run(context.Background(), 1000)
	require.NoError(t, err)
	require.True(t, c.Halted)

	return c
}

func TestEncoding(t *testing.T) {
	seen := map[Instr]bool{}

	for i, in := range Instrs {
		assert.False(t, seen[in], "%v", in)
		seen[in] = true

		op, ok := Lookup(in.Name, in.Mode)
		assert.True(t, ok)
		assert.Equal(t, Opcode(i), op)
	}

	assert.Less(t, len(Instrs), 256)

	_, ok := Lookup("lda", Frame)
	assert.True(t, ok)

	_, ok = Lookup("LDI", Abs)
	assert.False(t, ok)

	assert.True(t, Known("push_fp"))
	assert.False(t, Known("MOV"))
}

func TestArith(t *testing.T) {
	var p prog

	p = p.op(t, "LDI", Imm, 0xffff)
	p = p.op(t, "ADD", Abs, 0x100)
	p = p.op(t, "STA", Abs, 0x102)
	p = p.op(t, "LDI", Imm, 0)
	p = p.op(t, "ADC", Abs, 0x104)
	p = p.i(t, "HLT")

	c := New()
	c.SetWord(0x100, 2)
	c.SetWord(0x104, 5)
	copy(c.Mem[:], p)
	c.Reset(0, 0x8000)

	require.NoError(t, c.Run(context.Background(), 100))

	assert.Equal(t, uint16(1), c.Word(0x102))
	assert.Equal(t, uint16(6), c.AC)
	assert.False(t, c.C)
}

func TestSubBorrow(t *testing.T) {
	var p prog

	p = p.op(t, "LDI", Imm, 1)
	p = p.op(t, "SUB", Frame, 0)
	p = p.i(t, "HLT")

	c := New()
	c.Load(p, 0x8000)
	c.SetWord(0x8000, 2)

	require.NoError(t, c.Run(context.Background(), 100))

	assert.Equal(t, uint16(0xffff), c.AC)
	assert.True(t, c.C)
	assert.True(t, c.N)
}

func TestCompareJumps(t *testing.T) {
	for _, tc := range []struct {
		a, b  uint16
		jump  string
		taken bool
	}{
		{1, 1, "JZ", true},
		{1, 2, "JNZ", true},
		{0xffff, 1, "JN", true},  // -1 < 1
		{0xffff, 1, "JC", false}, // 65535 > 1
		{1, 0xffff, "JC", true},
		{2, 2, "JLE", true},
		{3, 2, "JGT", true},
		{2, 2, "JGT", false},
		{2, 2, "JGE", true},
		{0xfffe, 2, "JGE", false},
		{2, 2, "JBE", true},
		{0xfffe, 2, "JA", true},
		{2, 3, "JNC", false},
	} {
		var p prog

		p = p.op(t, "LDI", Imm, tc.b)
		p = p.op(t, "STA", Abs, 0x200)
		p = p.op(t, "LDI", Imm, tc.a)
		p = p.op(t, "CMP", Abs, 0x200)
		p = p.op(t, tc.jump, Abs, uint16(len(p)+3+4))
		p = p.op(t, "LDI", Imm, 0)
		p = p.i(t, "HLT")
		p = p.op(t, "LDI", Imm, 1)
		p = p.i(t, "HLT")

		c := run(t, p)

		assert.Equal(t, tc.taken, c.AC == 1, "%v %x %x", tc.jump, tc.a, tc.b)
	}
}

func TestMulDiv(t *testing.T) {
	var p prog

	p = p.op(t, "LDI", Imm, 1000)
	p = p.i(t, "TAX")
	p = p.op(t, "LDI", Imm, 1000)
	p = p.i(t, "MUL", "HLT")

	c := run(t, p)

	assert.Equal(t, uint32(1000000), uint32(c.Y)<<16|uint32(c.AC))

	p = p[:0]
	p = p.op(t, "LDI", Imm, 3)
	p = p.i(t, "TAX")
	p = p.op(t, "LDI", Imm, uint16(0xfff9)) // -7
	p = p.i(t, "DIV", "HLT")

	c = run(t, p)

	assert.Equal(t, int16(-2), int16(c.AC))
	assert.Equal(t, int16(-1), int16(c.Y))

	p = p[:0]
	p = p.i(t, "TAX", "DIV")

	c = New()
	c.Load(p, 0x8000)

	err := c.Run(context.Background(), 10)
	assert.ErrorIs(t, err, ErrDivZero)
}

func TestDivUnsigned(t *testing.T) {
	for _, tc := range []struct {
		op    string
		a, b  uint16
		ac, y uint16
	}{
		{"DIVU", 0xffff, 2, 0x7fff, 1},
		{"MODU", 0xffff, 10, 5, 5},
		{"DIV", 0xffff, 2, 0, 0xffff}, // -1 / 2
		{"DIVU", 0x8000, 0x100, 0x80, 0},
	} {
		var p prog

		p = p.op(t, "LDI", Imm, tc.b)
		p = p.i(t, "TAX")
		p = p.op(t, "LDI", Imm, tc.a)
		p = p.i(t, tc.op, "HLT")

		c := run(t, p)

		assert.Equal(t, tc.ac, c.AC, "%v %x %x", tc.op, tc.a, tc.b)
		assert.Equal(t, tc.y, c.Y, "%v %x %x", tc.op, tc.a, tc.b)
	}

	var p prog
	p = p.i(t, "TAX", "MODU")

	c := New()
	c.Load(p, 0x8000)

	err := c.Run(context.Background(), 10)
	assert.ErrorIs(t, err, ErrDivZero)
}

func TestCallFrame(t *testing.T) {
	var p prog

	p = p.op(t, "LDI", Imm, 21)
	p = p.i(t, "PUSH")
	p = p.op(t, "CALL", Abs, 0) // patched below
	call := len(p) - 2
	p = p.i(t, "TAX", "POP", "TXA", "HLT")

	fn := len(p)
	p[call], p[call+1] = byte(fn), byte(fn>>8)

	p = p.i(t, "PUSH_FP", "TSF")
	p = p.op(t, "LDA", Frame, 4)
	p = p.i(t, "SHL", "TFS", "POP_FP", "RET")

	c := run(t, p)

	assert.Equal(t, uint16(42), c.AC)
	assert.Equal(t, uint16(0x8000), c.SP)
	assert.Equal(t, uint16(0x8000), c.FP)
}

func TestIndexed(t *testing.T) {
	var p prog

	p = p.op(t, "LDI", Imm, 4)
	p = p.i(t, "TAX")
	p = p.op(t, "LDI", Imm, 77)
	p = p.op(t, "STA", AbsX, 0x300)
	p = p.op(t, "LDI", Imm, 2)
	p = p.i(t, "TAY")
	p = p.op(t, "LDA", AbsY, 0x302)
	p = p.i(t, "HLT")

	c := run(t, p)

	assert.Equal(t, uint16(77), c.Word(0x304))
	assert.Equal(t, uint16(77), c.AC)
}

func TestStepLimit(t *testing.T) {
	var p prog

	p = p.op(t, "JMP", Abs, 0)

	c := New()
	c.Load(p, 0x8000)

	err := c.Run(context.Background(), 50)
	assert.ErrorIs(t, err, ErrStepLimit)
	assert.Equal(t, 50, c.Steps)

	c.Mem[0] = 0xff

	c.Reset(0, 0x8000)
	assert.ErrorIs(t, c.Step(), ErrBadOpcode)
}
