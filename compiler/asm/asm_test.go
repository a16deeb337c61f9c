package asm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/nxlang/nxcc/compiler/vm"
)

func opcode(t testing.TB, name string, m vm.Mode) byte {
	t.Helper()

	op, ok := vm.Lookup(name, m)
	require.True(t, ok)

	return byte(op)
}

func TestAssemble(t *testing.T) {
	p, err := Assemble(context.Background(), []byte(`
    .org 0x0000
    JMP start   ; skip data
x: .word 0x1234
y:  .space 2

    .org 0x0010
start:
    LDA x
    STA y
    LDI -1
    lda 4,FP
    STA -2,FP,X
    LDA x+1,Y
    hlt
`))
	require.NoError(t, err)

	assert.Equal(t, uint16(3), p.Labels["x"])
	assert.Equal(t, uint16(5), p.Labels["y"])
	assert.Equal(t, uint16(0x10), p.Labels["start"])

	assert.Equal(t, []byte{opcode(t, "JMP", vm.Abs), 0x10, 0, 0x34, 0x12, 0, 0}, p.Image[:7])

	code := p.Image[0x10:]
	assert.Equal(t, []byte{
		opcode(t, "LDA", vm.Abs), 3, 0,
		opcode(t, "STA", vm.Abs), 5, 0,
		opcode(t, "LDI", vm.Imm), 0xff, 0xff,
		opcode(t, "LDA", vm.Frame), 4, 0,
		opcode(t, "STA", vm.FrameX), 0xfe, 0xff,
		opcode(t, "LDA", vm.AbsY), 4, 0,
		opcode(t, "HLT", vm.None),
	}, code)

	assert.Equal(t, 9, p.Lines[0x10])
	assert.Equal(t, 3, p.Lines[0])
}

func TestAssembleRun(t *testing.T) {
	p, err := Assemble(context.Background(), []byte(`
    JMP _start
n:  .word 5
s:  .word 0

_start:
loop:
    LDA s
    ADD n
    STA s
    LDA n
    DEC
    STA n
    JNZ loop
    HLT
`))
	require.NoError(t, err)

	c := vm.New()
	c.Load(p.Image, 0x8000)

	err = c.Run(context.Background(), 1000)
	require.NoError(t, err)

	assert.Equal(t, uint16(15), c.Word(p.Labels["s"]))
}

func TestAlign(t *testing.T) {
	p, err := Assemble(context.Background(), []byte(`
a: .byte 1
    .align 2
b: .byte 2
    .byte 3
    .align 4
c:
`))
	require.NoError(t, err)

	assert.Equal(t, uint16(2), p.Labels["b"])
	assert.Equal(t, uint16(4), p.Labels["c"])
	assert.Equal(t, []byte{1, 0, 2, 3}, p.Image)
}

func TestErrors(t *testing.T) {
	for _, tc := range []struct {
		src  string
		err  error
		line int
	}{
		{"  NOP\n  FOO", ErrUnknown, 2},
		{"  LDA nowhere", ErrUndefined, 1},
		{"a:\na:", ErrDuplicate, 2},
		{"  PUSH_FP 4,FP", ErrMode, 1},
		{"  LDI 1,X", ErrMode, 1},
		{"  .extern _putc\n  HLT", ErrUndefined, 1},
		{"  .org 4\n  .org 2", ErrRange, 2},
		{"  LDA 1,Z", ErrSyntax, 1},
		{"  .byte 300", ErrRange, 1},
		{"1x: NOP", ErrSyntax, 1},
	} {
		_, err := Assemble(context.Background(), []byte(tc.src))
		require.Error(t, err, "%q", tc.src)

		assert.ErrorIs(t, err, tc.err, "%q", tc.src)

		var e *Error
		if assert.True(t, errors.As(err, &e), "%q", tc.src) {
			assert.Equal(t, tc.line, e.Line, "%q", tc.src)
		}
	}
}
