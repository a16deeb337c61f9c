package compiler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxlang/nxcc/compiler/asm"
	"github.com/nxlang/nxcc/compiler/back"
	"github.com/nxlang/nxcc/compiler/vm"
)

func build(t testing.TB, text string) (*asm.Program, *vm.CPU) {
	t.Helper()

	return buildWith(t, nil, text)
}

func buildWith(t testing.TB, cfg *back.Config, text string) (*asm.Program, *vm.CPU) {
	t.Helper()

	ctx := context.Background()

	c, err := New(cfg)
	require.NoError(t, err)

	p, err := c.Build(ctx, "test.ir", []byte(text))
	require.NoError(t, err)

	cpu, err := c.Run(ctx, p, 100000)
	require.NoError(t, err)
	require.True(t, cpu.Halted)

	return p, cpu
}

func TestRunWideAdd(t *testing.T) {
	p, cpu := build(t, `
func main export
vreg a long
vreg b long
ASGNI4(VREGP a, CNSTI4 123456)
ASGNI4(VREGP b, CNSTI4 654321)
ASGNI4(ADDRGP2 result, ADDI4(INDIRI4(VREGP a), INDIRI4(VREGP b)))
RETV
end

data result bss export
space 4
end
`)

	assert.Equal(t, uint32(777777), cpu.Long(p.Labels["_result"]))
	assert.Equal(t, uint16(0xfffe), cpu.SP)
}

func TestRunRecursion(t *testing.T) {
	for _, tc := range []struct {
		n, sum int
	}{
		{3, 6},
		{12, 78},
		{100, 5050},
	} {
		p, cpu := build(t, fmt.Sprintf(`
func sum export
param n int
vreg t int
NEI2 1(INDIRI2(ADDRFP2 n), CNSTI2 0)
RETI2(CNSTI2 0)
JUMPV(ADDRGP2 2)
LABELV 1
ARGI2(SUBI2(INDIRI2(ADDRFP2 n), CNSTI2 1))
ASGNI2(VREGP t, CALLI2(ADDRGP2 sum))
RETI2(ADDI2(INDIRI2(VREGP t), INDIRI2(ADDRFP2 n)))
LABELV 2
end

func main export
ARGI2(CNSTI2 %d)
ASGNI2(ADDRGP2 out, CALLI2(ADDRGP2 sum))
RETV
end

data out bss export
space 2
end
`, tc.n))

		assert.Equal(t, uint16(tc.sum), cpu.Word(p.Labels["_out"]), "sum(%d)", tc.n)
		assert.Equal(t, uint16(0xfffe), cpu.SP)
	}
}

func TestRunLoop(t *testing.T) {
	p, cpu := build(t, `
func main export
vreg i int
vreg s long
ASGNI2(VREGP i, CNSTI2 0)
ASGNI4(VREGP s, CNSTI4 0)
LABELV 1
ASGNI4(VREGP s, ADDI4(INDIRI4(VREGP s), CVII4(ADDI2(INDIRI2(VREGP i), CNSTI2 30000))))
ASGNI2(VREGP i, ADDI2(INDIRI2(VREGP i), CNSTI2 1))
LTI2 1(INDIRI2(VREGP i), CNSTI2 8)
ASGNI4(ADDRGP2 total, INDIRI4(VREGP s))
RETV
end

data total bss export
space 4
end
`)

	assert.Equal(t, uint32(240028), cpu.Long(p.Labels["_total"]))
}

func TestRunShift(t *testing.T) {
	p, cpu := build(t, `
func main export
vreg a int
vreg n int
ASGNI2(VREGP a, CNSTI2 -3)
ASGNI2(VREGP n, CNSTI2 4)
ASGNI2(VREGP a, LSHI2(INDIRI2(VREGP a), INDIRI2(VREGP n)))
ASGNI2(VREGP n, CNSTI2 2)
ASGNI2(ADDRGP2 out, RSHI2(INDIRI2(VREGP a), INDIRI2(VREGP n)))
RETV
end

data out bss export
space 2
end
`)

	assert.Equal(t, int16(-12), int16(cpu.Word(p.Labels["_out"])))
}

func TestRunSharedCall(t *testing.T) {
	p, cpu := build(t, `
func g
ASGNI2(ADDRGP2 cnt, ADDI2(INDIRI2(ADDRGP2 cnt), CNSTI2 1))
RETI2(INDIRI2(ADDRGP2 cnt))
end

func main export
vreg t int
ASGNI2(VREGP t, #1=CALLI2(ADDRGP2 g))
ASGNI2(ADDRGP2 out, ADDI2(#1, #1))
RETV
end

data cnt bss export
space 2
end

data out bss export
space 2
end
`)

	assert.Equal(t, uint16(1), cpu.Word(p.Labels["_cnt"]))
	assert.Equal(t, uint16(2), cpu.Word(p.Labels["_out"]))
}

func TestRunCallOperand(t *testing.T) {
	p, cpu := build(t, `
func id
param x int
RETI2(INDIRI2(ADDRFP2 x))
end

func one
ASGNI2(ADDRGP2 seq, ADDI2(MULI2(INDIRI2(ADDRGP2 seq), CNSTI2 10), CNSTI2 1))
RETI2(CNSTI2 1)
end

func two
ASGNI2(ADDRGP2 seq, ADDI2(MULI2(INDIRI2(ADDRGP2 seq), CNSTI2 10), CNSTI2 2))
RETI2(CNSTI2 2)
end

func w
RETI4(CNSTI4 70000)
end

func main export
ARGI2(CNSTI2 5)
ASGNI2(ADDRGP2 out, SUBI2(INDIRI2(ADDRGP2 a), CALLI2(ADDRGP2 id)))
ASGNI2(ADDRGP2 diff, SUBI2(CALLI2(ADDRGP2 two), CALLI2(ADDRGP2 one)))
ASGNI4(ADDRGP2 r, SUBI4(INDIRI4(ADDRGP2 big), CALLI4(ADDRGP2 w)))
RETV
end

data a data export
short 100
end

data big data export
long 100000
end

data out bss export
space 2
end

data diff bss export
space 2
end

data seq bss export
space 2
end

data r bss export
space 4
end
`)

	assert.Equal(t, uint16(95), cpu.Word(p.Labels["_out"]))
	assert.Equal(t, uint16(1), cpu.Word(p.Labels["_diff"]))
	assert.Equal(t, uint16(21), cpu.Word(p.Labels["_seq"]), "call order")
	assert.Equal(t, uint32(30000), cpu.Long(p.Labels["_r"]))
	assert.Equal(t, uint16(0xfffe), cpu.SP)
}

func TestRunUnsigned(t *testing.T) {
	p, cpu := build(t, `
func main export
vreg u uint
vreg l ulong
ASGNU2(VREGP u, CNSTU2 65535)
; 65535 is not below 1 unsigned
LTU2 1(INDIRU2(VREGP u), CNSTU2 1)
ASGNI2(ADDRGP2 lt, CNSTI2 7)
LABELV 1
ASGNU2(ADDRGP2 quot, DIVU2(INDIRU2(VREGP u), CNSTU2 2))
ASGNU2(ADDRGP2 rem, MODU2(INDIRU2(VREGP u), CNSTU2 10))
ASGNU2(ADDRGP2 shr, RSHU2(INDIRU2(VREGP u), CNSTI2 4))
ASGNU4(VREGP l, CVUU4(INDIRU2(VREGP u)))
ASGNU4(ADDRGP2 wide, INDIRU4(VREGP l))
ASGNI4(ADDRGP2 swide, CVII4(CVUI2(INDIRU2(VREGP u))))
RETV
end

data lt bss export
space 2
end

data quot bss export
space 2
end

data rem bss export
space 2
end

data shr bss export
space 2
end

data wide bss export
space 4
end

data swide bss export
space 4
end
`)

	w := func(name string) uint16 { return cpu.Word(p.Labels[name]) }

	assert.Equal(t, uint16(7), w("_lt"))
	assert.Equal(t, uint16(0x7fff), w("_quot"))
	assert.Equal(t, uint16(5), w("_rem"))
	assert.Equal(t, uint16(0x0fff), w("_shr"))
	assert.Equal(t, uint32(0xffff), cpu.Long(p.Labels["_wide"]))
	assert.Equal(t, uint32(0xffffffff), cpu.Long(p.Labels["_swide"]))
}

func TestRunNoStack(t *testing.T) {
	cfg := back.DefaultConfig()
	cfg.StackTop = cfg.CodeOrg + 2

	ctx := context.Background()

	c, err := New(cfg)
	require.NoError(t, err)

	p, err := c.Build(ctx, "test.ir", []byte("func main export\nRETV\nend\n"))
	require.NoError(t, err)

	_, err = c.Run(ctx, p, 1000)
	assert.ErrorIs(t, err, ErrNoStack)

	cfg = back.DefaultConfig()
	cfg.StackTop = 0x4000

	_, cpu := buildWith(t, cfg, "func main export\nRETV\nend\n")
	assert.Equal(t, uint16(0x4000), cpu.SP)
}
