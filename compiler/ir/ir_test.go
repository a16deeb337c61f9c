package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"
)

func TestParseOp(t *testing.T) {
	for _, tc := range []struct {
		s  string
		op Op
	}{
		{"ADDI2", MakeOp(ADD, I, 2)},
		{"ADDRGP2", MakeOp(ADDRG, P, 2)},
		{"ADDRFP2", MakeOp(ADDRF, P, 2)},
		{"NEGI2", MakeOp(NEG, I, 2)},
		{"NEI1", MakeOp(NE, I, 1)},
		{"BCOMU2", MakeOp(BCOM, U, 2)},
		{"BANDI1", MakeOp(BAND, I, 1)},
		{"CVII4", MakeOp(CVI, I, 4)},
		{"LSHU2", MakeOp(LSH, U, 2)},
		{"LABELV", MakeOp(LABEL, V, 0)},
		{"VREGP", MakeOp(VREG, P, 0)},
		{"RETV", MakeOp(RET, V, 0)},
		{"ASGNB", MakeOp(ASGN, B, 0)},
	} {
		op, err := ParseOp(tc.s)
		if assert.NoError(t, err, tc.s) {
			assert.Equal(t, tc.op, op, tc.s)
			assert.Equal(t, tc.s, op.String())
		}
	}

	for _, s := range []string{"", "FOO2", "ADD", "ADDX2", "ADDI3", "ADDI22"} {
		_, err := ParseOp(s)
		assert.ErrorIs(t, err, ErrUnknownOp, "%q", s)
	}

	_, err := ParseOp("ADDF4")
	assert.ErrorIs(t, err, ErrFloat)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "ADDI", MakeOp(ADD, I, 2).Generic().String())
	assert.Equal(t, "OP0", Kind(0).String())
	assert.True(t, LE.IsCompare())
	assert.False(t, JUMP.IsCompare())
}

func TestFunc(t *testing.T) {
	f := NewFunc(&Symbol{Name: "f", Class: Global})

	g := &Symbol{Name: "g", Class: Extern}

	call := f.Add(MakeOp(CALL, I, 2), nil, f.Add(MakeOp(ADDRG, P, 2), g))
	arg := f.Add(MakeOp(ARG, I, 2), nil, call)
	f.Stmt(arg)

	// shared subtree reached twice counts once
	f.Stmt(f.Add(MakeOp(ASGN, I, 2), nil, f.Add(MakeOp(ADDRG, P, 2), g), call))

	assert.Equal(t, "f", f.Name())
	assert.Equal(t, 1, f.CountCalls())
	assert.Equal(t, 1, f.Node(arg).Arity())
	assert.Equal(t, 2, f.Node(f.Stmts[1]).Arity())
	assert.Equal(t, 0, f.Node(0).Arity())
}

func TestTypeTable(t *testing.T) {
	tt := TypeTable{
		"int":    {Size: 2, Align: 2},
		"struct": {Size: 0, Align: 1},
		"float":  {Size: 4, Align: 2, Unsupported: true},
	}

	ti, err := tt.Lookup("int")
	require.NoError(t, err)
	assert.Equal(t, TypeInfo{Size: 2, Align: 2}, ti)

	ti, err = tt.Lookup("7")
	require.NoError(t, err)
	assert.Equal(t, TypeInfo{Size: 7, Align: 1}, ti)

	_, err = tt.Lookup("0")
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = tt.Lookup("char")
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = tt.Lookup("float")
	assert.True(t, errors.Is(err, ErrUnsupportedType))
}
