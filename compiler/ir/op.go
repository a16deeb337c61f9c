package ir

import (
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"
)

const (
	_ Kind = iota
	CNST
	ARG
	ASGN
	INDIR
	CVI
	CVU
	CVP
	NEG
	CALL
	LOAD
	RET
	ADDRG
	ADDRF
	ADDRL
	ADD
	SUB
	LSH
	MOD
	RSH
	BAND
	BCOM
	BOR
	BXOR
	DIV
	MUL
	EQ
	GE
	GT
	LE
	LT
	NE
	JUMP
	LABEL
	VREG

	numKinds
)

const (
	_ Type = iota
	I
	U
	P
	V
	B
	F
)

var kindNames = [numKinds]string{
	CNST:  "CNST",
	ARG:   "ARG",
	ASGN:  "ASGN",
	INDIR: "INDIR",
	CVI:   "CVI",
	CVU:   "CVU",
	CVP:   "CVP",
	NEG:   "NEG",
	CALL:  "CALL",
	LOAD:  "LOAD",
	RET:   "RET",
	ADDRG: "ADDRG",
	ADDRF: "ADDRF",
	ADDRL: "ADDRL",
	ADD:   "ADD",
	SUB:   "SUB",
	LSH:   "LSH",
	MOD:   "MOD",
	RSH:   "RSH",
	BAND:  "BAND",
	BCOM:  "BCOM",
	BOR:   "BOR",
	BXOR:  "BXOR",
	DIV:   "DIV",
	MUL:   "MUL",
	EQ:    "EQ",
	GE:    "GE",
	GT:    "GT",
	LE:    "LE",
	LT:    "LT",
	NE:    "NE",
	JUMP:  "JUMP",
	LABEL: "LABEL",
	VREG:  "VREG",
}

const typeLetters = "?IUPVBF"

var (
	ErrUnknownOp = errors.New("unknown operator")
	ErrFloat     = errors.New("floating point is not supported")
)

func MakeOp(k Kind, t Type, size int) Op {
	return Op{Kind: k, Type: t, Size: uint8(size)}
}

// ParseOp parses lcc notation like ADDI2, CVUI4, ADDRGP2, LABELV or VREGP.
func ParseOp(s string) (op Op, err error) {
	var kind Kind

	// longest prefix wins: ADDRG before ADD, BCOM before B...
	for k := Kind(1); k < numKinds; k++ {
		n := kindNames[k]

		if strings.HasPrefix(s, n) && len(n) > len(kindNames[kind]) {
			kind = k
		}
	}

	if kind == 0 {
		return op, errors.Wrap(ErrUnknownOp, "%q", s)
	}

	rest := s[len(kindNames[kind]):]
	if rest == "" {
		return op, errors.Wrap(ErrUnknownOp, "%q: no type suffix", s)
	}

	t := strings.IndexByte(typeLetters, rest[0])
	if t <= 0 {
		return op, errors.Wrap(ErrUnknownOp, "%q: bad type suffix", s)
	}

	if Type(t) == F {
		return op, errors.Wrap(ErrFloat, "%q", s)
	}

	op = Op{Kind: kind, Type: Type(t)}

	if rest = rest[1:]; rest == "" {
		return op, nil
	}

	size, err := strconv.ParseUint(rest, 10, 8)
	if err != nil || size != 1 && size != 2 && size != 4 {
		return op, errors.Wrap(ErrUnknownOp, "%q: bad size", s)
	}

	op.Size = uint8(size)

	return op, nil
}

func (k Kind) String() string {
	if k >= numKinds || k == 0 {
		return "OP" + strconv.Itoa(int(k))
	}

	return kindNames[k]
}

func (t Type) String() string {
	if int(t) >= len(typeLetters) {
		return "?"
	}

	return typeLetters[t : t+1]
}

func (op Op) String() string {
	b := op.Append(nil)

	return string(b)
}

func (op Op) Append(b []byte) []byte {
	b = append(b, op.Kind.String()...)
	b = append(b, op.Type.String()...)

	if op.Size != 0 {
		b = strconv.AppendInt(b, int64(op.Size), 10)
	}

	return b
}

// Generic drops the width: ADDI2 -> ADDI.
func (op Op) Generic() Op {
	op.Size = 0
	return op
}

func (op Op) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, op.String())
}

// IsCompare reports whether the op is a conditional branch.
func (k Kind) IsCompare() bool {
	switch k {
	case EQ, GE, GT, LE, LT, NE:
		return true
	}

	return false
}
