package back

import (
	"strconv"

	"tlog.app/go/tlog/tlwire"
)

type (
	OperandKind uint8

	// Operand is the value an operand rule produces for its parent.
	Operand struct {
		Kind  OperandKind
		Name  string
		Off   int64
		Value int64
	}
)

const (
	OperandNone OperandKind = iota
	OperandImm
	OperandMem
	OperandFrame
)

func Imm(v int64) Operand { return Operand{Kind: OperandImm, Value: v} }

func Mem(name string, off int64) Operand { return Operand{Kind: OperandMem, Name: name, Off: off} }

func Frame(off int64) Operand { return Operand{Kind: OperandFrame, Off: off} }

func (o Operand) Append(b []byte) []byte {
	switch o.Kind {
	case OperandImm:
		return strconv.AppendInt(b, o.Value, 10)
	case OperandMem:
		b = append(b, o.Name...)

		if o.Off > 0 {
			b = append(b, '+')
		}

		if o.Off != 0 {
			b = strconv.AppendInt(b, o.Off, 10)
		}

		return b
	case OperandFrame:
		b = strconv.AppendInt(b, o.Off, 10)
		return append(b, ",FP"...)
	}

	return b
}

func (o Operand) String() string {
	return string(o.Append(nil))
}

// Low is the low word of a 4 byte operand.
func (o Operand) Low() Operand {
	if o.Kind == OperandImm {
		o.Value &= 0xffff
	}

	return o
}

// High is the high word of a 4 byte operand.
func (o Operand) High() Operand {
	switch o.Kind {
	case OperandImm:
		o.Value = (o.Value >> 16) & 0xffff
	case OperandMem, OperandFrame:
		o.Off += 2
	}

	return o
}

func (o Operand) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, o.String())
}
