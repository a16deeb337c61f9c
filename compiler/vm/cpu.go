package vm

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"
)

type (
	// CPU is a NEANDER-X simulator: 16 bit AC, X, Y, SP, FP and PC,
	// N Z C flags and 64K bytes of memory. Words are little endian.
	CPU struct {
		AC, X, Y uint16
		SP, FP   uint16
		PC       uint16

		N, Z, C bool

		Halted bool
		Steps  int

		Mem [65536]byte
	}
)

var (
	ErrBadOpcode = errors.New("bad opcode")
	ErrDivZero   = errors.New("division by zero")
	ErrStepLimit = errors.New("step limit reached")
	ErrHalted    = errors.New("cpu halted")
)

func New() *CPU {
	return &CPU{}
}

// Load copies the image to memory at address 0 and resets the registers.
func (c *CPU) Load(image []byte, sp uint16) {
	copy(c.Mem[:], image)

	c.Reset(0, sp)
}

func (c *CPU) Reset(pc, sp uint16) {
	c.AC, c.X, c.Y = 0, 0, 0
	c.PC = pc
	c.SP = sp
	c.FP = sp
	c.N, c.Z, c.C = false, false, false
	c.Halted = false
	c.Steps = 0
}

func (c *CPU) Word(a uint16) uint16 {
	return uint16(c.Mem[a]) | uint16(c.Mem[a+1])<<8
}

func (c *CPU) SetWord(a, v uint16) {
	c.Mem[a] = byte(v)
	c.Mem[a+1] = byte(v >> 8)
}

// Long reads a 4 byte value stored low word first.
func (c *CPU) Long(a uint16) uint32 {
	return uint32(c.Word(a)) | uint32(c.Word(a+2))<<16
}

func (c *CPU) push(v uint16) {
	c.SP -= 2
	c.SetWord(c.SP, v)
}

func (c *CPU) pop() uint16 {
	v := c.Word(c.SP)
	c.SP += 2

	return v
}

func (c *CPU) flags(v uint16) {
	c.N = int16(v) < 0
	c.Z = v == 0
}

// Run steps until HLT or the limit. limit <= 0 means no limit.
func (c *CPU) Run(ctx context.Context, limit int) (err error) {
	tr := tlog.SpanFromContext(ctx)
	trace := tr.If("trace")

	for !c.Halted {
		if limit > 0 && c.Steps >= limit {
			return errors.Wrap(ErrStepLimit, "%d steps, pc 0x%04x", c.Steps, c.PC)
		}

		if trace {
			tr.Printw("step", "pc", c.PC, "cpu", c)
		}

		err = c.Step()
		if err != nil {
			return err
		}

		if c.Steps%4096 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}

	return nil
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return ErrHalted
	}

	pc := c.PC
	op := Opcode(c.Mem[pc])

	in, ok := op.Instr()
	if !ok {
		return errors.Wrap(ErrBadOpcode, "0x%02x at 0x%04x", byte(op), pc)
	}

	var arg uint16

	if in.Mode != None {
		arg = c.Word(pc + 1)
	}

	c.PC += uint16(in.Mode.Len())
	c.Steps++

	ea := func() uint16 {
		switch in.Mode {
		case AbsX:
			return arg + c.X
		case AbsY:
			return arg + c.Y
		case Frame:
			return c.FP + arg
		case FrameX:
			return c.FP + arg + c.X
		}

		return arg
	}

	val := func() uint16 {
		return c.Word(ea())
	}

	switch in.Name {
	case "HLT":
		c.Halted = true
	case "NOP":
	case "PUSH":
		c.push(c.AC)
	case "POP":
		c.AC = c.pop()
	case "PUSH_FP":
		c.push(c.FP)
	case "POP_FP":
		c.FP = c.pop()
	case "TSF":
		c.FP = c.SP
	case "TFS":
		c.SP = c.FP
	case "TAX":
		c.X = c.AC
	case "TXA":
		c.AC = c.X
		c.flags(c.AC)
	case "TAY":
		c.Y = c.AC
	case "TYA":
		c.AC = c.Y
		c.flags(c.AC)
	case "INC":
		c.AC++
		c.flags(c.AC)
	case "DEC":
		c.AC--
		c.flags(c.AC)
	case "NEG":
		c.AC = -c.AC
		c.flags(c.AC)
	case "NOT":
		c.AC = ^c.AC
		c.flags(c.AC)
	case "SHL":
		c.C = c.AC&0x8000 != 0
		c.AC <<= 1
		c.flags(c.AC)
	case "SHR":
		c.C = c.AC&1 != 0
		c.AC >>= 1
		c.flags(c.AC)
	case "ASR":
		c.C = c.AC&1 != 0
		c.AC = uint16(int16(c.AC) >> 1)
		c.flags(c.AC)
	case "MUL":
		p := uint32(c.AC) * uint32(c.X)
		c.AC = uint16(p)
		c.Y = uint16(p >> 16)
		c.flags(c.AC)
	case "DIV", "MOD":
		if c.X == 0 {
			return errors.Wrap(ErrDivZero, "at 0x%04x", pc)
		}

		a, b := int16(c.AC), int16(c.X)

		c.AC, c.Y = uint16(a/b), uint16(a%b)
		if in.Name == "MOD" {
			c.AC = c.Y
		}

		c.flags(c.AC)
	case "DIVU", "MODU":
		if c.X == 0 {
			return errors.Wrap(ErrDivZero, "at 0x%04x", pc)
		}

		c.AC, c.Y = c.AC/c.X, c.AC%c.X
		if in.Name == "MODU" {
			c.AC = c.Y
		}

		c.flags(c.AC)
	case "ADDX":
		c.add(c.X, false)
	case "SUBX":
		c.sub(c.X, false)
	case "ANDX":
		c.AC &= c.X
		c.flags(c.AC)
	case "ORX":
		c.AC |= c.X
		c.flags(c.AC)
	case "XORX":
		c.AC ^= c.X
		c.flags(c.AC)
	case "RET":
		c.PC = c.pop()

	case "LDI":
		c.AC = arg
		c.flags(c.AC)
	case "LDA":
		c.AC = val()
		c.flags(c.AC)
	case "STA":
		c.SetWord(ea(), c.AC)
	case "ADD":
		c.add(val(), false)
	case "ADC":
		c.add(val(), c.C)
	case "SUB":
		c.sub(val(), false)
	case "SBC":
		c.sub(val(), c.C)
	case "AND":
		c.AC &= val()
		c.flags(c.AC)
	case "OR":
		c.AC |= val()
		c.flags(c.AC)
	case "XOR":
		c.AC ^= val()
		c.flags(c.AC)
	case "CMP":
		m := val()
		c.Z = c.AC == m
		c.N = int16(c.AC) < int16(m)
		c.C = c.AC < m

	case "CALL":
		c.push(c.PC)
		c.PC = arg
	default:
		if c.jump(in.Name) {
			c.PC = arg
		}
	}

	return nil
}

func (c *CPU) jump(name string) bool {
	switch name {
	case "JMP":
		return true
	case "JZ":
		return c.Z
	case "JNZ":
		return !c.Z
	case "JN":
		return c.N
	case "JC":
		return c.C
	case "JNC":
		return !c.C
	case "JLE":
		return c.N || c.Z
	case "JGT":
		return !c.N && !c.Z
	case "JGE":
		return !c.N
	case "JBE":
		return c.C || c.Z
	case "JA":
		return !c.C && !c.Z
	}

	return false
}

func (c *CPU) add(m uint16, carry bool) {
	s := uint32(c.AC) + uint32(m)
	if carry {
		s++
	}

	c.C = s > 0xffff
	c.AC = uint16(s)
	c.flags(c.AC)
}

// sub sets C on borrow.
func (c *CPU) sub(m uint16, borrow bool) {
	s := int32(c.AC) - int32(m)
	if borrow {
		s--
	}

	c.C = s < 0
	c.AC = uint16(s)
	c.flags(c.AC)
}

func (c *CPU) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 6)
	b = e.AppendKeyInt(b, "ac", int(c.AC))
	b = e.AppendKeyInt(b, "x", int(c.X))
	b = e.AppendKeyInt(b, "y", int(c.Y))
	b = e.AppendKeyInt(b, "sp", int(c.SP))
	b = e.AppendKeyInt(b, "fp", int(c.FP))
	b = e.AppendKeyInt(b, "steps", c.Steps)

	return b
}
