package vm

import "strings"

type (
	// Mode is an operand addressing mode.
	Mode uint8

	// Opcode is the first instruction byte. It selects both
	// the operation and the addressing mode.
	Opcode uint8

	Instr struct {
		Name string
		Mode Mode
	}
)

const (
	None  Mode = iota
	Imm        // LDI 5
	Abs        // LDA x
	AbsX       // LDA x,X
	AbsY       // LDA x,Y
	Frame      // LDA 4,FP
	FrameX     // LDA -8,FP,X
)

var (
	implied = []string{
		"HLT", "NOP",
		"PUSH", "POP", "PUSH_FP", "POP_FP", "TSF", "TFS",
		"TAX", "TXA", "TAY", "TYA",
		"INC", "DEC", "NEG", "NOT",
		"SHL", "SHR", "ASR",
		"MUL", "DIV", "MOD", "DIVU", "MODU",
		"ADDX", "SUBX", "ANDX", "ORX", "XORX",
		"RET",
	}

	memory = []string{"LDA", "STA", "ADD", "ADC", "SUB", "SBC", "AND", "OR", "XOR", "CMP"}

	jumps = []string{"JMP", "JZ", "JNZ", "JN", "JC", "JNC", "JLE", "JGT", "JGE", "JBE", "JA", "CALL"}
)

var (
	// Instrs is indexed by opcode.
	Instrs []Instr

	opcodes = map[Instr]Opcode{}
)

func init() {
	add := func(name string, m Mode) {
		opcodes[Instr{Name: name, Mode: m}] = Opcode(len(Instrs))
		Instrs = append(Instrs, Instr{Name: name, Mode: m})
	}

	for _, n := range implied {
		add(n, None)
	}

	add("LDI", Imm)

	for _, n := range memory {
		for _, m := range []Mode{Abs, AbsX, AbsY, Frame, FrameX} {
			add(n, m)
		}
	}

	for _, n := range jumps {
		add(n, Abs)
	}
}

// Lookup finds the opcode for the mnemonic and mode.
func Lookup(name string, m Mode) (Opcode, bool) {
	op, ok := opcodes[Instr{Name: strings.ToUpper(name), Mode: m}]
	return op, ok
}

// Known reports whether the mnemonic exists in any mode.
func Known(name string) bool {
	name = strings.ToUpper(name)

	for _, in := range Instrs {
		if in.Name == name {
			return true
		}
	}

	return false
}

// Len is the encoded instruction length.
func (m Mode) Len() int {
	if m == None {
		return 1
	}

	return 3
}

func (m Mode) String() string {
	switch m {
	case None:
		return ""
	case Imm:
		return "imm"
	case Abs:
		return "abs"
	case AbsX:
		return "abs,X"
	case AbsY:
		return "abs,Y"
	case Frame:
		return "off,FP"
	case FrameX:
		return "off,FP,X"
	}

	return "mode?"
}

func (op Opcode) Instr() (Instr, bool) {
	if int(op) >= len(Instrs) {
		return Instr{}, false
	}

	return Instrs[op], true
}
