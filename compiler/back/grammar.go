package back

import (
	"strings"
	"sync"

	"github.com/nxlang/nxcc/compiler/burs"
	"github.com/nxlang/nxcc/compiler/ir"
)

// Nonterminals. stmt is the start one.
var Nonterms = []string{"stmt", "reg", "con1", "con2", "con4", "conN", "addr", "faddr"}

var (
	grammarOnce sync.Once
	grammar     *burs.Grammar
	grammarErr  error
)

// Grammar returns the NEANDER-X tree grammar.
func Grammar() (*burs.Grammar, error) {
	grammarOnce.Do(func() {
		grammar, grammarErr = burs.NewGrammar(Nonterms, Rules())
	})

	return grammar, grammarErr
}

// Rules returns the rule table in tie breaking order.
//
// Templates ending with a newline emit instructions. Lines ending with ':'
// are labels. Templates starting with '#' are routed to the peephole emitter.
func Rules() []burs.RuleDef {
	var r rules

	// pseudo-registers
	r.each("IU", "reg: INDIR@1(VREGP)", 0, "#read")
	r.each("IUP", "reg: INDIR@2(VREGP)", 0, "#read")
	r.each("IUP", "reg: INDIR@4(VREGP)", 0, "#read")
	r.each("IU", "reg: ADD@2(INDIR@2(VREGP),INDIR@2(VREGP))", 3, "#add")
	r.add("reg: ADDP2(INDIRP2(VREGP),INDIRI2(VREGP))", 3, "#add")
	r.each("IUP", "reg: ADD@2(INDIR@2(VREGP),con2)", 2, "#addc")
	r.each("IU", "reg: MUL@2(INDIR@2(VREGP),INDIR@2(VREGP))", 3, "#mul")
	r.each("IU", "stmt: ASGN@1(VREGP,reg)", 0, "#write")
	r.each("IUP", "stmt: ASGN@2(VREGP,reg)", 0, "#write")
	r.each("IUP", "stmt: ASGN@4(VREGP,reg)", 0, "#write")

	// constants
	r.each("IU", "con1: CNST@1", 0, "%a")
	r.each("IUP", "con2: CNST@2", 0, "%a")
	r.each("IUP", "con4: CNST@4", 0, "%a")
	r.eachf("IU", "conN: CNST@1", isOne, "%a")
	r.eachf("IU", "conN: CNST@2", isOne, "%a")

	r.add("reg: con1", 1, t("LDI %0"))
	r.add("reg: con2", 1, t("LDI %0"))
	r.add("reg: con4", 3, t("LDI %l0", "PUSH", "LDI %h0"))

	// addresses
	r.add("addr: ADDRGP2", 0, "%a")
	r.add("faddr: ADDRFP2", 0, "%a,FP")
	r.add("faddr: ADDRLP2", 0, "%a,FP")
	r.add("addr: faddr", 0, "%0")

	r.add("reg: ADDRGP2", 1, t("LDI %a"))
	r.add("reg: ADDRFP2", 4, t("PUSH_FP", "POP", "STA $tmp", "LDI %a", "ADD $tmp"))
	r.add("reg: ADDRLP2", 4, t("PUSH_FP", "POP", "STA $tmp", "LDI %a", "ADD $tmp"))

	// loads
	r.each("IU", "reg: INDIR@1(faddr)", 1, t("LDA %0"))
	r.each("IUP", "reg: INDIR@2(faddr)", 1, t("LDA %0"))
	r.each("IU", "reg: INDIR@1(addr)", 2, t("LDA %0"))
	r.each("IUP", "reg: INDIR@2(addr)", 2, t("LDA %0"))
	r.each("IUP", "reg: INDIR@4(addr)", 4, t("LDA %0", "PUSH", "LDA %h0"))
	r.each("IU", "reg: INDIR@1(reg)", 3, t("TAX", "LDA 0,X"))
	r.each("IUP", "reg: INDIR@2(reg)", 3, t("TAX", "LDA 0,X"))
	r.each("IUP", "reg: INDIR@4(reg)", 6, t("TAX", "LDA 0,X", "PUSH", "LDA 2,X"))

	// stores
	r.each("IU", "stmt: ASGN@1(faddr,reg)", 1, t("STA %0"))
	r.each("IUP", "stmt: ASGN@2(faddr,reg)", 1, t("STA %0"))
	r.each("IU", "stmt: ASGN@1(addr,reg)", 2, t("STA %0"))
	r.each("IUP", "stmt: ASGN@2(addr,reg)", 2, t("STA %0"))
	r.each("IUP", "stmt: ASGN@4(addr,reg)", 4, t("STA %h0", "POP", "STA %0"))
	r.each("IU", "stmt: ASGN@1(reg,reg)", 5, t("TAY", "POP", "TAX", "TYA", "STA 0,X"))
	r.each("IUP", "stmt: ASGN@2(reg,reg)", 5, t("TAY", "POP", "TAX", "TYA", "STA 0,X"))
	r.each("IUP", "stmt: ASGN@4(reg,reg)", 10, t("STA $tmp_hi", "POP", "STA $tmp", "POP", "TAX", "LDA $tmp", "STA 0,X", "LDA $tmp_hi", "STA 2,X"))

	// indexed
	for _, w := range []string{"1", "2"} {
		ts := "IU"
		if w == "2" {
			ts = "IUP"
		}

		r.each(ts, "reg: INDIR@"+w+"(ADDI2(addr,reg))", 3, t("TAX", "LDA %0,X"))
		r.each(ts, "reg: INDIR@"+w+"(ADDP2(addr,reg))", 3, t("TAX", "LDA %0,X"))
		r.each(ts, "reg: INDIR@"+w+"(ADDP2(reg,addr))", 3, t("TAX", "LDA %1,X"))
		r.each(ts, "stmt: ASGN@"+w+"(ADDI2(addr,reg),reg)", 5, t("TAY", "POP", "TAX", "TYA", "STA %0,X"))
		r.each(ts, "stmt: ASGN@"+w+"(ADDP2(addr,reg),reg)", 5, t("TAY", "POP", "TAX", "TYA", "STA %0,X"))
		r.each(ts, "stmt: ASGN@"+w+"(ADDP2(reg,addr),reg)", 5, t("TAY", "POP", "TAX", "TYA", "STA %1,X"))
	}

	r.arith()
	r.convert()
	r.branch()
	r.calls()

	return r.defs
}

func (r *rules) arith() {
	bin := []struct{ kind, asm string }{
		{"ADD", "ADD"},
		{"SUB", "SUB"},
		{"BAND", "AND"},
		{"BOR", "OR"},
		{"BXOR", "XOR"},
	}

	// 1 byte
	for _, o := range bin {
		r.each("IU", "reg: "+o.kind+"@1(INDIR@1(addr),INDIR@1(addr))", 2, t("LDA %0", o.asm+" %1"))
		r.each("IU", "reg: "+o.kind+"@1(reg,INDIR@1(addr))", 1, t(o.asm+" %1"))
		r.each("IU", "reg: "+o.kind+"@1(reg,reg)", 10, t("TAX", "POP", o.asm+"X"))
	}

	r.add("reg: ADDI1(LOADI1(INDIRU1(addr)),LOADI1(INDIRU1(addr)))", 2, t("LDA %0", "ADD %1"))
	r.add("reg: SUBI1(LOADI1(INDIRU1(addr)),LOADI1(INDIRU1(addr)))", 2, t("LDA %0", "SUB %1"))
	r.each("IU", "reg: ADD@1(reg,conN)", 1, t("INC"))
	r.each("IU", "reg: SUB@1(reg,conN)", 1, t("DEC"))
	r.add("reg: NEGI1(reg)", 1, t("NEG"))
	r.each("IU", "reg: BCOM@1(reg)", 1, t("NOT"))

	// 2 bytes; INC and DEC win ties with memory forms
	r.each("IUP", "reg: ADD@2(reg,conN)", 1, t("INC"))
	r.each("IUP", "reg: SUB@2(reg,conN)", 1, t("DEC"))

	r.each("IUP", "reg: ADD@2(INDIR@2(faddr),con2)", 3, t("LDA %0", "STA $tmp", "LDI %1", "ADD $tmp"))
	r.each("IU", "reg: ADD@2(INDIR@2(faddr),INDIR@2(faddr))", 4, t("LDA %0", "STA $tmp", "LDA %1", "ADD $tmp"))
	r.add("reg: ADDP2(INDIRP2(faddr),INDIRI2(faddr))", 4, t("LDA %0", "STA $tmp", "LDA %1", "ADD $tmp"))
	r.each("IUP", "reg: ADD@2(INDIR@2(addr),con2)", 3, t("LDA %0", "STA $tmp", "LDI %1", "ADD $tmp"))
	r.each("IU", "reg: ADD@2(INDIR@2(addr),INDIR@2(addr))", 4, t("LDA %0", "STA $tmp", "LDA %1", "ADD $tmp"))
	r.each("IU", "reg: ADD@2(reg,INDIR@2(faddr))", 3, t("STA $tmp", "LDA %1", "ADD $tmp"))
	r.add("reg: ADDP2(reg,INDIRI2(faddr))", 3, t("STA $tmp", "LDA %1", "ADD $tmp"))
	r.each("IU", "reg: ADD@2(reg,INDIR@2(addr))", 3, t("STA $tmp", "LDA %1", "ADD $tmp"))
	r.each("IUP", "reg: ADD@2(reg,con2)", 3, t("STA $tmp", "LDI %1", "ADD $tmp"))
	r.each("IUP", "reg: ADD@2(reg,reg)", 10, t("STA $tmp", "POP", "ADD $tmp"))

	r.each("IUP", "reg: SUB@2(INDIR@2(faddr),con2)", 3, t("LDI %1", "STA $tmp", "LDA %0", "SUB $tmp"))
	r.each("IU", "reg: SUB@2(INDIR@2(faddr),INDIR@2(faddr))", 4, t("LDA %1", "STA $tmp", "LDA %0", "SUB $tmp"))
	r.each("IUP", "reg: SUB@2(INDIR@2(addr),con2)", 3, t("LDI %1", "STA $tmp", "LDA %0", "SUB $tmp"))
	r.each("IU", "reg: SUB@2(reg,INDIR@2(faddr))", 5, t("STA $tmp2", "LDA %1", "STA $tmp", "LDA $tmp2", "SUB $tmp"))
	r.each("IUP", "reg: SUB@2(reg,con2)", 4, t("STA $tmp2", "LDI %1", "STA $tmp", "LDA $tmp2", "SUB $tmp"))
	r.each("IUP", "reg: SUB@2(reg,reg)", 10, t("STA $tmp", "POP", "SUB $tmp"))

	r.add("reg: NEGI2(reg)", 1, t("NEG"))
	r.each("IU", "reg: BCOM@2(reg)", 1, t("NOT"))

	for _, o := range bin[2:] {
		r.each("IU", "reg: "+o.kind+"@2(INDIR@2(faddr),INDIR@2(faddr))", 2, t("LDA %0", "STA $tmp", "LDA %1", o.asm+" $tmp"))
		r.each("IU", "reg: "+o.kind+"@2(reg,INDIR@2(faddr))", 3, t("STA $tmp", "LDA %1", o.asm+" $tmp"))
		r.each("IU", "reg: "+o.kind+"@2(reg,con2)", 3, t("STA $tmp", "LDI %1", o.asm+" $tmp"))
		r.each("IU", "reg: "+o.kind+"@2(reg,reg)", 10, t("STA $tmp", "POP", o.asm+" $tmp"))
	}

	// the right operand goes to X, the left one is popped into AC
	for _, w := range []string{"1", "2"} {
		r.each("IU", "reg: MUL@"+w+"(reg,reg)", 3, t("TAX", "POP", "MUL"))
		r.add("reg: DIVI"+w+"(reg,reg)", 3, t("TAX", "POP", "DIV"))
		r.add("reg: MODI"+w+"(reg,reg)", 3, t("TAX", "POP", "MOD"))
		r.add("reg: DIVU"+w+"(reg,reg)", 3, t("TAX", "POP", "DIVU"))
		r.add("reg: MODU"+w+"(reg,reg)", 3, t("TAX", "POP", "MODU"))
	}

	// shifts
	for _, w := range []string{"1", "2"} {
		r.each("IU", "reg: LSH@"+w+"(reg,conN)", 1, t("SHL"))
		r.add("reg: RSHU"+w+"(reg,conN)", 1, t("SHR"))
		r.add("reg: RSHI"+w+"(reg,conN)", 1, t("ASR"))

		r.each("IU", "reg: LSH@"+w+"(reg,reg)", 15, shiftLoop("SHL"))
		r.add("reg: RSHU"+w+"(reg,reg)", 15, shiftLoop("SHR"))
		r.add("reg: RSHI"+w+"(reg,reg)", 15, shiftLoop("ASR"))
	}

	// 4 bytes: low words on the stack, high words in AC
	r.each("IU", "reg: ADD@4(reg,reg)", 10, t("STA $tmp_hi", "POP", "STA $tmp", "POP", "STA $tmp2_hi", "POP", "ADD $tmp", "PUSH", "LDA $tmp2_hi", "ADC $tmp_hi"))
	r.each("IU", "reg: SUB@4(reg,reg)", 10, t("STA $tmp_hi", "POP", "STA $tmp", "POP", "STA $tmp2_hi", "POP", "SUB $tmp", "PUSH", "LDA $tmp2_hi", "SBC $tmp_hi"))
}

// shiftLoop shifts the popped value count times. The count is in AC.
func shiftLoop(op string) string {
	return t(
		"TAX",
		"POP",
		"_sh_%u:",
		"STA $tmp",
		"TXA",
		"JZ _shd_%u",
		"DEC",
		"TAX",
		"LDA $tmp",
		op,
		"JMP _sh_%u",
		"_shd_%u:",
		"LDA $tmp",
	)
}

func (r *rules) convert() {
	ext := func(sign bool) []string {
		if sign {
			return []string{"AND $mask_ff", "XOR $sign_80", "SUB $sign_80"}
		}

		return []string{"AND $mask_ff"}
	}

	widen := func(sign bool, pre ...string) string {
		hi := []string{"TAY", "PUSH", "TYA", "JN _sx4_%u", "LDI 0", "JMP _sx4d_%u", "_sx4_%u:", "LDI 0xFFFF", "_sx4d_%u:"}
		if !sign {
			hi = []string{"PUSH", "LDI 0"}
		}

		return t(append(pre, hi...)...)
	}

	for _, c := range []struct {
		op   string
		sign bool
	}{
		{"CVII", true},
		{"CVIU", true},
		{"CVUI", false},
		{"CVUU", false},
	} {
		// to 1 byte
		r.addf("reg: "+c.op+"1(reg)", fromSize(1, 0), "")
		r.addf("reg: "+c.op+"1(reg)", fromSize(2, 1), t("AND $mask_ff"))
		r.addf("reg: "+c.op+"1(reg)", fromSize(4, 1), t("POP", "AND $mask_ff"))

		// to 2 bytes
		r.addf("reg: "+c.op+"2(reg)", fromSize(1, 1), t(ext(c.sign)...))
		r.addf("reg: "+c.op+"2(reg)", fromSize(2, 0), "")
		r.addf("reg: "+c.op+"2(reg)", fromSize(4, 1), t("POP"))

		// to 4 bytes
		r.addf("reg: "+c.op+"4(reg)", fromSize(1, 8), widen(c.sign, ext(c.sign)...))

		if c.sign {
			r.addf("reg: "+c.op+"4(reg)", fromSize(2, 8), widen(true))
		} else {
			r.addf("reg: "+c.op+"4(reg)", fromSize(2, 2), widen(false))
		}

		r.addf("reg: "+c.op+"4(reg)", fromSize(4, 0), "")
	}

	r.addf("reg: CVPU2(reg)", fromSize(2, 0), "")
	r.addf("reg: CVUP2(reg)", fromSize(2, 0), "")
	r.addf("reg: CVUP2(reg)", fromSize(4, 1), t("POP"))
	r.addf("reg: CVPU4(reg)", fromSize(2, 2), widen(false))
}

func (r *rules) branch() {
	r.add("stmt: LABELV", 0, t("%a:"))
	r.add("stmt: JUMPV(addr)", 1, t("JMP %0"))

	jumps := []struct {
		kind   string
		signed string
		uns    string
	}{
		{"EQ", "JZ", "JZ"},
		{"NE", "JNZ", "JNZ"},
		{"LT", "JN", "JC"},
		{"LE", "JLE", "JBE"},
		{"GT", "JGT", "JA"},
		{"GE", "JGE", "JNC"},
	}

	for _, j := range jumps {
		for _, ty := range []string{"I", "U"} {
			jcc := j.signed
			if ty == "U" {
				jcc = j.uns
			}

			op1 := j.kind + ty + "1"
			op2 := j.kind + ty + "2"

			r.add("stmt: "+op1+"(reg,reg)", 5, t("STA $tmp", "POP", "CMP $tmp", jcc+" %a"))
			r.add("stmt: "+op1+"(reg,INDIR"+ty+"1(addr))", 3, t("CMP %1", jcc+" %a"))

			r.add("stmt: "+op2+"(INDIR"+ty+"2(faddr),INDIR"+ty+"2(faddr))", 3, t("LDA %1", "STA $tmp", "LDA %0", "CMP $tmp", jcc+" %a"))
			r.add("stmt: "+op2+"(INDIR"+ty+"2(faddr),con2)", 2, t("LDI %1", "STA $tmp", "LDA %0", "CMP $tmp", jcc+" %a"))
			r.add("stmt: "+op2+"(reg,INDIR"+ty+"2(faddr))", 4, t("STA $tmp2", "LDA %1", "STA $tmp", "LDA $tmp2", "CMP $tmp", jcc+" %a"))
			r.add("stmt: "+op2+"(reg,INDIR"+ty+"2(addr))", 4, t("STA $tmp2", "LDA %1", "STA $tmp", "LDA $tmp2", "CMP $tmp", jcc+" %a"))
			r.add("stmt: "+op2+"(reg,con2)", 3, t("STA $tmp2", "LDI %1", "STA $tmp", "LDA $tmp2", "CMP $tmp", jcc+" %a"))
			r.add("stmt: "+op2+"(reg,reg)", 10, t("STA $tmp", "POP", "CMP $tmp", jcc+" %a"))
		}
	}
}

func (r *rules) calls() {
	r.each("IU", "stmt: ARG@1(reg)", 1, t("PUSH"))
	r.each("IUP", "stmt: ARG@2(reg)", 1, t("PUSH"))
	r.each("IUP", "stmt: ARG@4(reg)", 2, t("TAX", "POP", "TAY", "TXA", "PUSH", "TYA", "PUSH"))

	r.each("IU", "reg: CALL@1(addr)", 5, t("CALL %0", "%c"))
	r.each("IUP", "reg: CALL@2(addr)", 5, t("CALL %0", "%c"))
	r.each("IUP", "reg: CALL@4(addr)", 8, t("CALL %0", "%c"))
	r.add("stmt: CALLV(addr)", 5, t("CALL %0", "%c"))

	r.each("IU", "stmt: RET@1(reg)", 0, t("; ret"))
	r.each("IUP", "stmt: RET@2(reg)", 0, t("; ret"))
	r.each("IUP", "stmt: RET@4(reg)", 1, t("TAX", "POP", "TAY", "TXA"))
	r.add("stmt: RETV", 0, t("; ret"))

	r.each("IU", "reg: LOAD@1(reg)", 0, "")
	r.each("IUP", "reg: LOAD@2(reg)", 0, "")
	r.each("IUP", "reg: LOAD@4(reg)", 0, "")

	// a 4 byte value leaves its low word on the stack
	r.addf("stmt: reg", nodeSize(0, 2, 0), "")
	r.addf("stmt: reg", nodeSize(4, 4, 1), t("POP"))
}

type rules struct {
	defs []burs.RuleDef
}

func (r *rules) add(rule string, c burs.Cost, tmpl string) {
	r.defs = append(r.defs, burs.RuleDef{Rule: rule, Cost: c, Template: tmpl})
}

func (r *rules) addf(rule string, f burs.CostFunc, tmpl string) {
	r.defs = append(r.defs, burs.RuleDef{Rule: rule, CostFunc: f, Template: tmpl})
}

// each adds the rule once per type letter substituted for '@'.
func (r *rules) each(types, rule string, c burs.Cost, tmpl string) {
	for _, ty := range types {
		r.add(strings.ReplaceAll(rule, "@", string(ty)), c, tmpl)
	}
}

func (r *rules) eachf(types, rule string, f burs.CostFunc, tmpl string) {
	for _, ty := range types {
		r.addf(strings.ReplaceAll(rule, "@", string(ty)), f, tmpl)
	}
}

// t makes an instruction template.
func t(lines ...string) string {
	var b strings.Builder

	for _, l := range lines {
		if !strings.HasSuffix(l, ":") {
			b.WriteString("    ")
		}

		b.WriteString(l)
		b.WriteByte('\n')
	}

	if len(lines) == 0 {
		return ""
	}

	return b.String()
}

func isOne(f *ir.Func, x ir.Expr) burs.Cost {
	n := &f.Nodes[x]
	if n.Sym != nil && n.Sym.Value == 1 {
		return 0
	}

	return burs.Inf
}

// fromSize applies to conversions whose operand is size bytes wide.
func fromSize(size int, c burs.Cost) burs.CostFunc {
	return func(f *ir.Func, x ir.Expr) burs.Cost {
		k := f.Nodes[x].Kids[0]
		if k == ir.Nil || int(f.Nodes[k].Op.Size) != size {
			return burs.Inf
		}

		return c
	}
}

func nodeSize(lo, hi int, c burs.Cost) burs.CostFunc {
	return func(f *ir.Func, x ir.Expr) burs.Cost {
		s := int(f.Nodes[x].Op.Size)
		if s < lo || s > hi {
			return burs.Inf
		}

		return c
	}
}
