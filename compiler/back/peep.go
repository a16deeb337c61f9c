package back

import (
	"tlog.app/go/errors"

	"github.com/nxlang/nxcc/compiler/burs"
	"github.com/nxlang/nxcc/compiler/ir"
)

var ErrPeephole = errors.New("unknown peephole")

// Pseudo-register sequences. The operands are slot locations
// which are only known after allocation.
var peepholes = map[string]struct {
	vregs [][]int // paths from the node to VREG leaves
	narrow string
	wide   string
}{
	"read": {
		vregs:  [][]int{{0}},
		narrow: t("LDA %0"),
		wide:   t("LDA %0", "PUSH", "LDA %h0"),
	},
	"write": {
		vregs:  [][]int{{0}},
		narrow: t("STA %0"),
		wide:   t("STA %h0", "POP", "STA %0"),
	},
	"add": {
		vregs:  [][]int{{0, 0}, {1, 0}},
		narrow: t("LDA %0", "STA $tmp", "LDA %1", "ADD $tmp"),
	},
	"addc": {
		vregs:  [][]int{{0, 0}},
		narrow: t("LDA %0", "STA $tmp", "LDI %1", "ADD $tmp"),
	},
	"mul": {
		vregs:  [][]int{{0, 0}, {1, 0}},
		narrow: t("LDA %1", "TAX", "LDA %0", "MUL"),
	},
}

// peep emits a pseudo-register sequence. Slot operands come first
// followed by the rule operands.
func (e *fn) peep(x ir.Expr, r *burs.Rule, ops []Operand) error {
	p, ok := peepholes[r.Template[1:]]
	if !ok {
		return burs.NewError(errors.Wrap(ErrPeephole, "%q", r.Template), e.f, x, r, "")
	}

	var slots []Operand

	for _, path := range p.vregs {
		v, err := e.vregAt(x, path)
		if err != nil {
			return err
		}

		i, err := e.sl.Slot(v)
		if err != nil {
			return errors.Wrap(err, "func %v", e.f.Name())
		}

		slots = append(slots, Mem(e.cfg.Scratch.VReg, int64(2*i)))
	}

	tmpl := p.narrow
	if e.f.Nodes[x].Op.Size == 4 {
		tmpl = p.wide
	}

	if tmpl == "" {
		return burs.NewError(errors.Wrap(ErrPeephole, "%q: no wide form", r.Template), e.f, x, r, "")
	}

	var err error
	e.b, err = e.expand(e.b, x, tmpl, append(slots, ops...))

	return err
}

func (e *fn) vregAt(x ir.Expr, path []int) (*ir.Symbol, error) {
	for _, k := range path {
		x = e.f.Nodes[x].Kids[k]
		if x == ir.Nil {
			return nil, burs.NewError(burs.ErrOperands, e.f, x, nil, "")
		}
	}

	n := &e.f.Nodes[x]
	if n.Op.Kind != ir.VREG || n.Sym == nil || n.Sym.Class != ir.VReg {
		return nil, burs.NewError(errors.New("not a pseudo-register"), e.f, x, nil, "")
	}

	return n.Sym, nil
}
