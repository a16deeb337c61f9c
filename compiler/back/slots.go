package back

import (
	"tlog.app/go/errors"

	"github.com/nxlang/nxcc/compiler/ir"
	"github.com/nxlang/nxcc/compiler/set"
)

type (
	// Slots maps pseudo-registers to fixed memory words.
	// A pseudo-register gets its slot on the first reference.
	//
	// Functions making calls allocate from the callee saved slots
	// they preserve in the prologue. Leaf functions use the rest,
	// so they never clobber a live slot of any caller.
	Slots struct {
		lo, hi int

		used set.Bitmap
		slot map[*ir.Symbol]int
	}
)

var ErrSlotsExhausted = errors.New("pseudo-register slots exhausted")

func NewSlots(lo, hi int) *Slots {
	return &Slots{
		lo:   lo,
		hi:   hi,
		used: set.MakeBitmap(hi),
		slot: map[*ir.Symbol]int{},
	}
}

// Slot returns the first slot word of the pseudo-register.
// 4 byte pseudo-registers take two adjacent words.
func (s *Slots) Slot(v *ir.Symbol) (int, error) {
	if i, ok := s.slot[v]; ok {
		return i, nil
	}

	words := (v.Size + 1) / 2
	if words == 0 {
		words = 1
	}

	i := s.used.Len()
	if i < s.lo {
		i = s.lo
	}

	if i+words > s.hi {
		return 0, errors.Wrap(ErrSlotsExhausted, "vreg %v: %d words in use of [%d, %d)", v.Name, s.used.Size(), s.lo, s.hi)
	}

	s.used.FillSet(i, i+words)
	s.slot[v] = i

	return i, nil
}

// Used returns the number of slot words taken.
func (s *Slots) Used() int { return s.used.Size() }

func (s *Slots) TlogAppend(b []byte) []byte {
	return s.used.TlogAppend(b)
}
