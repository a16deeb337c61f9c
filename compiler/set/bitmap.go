package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Bitmap is a growable set of non-negative ints.
	// The zero value is an empty set.
	Bitmap struct {
		w []uint64
	}
)

func MakeBitmap(n int) Bitmap {
	return Bitmap{w: make([]uint64, 0, (n+63)/64)}
}

func (s *Bitmap) Set(i int) {
	w, m := pos(i)

	for w >= len(s.w) {
		s.w = append(s.w, 0)
	}

	s.w[w] |= m
}

func (s *Bitmap) IsSet(i int) bool {
	w, m := pos(i)

	return w < len(s.w) && s.w[w]&m != 0
}

// FillSet sets [l, r).
func (s *Bitmap) FillSet(l, r int) {
	for i := l; i < r; i++ {
		s.Set(i)
	}
}

// Size is the number of elements.
func (s *Bitmap) Size() (n int) {
	for _, w := range s.w {
		n += bits.OnesCount64(w)
	}

	return n
}

// Len is one past the largest element.
func (s *Bitmap) Len() int {
	for w := len(s.w) - 1; w >= 0; w-- {
		if s.w[w] != 0 {
			return w*64 + bits.Len64(s.w[w])
		}
	}

	return 0
}

// Range calls f for elements in ascending order until it returns false.
func (s *Bitmap) Range(f func(i int) bool) {
	for w, x := range s.w {
		for x != 0 {
			j := bits.TrailingZeros64(x)
			x &^= 1 << j

			if !f(w*64 + j) {
				return
			}
		}
	}
}

func (s Bitmap) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if s.w == nil {
		return e.AppendNil(b)
	}

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(i int) bool {
		b = e.AppendInt(b, i)
		return true
	})

	return e.AppendBreak(b)
}

func pos(i int) (int, uint64) {
	return i / 64, 1 << (i % 64)
}
