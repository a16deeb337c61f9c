package parse

import (
	"context"

	"tlog.app/go/errors"
)

type (
	// Spaces is a set of skippable control and punctuation bytes (< 64).
	Spaces uint64

	// Spacer skips leading spaces before Of.
	Spacer struct {
		Spaces Spaces
		Of     Parser
	}
)

// SpaceTab separates words on an IR line.
var SpaceTab = NewSpaces(' ', '\t')

func NewSpaces(skip ...byte) (ss Spaces) {
	for _, c := range skip {
		if c >= 64 {
			panic("space byte out of range")
		}

		ss |= 1 << c
	}

	return ss
}

func (s Spaces) has(c byte) bool {
	return c < 64 && s&(1<<c) != 0
}

// Skip returns the first non space position at or after st.
func (s Spaces) Skip(b []byte, st int) int {
	for st < len(b) && s.has(b[st]) {
		st++
	}

	return st
}

// TrimRight returns end moved left past spaces, but not before st.
func (s Spaces) TrimRight(b []byte, st, end int) int {
	for end > st && s.has(b[end-1]) {
		end--
	}

	return end
}

func Spaced(p Parser, ss Spaces) Spacer {
	return Spacer{Spaces: ss, Of: p}
}

func (p Spacer) Parse(ctx context.Context, b []byte, st int) (x any, i int, err error) {
	vst := p.Spaces.Skip(b, st)

	x, i, err = p.Of.Parse(ctx, b, vst)
	if err == nil {
		return x, i, nil
	}

	if i == vst {
		i = st
	}

	return x, i, errors.Wrap(err, "%T", p.Of)
}
