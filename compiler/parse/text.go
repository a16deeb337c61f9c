package parse

import (
	"bytes"
	"context"
	"strconv"

	"tlog.app/go/errors"
)

type (
	Const []byte

	Ident []byte

	// Str is a double quoted Go style string literal.
	Str struct{}
)

func (p Const) Parse(ctx context.Context, b []byte, st int) (x any, i int, err error) {
	if bytes.HasPrefix(b[st:], p) {
		return Const(b[st : st+len(p)]), st + len(p), nil
	}

	return nil, st, errors.New("%q expected", []byte(p))
}

func (p Ident) Parse(ctx context.Context, b []byte, st int) (x any, i int, err error) {
	if st == len(b) {
		return nil, st, errors.New("Ident expected")
	}

	i = st

	c := b[i]

	switch {
	case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '.':
		i++
	default:
		return nil, st, errors.New("Ident expected")
	}

	for i < len(b) {
		c := b[i]

		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '.' {
			i++
			continue
		}

		break
	}

	return Ident(b[st:i]), i, nil
}

func (Str) Parse(ctx context.Context, b []byte, st int) (x any, i int, err error) {
	if st == len(b) || b[st] != '"' {
		return nil, st, errors.New("string expected")
	}

	i = st + 1

	for i < len(b) && b[i] != '"' && b[i] != '\n' {
		if b[i] == '\\' {
			i++
		}

		i++
	}

	if i >= len(b) || b[i] != '"' {
		return nil, i, errors.New("unterminated string")
	}

	i++

	s, err := strconv.Unquote(string(b[st:i]))
	if err != nil {
		return nil, st, errors.Wrap(err, "string")
	}

	return []byte(s), i, nil
}
