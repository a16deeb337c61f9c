package parse

import (
	"context"
	"strconv"

	"tlog.app/go/errors"
)

type (
	// Int parses an optionally signed integer with an optional base prefix.
	Int struct{}
)

func (p Int) Parse(ctx context.Context, b []byte, st int) (x any, i int, err error) {
	i = st

	neg := false
	if i < len(b) && (b[i] == '-' || b[i] == '+') {
		neg = b[i] == '-'
		i++
	}

	base := 10

	if i+1 < len(b) && b[i] == '0' {
		switch b[i+1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}

		if base != 10 {
			i += 2
		}
	}

	dst := i

	for i < len(b) && digit(b[i], base) {
		i++
	}

	if i == dst {
		return nil, st, errors.New("Int expected")
	}

	v, err := strconv.ParseUint(string(b[dst:i]), base, 64)
	if err != nil {
		return nil, st, errors.Wrap(err, "Int")
	}

	r := int64(v)
	if neg {
		r = -r
	}

	return r, i, nil
}

func digit(c byte, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return int(c-'0') < base
	case base == 16 && (c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'):
		return true
	}

	return false
}
