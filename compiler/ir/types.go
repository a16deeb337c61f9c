package ir

import (
	"strconv"

	"tlog.app/go/errors"
)

type (
	TypeInfo struct {
		Size        int  `yaml:"size"`
		Align       int  `yaml:"align"`
		Unsupported bool `yaml:"unsupported,omitempty"`
	}

	// TypeTable maps source type names to their target size and alignment.
	TypeTable map[string]TypeInfo
)

var (
	ErrUnknownType     = errors.New("unknown type")
	ErrUnsupportedType = errors.New("type is not supported by target")
)

// Lookup resolves a type name. A bare number is a block of that many bytes
// aligned like a struct.
func (t TypeTable) Lookup(name string) (TypeInfo, error) {
	if n, err := strconv.Atoi(name); err == nil {
		if n <= 0 {
			return TypeInfo{}, errors.Wrap(ErrUnknownType, "%q: non-positive size", name)
		}

		align := 2
		if ti, ok := t["struct"]; ok {
			align = ti.Align
		}

		return TypeInfo{Size: n, Align: align}, nil
	}

	ti, ok := t[name]
	if !ok {
		return ti, errors.Wrap(ErrUnknownType, "%q", name)
	}

	if ti.Unsupported {
		return ti, errors.Wrap(ErrUnsupportedType, "%q", name)
	}

	return ti, nil
}
