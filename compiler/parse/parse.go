package parse

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"reflect"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/nxlang/nxcc/compiler/ir"
)

type (
	State struct {
		b []byte // all files concatenated

		files []file

		Types ir.TypeTable

		unit *ir.Unit
		syms map[string]*ir.Symbol // unit scope

		labels map[string]*ir.Symbol

		f      *ir.Func
		fsyms  map[string]*ir.Symbol
		shared map[int64]ir.Expr
		calls  int // explicit calls=, -1 if not given

		d *ir.Data
	}

	file struct {
		base int
		size int
		name string
	}

	Parser interface {
		Parse(ctx context.Context, b []byte, st int) (x any, i int, err error)
	}

	TypeExpectedError struct {
		T interface{}
	}

	PartialReadError struct {
		End int
	}

	PosError struct {
		File string
		Line int
		Col  int
		Err  error
	}

	stateCtxKey struct{}
)

func ParseFile(ctx context.Context, name string, types ir.TypeTable) (*ir.Unit, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	return Parse(ctx, name, data, types)
}

func Parse(ctx context.Context, name string, text []byte, types ir.TypeTable) (u *ir.Unit, err error) {
	s := New(types)

	s.AddFile(name, text)

	return s.Parse(ctx)
}

func New(types ir.TypeTable) *State {
	return &State{
		Types:  types,
		unit:   &ir.Unit{},
		syms:   map[string]*ir.Symbol{},
		labels: map[string]*ir.Symbol{},
		calls:  -1,
	}
}

func (s *State) AddFile(name string, text []byte) {
	f := file{
		name: name,
		base: len(s.b),
		size: len(text),
	}

	s.b = append(s.b, text...)

	if len(text) != 0 && text[len(text)-1] != '\n' {
		s.b = append(s.b, '\n')
		f.size++
	}

	s.files = append(s.files, f)

	if s.unit.Name == "" {
		s.unit.Name = name
	}
}

// Parse reads all the added files line by line.
func (s *State) Parse(ctx context.Context) (u *ir.Unit, err error) {
	tr := tlog.SpanFromContext(ctx)

	ctx = context.WithValue(ctx, stateCtxKey{}, s)

	for st := 0; st < len(s.b); {
		end := st + bytes.IndexByte(s.b[st:], '\n')
		if end < st {
			end = len(s.b)
		}

		err = s.line(ctx, st, end)
		if err != nil {
			return nil, s.posError(st, err)
		}

		st = end + 1
	}

	if s.f != nil {
		return nil, s.posError(len(s.b), errors.New("func %v: missing end", s.f.Name()))
	}

	if s.d != nil {
		return nil, s.posError(len(s.b), errors.New("data %v: missing end", s.d.Sym.Name))
	}

	tr.V("parse").Printw("parsed unit", "funcs", len(s.unit.Funcs), "data", len(s.unit.Data), "imports", len(s.unit.Imports))

	return s.unit, nil
}

// Line processes a single line of text in the current state.
// It's used by interactive tools which feed statements one by one.
func (s *State) Line(ctx context.Context, text []byte) error {
	st := len(s.b)
	s.b = append(s.b, text...)
	end := len(s.b)
	s.b = append(s.b, '\n')

	ctx = context.WithValue(ctx, stateCtxKey{}, s)

	return s.line(ctx, st, end)
}

// Unit returns the unit being built.
func (s *State) Unit() *ir.Unit { return s.unit }

// Func returns the function being built or nil.
func (s *State) Func() *ir.Func { return s.f }

func (s *State) Text(pos, end int) []byte {
	return s.b[pos:end]
}

func (s *State) posError(pos int, err error) error {
	var pe PosError
	if errors.As(err, &pe) {
		return err
	}

	return s.errorAt(pos, err)
}

func (s *State) errorAt(pos int, err error) error {
	e := PosError{Err: err, Line: 1, Col: 1}

	for _, f := range s.files {
		if pos >= f.base && pos <= f.base+f.size {
			e.File = f.name
			b := s.b[f.base:pos]
			e.Line = 1 + bytes.Count(b, []byte{'\n'})
			e.Col = 1 + len(b) - (bytes.LastIndexByte(b, '\n') + 1)

			break
		}
	}

	return e
}

func NewTypeExpectedError(t interface{}) TypeExpectedError {
	return TypeExpectedError{
		T: t,
	}
}

func StateFromContext(ctx context.Context) *State {
	s, _ := ctx.Value(stateCtxKey{}).(*State)
	return s
}

func (e TypeExpectedError) Error() string {
	return fmt.Sprintf("%v expected", reflect.TypeOf(e.T))
}

func (e PartialReadError) Error() string {
	return "partial read"
}

func (e PosError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %v", e.File, e.Line, e.Col, e.Err)
}

func (e PosError) Unwrap() error { return e.Err }
