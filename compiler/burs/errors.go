package burs

import (
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/loc"

	"github.com/nxlang/nxcc/compiler/ir"
)

type (
	// InternalError is a grammar coverage failure. It's never recoverable.
	InternalError struct {
		Err  error
		Func string
		Node ir.Expr
		Op   ir.Op
		Rule *Rule
		Goal string

		PC loc.PC
	}
)

var (
	ErrNoRule   = errors.New("no rule for operator")
	ErrNoCover  = errors.New("no cover")
	ErrOperands = errors.New("operand count mismatch")
)

// NewError makes an InternalError for the node.
func NewError(err error, f *ir.Func, x ir.Expr, r *Rule, goal string) *InternalError {
	e := newError(err, f, x, r, goal)
	e.PC = loc.Caller(1)

	return e
}

func newError(err error, f *ir.Func, x ir.Expr, r *Rule, goal string) *InternalError {
	e := &InternalError{
		Err:  err,
		Func: f.Name(),
		Node: x,
		Rule: r,
		Goal: goal,
		PC:   loc.Caller(1),
	}

	if x >= 0 && int(x) < len(f.Nodes) {
		e.Op = f.Nodes[x].Op
	}

	return e
}

func (e *InternalError) Error() string {
	s := fmt.Sprintf("internal: %v: func %v node %d %v", e.Err, e.Func, e.Node, e.Op)

	if e.Goal != "" {
		s += " goal " + e.Goal
	}

	if e.Rule != nil {
		s += fmt.Sprintf(" rule %d %q", e.Rule.ID, e.Rule.Text)
	}

	return s + fmt.Sprintf(" (raised at %v)", e.PC)
}

func (e *InternalError) Unwrap() error { return e.Err }
