package ir

import "strconv"

type treePrinter struct {
	f *Func

	refs   map[Expr]int
	shared map[Expr]int
}

// AppendTree appends the statement tree rooted at x in the IR text syntax.
// Nodes reached more than once are written as #n=TREE first and #n after.
func (f *Func) AppendTree(b []byte, x Expr) []byte {
	p := treePrinter{
		f:      f,
		refs:   map[Expr]int{},
		shared: map[Expr]int{},
	}

	p.count(x)

	return p.append(b, x)
}

func (p *treePrinter) count(x Expr) {
	if x == Nil {
		return
	}

	p.refs[x]++
	if p.refs[x] > 1 {
		return
	}

	for _, k := range p.f.Nodes[x].Kids {
		p.count(k)
	}
}

func (p *treePrinter) append(b []byte, x Expr) []byte {
	if n, ok := p.shared[x]; ok {
		b = append(b, '#')
		return strconv.AppendInt(b, int64(n), 10)
	}

	if p.refs[x] > 1 {
		n := len(p.shared) + 1
		p.shared[x] = n

		b = append(b, '#')
		b = strconv.AppendInt(b, int64(n), 10)
		b = append(b, '=')
	}

	nd := &p.f.Nodes[x]

	b = append(b, nd.Op.String()...)

	if s := nd.Sym; s != nil {
		b = append(b, ' ')

		if s.Class == Const {
			b = strconv.AppendInt(b, s.Value, 10)
		} else {
			b = append(b, s.Name...)
		}

		if nd.Off > 0 {
			b = append(b, '+')
		}

		if nd.Off != 0 {
			b = strconv.AppendInt(b, nd.Off, 10)
		}
	}

	if nd.Arity() == 0 {
		return b
	}

	b = append(b, '(')

	for i, k := range nd.Kids[:nd.Arity()] {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = p.append(b, k)
	}

	return append(b, ')')
}
