package solver

import (
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"

	"github.com/ajalab/leakcheck/ir"
)

// bits is a bit-vector in a circuit, least significant bit first.
// Booleans are single bits.
type bits []z.Lit

// memRead is a read of a base memory cell introduced by a load.
type memRead struct {
	mem   ir.Variable
	addr  bits
	value bits
}

// blaster translates expressions into an and-inverter graph.
type blaster struct {
	c     *logic.C
	vars  map[string]bits
	sorts map[string]ir.Sort
	memo  map[uint64][]memoEntry
	reads []memRead
}

type memoEntry struct {
	e ir.Expression
	b bits
}

func newBlaster() *blaster {
	return &blaster{
		c:     logic.NewC(),
		vars:  make(map[string]bits),
		sorts: make(map[string]ir.Sort),
		memo:  make(map[uint64][]memoEntry),
	}
}

// blastBool returns the literal of a Boolean expression.
func (b *blaster) blastBool(e ir.Expression) z.Lit {
	return b.blast(e)[0]
}

func (b *blaster) blast(e ir.Expression) bits {
	h := e.Hash()
	for _, m := range b.memo[h] {
		if ir.Identical(m.e, e) {
			return m.b
		}
	}
	r := b.translate(e)
	b.memo[h] = append(b.memo[h], memoEntry{e: e, b: r})
	return r
}

func (b *blaster) constant(c ir.Constant) bits {
	if c.Sort().IsBool() {
		return bits{b.lit(c.Bool())}
	}
	v := c.Value()
	r := make(bits, c.Width())
	for i := range r {
		r[i] = b.lit(v[i/64]>>(uint(i)%64)&1 == 1)
	}
	return r
}

func (b *blaster) lit(v bool) z.Lit {
	if v {
		return b.c.T
	}
	return b.c.F
}

// variable returns the bits of v. Check has ruled out names bound to two sorts.
func (b *blaster) variable(v ir.Variable) bits {
	if r, ok := b.vars[v.Name()]; ok {
		return r
	}
	n := uint(1)
	if v.Sort().IsBitVector() {
		n = v.Sort().Width()
	}
	r := make(bits, n)
	for i := range r {
		r[i] = b.c.Lit()
	}
	b.vars[v.Name()] = r
	b.sorts[v.Name()] = v.Sort()
	return r
}

func (b *blaster) translate(e ir.Expression) bits {
	switch e := e.(type) {
	case ir.Constant:
		return b.constant(e)
	case ir.Variable:
		return b.variable(e)
	case *ir.Operation:
		return b.operation(e)
	}
	panic("unreachable")
}

func (b *blaster) operation(o *ir.Operation) bits {
	c := b.c
	switch o.Operator() {
	case ir.OpLoad:
		return b.load(o.Operand(0), b.blast(o.Operand(1)), o.Width())
	case ir.OpIte:
		cond := b.blastBool(o.Operand(0))
		return b.mux(cond, b.blast(o.Operand(1)), b.blast(o.Operand(2)))
	case ir.OpEqual:
		return bits{b.eq(b.blast(o.Operand(0)), b.blast(o.Operand(1)))}
	case ir.OpUnequal:
		return bits{b.eq(b.blast(o.Operand(0)), b.blast(o.Operand(1))).Not()}
	}

	xs := make([]bits, len(o.Operands()))
	for i, x := range o.Operands() {
		xs[i] = b.blast(x)
	}
	switch o.Operator() {
	case ir.OpNot:
		return bits{xs[0][0].Not()}
	case ir.OpImply:
		return bits{c.Implies(xs[0][0], xs[1][0])}
	case ir.OpAnd, ir.OpOr:
		ls := make([]z.Lit, len(xs))
		for i, x := range xs {
			ls[i] = x[0]
		}
		if o.Operator() == ir.OpAnd {
			return bits{c.Ands(ls...)}
		}
		return bits{c.Ors(ls...)}
	case ir.OpXor:
		return bits{c.Xor(xs[0][0], xs[1][0])}

	case ir.OpBVAdd:
		r, _ := b.add(xs[0], xs[1], c.F)
		return r
	case ir.OpBVSub:
		return b.sub(xs[0], xs[1])
	case ir.OpBVMul:
		return b.mul(xs[0], xs[1])
	case ir.OpBVUDiv:
		q, _ := b.divmod(xs[0], xs[1])
		return q
	case ir.OpBVURem:
		_, r := b.divmod(xs[0], xs[1])
		return r
	case ir.OpBVAnd:
		return b.bitwise(xs[0], xs[1], c.And)
	case ir.OpBVOr:
		return b.bitwise(xs[0], xs[1], c.Or)
	case ir.OpBVXor:
		return b.bitwise(xs[0], xs[1], c.Xor)
	case ir.OpBVNot:
		return not(xs[0])
	case ir.OpBVNeg:
		return b.sub(b.zero(len(xs[0])), xs[0])
	case ir.OpBVShl:
		return b.shift(xs[0], xs[1], shiftLeft)
	case ir.OpBVLShr:
		return b.shift(xs[0], xs[1], shiftLogicalRight)
	case ir.OpBVAShr:
		return b.shift(xs[0], xs[1], shiftArithmeticRight)
	case ir.OpBVULt:
		return bits{b.ult(xs[0], xs[1])}
	case ir.OpBVULe:
		return bits{b.ult(xs[1], xs[0]).Not()}
	case ir.OpBVUGt:
		return bits{b.ult(xs[1], xs[0])}
	case ir.OpBVUGe:
		return bits{b.ult(xs[0], xs[1]).Not()}
	case ir.OpBVSLt:
		return bits{b.slt(xs[0], xs[1])}
	case ir.OpBVSLe:
		return bits{b.slt(xs[1], xs[0]).Not()}
	case ir.OpBVSGt:
		return bits{b.slt(xs[1], xs[0])}
	case ir.OpBVSGe:
		return bits{b.slt(xs[0], xs[1]).Not()}
	case ir.OpZeroExtend:
		return b.extend(xs[0], o.Width(), c.F)
	case ir.OpSignExtend:
		return b.extend(xs[0], o.Width(), xs[0][len(xs[0])-1])
	case ir.OpExtract:
		r := make(bits, o.Width()-o.Low()+1)
		copy(r, xs[0][o.Low():o.Width()+1])
		return r
	case ir.OpConcat:
		r := make(bits, 0, len(xs[0])+len(xs[1]))
		r = append(r, xs[1]...)
		return append(r, xs[0]...)
	}
	panic("solver: cannot blast " + o.Operator().String())
}

// load resolves a read of width bits at addr through a chain of stores and ites.
func (b *blaster) load(mem ir.Expression, addr bits, width uint) bits {
	switch m := mem.(type) {
	case ir.Variable:
		for _, r := range b.reads {
			if r.mem == m && len(r.value) == int(width) && sameBits(r.addr, addr) {
				return r.value
			}
		}
		value := make(bits, width)
		for i := range value {
			value[i] = b.c.Lit()
		}
		b.reads = append(b.reads, memRead{mem: m, addr: addr, value: value})
		return value
	case *ir.Operation:
		switch m.Operator() {
		case ir.OpStore:
			stored := b.resize(b.blast(m.Operand(2)), width)
			hit := b.eq(b.resize(b.blast(m.Operand(1)), uint(len(addr))), addr)
			return b.mux(hit, stored, b.load(m.Operand(0), addr, width))
		case ir.OpIte:
			cond := b.blastBool(m.Operand(0))
			return b.mux(cond, b.load(m.Operand(1), addr, width), b.load(m.Operand(2), addr, width))
		}
	}
	panic("solver: not a memory expression: " + mem.String())
}

// consistency returns the constraint that reads of the same cell agree.
func (b *blaster) consistency() z.Lit {
	var ls []z.Lit
	for i := range b.reads {
		for j := i + 1; j < len(b.reads); j++ {
			ri, rj := b.reads[i], b.reads[j]
			if ri.mem != rj.mem {
				continue
			}
			w := len(ri.value)
			if len(rj.value) < w {
				w = len(rj.value)
			}
			n := len(ri.addr)
			if len(rj.addr) > n {
				n = len(rj.addr)
			}
			same := b.eq(b.resize(ri.addr, uint(n)), b.resize(rj.addr, uint(n)))
			ls = append(ls, b.c.Implies(same, b.eq(ri.value[:w], rj.value[:w])))
		}
	}
	return b.c.Ands(ls...)
}

func sameBits(x, y bits) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func not(x bits) bits {
	r := make(bits, len(x))
	for i, l := range x {
		r[i] = l.Not()
	}
	return r
}

func (b *blaster) zero(n int) bits {
	r := make(bits, n)
	for i := range r {
		r[i] = b.c.F
	}
	return r
}

func (b *blaster) resize(x bits, width uint) bits {
	if uint(len(x)) >= width {
		return x[:width]
	}
	return b.extend(x, width, b.c.F)
}

func (b *blaster) extend(x bits, width uint, fill z.Lit) bits {
	r := make(bits, width)
	copy(r, x)
	for i := len(x); i < int(width); i++ {
		r[i] = fill
	}
	return r
}

func (b *blaster) mux(cond z.Lit, x, y bits) bits {
	r := make(bits, len(x))
	for i := range r {
		r[i] = b.c.Choice(cond, x[i], y[i])
	}
	return r
}

func (b *blaster) eq(x, y bits) z.Lit {
	ls := make([]z.Lit, len(x))
	for i := range x {
		ls[i] = b.c.Xor(x[i], y[i]).Not()
	}
	return b.c.Ands(ls...)
}

func (b *blaster) bitwise(x, y bits, f func(z.Lit, z.Lit) z.Lit) bits {
	r := make(bits, len(x))
	for i := range r {
		r[i] = f(x[i], y[i])
	}
	return r
}

// add returns x + y + carry and the carry out.
func (b *blaster) add(x, y bits, carry z.Lit) (bits, z.Lit) {
	c := b.c
	r := make(bits, len(x))
	for i := range r {
		t := c.Xor(x[i], y[i])
		r[i] = c.Xor(t, carry)
		carry = c.Or(c.And(x[i], y[i]), c.And(carry, t))
	}
	return r, carry
}

func (b *blaster) sub(x, y bits) bits {
	r, _ := b.add(x, not(y), b.c.T)
	return r
}

func (b *blaster) mul(x, y bits) bits {
	acc := b.zero(len(x))
	for i := range y {
		partial := make(bits, len(x))
		for j := range partial {
			if j < i {
				partial[j] = b.c.F
			} else {
				partial[j] = b.c.And(x[j-i], y[i])
			}
		}
		acc, _ = b.add(acc, partial, b.c.F)
	}
	return acc
}

// divmod is restoring division. Division by zero yields all ones and x.
func (b *blaster) divmod(x, y bits) (bits, bits) {
	n := len(x)
	q := make(bits, n)
	r := b.zero(n + 1)
	yy := b.extend(y, uint(n+1), b.c.F)
	for i := n - 1; i >= 0; i-- {
		shifted := make(bits, n+1)
		shifted[0] = x[i]
		copy(shifted[1:], r[:n])
		ge := b.ult(shifted, yy).Not()
		q[i] = ge
		r = b.mux(ge, b.sub(shifted, yy), shifted)
	}
	return q, r[:n]
}

func (b *blaster) ult(x, y bits) z.Lit {
	c := b.c
	lt := c.F
	for i := range x {
		lt = c.Or(c.And(x[i].Not(), y[i]), c.And(c.Xor(x[i], y[i]).Not(), lt))
	}
	return lt
}

func (b *blaster) slt(x, y bits) z.Lit {
	n := len(x)
	xf := append(bits{}, x...)
	yf := append(bits{}, y...)
	xf[n-1], yf[n-1] = x[n-1].Not(), y[n-1].Not()
	return b.ult(xf, yf)
}

type shiftKind int

const (
	shiftLeft shiftKind = iota
	shiftLogicalRight
	shiftArithmeticRight
)

// shift is a barrel shifter. Amounts of at least the width shift every bit out.
func (b *blaster) shift(x, amount bits, kind shiftKind) bits {
	n := len(x)
	fill := b.c.F
	if kind == shiftArithmeticRight {
		fill = x[n-1]
	}
	r := x
	var overflow []z.Lit
	for k := range amount {
		if k >= 63 || 1<<uint(k) >= n {
			overflow = append(overflow, amount[k])
			continue
		}
		d := 1 << uint(k)
		shifted := make(bits, n)
		for i := range shifted {
			var src int
			if kind == shiftLeft {
				src = i - d
			} else {
				src = i + d
			}
			if src >= 0 && src < n {
				shifted[i] = r[src]
			} else {
				shifted[i] = fill
			}
		}
		r = b.mux(amount[k], shifted, r)
	}
	if len(overflow) > 0 {
		filled := make(bits, n)
		for i := range filled {
			filled[i] = fill
		}
		r = b.mux(b.c.Ors(overflow...), filled, r)
	}
	return r
}
