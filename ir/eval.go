package ir

import (
	"github.com/holiman/uint256"
)

// Valuation assigns concrete values to variables.
type Valuation interface {
	// Value returns the value of v, or false if v is unassigned.
	Value(v Variable) (Constant, bool)
	// ReadMemory returns the width-bit value of the base memory mem at addr,
	// or false if it is unassigned.
	ReadMemory(mem Variable, addr uint64, width uint) (Constant, bool)
}

// MapValuation is a Valuation over variable names without memory contents.
type MapValuation map[string]Constant

// Value returns m[v.Name()] if its sort matches.
func (m MapValuation) Value(v Variable) (Constant, bool) {
	c, ok := m[v.Name()]
	if !ok || c.Sort() != v.Sort() {
		return Constant{}, false
	}
	return c, true
}

// ReadMemory always returns false.
func (m MapValuation) ReadMemory(Variable, uint64, uint) (Constant, bool) {
	return Constant{}, false
}

// Eval evaluates e under val. Unassigned variables and memory cells evaluate to zero.
// It fails with SortMismatch if e is ill-typed or memory-sorted.
func Eval(e Expression, val Valuation) (Constant, error) {
	if err := e.Validate(); err != nil {
		return Constant{}, err
	}
	if e.Sort().IsMemory() {
		return Constant{}, Errorf(SortMismatch, e, "a Memory expression has no constant value")
	}
	return eval(e, val), nil
}

func eval(e Expression, val Valuation) Constant {
	switch e := e.(type) {
	case Constant:
		return e
	case Variable:
		if c, ok := val.Value(e); ok {
			return c
		}
		return ZeroConst(e.Sort())
	case *Operation:
		if e.op == OpLoad {
			return evalLoad(e.operands[0], eval(e.operands[1], val), e.width, val)
		}
		if e.op == OpIte {
			if eval(e.operands[0], val).Bool() {
				return eval(e.operands[1], val)
			}
			return eval(e.operands[2], val)
		}
		args := make([]Constant, len(e.operands))
		for i, x := range e.operands {
			args[i] = eval(x, val)
		}
		return Apply(e, args)
	}
	panic("unreachable")
}

func evalLoad(mem Expression, addr Constant, width uint, val Valuation) Constant {
	for {
		switch m := mem.(type) {
		case *Operation:
			if m.op == OpIte {
				if eval(m.operands[0], val).Bool() {
					mem = m.operands[1]
				} else {
					mem = m.operands[2]
				}
				continue
			}
			if m.op != OpStore {
				panic("unreachable")
			}
			a := eval(m.operands[1], val)
			if a.Uint64() == addr.Uint64() {
				return eval(m.operands[2], val).Resize(width)
			}
			mem = m.operands[0]
		case Variable:
			if c, ok := val.ReadMemory(m, addr.Uint64(), width); ok {
				return c.Resize(width)
			}
			return ZeroConst(BitVectorSort(width))
		default:
			panic("unreachable")
		}
	}
}

func boolOf(b bool) Constant {
	return BoolConst(b)
}

func bv(v *uint256.Int, width uint) Constant {
	v.And(v, mask(width))
	return Constant{sort: BitVectorSort(width), value: *v}
}

func shiftAmount(c Constant, width uint) (uint, bool) {
	if !c.value.IsUint64() || c.value.Uint64() >= uint64(width) {
		return 0, false
	}
	return uint(c.value.Uint64()), true
}

// Apply computes the operator of o over constant arguments.
// The arguments must match the signature of o; load and store are not supported.
func Apply(o *Operation, args []Constant) Constant {
	switch o.op {
	case OpNot:
		return boolOf(!args[0].b)
	case OpImply:
		return boolOf(!args[0].b || args[1].b)
	case OpAnd:
		for _, a := range args {
			if !a.b {
				return False
			}
		}
		return True
	case OpOr:
		for _, a := range args {
			if a.b {
				return True
			}
		}
		return False
	case OpXor:
		return boolOf(args[0].b != args[1].b)
	case OpIte:
		if args[0].b {
			return args[1]
		}
		return args[2]
	case OpEqual:
		return boolOf(args[0] == args[1])
	case OpUnequal:
		return boolOf(args[0] != args[1])
	case OpZeroExtend:
		return args[0].ZeroExtend(o.width)
	case OpSignExtend:
		return args[0].SignExtend(o.width)
	case OpExtract:
		v := new(uint256.Int).Rsh(&args[0].value, o.low)
		return bv(v, o.width-o.low+1)
	case OpConcat:
		wy := args[1].Width()
		v := new(uint256.Int).Lsh(&args[0].value, wy)
		v.Or(v, &args[1].value)
		return bv(v, args[0].Width()+wy)
	}

	x := &args[0].value
	w := args[0].Width()
	z := new(uint256.Int)
	switch o.op {
	case OpBVNot:
		return bv(z.Not(x), w)
	case OpBVNeg:
		return bv(z.Neg(x), w)
	}

	y := &args[1].value
	switch o.op {
	case OpBVAdd:
		return bv(z.Add(x, y), w)
	case OpBVSub:
		return bv(z.Sub(x, y), w)
	case OpBVMul:
		return bv(z.Mul(x, y), w)
	case OpBVUDiv:
		if y.IsZero() {
			return bv(z.SetAllOne(), w)
		}
		return bv(z.Div(x, y), w)
	case OpBVURem:
		if y.IsZero() {
			return bv(z.Set(x), w)
		}
		return bv(z.Mod(x, y), w)
	case OpBVAnd:
		return bv(z.And(x, y), w)
	case OpBVOr:
		return bv(z.Or(x, y), w)
	case OpBVXor:
		return bv(z.Xor(x, y), w)
	case OpBVShl:
		n, ok := shiftAmount(args[1], w)
		if !ok {
			return bv(z, w)
		}
		return bv(z.Lsh(x, n), w)
	case OpBVLShr:
		n, ok := shiftAmount(args[1], w)
		if !ok {
			return bv(z, w)
		}
		return bv(z.Rsh(x, n), w)
	case OpBVAShr:
		n, ok := shiftAmount(args[1], w)
		if !ok {
			if !args[0].signBit() {
				return bv(z, w)
			}
			return bv(z.SetAllOne(), w)
		}
		return bv(z.SRsh(args[0].Signed(), n), w)
	case OpBVULt:
		return boolOf(x.Lt(y))
	case OpBVULe:
		return boolOf(!x.Gt(y))
	case OpBVUGt:
		return boolOf(x.Gt(y))
	case OpBVUGe:
		return boolOf(!x.Lt(y))
	case OpBVSLt:
		return boolOf(args[0].Signed().Slt(args[1].Signed()))
	case OpBVSLe:
		return boolOf(!args[0].Signed().Sgt(args[1].Signed()))
	case OpBVSGt:
		return boolOf(args[0].Signed().Sgt(args[1].Signed()))
	case OpBVSGe:
		return boolOf(!args[0].Signed().Slt(args[1].Signed()))
	}
	panic("ir: cannot apply " + o.op.String())
}
