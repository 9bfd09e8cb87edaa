package ir

import (
	"fmt"
	"strings"
)

// Expression is a symbolic value built from constants, variables and operators.
// Every expression has exactly one sort, computed structurally from its operands.
type Expression interface {
	fmt.Stringer
	// Sort returns the sort of the expression. It is total, even for ill-typed trees.
	Sort() Sort
	// Validate checks the operator signatures of the whole tree.
	Validate() error
	// Hash returns a structural hash.
	Hash() uint64
	// Operands returns the direct sub-expressions.
	Operands() []Expression
	expression()
}

// Operator identifies the function applied by an Operation.
type Operator int

// Operators.
const (
	OpNot Operator = iota + 1
	OpImply
	OpAnd
	OpOr
	OpXor

	OpIte
	OpEqual
	OpUnequal

	OpBVAdd
	OpBVSub
	OpBVMul
	OpBVUDiv
	OpBVURem
	OpBVAnd
	OpBVOr
	OpBVXor
	OpBVNot
	OpBVNeg
	OpBVShl
	OpBVLShr
	OpBVAShr
	OpBVULt
	OpBVULe
	OpBVUGt
	OpBVUGe
	OpBVSLt
	OpBVSLe
	OpBVSGt
	OpBVSGe
	OpZeroExtend
	OpSignExtend
	OpExtract
	OpConcat

	OpLoad
	OpStore
)

var operatorNames = map[Operator]string{
	OpNot:        "not",
	OpImply:      "=>",
	OpAnd:        "and",
	OpOr:         "or",
	OpXor:        "xor",
	OpIte:        "ite",
	OpEqual:      "=",
	OpUnequal:    "!=",
	OpBVAdd:      "bvadd",
	OpBVSub:      "bvsub",
	OpBVMul:      "bvmul",
	OpBVUDiv:     "bvudiv",
	OpBVURem:     "bvurem",
	OpBVAnd:      "bvand",
	OpBVOr:       "bvor",
	OpBVXor:      "bvxor",
	OpBVNot:      "bvnot",
	OpBVNeg:      "bvneg",
	OpBVShl:      "bvshl",
	OpBVLShr:     "bvlshr",
	OpBVAShr:     "bvashr",
	OpBVULt:      "bvult",
	OpBVULe:      "bvule",
	OpBVUGt:      "bvugt",
	OpBVUGe:      "bvuge",
	OpBVSLt:      "bvslt",
	OpBVSLe:      "bvsle",
	OpBVSGt:      "bvsgt",
	OpBVSGe:      "bvsge",
	OpZeroExtend: "zero_extend",
	OpSignExtend: "sign_extend",
	OpExtract:    "extract",
	OpConcat:     "concat",
	OpLoad:       "load",
	OpStore:      "store",
}

func (op Operator) String() string {
	if s, ok := operatorNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Operator(%d)", int(op))
}

// IsBoolean reports whether op only accepts Boolean operands.
func (op Operator) IsBoolean() bool {
	return op >= OpNot && op <= OpXor
}

// IsComparison reports whether op compares two bit-vectors.
func (op Operator) IsComparison() bool {
	return op >= OpBVULt && op <= OpBVSGe
}

// Operation is an operator applied to operands.
type Operation struct {
	op       Operator
	operands []Expression
	// width is the result width of extensions and loads, and the high bit of extract.
	width uint
	// low is the low bit of extract.
	low  uint
	hash uint64
}

func newOperation(op Operator, width, low uint, operands ...Expression) *Operation {
	o := &Operation{
		op:       op,
		operands: operands,
		width:    width,
		low:      low,
	}
	h := newHasher(tagOperation)
	h.writeUint64(uint64(op))
	h.writeUint64(uint64(width)<<32 | uint64(low))
	for _, x := range operands {
		h.writeUint64(x.Hash())
	}
	o.hash = h.sum()
	return o
}

// Operator returns the operator of o.
func (o *Operation) Operator() Operator {
	return o.op
}

// Operands returns the operands of o.
func (o *Operation) Operands() []Expression {
	return o.operands
}

// Operand returns the i-th operand of o.
func (o *Operation) Operand(i int) Expression {
	return o.operands[i]
}

// Width returns the width parameter of extensions, extracts (high bit) and loads.
func (o *Operation) Width() uint {
	return o.width
}

// Low returns the low bit of an extract.
func (o *Operation) Low() uint {
	return o.low
}

// Hash returns a structural hash of o.
func (o *Operation) Hash() uint64 {
	return o.hash
}

// Sort computes the sort of o from its operator and operands.
func (o *Operation) Sort() Sort {
	switch {
	case o.op.IsBoolean(), o.op.IsComparison(), o.op == OpEqual, o.op == OpUnequal:
		return BoolSort()
	}
	switch o.op {
	case OpIte:
		return o.operands[1].Sort()
	case OpZeroExtend, OpSignExtend, OpLoad:
		return BitVectorSort(o.width)
	case OpExtract:
		return BitVectorSort(o.width - o.low + 1)
	case OpConcat:
		a, b := o.operands[0].Sort(), o.operands[1].Sort()
		if a.IsBitVector() && b.IsBitVector() && a.width+b.width <= MaxWidth {
			return BitVectorSort(a.width + b.width)
		}
		return a
	case OpStore:
		return MemorySort()
	}
	return o.operands[0].Sort()
}

func (o *Operation) String() string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(o.op.String())
	switch o.op {
	case OpZeroExtend, OpSignExtend, OpLoad:
		fmt.Fprintf(&b, " %d", o.width)
	case OpExtract:
		fmt.Fprintf(&b, " %d %d", o.width, o.low)
	}
	for _, x := range o.operands {
		b.WriteString(" ")
		b.WriteString(x.String())
	}
	b.WriteString(")")
	return b.String()
}

func (*Operation) expression() {}

// Validate checks the operands first, then the signature of o.
func (o *Operation) Validate() error {
	for _, x := range o.operands {
		if err := x.Validate(); err != nil {
			return err
		}
	}
	return o.checkSignature()
}

func (o *Operation) expect(i int, sort Sort) error {
	if got := o.operands[i].Sort(); got != sort {
		return Errorf(SortMismatch, o, "operand %d of %s is %s, expected %s",
			i, o.op, got.Describe(), sort.Describe())
	}
	return nil
}

func (o *Operation) expectBitVector(i int) error {
	if got := o.operands[i].Sort(); !got.IsBitVector() {
		return Errorf(SortMismatch, o, "operand %d of %s is %s, expected a bit-vector",
			i, o.op, got.Describe())
	}
	return nil
}

func (o *Operation) expectArity(n int) error {
	if len(o.operands) != n {
		return Errorf(SortMismatch, o, "%s takes %d operands, got %d", o.op, n, len(o.operands))
	}
	return nil
}

func (o *Operation) checkSignature() error {
	switch {
	case o.op == OpNot:
		if err := o.expectArity(1); err != nil {
			return err
		}
		return o.expect(0, BoolSort())
	case o.op == OpAnd || o.op == OpOr:
		if len(o.operands) < 2 {
			return Errorf(SortMismatch, o, "%s takes at least 2 operands", o.op)
		}
		for i := range o.operands {
			if err := o.expect(i, BoolSort()); err != nil {
				return err
			}
		}
		return nil
	case o.op.IsBoolean():
		if err := o.expectArity(2); err != nil {
			return err
		}
		if err := o.expect(0, BoolSort()); err != nil {
			return err
		}
		return o.expect(1, BoolSort())
	case o.op == OpIte:
		if err := o.expectArity(3); err != nil {
			return err
		}
		if err := o.expect(0, BoolSort()); err != nil {
			return err
		}
		return o.expect(2, o.operands[1].Sort())
	case o.op == OpEqual || o.op == OpUnequal:
		if err := o.expectArity(2); err != nil {
			return err
		}
		if o.operands[0].Sort().IsMemory() {
			return Errorf(SortMismatch, o, "%s is not defined on Memory", o.op)
		}
		return o.expect(1, o.operands[0].Sort())
	case o.op == OpBVNot || o.op == OpBVNeg:
		if err := o.expectArity(1); err != nil {
			return err
		}
		return o.expectBitVector(0)
	case o.op >= OpBVAdd && o.op <= OpBVSGe:
		if err := o.expectArity(2); err != nil {
			return err
		}
		if err := o.expectBitVector(0); err != nil {
			return err
		}
		return o.expect(1, o.operands[0].Sort())
	case o.op == OpZeroExtend || o.op == OpSignExtend:
		if err := o.expectArity(1); err != nil {
			return err
		}
		if err := o.expectBitVector(0); err != nil {
			return err
		}
		if w := o.operands[0].Sort().Width(); w > o.width {
			return Errorf(SortMismatch, o, "cannot extend BitVec<%d> to BitVec<%d>", w, o.width)
		}
		return nil
	case o.op == OpExtract:
		if err := o.expectArity(1); err != nil {
			return err
		}
		if err := o.expectBitVector(0); err != nil {
			return err
		}
		if w := o.operands[0].Sort().Width(); o.width >= w {
			return Errorf(SortMismatch, o, "bit %d is out of range of BitVec<%d>", o.width, w)
		}
		return nil
	case o.op == OpConcat:
		if err := o.expectArity(2); err != nil {
			return err
		}
		if err := o.expectBitVector(0); err != nil {
			return err
		}
		if err := o.expectBitVector(1); err != nil {
			return err
		}
		if o.operands[0].Sort().Width()+o.operands[1].Sort().Width() > MaxWidth {
			return Errorf(SortMismatch, o, "concatenation exceeds %d bits", MaxWidth)
		}
		return nil
	case o.op == OpLoad:
		if err := o.expectArity(2); err != nil {
			return err
		}
		if err := o.expect(0, MemorySort()); err != nil {
			return err
		}
		return o.expectBitVector(1)
	case o.op == OpStore:
		if err := o.expectArity(3); err != nil {
			return err
		}
		if err := o.expect(0, MemorySort()); err != nil {
			return err
		}
		if err := o.expectBitVector(1); err != nil {
			return err
		}
		return o.expectBitVector(2)
	}
	return Errorf(SortMismatch, o, "unknown operator %s", o.op)
}

// Not returns (not x).
func Not(x Expression) Expression { return newOperation(OpNot, 0, 0, x) }

// Imply returns (=> x y).
func Imply(x, y Expression) Expression { return newOperation(OpImply, 0, 0, x, y) }

// And returns the conjunction of xs. And of a single expression is the expression itself
// and And of none is True.
func And(xs ...Expression) Expression {
	switch len(xs) {
	case 0:
		return True
	case 1:
		return xs[0]
	}
	return newOperation(OpAnd, 0, 0, xs...)
}

// Or returns the disjunction of xs. Or of none is False.
func Or(xs ...Expression) Expression {
	switch len(xs) {
	case 0:
		return False
	case 1:
		return xs[0]
	}
	return newOperation(OpOr, 0, 0, xs...)
}

// Xor returns (xor x y).
func Xor(x, y Expression) Expression { return newOperation(OpXor, 0, 0, x, y) }

// Ite returns (ite cond then els).
func Ite(cond, then, els Expression) Expression { return newOperation(OpIte, 0, 0, cond, then, els) }

// Eq returns (= x y).
func Eq(x, y Expression) Expression { return newOperation(OpEqual, 0, 0, x, y) }

// Neq returns (!= x y).
func Neq(x, y Expression) Expression { return newOperation(OpUnequal, 0, 0, x, y) }

// BinaryBV applies a binary bit-vector operator.
func BinaryBV(op Operator, x, y Expression) Expression {
	if op < OpBVAdd || op > OpBVSGe || op == OpBVNot || op == OpBVNeg {
		panic(fmt.Sprintf("ir: %s is not a binary bit-vector operator", op))
	}
	return newOperation(op, 0, 0, x, y)
}

// Add returns (bvadd x y).
func Add(x, y Expression) Expression { return BinaryBV(OpBVAdd, x, y) }

// Sub returns (bvsub x y).
func Sub(x, y Expression) Expression { return BinaryBV(OpBVSub, x, y) }

// Mul returns (bvmul x y).
func Mul(x, y Expression) Expression { return BinaryBV(OpBVMul, x, y) }

// UDiv returns (bvudiv x y).
func UDiv(x, y Expression) Expression { return BinaryBV(OpBVUDiv, x, y) }

// URem returns (bvurem x y).
func URem(x, y Expression) Expression { return BinaryBV(OpBVURem, x, y) }

// BVAnd returns (bvand x y).
func BVAnd(x, y Expression) Expression { return BinaryBV(OpBVAnd, x, y) }

// BVOr returns (bvor x y).
func BVOr(x, y Expression) Expression { return BinaryBV(OpBVOr, x, y) }

// BVXor returns (bvxor x y).
func BVXor(x, y Expression) Expression { return BinaryBV(OpBVXor, x, y) }

// BVNot returns (bvnot x).
func BVNot(x Expression) Expression { return newOperation(OpBVNot, 0, 0, x) }

// Neg returns (bvneg x).
func Neg(x Expression) Expression { return newOperation(OpBVNeg, 0, 0, x) }

// Shl returns (bvshl x y).
func Shl(x, y Expression) Expression { return BinaryBV(OpBVShl, x, y) }

// LShr returns (bvlshr x y).
func LShr(x, y Expression) Expression { return BinaryBV(OpBVLShr, x, y) }

// AShr returns (bvashr x y).
func AShr(x, y Expression) Expression { return BinaryBV(OpBVAShr, x, y) }

// ULt returns (bvult x y).
func ULt(x, y Expression) Expression { return BinaryBV(OpBVULt, x, y) }

// ULe returns (bvule x y).
func ULe(x, y Expression) Expression { return BinaryBV(OpBVULe, x, y) }

// SLt returns (bvslt x y).
func SLt(x, y Expression) Expression { return BinaryBV(OpBVSLt, x, y) }

// ZeroExtend returns x zero-extended to width bits.
func ZeroExtend(width uint, x Expression) Expression {
	BitVectorSort(width)
	return newOperation(OpZeroExtend, width, 0, x)
}

// SignExtend returns x sign-extended to width bits.
func SignExtend(width uint, x Expression) Expression {
	BitVectorSort(width)
	return newOperation(OpSignExtend, width, 0, x)
}

// Extract returns bits hi down to lo of x. It panics if hi < lo.
func Extract(hi, lo uint, x Expression) Expression {
	if hi < lo {
		panic(fmt.Sprintf("ir: extract %d %d has a negative width", hi, lo))
	}
	BitVectorSort(hi - lo + 1)
	return newOperation(OpExtract, hi, lo, x)
}

// Concat returns the concatenation of x (high bits) and y (low bits).
func Concat(x, y Expression) Expression { return newOperation(OpConcat, 0, 0, x, y) }

// Load returns the width-bit value read from mem at addr.
func Load(mem, addr Expression, width uint) Expression {
	BitVectorSort(width)
	return newOperation(OpLoad, width, 0, mem, addr)
}

// Store returns mem updated with value at addr.
func Store(mem, addr, value Expression) Expression {
	return newOperation(OpStore, 0, 0, mem, addr, value)
}

// Resize zero-extends or truncates x to width bits.
func Resize(width uint, x Expression) Expression {
	w := x.Sort().Width()
	switch {
	case w == width:
		return x
	case w < width:
		return ZeroExtend(width, x)
	}
	return Extract(width-1, 0, x)
}

// BoolToBitVector returns (ite x 1 0) of the given width.
func BoolToBitVector(width uint, x Expression) Expression {
	return Ite(x, BitVector64(1, width), BitVector64(0, width))
}

// BitVectorToBool returns (!= x 0).
func BitVectorToBool(x Expression) Expression {
	return Neq(x, ZeroConst(x.Sort()))
}

// Rebuild returns an operation with o's operator and parameters over new operands.
func (o *Operation) Rebuild(operands []Expression) *Operation {
	return newOperation(o.op, o.width, o.low, operands...)
}

// Identical reports whether x and y are structurally equal.
func Identical(x, y Expression) bool {
	if x.Hash() != y.Hash() {
		return false
	}
	switch x := x.(type) {
	case Constant:
		y, ok := y.(Constant)
		return ok && x == y
	case Variable:
		y, ok := y.(Variable)
		return ok && x == y
	case *Operation:
		y, ok := y.(*Operation)
		if !ok || x.op != y.op || x.width != y.width || x.low != y.low || len(x.operands) != len(y.operands) {
			return false
		}
		for i := range x.operands {
			if !Identical(x.operands[i], y.operands[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Variables returns the free variables of e in order of first occurrence.
func Variables(e Expression) []Variable {
	var vars []Variable
	seen := make(map[Variable]struct{})
	var walk func(Expression)
	walk = func(e Expression) {
		switch e := e.(type) {
		case Variable:
			if _, ok := seen[e]; !ok {
				seen[e] = struct{}{}
				vars = append(vars, e)
			}
		default:
			for _, x := range e.Operands() {
				walk(x)
			}
		}
	}
	walk(e)
	return vars
}

// Substitute replaces the variables of e for which f returns true.
// Subtrees without replaced variables are shared with e.
func Substitute(e Expression, f func(Variable) (Expression, bool)) Expression {
	switch e := e.(type) {
	case Variable:
		if x, ok := f(e); ok {
			return x
		}
		return e
	case *Operation:
		var operands []Expression
		for i, x := range e.operands {
			y := Substitute(x, f)
			if operands == nil && y != x {
				operands = make([]Expression, len(e.operands))
				copy(operands, e.operands[:i])
			}
			if operands != nil {
				operands[i] = y
			}
		}
		if operands == nil {
			return e
		}
		return e.Rebuild(operands)
	}
	return e
}
