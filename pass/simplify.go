package pass

import (
	"github.com/ajalab/leakcheck/ir"
)

// ExpressionSimplification rewrites operations with a neutral or absorbing
// operand, double negations and trivially decided comparisons.
type ExpressionSimplification struct {
	Simplified int
}

// Name returns the name of the pass.
func (es *ExpressionSimplification) Name() string {
	return "expression-simplification"
}

// Description returns a description of the pass.
func (es *ExpressionSimplification) Description() string {
	return "applies algebraic identities to expressions"
}

// Transform simplifies every expression of p.
func (es *ExpressionSimplification) Transform(p *ir.Program) error {
	es.Simplified = 0
	g := p.Graph()
	for _, n := range g.Nodes() {
		b := g.MustNode(n)
		instrs := make([]ir.Instruction, len(b.Instructions()))
		for i, instr := range b.Instructions() {
			if instr.Expr != nil {
				instr.Expr = es.simplify(instr.Expr)
			}
			if instr.Address != nil {
				instr.Address = es.simplify(instr.Address)
			}
			instrs[i] = instr
		}
		b.SetInstructions(instrs)
	}
	g.RewriteEdges(func(e ir.GuardedEdge) (ir.Expression, bool) {
		if e.Condition == nil {
			return nil, true
		}
		return es.simplify(e.Condition), true
	})
	return nil
}

func isConst(e ir.Expression, v uint64) bool {
	c, ok := e.(ir.Constant)
	if !ok {
		return false
	}
	if c.Sort().IsBool() {
		return c.Bool() == (v != 0)
	}
	return ir.Identical(c, ir.BitVector64(v, c.Width()))
}

func (es *ExpressionSimplification) simplify(e ir.Expression) ir.Expression {
	o, ok := e.(*ir.Operation)
	if !ok {
		return e
	}
	operands := make([]ir.Expression, len(o.Operands()))
	changed := false
	for i, x := range o.Operands() {
		operands[i] = es.simplify(x)
		if operands[i] != x {
			changed = true
		}
	}
	if changed {
		o = o.Rebuild(operands)
	}
	if o.Validate() != nil {
		return o
	}
	if r := rewrite(o, operands); r != nil {
		es.Simplified++
		return r
	}
	return o
}

// rewrite returns the simplified form of o, or nil when no identity applies.
func rewrite(o *ir.Operation, xs []ir.Expression) ir.Expression {
	switch o.Operator() {
	case ir.OpBVAdd, ir.OpBVOr, ir.OpBVXor:
		if isConst(xs[1], 0) {
			return xs[0]
		}
		if isConst(xs[0], 0) {
			return xs[1]
		}
	case ir.OpBVSub, ir.OpBVShl, ir.OpBVLShr, ir.OpBVAShr:
		if isConst(xs[1], 0) {
			return xs[0]
		}
	case ir.OpBVMul:
		if isConst(xs[0], 0) || isConst(xs[1], 0) {
			return ir.ZeroConst(o.Sort())
		}
		if isConst(xs[1], 1) {
			return xs[0]
		}
		if isConst(xs[0], 1) {
			return xs[1]
		}
	case ir.OpBVAnd:
		if isConst(xs[0], 0) || isConst(xs[1], 0) {
			return ir.ZeroConst(o.Sort())
		}
	case ir.OpNot, ir.OpBVNot, ir.OpBVNeg:
		if inner, ok := xs[0].(*ir.Operation); ok && inner.Operator() == o.Operator() {
			return inner.Operand(0)
		}
	case ir.OpIte:
		if ir.Identical(xs[1], xs[2]) {
			return xs[1]
		}
	case ir.OpEqual:
		if ir.Identical(xs[0], xs[1]) {
			return ir.True
		}
	case ir.OpUnequal:
		if ir.Identical(xs[0], xs[1]) {
			return ir.False
		}
	case ir.OpAnd, ir.OpOr:
		// true is neutral for and and absorbing for or
		neutral := o.Operator() == ir.OpAnd
		var kept []ir.Expression
		for _, x := range xs {
			switch {
			case isConst(x, 1) && neutral, isConst(x, 0) && !neutral:
			case isConst(x, 0) && neutral:
				return ir.False
			case isConst(x, 1) && !neutral:
				return ir.True
			default:
				kept = append(kept, x)
			}
		}
		if len(kept) == len(xs) {
			return nil
		}
		if neutral {
			return ir.And(kept...)
		}
		return ir.Or(kept...)
	}
	return nil
}

// RedundantInstructionElimination removes skips and assignments of a
// variable to itself.
type RedundantInstructionElimination struct {
	Removed int
}

// Name returns the name of the pass.
func (rie *RedundantInstructionElimination) Name() string {
	return "redundant-instruction-elimination"
}

// Description returns a description of the pass.
func (rie *RedundantInstructionElimination) Description() string {
	return "removes instructions without effect"
}

// Transform removes the redundant instructions of p.
func (rie *RedundantInstructionElimination) Transform(p *ir.Program) error {
	rie.Removed = 0
	g := p.Graph()
	for _, n := range g.Nodes() {
		b := g.MustNode(n)
		var instrs []ir.Instruction
		for _, instr := range b.Instructions() {
			switch {
			case instr.Kind == ir.Skip:
			case instr.Kind == ir.Assign && ir.Identical(instr.Expr, instr.Variable):
			case instr.Kind == ir.Assume && isConst(instr.Expr, 1):
			default:
				instrs = append(instrs, instr)
				continue
			}
			rie.Removed++
		}
		b.SetInstructions(instrs)
	}
	return nil
}
