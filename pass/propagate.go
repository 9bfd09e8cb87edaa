package pass

import (
	"github.com/ajalab/leakcheck/ir"
)

// ConstantPropagation replaces the uses of a variable assigned a constant by
// the constant, up to the next assignment of the variable in the same block.
// The guards of the edges leaving a block see the values at its end.
type ConstantPropagation struct {
	// Replaced is the number of uses replaced by the last run.
	Replaced int
}

// Name returns the name of the pass.
func (cp *ConstantPropagation) Name() string {
	return "constant-propagation"
}

// Description returns a description of the pass.
func (cp *ConstantPropagation) Description() string {
	return "replaces variables holding constants by their value"
}

// Transform propagates the constants of p.
func (cp *ConstantPropagation) Transform(p *ir.Program) error {
	cp.Replaced = propagate(p, func(e ir.Expression) bool {
		_, ok := e.(ir.Constant)
		return ok
	})
	return nil
}

// CopyPropagation replaces the uses of a variable assigned another variable
// by that variable, as long as neither is reassigned in the same block.
type CopyPropagation struct {
	Replaced int
}

// Name returns the name of the pass.
func (cp *CopyPropagation) Name() string {
	return "copy-propagation"
}

// Description returns a description of the pass.
func (cp *CopyPropagation) Description() string {
	return "replaces copies of variables by the copied variable"
}

// Transform propagates the copies of p.
func (cp *CopyPropagation) Transform(p *ir.Program) error {
	cp.Replaced = propagate(p, func(e ir.Expression) bool {
		_, ok := e.(ir.Variable)
		return ok
	})
	return nil
}

// bindings maps variables to the constants or variables they hold.
type bindings map[ir.Variable]ir.Expression

// kill forgets v and every binding to v.
func (bs bindings) kill(v ir.Variable) {
	delete(bs, v)
	for k, x := range bs {
		if u, ok := x.(ir.Variable); ok && u == v {
			delete(bs, k)
		}
	}
}

func (bs bindings) substitute(e ir.Expression, replaced *int) ir.Expression {
	if e == nil || len(bs) == 0 {
		return e
	}
	return ir.Substitute(e, func(v ir.Variable) (ir.Expression, bool) {
		x, ok := bs[v]
		if ok {
			*replaced++
		}
		return x, ok
	})
}

// propagate runs a block-local propagation of the assignments whose
// expression satisfies propagated and returns the number of replaced uses.
// Blocks may be entered from several predecessors with different values, so
// nothing flows across block boundaries except into the outgoing guards.
func propagate(p *ir.Program, propagated func(ir.Expression) bool) int {
	g := p.Graph()
	replaced := 0
	final := make(map[int]bindings)
	for _, n := range g.Nodes() {
		b := g.MustNode(n)
		bs := make(bindings)
		instrs := make([]ir.Instruction, len(b.Instructions()))
		for i, instr := range b.Instructions() {
			instr.Expr = bs.substitute(instr.Expr, &replaced)
			instr.Address = bs.substitute(instr.Address, &replaced)
			switch instr.Kind {
			case ir.Assign:
				bs.kill(instr.Variable)
				if propagated(instr.Expr) && !ir.Identical(instr.Expr, instr.Variable) {
					bs[instr.Variable] = instr.Expr
				}
			case ir.LoadInstr:
				bs.kill(instr.Variable)
			}
			instrs[i] = instr
		}
		b.SetInstructions(instrs)
		final[n] = bs
	}

	g.RewriteEdges(func(e ir.GuardedEdge) (ir.Expression, bool) {
		return final[e.Head].substitute(e.Condition, &replaced), true
	})
	return replaced
}
