package pass

import (
	"github.com/ajalab/leakcheck/ir"
)

// ConstantFolding replaces operations over constant operands with their value.
// Ill-typed subtrees are left untouched for validation to report.
type ConstantFolding struct {
	// Folded is the number of operations folded by the last run.
	Folded int
	// Pruned is the number of edges whose guard folded to false.
	Pruned int
}

// Name returns the name of the pass.
func (cf *ConstantFolding) Name() string {
	return "constant-folding"
}

// Description returns a description of the pass.
func (cf *ConstantFolding) Description() string {
	return "evaluates operations whose operands are all constants"
}

// Transform folds every expression of p.
func (cf *ConstantFolding) Transform(p *ir.Program) error {
	cf.Folded, cf.Pruned = 0, 0
	g := p.Graph()
	for _, i := range g.Nodes() {
		b := g.MustNode(i)
		instrs := make([]ir.Instruction, len(b.Instructions()))
		for j, instr := range b.Instructions() {
			if instr.Expr != nil {
				instr.Expr = cf.fold(instr.Expr)
			}
			if instr.Address != nil {
				instr.Address = cf.fold(instr.Address)
			}
			instrs[j] = instr
		}
		b.SetInstructions(instrs)
	}

	g.RewriteEdges(func(e ir.GuardedEdge) (ir.Expression, bool) {
		if e.Condition == nil {
			return nil, true
		}
		cond := cf.fold(e.Condition)
		c, ok := cond.(ir.Constant)
		if !ok || !c.Sort().IsBool() {
			return cond, true
		}
		if !c.Bool() {
			// never taken
			cf.Pruned++
			return nil, false
		}
		return nil, true
	})
	return nil
}

func (cf *ConstantFolding) fold(e ir.Expression) ir.Expression {
	o, ok := e.(*ir.Operation)
	if !ok {
		return e
	}
	operands := make([]ir.Expression, len(o.Operands()))
	changed := false
	constant := true
	for i, x := range o.Operands() {
		operands[i] = cf.fold(x)
		if operands[i] != x {
			changed = true
		}
		if _, ok := operands[i].(ir.Constant); !ok {
			constant = false
		}
	}
	folded := o
	if changed {
		folded = o.Rebuild(operands)
	}
	if folded.Validate() != nil {
		return folded
	}
	switch folded.Operator() {
	case ir.OpLoad, ir.OpStore:
		return folded
	case ir.OpIte:
		if c, ok := operands[0].(ir.Constant); ok {
			cf.Folded++
			if c.Bool() {
				return operands[1]
			}
			return operands[2]
		}
	}
	if !constant {
		return folded
	}
	args := make([]ir.Constant, len(operands))
	for i, x := range operands {
		args[i] = x.(ir.Constant)
	}
	cf.Folded++
	return ir.Apply(folded, args)
}
