package pass

import (
	"github.com/ajalab/leakcheck/ir"
)

// DeadCodeElimination removes assignments to variables that nothing reads.
// Loads are kept for their cache effects even when their value is unused.
type DeadCodeElimination struct {
	Removed int
}

// Name returns the name of the pass.
func (dce *DeadCodeElimination) Name() string {
	return "dead-code-elimination"
}

// Description returns a description of the pass.
func (dce *DeadCodeElimination) Description() string {
	return "removes assignments whose variable is never read"
}

// Transform removes the dead assignments of p until none is left.
func (dce *DeadCodeElimination) Transform(p *ir.Program) error {
	dce.Removed = 0
	g := p.Graph()
	for {
		used := usedVariables(g)
		removed := 0
		for _, n := range g.Nodes() {
			b := g.MustNode(n)
			var instrs []ir.Instruction
			for _, instr := range b.Instructions() {
				if instr.Kind == ir.Assign && !used[instr.Variable] {
					removed++
					continue
				}
				instrs = append(instrs, instr)
			}
			if removed > 0 {
				b.SetInstructions(instrs)
			}
		}
		if removed == 0 {
			return nil
		}
		dce.Removed += removed
	}
}

func usedVariables(g *ir.BlockGraph) map[ir.Variable]bool {
	used := make(map[ir.Variable]bool)
	mark := func(e ir.Expression) {
		for _, v := range ir.Variables(e) {
			used[v] = true
		}
	}
	for _, n := range g.Nodes() {
		for _, instr := range g.MustNode(n).Instructions() {
			for _, e := range instr.Expressions() {
				mark(e)
			}
		}
	}
	for _, e := range g.Edges() {
		if e.Condition != nil {
			mark(e.Condition)
		}
	}
	return used
}
