package pass

import (
	"github.com/ajalab/leakcheck/ir"
)

// PruneUnreachable removes blocks that are not reachable from the entry.
// The exit block is never removed.
type PruneUnreachable struct {
	Removed []int
}

// Name returns the name of the pass.
func (pu *PruneUnreachable) Name() string {
	return "prune-unreachable"
}

// Description returns a description of the pass.
func (pu *PruneUnreachable) Description() string {
	return "removes blocks unreachable from the entry block"
}

// Transform removes the unreachable blocks of p.
func (pu *PruneUnreachable) Transform(p *ir.Program) error {
	pu.Removed = nil
	g := p.Graph()
	entry, ok := g.Entry()
	if !ok || !g.HasNode(entry) {
		return ir.Errorf(ir.TransformError, nil, "program %s has no entry block", p.Name())
	}
	exit, _ := g.Exit()
	reached := g.Reachable(entry)
	for _, i := range g.Nodes() {
		if reached[i] || i == exit {
			continue
		}
		if err := g.RemoveNode(i); err != nil {
			return err
		}
		pu.Removed = append(pu.Removed, i)
	}
	return nil
}
