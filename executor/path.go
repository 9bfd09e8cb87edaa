package executor

import (
	"github.com/ajalab/leakcheck/ir"
)

// path is a control-flow path selected for execution.
type path struct {
	edges    []ir.GuardedEdge
	complete bool
	// cut lists the successors of the last block that were not followed
	// because of the unwind bound.
	cut []ir.GuardedEdge
}

// enumerate lists the paths from the entry in depth-first order. A block may
// appear at most unwind times on a path; successors beyond that bound are
// not followed. A block left with no successor to follow ends a path. Under
// UnwindAssertion, a block with some successors beyond the bound also ends a
// path of its own so that the unwinding assertion is checked there. The
// second result reports whether maxPaths cut the enumeration.
func enumerate(g *ir.BlockGraph, unwind, maxLength, maxPaths int, guard UnwindingGuard) ([]path, bool) {
	entry, ok := g.Entry()
	if !ok {
		return nil, false
	}
	exit, hasExit := g.Exit()

	var (
		paths     []path
		truncated bool
		edges     []ir.GuardedEdge
	)
	visits := map[int]int{entry: 1}
	emit := func(complete bool, cut []ir.GuardedEdge) {
		if len(paths) == maxPaths {
			truncated = true
			return
		}
		es := make([]ir.GuardedEdge, len(edges))
		copy(es, edges)
		paths = append(paths, path{edges: es, complete: complete, cut: cut})
	}

	var walk func(n int)
	walk = func(n int) {
		if truncated {
			return
		}
		out := g.OutgoingEdges(n)
		if (hasExit && n == exit) || len(out) == 0 {
			emit(hasExit && n == exit, nil)
			return
		}
		if len(edges)+1 >= maxLength {
			emit(false, nil)
			return
		}
		var cut []ir.GuardedEdge
		followed := false
		for _, e := range out {
			if visits[e.Tail] >= unwind {
				cut = append(cut, e)
				continue
			}
			followed = true
			visits[e.Tail]++
			edges = append(edges, e)
			walk(e.Tail)
			edges = edges[:len(edges)-1]
			visits[e.Tail]--
			if truncated {
				return
			}
		}
		if !followed || (guard == UnwindAssertion && len(cut) > 0) {
			emit(false, cut)
		}
	}
	walk(entry)
	return paths, truncated
}
