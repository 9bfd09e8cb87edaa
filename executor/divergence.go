package executor

import (
	"github.com/ajalab/leakcheck/ir"
	"github.com/ajalab/leakcheck/trace"
)

// Divergence is a pair of paths whose observations differ after they forked
// at a conditional branch. A speculative divergence pairs a path with its own
// architectural execution: A is the path with speculation and B is the same
// path without it.
type Divergence struct {
	A, B        *PathResult
	Speculative bool
	// Fork is the trace position of the block the paths branch out of.
	Fork  int
	Block int
	// Guard is the branch condition over the inputs, without the direction.
	Guard ir.Expression
	// Step is the number of steps after the fork at which the observations differ.
	Step         int
	Observations [2]Step
	// Addresses are the symbolic addresses accessed speculatively. They are
	// only set on speculative divergences.
	Addresses []ir.Expression
}

// LeakPredicate decides whether a divergence is a leak.
type LeakPredicate func(p *ir.Program, d *Divergence) bool

// DependsOnSecret accepts divergences whose fork guard, or one of whose
// transient addresses, reads a secret input. Every variable is secret when
// p declares none. A load of a secret memory at a concrete address reads a
// secret only if the memory policy of p classifies that cell as secret.
func DependsOnSecret(p *ir.Program, d *Divergence) bool {
	if readsSecret(p, d.Guard) {
		return true
	}
	for _, a := range d.Addresses {
		if readsSecret(p, a) {
			return true
		}
	}
	return false
}

func readsSecret(p *ir.Program, e ir.Expression) bool {
	switch x := e.(type) {
	case ir.Variable:
		return len(p.Secrets()) == 0 || p.IsSecret(x.Name())
	case *ir.Operation:
		if x.Operator() == ir.OpLoad {
			_, base := x.Operand(0).(ir.Variable)
			if addr, ok := x.Operand(1).(ir.Constant); ok && base {
				return readsSecret(p, x.Operand(0)) && p.MemoryPolicy().IsSecret(addr.Uint64())
			}
		}
		for _, o := range x.Operands() {
			if readsSecret(p, o) {
				return true
			}
		}
	}
	return false
}

// Always accepts every divergence.
func Always(*ir.Program, *Divergence) bool {
	return true
}

type forkKey struct {
	block, a, b int
}

// diverge compares a and b after their fork. It returns nil when the paths
// do not fork at a conditional branch or observe the same states.
func (e *Executor) diverge(a, b *PathResult) *Divergence {
	f := trace.CommonPrefix(a.Trace, b.Trace)
	if f == 0 || f >= len(a.Trace.Blocks()) || f >= len(b.Trace.Blocks()) {
		return nil
	}
	ea, eb := a.Trace.Edges()[f-1], b.Trace.Edges()[f-1]
	if ea.Condition == nil || eb.Condition == nil {
		return nil
	}

	sa, sb := a.stepsFrom(f), b.stepsFrom(f)
	n := len(a.Steps) - sa
	if m := len(b.Steps) - sb; m > n {
		n = m
	}
	if n == 0 {
		return nil
	}
	first := 0
	if e.options.Observe == ObserveFinal {
		first = n - 1
	}
	for k := first; k < n; k++ {
		oa, ob := a.stepAt(sa+k), b.stepAt(sb+k)
		if e.options.Check.differs(oa, ob) {
			return &Divergence{
				A:            a,
				B:            b,
				Fork:         f - 1,
				Block:        a.Trace.Blocks()[f-1],
				Guard:        guardAt(a, f-1),
				Step:         k,
				Observations: [2]Step{oa, ob},
			}
		}
	}
	return nil
}

// guardAt returns the condition of the branch taken at trace position pos.
func guardAt(r *PathResult, pos int) ir.Expression {
	i := 0
	for _, e := range r.Trace.Edges()[:pos] {
		if e.Condition != nil {
			i++
		}
	}
	return r.Condition.Branch(i).Condition
}

// speculate compares r with its own execution stripped of speculation. The
// divergence is located at the first mispredicted branch whose transient
// accesses are visible.
func (e *Executor) speculate(r *PathResult) *Divergence {
	if e.options.Check == CheckNormal {
		return nil
	}
	for i, s := range r.Steps {
		if !s.Speculative || s.Observation.Equal(s.Architectural) {
			continue
		}
		f := s.Pos - 1
		if f < 0 || f >= len(r.Trace.Edges()) || r.Trace.Edges()[f].Condition == nil {
			return nil
		}
		k := i - r.stepsFrom(s.Pos)
		return &Divergence{
			A:            r,
			B:            r,
			Speculative:  true,
			Fork:         f,
			Block:        r.Trace.Blocks()[f],
			Guard:        guardAt(r, f),
			Step:         k,
			Observations: [2]Step{s, {Pos: s.Pos, Observation: s.Architectural, Architectural: s.Architectural}},
			Addresses:    r.TransientAddresses,
		}
	}
	return nil
}
