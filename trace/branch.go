package trace

import (
	"fmt"

	"github.com/ajalab/leakcheck/ir"
)

// Branch represents a branching edge that appeared in a trace with some additional information.
// This includes mispredicted branches entered speculatively as well as ordinary conditional edges.
type Branch interface {
	// Edge returns the edge taken at the branch.
	Edge() ir.GuardedEdge
}

// If contains a conditional edge and the direction of its condition on the trace.
type If struct {
	edge      ir.GuardedEdge
	Direction bool
}

// NewIf returns the branch taking e. A guard of the form (not c) is
// recorded as c taken in the false direction.
func NewIf(e ir.GuardedEdge) *If {
	b := &If{edge: e, Direction: true}
	if o, ok := e.Condition.(*ir.Operation); ok && o.Operator() == ir.OpNot {
		b.Direction = false
	}
	return b
}

// Edge returns the edge taken at the branch.
func (b *If) Edge() ir.GuardedEdge {
	return b.edge
}

// Cond returns the condition of the branch, without the negation of the false direction.
func (b *If) Cond() ir.Expression {
	if !b.Direction {
		return b.edge.Condition.(*ir.Operation).Operand(0)
	}
	return b.edge.Condition
}

func (b *If) String() string {
	return fmt.Sprintf("if %s %v %s", b.Cond(), b.Direction, b.edge.Edge)
}

// Speculation represents a mispredicted branch whose edge was executed speculatively.
type Speculation struct {
	edge ir.GuardedEdge
	// Steps is the number of instructions executed before the speculation was squashed.
	Steps int
}

// NewSpeculation returns a speculative branch along e.
func NewSpeculation(e ir.GuardedEdge, steps int) *Speculation {
	return &Speculation{edge: e, Steps: steps}
}

// Edge returns the edge entered speculatively.
func (s *Speculation) Edge() ir.GuardedEdge {
	return s.edge
}

func (s *Speculation) String() string {
	return fmt.Sprintf("speculate %s for %d steps", s.edge.Edge, s.Steps)
}
