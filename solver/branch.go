package solver

import (
	"fmt"

	"github.com/ajalab/leakcheck/ir"
)

// Branch is a guarded edge taken by an execution path together with the direction of the guard.
type Branch struct {
	Edge      ir.Edge
	Condition ir.Expression
	// Direction is false when the path took the edge because Condition is false.
	Direction bool
	Location  uint64
}

// Predicate returns the condition that holds on the path.
func (b Branch) Predicate() ir.Expression {
	if b.Direction {
		return b.Condition
	}
	return ir.Not(b.Condition)
}

func (b Branch) String() string {
	return fmt.Sprintf("%s %s", b.Edge, b.Predicate())
}

// PathCondition is the ordered list of predicates collected along a path:
// assumptions and branch predicates.
type PathCondition struct {
	predicates []ir.Expression
	branches   []Branch
	// at[i] is the position of the predicate of branches[i].
	at []int
}

// Assume appends an assumption.
func (pc *PathCondition) Assume(e ir.Expression) {
	pc.predicates = append(pc.predicates, e)
}

// AddBranch appends the predicate of b.
func (pc *PathCondition) AddBranch(b Branch) {
	pc.at = append(pc.at, len(pc.predicates))
	pc.branches = append(pc.branches, b)
	pc.predicates = append(pc.predicates, b.Predicate())
}

// NumBranches returns the number of branches.
func (pc *PathCondition) NumBranches() int {
	return len(pc.branches)
}

// Branch returns the i-th branch.
func (pc *PathCondition) Branch(i int) Branch {
	return pc.branches[i]
}

// Assertions returns all predicates.
func (pc *PathCondition) Assertions() []ir.Expression {
	as := make([]ir.Expression, len(pc.predicates))
	copy(as, pc.predicates)
	return as
}

// Conjunction returns the predicates before the negate-th branch followed by the
// negated predicate of that branch.
func (pc *PathCondition) Conjunction(negate int) []ir.Expression {
	pos := pc.at[negate]
	as := make([]ir.Expression, pos, pos+1)
	copy(as, pc.predicates[:pos])
	return append(as, ir.Not(pc.branches[negate].Predicate()))
}

// Clone returns an independent copy of pc.
func (pc *PathCondition) Clone() *PathCondition {
	c := &PathCondition{
		predicates: make([]ir.Expression, len(pc.predicates)),
		branches:   make([]Branch, len(pc.branches)),
		at:         make([]int, len(pc.at)),
	}
	copy(c.predicates, pc.predicates)
	copy(c.branches, pc.branches)
	copy(c.at, pc.at)
	return c
}
