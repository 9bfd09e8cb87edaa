// Package trace records the blocks and branches visited by an execution path.
package trace

import (
	"fmt"
	"strings"

	"github.com/ajalab/leakcheck/ir"
)

// Trace is a sequence of blocks executed along a control-flow path.
type Trace struct {
	blocks     []int
	edges      []ir.GuardedEdge
	branches   []Branch
	isComplete bool
}

// NewTrace creates a new Trace from the edges taken from the entry block.
// A trace is complete if it reached the exit block.
func NewTrace(entry int, edges []ir.GuardedEdge, isComplete bool) *Trace {
	blocks := []int{entry}
	var branches []Branch
	for _, e := range edges {
		blocks = append(blocks, e.Tail)
		if e.Condition != nil {
			branches = append(branches, NewIf(e))
		}
	}
	return &Trace{
		blocks:     blocks,
		edges:      edges,
		branches:   branches,
		isComplete: isComplete,
	}
}

// AddSpeculation records a speculative branch.
func (t *Trace) AddSpeculation(s *Speculation) {
	t.branches = append(t.branches, s)
}

// Blocks returns a sequence of recorded blocks.
func (t *Trace) Blocks() []int {
	return t.blocks
}

// Edges returns a sequence of taken edges.
func (t *Trace) Edges() []ir.GuardedEdge {
	return t.edges
}

// Branches returns a sequence of branches.
func (t *Trace) Branches() []Branch {
	return t.branches
}

// Ifs returns the conditional branches in order.
func (t *Trace) Ifs() []*If {
	var ifs []*If
	for _, b := range t.branches {
		if b, ok := b.(*If); ok {
			ifs = append(ifs, b)
		}
	}
	return ifs
}

// IsComplete returns true if the trace reached the exit block.
func (t *Trace) IsComplete() bool {
	return t.isComplete
}

// NumBranches returns the number of branches.
func (t *Trace) NumBranches() int {
	return len(t.branches)
}

// CommonPrefix returns the number of leading blocks shared by a and b.
func CommonPrefix(a, b *Trace) int {
	n := 0
	for n < len(a.blocks) && n < len(b.blocks) && a.blocks[n] == b.blocks[n] {
		n++
	}
	return n
}

func (t *Trace) String() string {
	parts := make([]string, len(t.blocks))
	for i, b := range t.blocks {
		parts[i] = fmt.Sprintf("0x%X", b)
	}
	s := strings.Join(parts, " -> ")
	if !t.isComplete {
		s += " ..."
	}
	return s
}
