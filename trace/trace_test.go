package trace

import (
	"fmt"
	"testing"

	"github.com/ajalab/leakcheck/ir"
)

func edge(head, tail int, cond ir.Expression) ir.GuardedEdge {
	return ir.GuardedEdge{Edge: ir.Edge{Head: head, Tail: tail}, Condition: cond}
}

func TestNewTrace(t *testing.T) {
	x := ir.BoolVar("x")
	testCases := []struct {
		edges      []ir.GuardedEdge
		complete   bool
		blocks     []int
		directions []bool
		str        string
	}{
		{
			edges:      []ir.GuardedEdge{edge(0, 1, x), edge(1, 3, nil)},
			complete:   true,
			blocks:     []int{0, 1, 3},
			directions: []bool{true},
			str:        "0x0 -> 0x1 -> 0x3",
		},
		{
			edges:      []ir.GuardedEdge{edge(0, 2, ir.Not(x))},
			blocks:     []int{0, 2},
			directions: []bool{false},
			str:        "0x0 -> 0x2 ...",
		},
		{
			complete: true,
			blocks:   []int{0},
			str:      "0x0",
		},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			tr := NewTrace(0, tc.edges, tc.complete)
			if fmt.Sprint(tr.Blocks()) != fmt.Sprint(tc.blocks) {
				t.Errorf("expected blocks %v, actual %v", tc.blocks, tr.Blocks())
			}
			ifs := tr.Ifs()
			if len(ifs) != len(tc.directions) {
				t.Fatalf("expected %d branches, actual %d", len(tc.directions), len(ifs))
			}
			for j, b := range ifs {
				if b.Direction != tc.directions[j] {
					t.Errorf("branch %d: expected direction %v", j, tc.directions[j])
				}
				if b.Cond() != ir.Expression(x) {
					t.Errorf("branch %d: expected condition x, actual %s", j, b.Cond())
				}
			}
			if tr.String() != tc.str {
				t.Errorf("expected %q, actual %q", tc.str, tr.String())
			}
		})
	}
}

func TestCommonPrefix(t *testing.T) {
	x := ir.BoolVar("x")
	a := NewTrace(0, []ir.GuardedEdge{edge(0, 1, x), edge(1, 3, nil)}, true)
	b := NewTrace(0, []ir.GuardedEdge{edge(0, 2, ir.Not(x)), edge(2, 3, nil)}, true)
	if n := CommonPrefix(a, b); n != 1 {
		t.Errorf("expected 1, actual %d", n)
	}
	if n := CommonPrefix(a, a); n != 3 {
		t.Errorf("expected 3, actual %d", n)
	}

	a.AddSpeculation(NewSpeculation(edge(0, 2, ir.Not(x)), 4))
	if a.NumBranches() != 2 || len(a.Ifs()) != 1 {
		t.Errorf("unexpected branches %v", a.Branches())
	}
}
