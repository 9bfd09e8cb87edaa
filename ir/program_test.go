package ir

import (
	"fmt"
	"strings"
	"testing"
)

// twoBlockProgram returns entry -> {leak, safe} -> exit branching on x.
func twoBlockProgram() *Program {
	x := BoolVar("x")
	g := NewBlockGraph()
	entry := g.AddNode(NewBlock("entry"))
	leak := g.AddNode(NewBlock("block_leak", NewAssign(BitVectorVar("r", 64), BitVector64(1, 64))))
	safe := g.AddNode(NewBlock("block_safe"))
	exit := g.AddNode(NewBlock("exit"))
	g.InsertEdge(entry, leak, x)
	g.InsertEdge(entry, safe, Not(x))
	g.InsertEdge(leak, exit, nil)
	g.InsertEdge(safe, exit, nil)
	g.SetEntry(entry)
	g.SetExit(exit)
	return NewProgram("two", g)
}

func TestGraphQueries(t *testing.T) {
	g := twoBlockProgram().Graph()

	if n := len(g.Nodes()); n != 4 {
		t.Fatalf("expected 4 nodes, actual %d", n)
	}
	if s := g.Successors(0); len(s) != 2 || s[0] != 1 || s[1] != 2 {
		t.Errorf("unexpected successors of entry: %v", s)
	}
	if p := g.Predecessors(3); len(p) != 2 || p[0] != 1 || p[1] != 2 {
		t.Errorf("unexpected predecessors of exit: %v", p)
	}
	if !g.HasEdge(0, 1) || g.HasEdge(1, 0) {
		t.Error("HasEdge is wrong")
	}

	if err := g.RemoveNode(2); err != nil {
		t.Fatal(err)
	}
	if g.HasEdge(0, 2) || g.HasEdge(2, 3) {
		t.Error("incident edges of a removed node must be removed")
	}
	if g.NodeCount() != 4 || len(g.Nodes()) != 3 {
		t.Errorf("indices must stay stable after removal: %d slots, %v", g.NodeCount(), g.Nodes())
	}
	if err := g.RemoveNode(2); !IsKind(err, GraphInvariant) {
		t.Errorf("removing a missing node: expected a graph invariant error, got %v", err)
	}
	if err := g.RemoveEdge(0, 1); err != nil {
		t.Fatal(err)
	}
	if err := g.RemoveEdge(0, 1); !IsKind(err, GraphInvariant) {
		t.Errorf("removing a missing edge: expected a graph invariant error, got %v", err)
	}
}

func TestInsertEdgeDuplicates(t *testing.T) {
	x := BoolVar("x")
	g := NewGraph[string]()
	a := g.AddNode("a")
	b := g.AddNode("b")

	if err := g.InsertEdge(a, b, nil); err != nil {
		t.Fatal(err)
	}
	if err := g.InsertEdge(a, b, nil); !IsKind(err, GraphInvariant) {
		t.Fatalf("expected a duplicate edge error, got %v", err)
	}

	// Both directions of a branch to the same block are told apart by their guards.
	h := NewGraph[string]()
	a = h.AddNode("a")
	b = h.AddNode("b")
	if err := h.InsertEdge(a, b, x); err != nil {
		t.Fatal(err)
	}
	if err := h.InsertEdge(a, b, Not(x)); err != nil {
		t.Fatal(err)
	}
	if err := h.InsertEdge(a, b, BoolVar("x")); !IsKind(err, GraphInvariant) {
		t.Fatalf("expected a duplicate edge error, got %v", err)
	}
	if n := len(h.OutgoingEdges(a)); n != 2 {
		t.Errorf("expected 2 outgoing edges, actual %d", n)
	}
	if n := len(h.Successors(a)); n != 1 {
		t.Errorf("expected 1 distinct successor, actual %d", n)
	}
}

func TestGraphValidate(t *testing.T) {
	testCases := []struct {
		build  func() *Graph[int]
		strict bool
		ok     bool
	}{
		{
			build: func() *Graph[int] {
				g := NewGraph[int]()
				g.AddNode(0)
				g.AddNode(1)
				g.InsertEdge(0, 1, nil)
				g.SetEntry(0)
				g.SetExit(1)
				return g
			},
			ok: true,
		},
		{
			// tail index exceeds the node count
			build: func() *Graph[int] {
				g := NewGraph[int]()
				g.AddNode(0)
				g.AddNode(1)
				g.InsertEdge(0, 5, nil)
				g.SetEntry(0)
				g.SetExit(1)
				return g
			},
		},
		{
			build: func() *Graph[int] {
				g := NewGraph[int]()
				g.AddNode(0)
				g.SetExit(0)
				return g
			},
		},
		{
			build: func() *Graph[int] {
				g := NewGraph[int]()
				g.AddNode(0)
				g.SetEntry(0)
				g.SetExit(3)
				return g
			},
		},
		{
			build: func() *Graph[int] {
				g := NewGraph[int]()
				g.AddNode(0)
				g.AddNode(1)
				g.SetEntry(0)
				g.SetExit(0)
				return g
			},
			ok: true,
		},
		{
			build: func() *Graph[int] {
				g := NewGraph[int]()
				g.AddNode(0)
				g.AddNode(1)
				g.SetEntry(0)
				g.SetExit(0)
				return g
			},
			strict: true,
		},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			g := tc.build()
			var err error
			if tc.strict {
				err = g.ValidateStrict()
			} else {
				err = g.Validate()
			}
			if tc.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tc.ok && !IsKind(err, GraphInvariant) {
				t.Fatalf("expected a graph invariant error, got %v", err)
			}
		})
	}
}

func TestProgramValidate(t *testing.T) {
	p := twoBlockProgram()
	before := p.String()
	for i := 0; i < 2; i++ {
		if err := p.Validate(); err != nil {
			t.Fatalf("Validate #%d: %v", i, err)
		}
	}
	if after := p.String(); after != before {
		t.Errorf("Validate modified the program:\n%s\n%s", before, after)
	}
}

func TestProgramValidateSortMismatch(t *testing.T) {
	testCases := []struct {
		mutate func(p *Program)
	}{
		{
			// a non-Boolean guard
			mutate: func(p *Program) {
				p.Graph().RemoveEdge(1, 3)
				p.Graph().InsertEdge(1, 3, BitVectorVar("y", 8))
			},
		},
		{
			// a Boolean-only operator on a bit-vector
			mutate: func(p *Program) {
				p.Graph().RemoveEdge(1, 3)
				p.Graph().InsertEdge(1, 3, Not(BitVectorVar("y", 8)))
			},
		},
		{
			mutate: func(p *Program) {
				b, _ := p.Graph().Block(2)
				b.Append(NewAssign(BoolVar("z"), BitVector64(1, 8)))
			},
		},
		{
			mutate: func(p *Program) {
				b, _ := p.Graph().Block(2)
				b.Append(NewAssume(BitVector64(1, 8)))
			},
		},
		{
			mutate: func(p *Program) {
				b, _ := p.Graph().Block(2)
				b.Append(NewLoad(BitVectorVar("v", 8), True))
			},
		},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			p := twoBlockProgram()
			tc.mutate(p)
			if err := p.Validate(); !IsKind(err, SortMismatch) {
				t.Fatalf("expected a sort mismatch, got %v", err)
			}
		})
	}
}

func TestProgramCloneRestore(t *testing.T) {
	p := twoBlockProgram()
	p.MarkSecret("x")
	snapshot := p.Clone()

	b, _ := p.Graph().Block(1)
	b.Append(NewFlush())
	p.Graph().RemoveNode(2)

	if s, _ := snapshot.Graph().Block(1); len(s.Instructions()) != 1 {
		t.Fatal("the snapshot shares blocks with the program")
	}
	if !snapshot.Graph().HasNode(2) {
		t.Fatal("the snapshot shares nodes with the program")
	}

	p.Restore(snapshot)
	if p.String() != snapshot.String() {
		t.Errorf("restore failed:\n%s\n%s", p, snapshot)
	}
	if !p.IsSecret("x") {
		t.Error("secrets must be restored")
	}
}

func TestBlockGraphString(t *testing.T) {
	s := twoBlockProgram().Graph().String()
	for _, want := range []string{
		"Block 0x0 entry",
		"Block 0x1 block_leak",
		"r:BitVec<64> := 0x1:BitVec<64>",
		"edge (0x0->0x1) [x:Bool]",
		"edge (0x0->0x2) [(not x:Bool)]",
		"edge (0x1->0x3)",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("%q is missing in\n%s", want, s)
		}
	}
}
