package cex

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ajalab/leakcheck/arch"
	"github.com/ajalab/leakcheck/ir"
	"github.com/ajalab/leakcheck/solver"
	"github.com/ajalab/leakcheck/trace"
)

var (
	x    = ir.BoolVar("x")
	v    = ir.BitVectorVar("v", 8)
	mem  = ir.MemoryVar("mem")
	addr = ir.BitVector64(0x40, 64)
)

func leakProgram() *ir.Program {
	g := ir.NewBlockGraph()
	g.AddNode(ir.NewBlock("entry"))
	g.AddNode(ir.NewBlock("leak", ir.NewLoad(v, addr)))
	g.AddNode(ir.NewBlock("safe", ir.NewSkip()))
	g.AddNode(ir.NewBlock("exit"))
	g.AddNode(ir.NewBlock("dead", ir.NewSkip()))
	g.InsertEdge(0, 1, x)
	g.InsertEdge(0, 2, ir.Not(x))
	g.InsertEdge(1, 3, nil)
	g.InsertEdge(2, 3, nil)
	g.InsertEdge(4, 3, nil)
	g.SetEntry(0)
	g.SetExit(3)
	return ir.NewProgram("leak", g)
}

func guarded(head, tail int, cond ir.Expression) ir.GuardedEdge {
	return ir.GuardedEdge{Edge: ir.Edge{Head: head, Tail: tail}, Condition: cond}
}

func executions() (Execution, Execution) {
	ma := solver.NewModel()
	ma.Set("x", ir.True)
	ma.SetMemory("mem", 0x40, ir.BitVector64(7, 8))
	ta := trace.NewTrace(0, []ir.GuardedEdge{guarded(0, 1, x), guarded(1, 3, nil)}, true)
	ta.AddSpeculation(trace.NewSpeculation(guarded(0, 2, ir.Not(x)), 1))
	ca := arch.NewCache(1, 1, 64, arch.LRU)
	ca.Read(0x40)
	a := Execution{
		Trace: ta,
		Model: ma,
		Cache: ca,
		Events: []Event{
			EffectEvent(2, 0, NewCacheFetch(0x80, 8).Transient()),
			EffectEvent(0, -1, NewBranchCondition(0, true)),
			EffectEvent(0, -1, NewBranchTarget(0, 1)),
			EffectEvent(1, 0, NewCacheFetch(0x40, 8)),
			AssignmentEvent(1, 0, v, ir.Load(mem, addr, 8), false),
		},
	}

	mb := solver.NewModel()
	mb.Set("x", ir.False)
	b := Execution{
		Trace: trace.NewTrace(0, []ir.GuardedEdge{guarded(0, 2, ir.Not(x)), guarded(2, 3, nil)}, true),
		Model: mb,
		Cache: arch.NewCache(1, 1, 64, arch.LRU),
		Events: []Event{
			EffectEvent(0, -1, NewBranchCondition(0, false)),
		},
	}
	return a, b
}

func build(t *testing.T) *CounterExample {
	t.Helper()
	a, b := executions()
	obs := arch.NewCache(1, 1, 64, arch.LRU)
	obs.Read(0x40)
	f := Fork{Block: 0, Guard: x, Step: 0, Observations: [2]arch.Observation{obs.Observation(), {}}}
	ce, err := NewBuilder(leakProgram()).Build(f, a, b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ce
}

func TestBuild(t *testing.T) {
	ce := build(t)
	if ce.ID() == uuid.Nil {
		t.Error("expected a fresh identifier")
	}

	s := ce.String()
	for _, want := range []string{
		"[ Block: 0x1 leak ]\nv:BitVec<8> := load 0x40:BitVec<64>\n - A@ v = 0x7:BitVec<8>\n - A# cache_fetch(0x40, 8)\n",
		" - A# branch_condition(0x0, true)\n - A# branch_target(0x0, 0x1)\n - B# branch_condition(0x0, false)\n",
		" - A# transient cache_fetch(0x80, 8)\n",
		"edge (0x0->0x1) [x:Bool] A\n",
		"edge (0x0->0x2) [(not x:Bool)] A(transient) B\n",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in\n%s", want, s)
		}
	}

	cfg := ce.MutableControlFlowGraph()
	if _, ok := cfg.Block(4); ok {
		t.Error("a block no composition went through must be simplified away")
	}
	blk, _ := cfg.Block(2)
	if !blk.Annotation(A).Transient || blk.Annotation(A).Executed || !blk.Annotation(B).Executed {
		t.Errorf("unexpected annotations of block 2: %+v %+v", *blk.Annotation(A), *blk.Annotation(B))
	}
	if blk.IsTransient() {
		t.Error("a block executed by B is not transient")
	}
}

func TestControlFlowGraphIsCopied(t *testing.T) {
	ce := build(t)
	cfg := ce.ControlFlowGraph()
	blk, _ := cfg.Block(1)
	blk.Annotation(B).Executed = true
	ai, _ := blk.Instruction(0)
	ai.MutableAnnotation(B).Effects = append(ai.MutableAnnotation(B).Effects, NewCacheFlush())

	orig, _ := ce.MutableControlFlowGraph().Block(1)
	if orig.Annotation(B).Executed {
		t.Error("the copy shares block annotations")
	}
	if ai, _ := orig.Instruction(0); func() bool { _, ok := ai.Annotation(B); return ok }() {
		t.Error("the copy shares instruction annotations")
	}
}

func TestDOT(t *testing.T) {
	ce := build(t)
	s := ce.DOT().String()
	for _, want := range []string{A.Color(), B.Color(), "leak", "counterexample " + ce.ID().String(), "8.5"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in the DOT output", want)
		}
	}
	var buf bytes.Buffer
	if err := ce.Render(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != s {
		t.Error("Render must write the DOT output")
	}
}

func TestDescribe(t *testing.T) {
	s := build(t).Describe()
	for _, want := range []string{
		"fork at block 0x0 on x:Bool, 0 steps later",
		"A: 0x0 -> 0x1 -> 0x3",
		"A  x = $true:Bool",
		"A  observed {0x40}",
		"B: 0x0 -> 0x2 -> 0x3",
		"B  final cache {}",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in\n%s", want, s)
		}
	}
}

func TestBuildRejectsForeignEvents(t *testing.T) {
	a, b := executions()
	a.Events = append(a.Events, EffectEvent(1, 5, NewCacheFlush()))
	if _, err := NewBuilder(leakProgram()).Build(Fork{}, a, b); err == nil {
		t.Error("expected an error for an instruction outside the block")
	}
}

func TestEffectString(t *testing.T) {
	testCases := []struct {
		e   Effect
		str string
	}{
		{NewCacheFetch(0x40, 64), "cache_fetch(0x40, 64)"},
		{NewCacheFlush(), "cache_flush"},
		{NewBranchCondition(0x10, false), "branch_condition(0x10, false)"},
		{NewBranchTarget(0x10, 0x2).Transient(), "transient branch_target(0x10, 0x2)"},
	}
	for _, tc := range testCases {
		if s := tc.e.String(); s != tc.str {
			t.Errorf("expected %q, actual %q", tc.str, s)
		}
	}
}
