package pass

import (
	"fmt"
	"testing"

	"github.com/ajalab/leakcheck/ir"
)

// program returns entry -> {a, b} -> exit where entry branches on cond.
func program(cond ir.Expression, instrs ...ir.Instruction) *ir.Program {
	g := ir.NewBlockGraph()
	entry := g.AddNode(ir.NewBlock("entry", instrs...))
	a := g.AddNode(ir.NewBlock("a"))
	b := g.AddNode(ir.NewBlock("b"))
	exit := g.AddNode(ir.NewBlock("exit"))
	g.InsertEdge(entry, a, cond)
	g.InsertEdge(entry, b, ir.Not(cond))
	g.InsertEdge(a, exit, nil)
	g.InsertEdge(b, exit, nil)
	g.SetEntry(entry)
	g.SetExit(exit)
	return ir.NewProgram("p", g)
}

func TestConstantFolding(t *testing.T) {
	r := ir.BitVectorVar("r", 8)
	x := ir.BitVectorVar("x", 8)
	testCases := []struct {
		e        ir.Expression
		expected string
	}{
		{ir.Add(ir.BitVector64(1, 8), ir.BitVector64(2, 8)), "0x3:BitVec<8>"},
		{ir.Add(x, ir.Mul(ir.BitVector64(2, 8), ir.BitVector64(3, 8))), "(bvadd x:BitVec<8> 0x6:BitVec<8>)"},
		{ir.Ite(ir.ULt(ir.BitVector64(1, 8), ir.BitVector64(2, 8)), x, ir.BitVector64(0, 8)), "x:BitVec<8>"},
		{x, "x:BitVec<8>"},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			p := program(ir.BoolVar("c"), ir.NewAssign(r, tc.e))
			if err := Run(p, &ConstantFolding{}); err != nil {
				t.Fatal(err)
			}
			b, _ := p.Graph().Block(0)
			if s := b.Instructions()[0].Expr.String(); s != tc.expected {
				t.Errorf("expected %s, actual %s", tc.expected, s)
			}
		})
	}
}

func TestConstantFoldingGuards(t *testing.T) {
	p := program(ir.ULt(ir.BitVector64(1, 8), ir.BitVector64(2, 8)))
	cf := &ConstantFolding{}
	if err := Run(p, cf); err != nil {
		t.Fatal(err)
	}
	g := p.Graph()
	if g.HasEdge(0, 2) {
		t.Error("the edge guarded by a false condition must be removed")
	}
	if !g.HasEdge(0, 1) {
		t.Fatal("the edge guarded by a true condition must be kept")
	}
	if cond := g.OutgoingEdges(0)[0].Condition; cond != nil {
		t.Errorf("expected an unconditional edge, actual %s", cond)
	}
	if cf.Pruned != 1 {
		t.Errorf("expected 1 pruned edge, actual %d", cf.Pruned)
	}
}

func TestConstantFoldingLeavesIllTyped(t *testing.T) {
	bad := ir.Not(ir.Add(ir.BitVector64(1, 8), ir.BitVector64(1, 8)))
	p := program(ir.BoolVar("c"), ir.NewAssume(bad))
	before := p.String()

	err := Run(p, &ConstantFolding{})
	if !ir.IsKind(err, ir.SortMismatch) {
		t.Fatalf("expected a sort mismatch, got %v", err)
	}
	if p.String() != before {
		t.Errorf("the program must be restored:\n%s\n%s", before, p)
	}
}

func TestPruneUnreachable(t *testing.T) {
	p := program(ir.BoolVar("c"))
	g := p.Graph()
	dead := g.AddNode(ir.NewBlock("dead"))
	g.InsertEdge(dead, 3, nil)

	pu := &PruneUnreachable{}
	if err := Run(p, pu); err != nil {
		t.Fatal(err)
	}
	if g.HasNode(dead) || g.HasEdge(dead, 3) {
		t.Error("the unreachable block must be removed with its edges")
	}
	if len(pu.Removed) != 1 || pu.Removed[0] != dead {
		t.Errorf("unexpected removed blocks %v", pu.Removed)
	}
	if err := g.ValidateStrict(); err != nil {
		t.Error(err)
	}
}

func TestPruneUnreachableWithoutEntry(t *testing.T) {
	g := ir.NewBlockGraph()
	g.AddNode(ir.NewBlock("only"))
	g.SetExit(0)
	p := ir.NewProgram("noentry", g)

	if err := Run(p, &PruneUnreachable{}); !ir.IsKind(err, ir.TransformError) {
		t.Fatalf("expected a transform error, got %v", err)
	}
}

type breakingPass struct{}

func (breakingPass) Name() string        { return "breaking" }
func (breakingPass) Description() string { return "inserts a dangling edge" }
func (breakingPass) Transform(p *ir.Program) error {
	return p.Graph().InsertEdge(0, 42, nil)
}

func TestPipelineRestores(t *testing.T) {
	p := program(ir.Eq(ir.BitVector64(1, 8), ir.BitVector64(1, 8)))
	before := p.String()

	pl := NewPipeline(breakingPass{}, &ConstantFolding{})
	err := pl.Run(p)
	if !ir.IsKind(err, ir.GraphInvariant) {
		t.Fatalf("expected a graph invariant error, got %v", err)
	}
	if p.String() != before {
		t.Errorf("the program must be restored:\n%s\n%s", before, p)
	}

	if err := Default().Run(p); err != nil {
		t.Fatal(err)
	}
	if p.Graph().HasNode(2) {
		t.Error("the block behind the false guard must be pruned")
	}
}

func entryInstructions(p *ir.Program) []ir.Instruction {
	b, _ := p.Graph().Block(0)
	return b.Instructions()
}

func TestConstantPropagation(t *testing.T) {
	a := ir.BitVectorVar("a", 8)
	b := ir.BitVectorVar("b", 8)
	x := ir.BitVectorVar("x", 8)
	ptr := ir.BitVectorVar("ptr", 64)
	v := ir.BitVectorVar("v", 8)
	testCases := []struct {
		instrs   []ir.Instruction
		expected ir.Expression
	}{
		{
			[]ir.Instruction{ir.NewAssign(a, ir.BitVector64(3, 8)), ir.NewAssign(b, ir.Add(a, x))},
			ir.Add(ir.BitVector64(3, 8), x),
		},
		{
			[]ir.Instruction{ir.NewAssign(a, ir.BitVector64(3, 8)), ir.NewAssign(a, x), ir.NewAssign(b, a)},
			a,
		},
		{
			[]ir.Instruction{ir.NewAssign(a, ir.BitVector64(3, 8)), ir.NewLoad(a, ir.BitVector64(0x40, 64)), ir.NewAssign(b, a)},
			a,
		},
		{
			[]ir.Instruction{ir.NewAssign(ptr, ir.BitVector64(0x40, 64)), ir.NewLoad(v, ptr)},
			ir.BitVector64(0x40, 64),
		},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			p := program(ir.BoolVar("c"), tc.instrs...)
			if err := Run(p, &ConstantPropagation{}); err != nil {
				t.Fatal(err)
			}
			last := entryInstructions(p)[len(tc.instrs)-1]
			actual := last.Expr
			if last.Kind == ir.LoadInstr {
				actual = last.Address
			}
			if actual.String() != tc.expected.String() {
				t.Errorf("expected %s, actual %s", tc.expected, actual)
			}
		})
	}
}

func TestConstantPropagationGuards(t *testing.T) {
	k := ir.BitVectorVar("k", 8)
	x := ir.BitVectorVar("x", 8)
	p := program(ir.Eq(k, x), ir.NewAssign(k, ir.BitVector64(5, 8)))
	cp := &ConstantPropagation{}
	if err := Run(p, cp); err != nil {
		t.Fatal(err)
	}
	expected := ir.Eq(ir.BitVector64(5, 8), x)
	for _, e := range p.Graph().OutgoingEdges(0) {
		cond := positive(e.Condition)
		if cond.String() != expected.String() {
			t.Errorf("expected a guard over %s, actual %s", expected, e.Condition)
		}
	}
	if cp.Replaced != 2 {
		t.Errorf("expected 2 replaced uses, actual %d", cp.Replaced)
	}
}

// positive strips the negation of a false-direction guard.
func positive(cond ir.Expression) ir.Expression {
	if o, ok := cond.(*ir.Operation); ok && o.Operator() == ir.OpNot {
		return o.Operand(0)
	}
	return cond
}

func TestCopyPropagation(t *testing.T) {
	x := ir.BitVectorVar("x", 8)
	y := ir.BitVectorVar("y", 8)
	z := ir.BitVectorVar("z", 8)
	testCases := []struct {
		instrs   []ir.Instruction
		expected ir.Expression
	}{
		{
			[]ir.Instruction{ir.NewAssign(y, x), ir.NewAssign(z, ir.Add(y, ir.BitVector64(1, 8)))},
			ir.Add(x, ir.BitVector64(1, 8)),
		},
		{
			[]ir.Instruction{ir.NewAssign(y, x), ir.NewAssign(x, ir.BitVector64(3, 8)), ir.NewAssign(z, y)},
			y,
		},
		{
			[]ir.Instruction{ir.NewAssign(y, ir.BitVector64(3, 8)), ir.NewAssign(z, y)},
			y,
		},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			p := program(ir.BoolVar("c"), tc.instrs...)
			if err := Run(p, &CopyPropagation{}); err != nil {
				t.Fatal(err)
			}
			last := entryInstructions(p)[len(tc.instrs)-1]
			if last.Expr.String() != tc.expected.String() {
				t.Errorf("expected %s, actual %s", tc.expected, last.Expr)
			}
		})
	}
}

func TestDeadCodeElimination(t *testing.T) {
	a := ir.BitVectorVar("a", 8)
	b := ir.BitVectorVar("b", 8)
	x := ir.BitVectorVar("x", 8)
	v := ir.BitVectorVar("v", 8)

	p := program(ir.BoolVar("c"),
		ir.NewAssign(a, x),
		ir.NewAssign(b, ir.Add(a, ir.BitVector64(1, 8))),
		ir.NewLoad(v, ir.BitVector64(0x40, 64)),
	)
	dce := &DeadCodeElimination{}
	if err := Run(p, dce); err != nil {
		t.Fatal(err)
	}
	instrs := entryInstructions(p)
	if len(instrs) != 1 || instrs[0].Kind != ir.LoadInstr {
		t.Errorf("only the load must be left, actual %v", instrs)
	}
	if dce.Removed != 2 {
		t.Errorf("expected 2 removed assignments, actual %d", dce.Removed)
	}

	p = program(ir.Eq(a, x), ir.NewAssign(a, ir.BitVector64(1, 8)))
	if err := Run(p, &DeadCodeElimination{}); err != nil {
		t.Fatal(err)
	}
	if len(entryInstructions(p)) != 1 {
		t.Error("an assignment read by a guard must be kept")
	}
}

func TestExpressionSimplification(t *testing.T) {
	x := ir.BitVectorVar("x", 8)
	c := ir.BoolVar("c")
	r := ir.BitVectorVar("r", 8)
	rb := ir.BoolVar("rb")
	zero, one := ir.BitVector64(0, 8), ir.BitVector64(1, 8)
	testCases := []struct {
		r        ir.Variable
		e        ir.Expression
		expected ir.Expression
	}{
		{r, ir.Add(x, zero), x},
		{r, ir.Add(zero, x), x},
		{r, ir.Sub(x, zero), x},
		{r, ir.Mul(x, zero), zero},
		{r, ir.Mul(one, x), x},
		{r, ir.Ite(c, x, x), x},
		{r, ir.Add(ir.Mul(x, one), zero), x},
		{rb, ir.Not(ir.Not(c)), c},
		{rb, ir.Eq(x, x), ir.True},
		{rb, ir.And(c, ir.True), c},
		{rb, ir.And(c, ir.False), ir.False},
		{rb, ir.Or(c, ir.True), ir.True},
		{r, ir.Add(x, one), ir.Add(x, one)},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			p := program(ir.BoolVar("g"), ir.NewAssign(tc.r, tc.e))
			if err := Run(p, &ExpressionSimplification{}); err != nil {
				t.Fatal(err)
			}
			if s := entryInstructions(p)[0].Expr.String(); s != tc.expected.String() {
				t.Errorf("expected %s, actual %s", tc.expected, s)
			}
		})
	}
}

func TestRedundantInstructionElimination(t *testing.T) {
	x := ir.BitVectorVar("x", 8)
	y := ir.BitVectorVar("y", 8)
	p := program(ir.BoolVar("c"),
		ir.NewSkip(),
		ir.NewAssign(x, x),
		ir.NewAssume(ir.True),
		ir.NewAssign(y, x),
	)
	rie := &RedundantInstructionElimination{}
	if err := Run(p, rie); err != nil {
		t.Fatal(err)
	}
	instrs := entryInstructions(p)
	if len(instrs) != 1 || instrs[0].Variable != y {
		t.Errorf("only the assignment of y must be left, actual %v", instrs)
	}
	if rie.Removed != 3 {
		t.Errorf("expected 3 removed instructions, actual %d", rie.Removed)
	}
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		name   string
		level  Level
		passes int
		ok     bool
	}{
		{"", Full, 7, true},
		{"full", Full, 7, true},
		{"basic", Basic, 2, true},
		{"none", None, 0, true},
		{"o3", Full, 0, false},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			l, err := ParseLevel(tc.name)
			if (err == nil) != tc.ok {
				t.Fatalf("unexpected error %v", err)
			}
			if !tc.ok {
				return
			}
			if l != tc.level {
				t.Errorf("expected %s, actual %s", tc.level, l)
			}
			if n := len(ForLevel(l).Passes()); n != tc.passes {
				t.Errorf("expected %d passes, actual %d", tc.passes, n)
			}
		})
	}
}

func TestForLevel(t *testing.T) {
	tv := ir.BitVectorVar("t", 8)
	u := ir.BitVectorVar("u", 8)
	x := ir.BitVectorVar("x", 8)
	newProgram := func() *ir.Program {
		return program(ir.ULt(tv, ir.BitVector64(4, 8)),
			ir.NewAssign(tv, ir.BitVector64(3, 8)),
			ir.NewAssign(u, ir.Add(tv, x)),
		)
	}
	testCases := []struct {
		level  Level
		instrs int
		pruned bool
	}{
		{None, 2, false},
		{Basic, 2, false},
		{Full, 0, true},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			p := newProgram()
			before := p.String()
			if err := ForLevel(tc.level).Run(p); err != nil {
				t.Fatal(err)
			}
			if n := len(entryInstructions(p)); n != tc.instrs {
				t.Errorf("expected %d instructions, actual %d:\n%s", tc.instrs, n, p)
			}
			if p.Graph().HasNode(2) == tc.pruned {
				t.Errorf("expected pruned=%v:\n%s", tc.pruned, p)
			}
			if tc.level == None && p.String() != before {
				t.Errorf("no pass may run at level none:\n%s", p)
			}
		})
	}
}
