package lift

import (
	"context"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/ajalab/leakcheck/arch"
	"github.com/ajalab/leakcheck/executor"
	"github.com/ajalab/leakcheck/ir"
	"github.com/ajalab/leakcheck/solver"
)

const source = `package p

func Leak(secret bool, table []uint8) uint8 {
	if secret {
		return table[0]
	}
	return 0
}

func Sum(n uint8) uint8 {
	s := uint8(0)
	for i := uint8(0); i < n; i++ {
		s += i
	}
	return s
}

func Index(i uint64, a []uint64) uint64 {
	if i < uint64(len(a)) {
		return a[i]
	}
	return 0
}

func Fill(a *[4]uint16, v uint16) {
	a[1] = v ^ 0xff
}

func Float(x float64) float64 {
	return x * 2
}

func Divide(x int) int {
	return x / 3
}

func Helper(x int) int {
	return Divide(x)
}
`

func buildFunc(t *testing.T, name string) *ssa.Function {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", source, 0)
	if err != nil {
		t.Fatal(err)
	}
	pkg := types.NewPackage("p", "p")
	spkg, _, err := ssautil.BuildPackage(&types.Config{Importer: importer.Default()}, fset, pkg, []*ast.File{f}, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatal(err)
	}
	fn := spkg.Func(name)
	if fn == nil {
		t.Fatalf("function %s not found", name)
	}
	return fn
}

func translate(t *testing.T, name string) *ir.Program {
	t.Helper()
	p, err := ir.TryTranslateFrom[*ir.Program](NewFunction(buildFunc(t, name)))
	if err != nil {
		t.Fatalf("TryTranslateInto: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v\n%s", err, p)
	}
	return p
}

func TestTranslate(t *testing.T) {
	testCases := []struct {
		name     string
		contains []string
	}{
		{"Leak", []string{"entry", "exit", "load (bvadd table:BitVec<64> 0x0:BitVec<64>)"}},
		{"Sum", []string{"->", "bvadd"}},
		{"Index", []string{"a.len:BitVec<64>", "bvult", "bvmul"}},
		{"Fill", []string{"store (bvadd a:BitVec<64> 0x2:BitVec<64>)", "bvxor"}},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			p := translate(t, tc.name)
			s := p.String()
			for _, want := range tc.contains {
				if !strings.Contains(s, want) {
					t.Errorf("expected %q in\n%s", want, s)
				}
			}
		})
	}
}

func TestTranslateEntryAndExit(t *testing.T) {
	p := translate(t, "Leak")
	g := p.Graph()
	entry, _ := g.Entry()
	exit, _ := g.Exit()
	if b := g.MustNode(entry); b.Label() != "entry" || len(b.Instructions()) != 0 {
		t.Errorf("unexpected entry block %s", b)
	}
	if b := g.MustNode(exit); b.Label() != "exit" {
		t.Errorf("unexpected exit block %s", b)
	}
	guarded := 0
	for _, e := range g.OutgoingEdges(1) {
		if e.Condition != nil {
			guarded++
		}
	}
	if guarded != 2 {
		t.Errorf("expected the branch on secret to leave two guarded edges, got %d", guarded)
	}
}

func TestTranslationError(t *testing.T) {
	testCases := []struct {
		name string
	}{
		{"Float"},
		{"Divide"},
		{"Helper"},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			_, err := NewFunction(buildFunc(t, tc.name)).TryTranslateInto()
			if !ir.IsKind(err, ir.TranslationError) {
				t.Errorf("expected a translation error, actual %v", err)
			}
		})
	}
}

func TestPolicy(t *testing.T) {
	testCases := []struct {
		secret, public []string
		secrets        []string
	}{
		{[]string{"secret"}, nil, []string{"secret"}},
		{[]string{"table"}, nil, []string{"mem", "table"}},
		{nil, []string{"secret"}, []string{"mem", "table"}},
		{nil, nil, nil},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			p, err := NewFunction(buildFunc(t, "Leak")).Declare(tc.secret, tc.public).TryTranslateInto()
			if err != nil {
				t.Fatal(err)
			}
			if s := p.Secrets(); strings.Join(s, ",") != strings.Join(tc.secrets, ",") {
				t.Errorf("expected secrets %v, actual %v", tc.secrets, s)
			}
		})
	}
}

func TestLiftedLeak(t *testing.T) {
	p, err := NewFunction(buildFunc(t, "Leak")).Declare([]string{"secret"}, nil).TryTranslateInto()
	if err != nil {
		t.Fatal(err)
	}
	opts := executor.DefaultOptions()
	opts.SpectrePHT = false
	res, err := executor.New(p, arch.DefaultParams(), solver.NewGiniSolver(0), opts).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Leaks) != 1 {
		t.Fatalf("expected 1 leak, got %d", len(res.Leaks))
	}
	if d := res.Leaks[0].Divergence; d.Block != 1 {
		t.Errorf("expected the fork at the branch on secret, got block %d", d.Block)
	}
}
