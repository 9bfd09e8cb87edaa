package ir

import (
	"fmt"
	"testing"
)

// edgeList is a minimal representation translatable into a Program.
type edgeList struct {
	nodes int
	edges [][2]int
}

func (l edgeList) TryTranslateInto() (*Program, error) {
	if l.nodes == 0 {
		return nil, Errorf(TranslationError, nil, "an empty edge list has no entry")
	}
	g := NewBlockGraph()
	for i := 0; i < l.nodes; i++ {
		g.AddNode(NewBlock(fmt.Sprintf("b%d", i)))
	}
	for _, e := range l.edges {
		if err := g.InsertEdge(e[0], e[1], nil); err != nil {
			return nil, WrapErrorf(err, TranslationError, nil, "edge %v", e)
		}
	}
	g.SetEntry(0)
	g.SetExit(l.nodes - 1)
	return NewProgram("edges", g), nil
}

type renameTransform struct {
	fail bool
}

func (renameTransform) Name() string        { return "rename" }
func (renameTransform) Description() string { return "prefixes every block label" }

func (r renameTransform) Transform(p *Program) error {
	for _, i := range p.Graph().Nodes() {
		b := p.Graph().MustNode(i)
		p.Graph().SetNode(i, NewBlock("renamed_"+b.Label(), b.Instructions()...))
	}
	if r.fail {
		return Errorf(TransformError, nil, "rename failed")
	}
	return nil
}

func TestTryTranslateFromMatchesInto(t *testing.T) {
	testCases := []edgeList{
		{nodes: 2, edges: [][2]int{{0, 1}}},
		{nodes: 3, edges: [][2]int{{0, 1}, {1, 2}, {0, 2}}},
		{nodes: 0},
		{nodes: 2, edges: [][2]int{{0, 1}, {0, 1}}},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			into, intoErr := tc.TryTranslateInto()
			from, fromErr := TryTranslateFrom[*Program](tc)

			if (intoErr == nil) != (fromErr == nil) {
				t.Fatalf("into: %v, from: %v", intoErr, fromErr)
			}
			if intoErr != nil {
				if !IsKind(fromErr, TranslationError) {
					t.Errorf("expected a translation error, got %v", fromErr)
				}
				if from != nil {
					t.Error("no target must be produced on failure")
				}
				return
			}
			if into.String() != from.String() {
				t.Errorf("into:\n%s\nfrom:\n%s", into, from)
			}
		})
	}
}

func TestTransformWithSnapshot(t *testing.T) {
	var tr Transform[*Program] = renameTransform{fail: true}
	p := twoBlockProgram()
	snapshot := p.Clone()

	if err := tr.Transform(p); !IsKind(err, TransformError) {
		t.Fatalf("expected a transform error, got %v", err)
	}
	p.Restore(snapshot)
	if b, _ := p.Graph().Block(0); b.Label() != "entry" {
		t.Errorf("expected the restored label entry, actual %s", b.Label())
	}

	tr = renameTransform{}
	if err := tr.Transform(p); err != nil {
		t.Fatal(err)
	}
	if b, _ := p.Graph().Block(0); b.Label() != "renamed_entry" {
		t.Errorf("expected renamed_entry, actual %s", b.Label())
	}
}

func TestValidateAllFailFast(t *testing.T) {
	bad := Not(BitVectorVar("x", 8))
	g := NewGraph[int]()
	err := ValidateAll(True, bad, g)
	if !IsKind(err, SortMismatch) {
		t.Fatalf("expected the first failure (sort mismatch), got %v", err)
	}
	if err := ValidateAll(True, twoBlockProgram()); err != nil {
		t.Fatal(err)
	}
}
