package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/ajalab/leakcheck/ir"
)

type text string

func (t text) String() string { return string(t) }

type failingRenderer struct{}

func (failingRenderer) Render(io.Writer) error { return errors.New("broken") }

type dotRenderer string

func (r dotRenderer) Render(w io.Writer) error {
	_, err := io.WriteString(w, string(r))
	return err
}

func TestCompactRanges(t *testing.T) {
	testCases := []struct {
		values []uint64
		str    string
	}{
		{nil, "{}"},
		{[]uint64{0x10}, "{0x10}"},
		{[]uint64{0x12, 0x10, 0x11, 0x11}, "{0x10-0x12}"},
		{[]uint64{0x20, 0x10, 0x11}, "{0x10-0x11, 0x20}"},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			if s := FormatRanges(CompactRanges(tc.values)); s != tc.str {
				t.Errorf("expected %s, actual %s", tc.str, s)
			}
		})
	}
}

func TestDumpToFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cex.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("stale content\n", 64)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := DumpToFile(path, text("edge (0x0->0x1)\n")); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("edge (0x0->0x1)\n", string(b)); diff != "" {
		t.Errorf("file mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cex.dot")
	if err := RenderToFile(path, dotRenderer("digraph {}")); err != nil {
		t.Fatal(err)
	}
	if b, _ := os.ReadFile(path); string(b) != "digraph {}" {
		t.Errorf("unexpected rendering %q", b)
	}

	err := RenderToFile(path, failingRenderer{})
	if !ir.IsKind(err, ir.IoError) {
		t.Errorf("expected an io error, got %v", err)
	}
	err = DumpToFile(filepath.Join(dir, "missing", "cex.txt"), text("x"))
	if !ir.IsKind(err, ir.IoError) {
		t.Errorf("expected an io error, got %v", err)
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)
	p.Safe("f")
	p.Unsafe("g", 1)
	p.Leak("42", 0, 1, text("[ Block: 0x0 ]\nskip\n"))
	p.Stats(map[string]interface{}{"paths": 2, "feasible": 2})
	p.Diagnostic(ir.Errorf(ir.SortMismatch, nil, "guard is BitVec<8>, expected Bool"))

	want := `SAFE f: no leak found
UNSAFE g: 1 leak found
  leak 42 forking at block 0x0, observable 1 steps later
    [ Block: 0x0 ]
    skip
  feasible: 2
  paths: 2
error: sort mismatch: guard is BitVec<8>, expected Bool
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}
