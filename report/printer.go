package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/logrusorgru/aurora"
)

// Printer writes verdicts and diagnostics for humans.
type Printer struct {
	w  io.Writer
	au aurora.Aurora
}

// NewPrinter returns a printer writing to w, with ANSI colors when colors is set.
func NewPrinter(w io.Writer, colors bool) *Printer {
	return &Printer{w: w, au: aurora.NewAurora(colors)}
}

// Safe reports that no leak was found in the program name.
func (p *Printer) Safe(name string) {
	fmt.Fprintf(p.w, "%s %s: no leak found\n", p.au.Bold(p.au.Green("SAFE")), name)
}

// Unsafe reports that n leaks were found in the program name.
func (p *Printer) Unsafe(name string, n int) {
	noun := "leaks"
	if n == 1 {
		noun = "leak"
	}
	fmt.Fprintf(p.w, "%s %s: %d %s found\n", p.au.Bold(p.au.Red("UNSAFE")), name, n, noun)
}

// Leak describes one leak. id identifies the counterexample and detail is
// printed indented below it.
func (p *Printer) Leak(id string, fork int, step int, detail fmt.Stringer) {
	fmt.Fprintf(p.w, "  %s %s forking at block 0x%X, observable %d steps later\n",
		p.au.Yellow("leak"), id, fork, step)
	if detail != nil {
		fmt.Fprintf(p.w, "%s\n", indent(detail.String(), "    "))
	}
}

// Written reports a file holding a dump or a rendering.
func (p *Printer) Written(what, path string) {
	fmt.Fprintf(p.w, "  %s %s\n", p.au.Faint(what+" written to"), path)
}

// Stats prints counters in key order.
func (p *Printer) Stats(counters map[string]interface{}) {
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(p.w, "  %s %v\n", p.au.Cyan(k+":"), counters[k])
	}
}

// Diagnostic prints err.
func (p *Printer) Diagnostic(err error) {
	fmt.Fprintf(p.w, "%s %v\n", p.au.Bold(p.au.Red("error:")), err)
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
