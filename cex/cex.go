// Package cex builds counterexamples: two executions of a program that an
// attacker can tell apart, laid over the control-flow graph with the
// concrete values and microarchitectural effects of each execution.
package cex

import (
	"fmt"
	"io"
	"strings"

	"github.com/emicklei/dot"
	"github.com/google/uuid"

	"github.com/ajalab/leakcheck/arch"
	"github.com/ajalab/leakcheck/ir"
	"github.com/ajalab/leakcheck/solver"
	"github.com/ajalab/leakcheck/trace"
)

// Composition names one of the two executions of a counterexample.
type Composition int

const (
	A Composition = iota
	B
)

// Compositions lists both compositions in order.
var Compositions = [2]Composition{A, B}

func (c Composition) String() string {
	if c == B {
		return "B"
	}
	return "A"
}

// Color returns the color the composition is drawn with.
func (c Composition) Color() string {
	if c == B {
		return "#0465b2"
	}
	return "#ed403c"
}

// Fork locates the divergence of a counterexample.
type Fork struct {
	Block int
	Guard ir.Expression
	// Step is the number of steps after the fork at which the observations differ.
	Step         int
	Observations [2]arch.Observation
}

// Execution is the record of one composition handed to a Builder.
type Execution struct {
	Trace  *trace.Trace
	Model  *solver.Model
	Cache  *arch.Cache
	Events []Event
}

// Summary is what a counterexample keeps of an execution.
type Summary struct {
	Trace *trace.Trace
	Model *solver.Model
	Cache *arch.Cache
}

// CounterExample is a pair of executions proving an observable leak.
type CounterExample struct {
	id        uuid.UUID
	cfg       *ControlFlowGraph
	fork      Fork
	summaries [2]Summary
}

// ID returns the identifier of c.
func (c *CounterExample) ID() uuid.UUID {
	return c.id
}

// ControlFlowGraph returns a copy of the annotated graph.
func (c *CounterExample) ControlFlowGraph() *ControlFlowGraph {
	return c.cfg.Clone()
}

// MutableControlFlowGraph returns the annotated graph owned by c.
func (c *CounterExample) MutableControlFlowGraph() *ControlFlowGraph {
	return c.cfg
}

// Fork returns the location of the divergence.
func (c *CounterExample) Fork() Fork {
	return c.fork
}

// Execution returns the summary of the composition comp.
func (c *CounterExample) Execution(comp Composition) Summary {
	return c.summaries[comp]
}

// Describe renders the fork, and the trace, inputs and final cache of each composition.
func (c *CounterExample) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "counterexample %s\n", c.id)
	fmt.Fprintf(&sb, "fork at block 0x%X on %s, %d steps later\n", c.fork.Block, c.fork.Guard, c.fork.Step)
	for _, comp := range Compositions {
		s := c.summaries[comp]
		fmt.Fprintf(&sb, "%s: %s\n", comp, s.Trace)
		if s.Model != nil {
			for _, name := range s.Model.Variables() {
				v, _ := s.Model.Lookup(name)
				fmt.Fprintf(&sb, "%s  %s = %s\n", comp, name, v)
			}
		}
		fmt.Fprintf(&sb, "%s  observed %s\n", comp, c.fork.Observations[comp])
		if s.Cache != nil {
			fmt.Fprintf(&sb, "%s  final cache %s\n", comp, s.Cache)
		}
	}
	return sb.String()
}

func (c *CounterExample) String() string {
	return c.cfg.String()
}

// DOT returns the annotated graph as a graphviz graph.
func (c *CounterExample) DOT() *dot.Graph {
	g := c.cfg.DOT()
	g.Attr("label", fmt.Sprintf("counterexample %s: %s vs %s", c.id, A, B))
	return g
}

// Render writes the DOT description of c.
func (c *CounterExample) Render(w io.Writer) error {
	_, err := io.WriteString(w, c.DOT().String())
	return err
}
