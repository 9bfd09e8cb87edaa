package cex

import (
	"fmt"
	"io"
	"strings"

	"github.com/emicklei/dot"

	"github.com/ajalab/leakcheck/ir"
)

// EdgeAnnotation records which compositions took an edge.
type EdgeAnnotation struct {
	Executed  [2]bool
	Transient [2]bool
}

// ControlFlowGraph is a graph of annotated blocks. Node indices are the
// block indices of the program.
type ControlFlowGraph struct {
	graph *ir.Graph[*AnnotatedBlock]
	edges map[ir.Edge]*EdgeAnnotation
	fork  int
}

// NewControlFlowGraph returns an empty graph.
func NewControlFlowGraph() *ControlFlowGraph {
	return &ControlFlowGraph{
		graph: ir.NewGraph[*AnnotatedBlock](),
		edges: make(map[ir.Edge]*EdgeAnnotation),
		fork:  -1,
	}
}

// FromProgram returns the unannotated graph of p.
func FromProgram(p *ir.Program) *ControlFlowGraph {
	cfg := NewControlFlowGraph()
	g := p.Graph()
	nodes := g.Nodes()
	last := -1
	for _, n := range nodes {
		if n > last {
			last = n
		}
	}
	// keep indices aligned with the program, tombstones included
	for i := 0; i <= last; i++ {
		b, ok := g.Node(i)
		if !ok {
			b = ir.NewBlock("")
		}
		cfg.graph.AddNode(NewAnnotatedBlock(i, b))
	}
	for i := 0; i <= last; i++ {
		if !g.HasNode(i) {
			cfg.graph.RemoveNode(i)
		}
	}
	for _, e := range g.Edges() {
		cfg.AddEdge(e.Head, e.Tail, e.Condition)
	}
	if entry, ok := g.Entry(); ok {
		cfg.graph.SetEntry(entry)
	}
	if exit, ok := g.Exit(); ok {
		cfg.graph.SetExit(exit)
	}
	return cfg
}

// Graph returns the underlying graph.
func (cfg *ControlFlowGraph) Graph() *ir.Graph[*AnnotatedBlock] {
	return cfg.graph
}

// Block returns the annotated block at index i.
func (cfg *ControlFlowGraph) Block(i int) (*AnnotatedBlock, bool) {
	return cfg.graph.Node(i)
}

// AddBlock adds b and returns its index.
func (cfg *ControlFlowGraph) AddBlock(b *AnnotatedBlock) int {
	return cfg.graph.AddNode(b)
}

// AddEdge adds an unannotated edge.
func (cfg *ControlFlowGraph) AddEdge(head, tail int, cond ir.Expression) error {
	if err := cfg.graph.InsertEdge(head, tail, cond); err != nil {
		return err
	}
	cfg.edges[ir.Edge{Head: head, Tail: tail}] = &EdgeAnnotation{}
	return nil
}

// Edge returns the annotation of e.
func (cfg *ControlFlowGraph) Edge(e ir.Edge) (*EdgeAnnotation, bool) {
	a, ok := cfg.edges[e]
	return a, ok
}

// SetFork marks the block the compositions diverge at.
func (cfg *ControlFlowGraph) SetFork(block int) {
	cfg.fork = block
}

// Fork returns the block the compositions diverge at, or -1.
func (cfg *ControlFlowGraph) Fork() int {
	return cfg.fork
}

// Simplify removes the blocks no composition went through, and their edges.
func (cfg *ControlFlowGraph) Simplify() {
	for _, n := range cfg.graph.Nodes() {
		b := cfg.graph.MustNode(n)
		a, bb := b.annotations[A], b.annotations[B]
		if a.Executed || a.Transient || bb.Executed || bb.Transient {
			continue
		}
		for _, e := range cfg.graph.OutgoingEdges(n) {
			delete(cfg.edges, e.Edge)
		}
		for _, e := range cfg.graph.IncomingEdges(n) {
			delete(cfg.edges, e.Edge)
		}
		cfg.graph.RemoveNode(n)
	}
}

// Clone returns a deep copy of cfg.
func (cfg *ControlFlowGraph) Clone() *ControlFlowGraph {
	c := &ControlFlowGraph{
		graph: cfg.graph.Clone((*AnnotatedBlock).clone),
		edges: make(map[ir.Edge]*EdgeAnnotation, len(cfg.edges)),
		fork:  cfg.fork,
	}
	for e, a := range cfg.edges {
		a := *a
		c.edges[e] = &a
	}
	return c
}

func (cfg *ControlFlowGraph) edgeLabel(e ir.GuardedEdge) string {
	var comps []string
	if a, ok := cfg.edges[e.Edge]; ok {
		for _, c := range Compositions {
			switch {
			case a.Executed[c]:
				comps = append(comps, c.String())
			case a.Transient[c]:
				comps = append(comps, c.String()+"(transient)")
			}
		}
	}
	return strings.Join(comps, " ")
}

func (cfg *ControlFlowGraph) String() string {
	var sb strings.Builder
	for _, n := range cfg.graph.Nodes() {
		fmt.Fprintf(&sb, "%s\n", cfg.graph.MustNode(n))
	}
	for _, e := range cfg.graph.Edges() {
		fmt.Fprintf(&sb, "edge %s", e)
		if l := cfg.edgeLabel(e); l != "" {
			fmt.Fprintf(&sb, " %s", l)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// DOT returns cfg as a graphviz graph. Executed edges are drawn in the color
// of the composition that took them; the edges leaving the fork are labeled
// as the leak.
func (cfg *ControlFlowGraph) DOT() *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	nodes := make(map[int]dot.Node)
	for _, n := range cfg.graph.Nodes() {
		b := cfg.graph.MustNode(n)
		node := g.Node(fmt.Sprintf("block%d", n)).Box().Label(b.String())
		node.Attr("style", "filled")
		switch {
		case b.Executed():
			node.Attr("fillcolor", "#ffddccff").Attr("fontcolor", "#343434ff")
		case b.IsTransient():
			node.Attr("fillcolor", "#e1e1e1ff").Attr("fontcolor", "#343434ff")
		default:
			node.Attr("fillcolor", "#ffddcc55").Attr("fontcolor", "#34343455")
		}
		if n == cfg.fork {
			node.Attr("penwidth", "3")
		}
		nodes[n] = node
	}
	for _, e := range cfg.graph.Edges() {
		head, ok1 := nodes[e.Head]
		tail, ok2 := nodes[e.Tail]
		if !ok1 || !ok2 {
			continue
		}
		var label []string
		if e.Condition != nil {
			label = append(label, e.Condition.String())
		}
		a := cfg.edges[e.Edge]
		executed := a != nil && (a.Executed[A] || a.Executed[B])
		if executed && e.Head == cfg.fork {
			label = append(label, "leak")
		}
		if l := cfg.edgeLabel(e); l != "" {
			label = append(label, l)
		}
		edge := g.Edge(head, tail, strings.Join(label, "\n"))
		color := "#00000055"
		if a != nil {
			for _, c := range Compositions {
				if a.Executed[c] || a.Transient[c] {
					color = c.Color()
					break
				}
			}
		}
		edge.Attr("color", color)
		if executed {
			edge.Attr("penwidth", "8.5")
		} else if a != nil && (a.Transient[A] || a.Transient[B]) {
			edge.Dashed()
		}
	}
	return g
}

// Render writes the DOT description of cfg.
func (cfg *ControlFlowGraph) Render(w io.Writer) error {
	_, err := io.WriteString(w, cfg.DOT().String())
	return err
}
