package ir

import (
	"fmt"
	"sort"
)

// Edge is a directed edge between two node indices of a graph.
type Edge struct {
	Head int
	Tail int
}

func (e Edge) String() string {
	return fmt.Sprintf("(0x%X->0x%X)", e.Head, e.Tail)
}

// GuardedEdge is an edge with an optional guard condition.
// Condition is nil for unconditional edges.
type GuardedEdge struct {
	Edge
	Condition Expression
}

func (e GuardedEdge) String() string {
	if e.Condition == nil {
		return e.Edge.String()
	}
	return fmt.Sprintf("%s [%s]", e.Edge, e.Condition)
}

type slot[N any] struct {
	value N
	live  bool
}

// Graph is a directed graph whose nodes carry values of type N.
// Node indices are dense; removed nodes leave a tombstone so that indices stay stable.
// Edges may be inserted before their endpoints exist; Validate checks them.
type Graph[N any] struct {
	nodes    []slot[N]
	edges    []GuardedEdge
	entry    int
	exit     int
	hasEntry bool
	hasExit  bool
}

// NewGraph returns an empty graph.
func NewGraph[N any]() *Graph[N] {
	return &Graph[N]{}
}

// AddNode adds a node and returns its index.
func (g *Graph[N]) AddNode(n N) int {
	g.nodes = append(g.nodes, slot[N]{value: n, live: true})
	return len(g.nodes) - 1
}

// HasNode reports whether the node i exists.
func (g *Graph[N]) HasNode(i int) bool {
	return i >= 0 && i < len(g.nodes) && g.nodes[i].live
}

// Node returns the value of node i.
func (g *Graph[N]) Node(i int) (N, bool) {
	if !g.HasNode(i) {
		var zero N
		return zero, false
	}
	return g.nodes[i].value, true
}

// MustNode returns the value of node i and panics if it does not exist.
func (g *Graph[N]) MustNode(i int) N {
	n, ok := g.Node(i)
	if !ok {
		panic(fmt.Sprintf("ir: node 0x%X does not exist", i))
	}
	return n
}

// SetNode replaces the value of node i.
func (g *Graph[N]) SetNode(i int, n N) error {
	if !g.HasNode(i) {
		return Errorf(GraphInvariant, nil, "node 0x%X does not exist", i)
	}
	g.nodes[i].value = n
	return nil
}

// NodeCount returns the number of node slots, including removed ones.
func (g *Graph[N]) NodeCount() int {
	return len(g.nodes)
}

// Nodes returns the indices of the existing nodes in ascending order.
func (g *Graph[N]) Nodes() []int {
	var ns []int
	for i, s := range g.nodes {
		if s.live {
			ns = append(ns, i)
		}
	}
	return ns
}

// RemoveNode removes node i and its incident edges.
func (g *Graph[N]) RemoveNode(i int) error {
	if !g.HasNode(i) {
		return Errorf(GraphInvariant, nil, "node 0x%X does not exist", i)
	}
	var zero N
	g.nodes[i] = slot[N]{value: zero}
	edges := g.edges[:0]
	for _, e := range g.edges {
		if e.Head != i && e.Tail != i {
			edges = append(edges, e)
		}
	}
	g.edges = edges
	return nil
}

// InsertEdge inserts an edge from head to tail guarded by cond (nil for none).
// A second edge between the same pair is rejected unless the guards differ.
func (g *Graph[N]) InsertEdge(head, tail int, cond Expression) error {
	e := Edge{Head: head, Tail: tail}
	for _, x := range g.edges {
		if x.Edge != e {
			continue
		}
		if x.Condition == nil || cond == nil || Identical(x.Condition, cond) {
			return Errorf(GraphInvariant, e, "duplicate edge")
		}
	}
	g.edges = append(g.edges, GuardedEdge{Edge: e, Condition: cond})
	return nil
}

// RemoveEdge removes every edge from head to tail.
func (g *Graph[N]) RemoveEdge(head, tail int) error {
	e := Edge{Head: head, Tail: tail}
	edges := g.edges[:0]
	for _, x := range g.edges {
		if x.Edge != e {
			edges = append(edges, x)
		}
	}
	if len(edges) == len(g.edges) {
		return Errorf(GraphInvariant, e, "edge does not exist")
	}
	g.edges = edges
	return nil
}

// RewriteEdges replaces every edge e by f(e), dropping it when f returns false.
// Endpoints are kept as they are.
func (g *Graph[N]) RewriteEdges(f func(GuardedEdge) (Expression, bool)) {
	edges := g.edges[:0]
	for _, e := range g.edges {
		cond, keep := f(e)
		if keep {
			edges = append(edges, GuardedEdge{Edge: e.Edge, Condition: cond})
		}
	}
	g.edges = edges
}

// Edges returns all edges in insertion order.
func (g *Graph[N]) Edges() []GuardedEdge {
	edges := make([]GuardedEdge, len(g.edges))
	copy(edges, g.edges)
	return edges
}

// HasEdge reports whether an edge from head to tail exists.
func (g *Graph[N]) HasEdge(head, tail int) bool {
	for _, e := range g.edges {
		if e.Head == head && e.Tail == tail {
			return true
		}
	}
	return false
}

// OutgoingEdges returns the edges leaving node i.
func (g *Graph[N]) OutgoingEdges(i int) []GuardedEdge {
	var edges []GuardedEdge
	for _, e := range g.edges {
		if e.Head == i {
			edges = append(edges, e)
		}
	}
	return edges
}

// IncomingEdges returns the edges entering node i.
func (g *Graph[N]) IncomingEdges(i int) []GuardedEdge {
	var edges []GuardedEdge
	for _, e := range g.edges {
		if e.Tail == i {
			edges = append(edges, e)
		}
	}
	return edges
}

// Successors returns the distinct successors of node i in edge order.
func (g *Graph[N]) Successors(i int) []int {
	var ns []int
	seen := make(map[int]struct{})
	for _, e := range g.edges {
		if _, ok := seen[e.Tail]; e.Head == i && !ok {
			seen[e.Tail] = struct{}{}
			ns = append(ns, e.Tail)
		}
	}
	return ns
}

// Predecessors returns the distinct predecessors of node i in edge order.
func (g *Graph[N]) Predecessors(i int) []int {
	var ns []int
	seen := make(map[int]struct{})
	for _, e := range g.edges {
		if _, ok := seen[e.Head]; e.Tail == i && !ok {
			seen[e.Head] = struct{}{}
			ns = append(ns, e.Head)
		}
	}
	return ns
}

// SetEntry declares node i as the entry.
func (g *Graph[N]) SetEntry(i int) {
	g.entry, g.hasEntry = i, true
}

// SetExit declares node i as the exit.
func (g *Graph[N]) SetExit(i int) {
	g.exit, g.hasExit = i, true
}

// Entry returns the entry node.
func (g *Graph[N]) Entry() (int, bool) {
	return g.entry, g.hasEntry
}

// Exit returns the exit node.
func (g *Graph[N]) Exit() (int, bool) {
	return g.exit, g.hasExit
}

// Reachable returns the set of nodes reachable from node from, including from itself.
func (g *Graph[N]) Reachable(from int) map[int]bool {
	reached := make(map[int]bool)
	if !g.HasNode(from) {
		return reached
	}
	stack := []int{from}
	reached[from] = true
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range g.Successors(n) {
			if !reached[s] && g.HasNode(s) {
				reached[s] = true
				stack = append(stack, s)
			}
		}
	}
	return reached
}

// Clone returns a copy of g with node values copied by cloneNode.
func (g *Graph[N]) Clone(cloneNode func(N) N) *Graph[N] {
	c := &Graph[N]{
		nodes:    make([]slot[N], len(g.nodes)),
		edges:    make([]GuardedEdge, len(g.edges)),
		entry:    g.entry,
		exit:     g.exit,
		hasEntry: g.hasEntry,
		hasExit:  g.hasExit,
	}
	for i, s := range g.nodes {
		if s.live {
			c.nodes[i] = slot[N]{value: cloneNode(s.value), live: true}
		}
	}
	copy(c.edges, g.edges)
	return c
}

// Validate checks that every edge references existing nodes and that
// the declared entry and exit exist.
func (g *Graph[N]) Validate() error {
	for _, e := range g.edges {
		if !g.HasNode(e.Head) {
			return Errorf(GraphInvariant, e.Edge, "head 0x%X does not exist (%d nodes)", e.Head, len(g.nodes))
		}
		if !g.HasNode(e.Tail) {
			return Errorf(GraphInvariant, e.Edge, "tail 0x%X does not exist (%d nodes)", e.Tail, len(g.nodes))
		}
	}
	if !g.hasEntry {
		return Errorf(GraphInvariant, nil, "no entry node is declared")
	}
	if !g.HasNode(g.entry) {
		return Errorf(GraphInvariant, nil, "entry node 0x%X does not exist", g.entry)
	}
	if !g.hasExit {
		return Errorf(GraphInvariant, nil, "no exit node is declared")
	}
	if !g.HasNode(g.exit) {
		return Errorf(GraphInvariant, nil, "exit node 0x%X does not exist", g.exit)
	}
	return nil
}

// ValidateStrict is Validate that also rejects nodes unreachable from the entry.
func (g *Graph[N]) ValidateStrict() error {
	if err := g.Validate(); err != nil {
		return err
	}
	reached := g.Reachable(g.entry)
	var unreachable []int
	for _, n := range g.Nodes() {
		if !reached[n] {
			unreachable = append(unreachable, n)
		}
	}
	if len(unreachable) > 0 {
		sort.Ints(unreachable)
		return Errorf(GraphInvariant, nil, "nodes %s are unreachable from the entry", hexList(unreachable))
	}
	return nil
}

func hexList(ns []int) string {
	s := "["
	for i, n := range ns {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("0x%X", n)
	}
	return s + "]"
}
