package ir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// BlockGraph is the control-flow graph of a program: basic blocks connected
// by edges guarded by taken-branch conditions.
type BlockGraph struct {
	Graph[*Block]
}

// NewBlockGraph returns an empty block graph.
func NewBlockGraph() *BlockGraph {
	return &BlockGraph{}
}

// Block returns the block at node i.
func (g *BlockGraph) Block(i int) (*Block, bool) {
	return g.Node(i)
}

// Clone returns a deep copy of g.
func (g *BlockGraph) Clone() *BlockGraph {
	return &BlockGraph{Graph: *g.Graph.Clone((*Block).Clone)}
}

// Validate checks the graph structure, every block and every edge guard.
// Guards must have sort Bool.
func (g *BlockGraph) Validate() error {
	if err := g.Graph.Validate(); err != nil {
		return err
	}
	for _, i := range g.Nodes() {
		if err := g.MustNode(i).Validate(); err != nil {
			return errors.Wrapf(err, "block 0x%X", i)
		}
	}
	for _, e := range g.Edges() {
		if e.Condition == nil {
			continue
		}
		if err := e.Condition.Validate(); err != nil {
			return errors.Wrapf(err, "guard of %s", e.Edge)
		}
		if s := e.Condition.Sort(); !s.IsBool() {
			return Errorf(SortMismatch, e, "guard is %s, expected Bool", s.Describe())
		}
	}
	return nil
}

func (g *BlockGraph) String() string {
	var sb strings.Builder
	for _, i := range g.Nodes() {
		fmt.Fprintf(&sb, "Block 0x%X %s\n", i, g.MustNode(i))
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(&sb, "edge %s\n", e)
	}
	return sb.String()
}

// Program is the unit a transformation pass operates on. It exclusively owns its block graph.
type Program struct {
	name    string
	graph   *BlockGraph
	secrets map[string]struct{}
	memory  MemoryPolicy
}

// NewProgram returns a program owning g.
func NewProgram(name string, g *BlockGraph) *Program {
	return &Program{
		name:    name,
		graph:   g,
		secrets: make(map[string]struct{}),
	}
}

// Name returns the name of p.
func (p *Program) Name() string {
	return p.name
}

// Graph returns the block graph of p.
func (p *Program) Graph() *BlockGraph {
	return p.graph
}

// MarkSecret declares the variable name as secret input.
func (p *Program) MarkSecret(name string) {
	p.secrets[name] = struct{}{}
}

// IsSecret reports whether the variable name is secret input.
func (p *Program) IsSecret(name string) bool {
	_, ok := p.secrets[name]
	return ok
}

// Secrets returns the secret variable names in sorted order.
func (p *Program) Secrets() []string {
	names := make([]string, 0, len(p.secrets))
	for name := range p.secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetMemoryPolicy classifies the cells of the secret base memories of p.
func (p *Program) SetMemoryPolicy(m MemoryPolicy) {
	p.memory = m.clone()
}

// MemoryPolicy returns the classification of memory cells.
func (p *Program) MemoryPolicy() MemoryPolicy {
	return p.memory
}

// Clone returns a snapshot of p that shares nothing mutable with it.
func (p *Program) Clone() *Program {
	c := NewProgram(p.name, p.graph.Clone())
	for name := range p.secrets {
		c.secrets[name] = struct{}{}
	}
	c.memory = p.memory.clone()
	return c
}

// MemoryPolicy classifies the cells of a base memory by address. The zero
// value makes every cell secret.
type MemoryPolicy struct {
	// DefaultPublic classifies the cells listed in neither set.
	DefaultPublic bool
	Public        map[uint64]struct{}
	Secret        map[uint64]struct{}
}

// NewMemoryPolicy returns a policy with the given default and exceptions.
func NewMemoryPolicy(defaultPublic bool, public, secret []uint64) MemoryPolicy {
	m := MemoryPolicy{
		DefaultPublic: defaultPublic,
		Public:        make(map[uint64]struct{}, len(public)),
		Secret:        make(map[uint64]struct{}, len(secret)),
	}
	for _, a := range public {
		m.Public[a] = struct{}{}
	}
	for _, a := range secret {
		m.Secret[a] = struct{}{}
	}
	return m
}

// IsSecret reports whether the cell at addr is secret.
func (m MemoryPolicy) IsSecret(addr uint64) bool {
	if _, ok := m.Secret[addr]; ok {
		return true
	}
	if _, ok := m.Public[addr]; ok {
		return false
	}
	return !m.DefaultPublic
}

func (m MemoryPolicy) clone() MemoryPolicy {
	c := MemoryPolicy{DefaultPublic: m.DefaultPublic}
	if m.Public != nil {
		c.Public = make(map[uint64]struct{}, len(m.Public))
		for a := range m.Public {
			c.Public[a] = struct{}{}
		}
	}
	if m.Secret != nil {
		c.Secret = make(map[uint64]struct{}, len(m.Secret))
		for a := range m.Secret {
			c.Secret[a] = struct{}{}
		}
	}
	return c
}

// Restore replaces the contents of p with a copy of snapshot.
func (p *Program) Restore(snapshot *Program) {
	*p = *snapshot.Clone()
}

// Validate validates the block graph of p. It does not modify p.
func (p *Program) Validate() error {
	if p.graph == nil {
		return Errorf(GraphInvariant, nil, "program %s has no graph", p.name)
	}
	return p.graph.Validate()
}

func (p *Program) String() string {
	return fmt.Sprintf("program %s\n%s", p.name, p.graph)
}
