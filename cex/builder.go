package cex

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ajalab/leakcheck/ir"
	"github.com/ajalab/leakcheck/solver"
)

// Builder turns pairs of executions of a program into counterexamples.
type Builder struct {
	program *ir.Program
}

// NewBuilder returns a builder for executions of p.
func NewBuilder(p *ir.Program) *Builder {
	return &Builder{program: p}
}

// Build lays a and b over the graph of the program as compositions A and B.
// Assignments are evaluated under the model of their execution.
func (bd *Builder) Build(f Fork, a, b Execution) (*CounterExample, error) {
	cfg := FromProgram(bd.program)
	cfg.SetFork(f.Block)
	ce := &CounterExample{id: uuid.New(), cfg: cfg, fork: f}

	for _, c := range Compositions {
		ex := a
		if c == B {
			ex = b
		}
		if ex.Trace == nil {
			return nil, errors.Errorf("composition %s has no trace", c)
		}
		if ex.Model == nil {
			ex.Model = solver.NewModel()
		}
		if err := annotate(cfg, c, ex); err != nil {
			return nil, errors.Wrapf(err, "composition %s", c)
		}
		ce.summaries[c] = Summary{Trace: ex.Trace, Model: ex.Model, Cache: ex.Cache}
	}

	cfg.Simplify()
	return ce, nil
}

func annotate(cfg *ControlFlowGraph, c Composition, ex Execution) error {
	for _, n := range ex.Trace.Blocks() {
		blk, ok := cfg.Block(n)
		if !ok {
			return errors.Errorf("block 0x%X is not in the program", n)
		}
		blk.Annotation(c).Executed = true
	}
	for _, e := range ex.Trace.Edges() {
		if a, ok := cfg.Edge(e.Edge); ok {
			a.Executed[c] = true
		}
	}
	for _, br := range ex.Trace.Branches() {
		if a, ok := cfg.Edge(br.Edge().Edge); ok && !a.Executed[c] {
			a.Transient[c] = true
		}
	}

	for _, ev := range ex.Events {
		blk, ok := cfg.Block(ev.Block)
		if !ok {
			return errors.Errorf("event in block 0x%X outside the program", ev.Block)
		}
		if ev.Speculative {
			blk.Annotation(c).Transient = true
		}
		if ev.Instruction < 0 {
			if ev.Effect != nil {
				blk.Annotation(c).Effects = append(blk.Annotation(c).Effects, *ev.Effect)
			}
			continue
		}
		ai, ok := blk.Instruction(ev.Instruction)
		if !ok {
			return errors.Errorf("event at instruction %d of block 0x%X outside the block", ev.Instruction, ev.Block)
		}
		ann := ai.MutableAnnotation(c)
		switch {
		case ev.Effect != nil:
			ann.Effects = append(ann.Effects, *ev.Effect)
		case ev.Assignment != nil:
			if ev.Assignment.Value.Sort().IsMemory() {
				continue
			}
			v, err := ex.Model.Evaluate(ev.Assignment.Value)
			if err != nil {
				return errors.Wrapf(err, "evaluating %s", ev.Assignment.Target)
			}
			ann.Assignments = append(ann.Assignments, Binding{Target: ev.Assignment.Target, Value: v})
		}
	}
	return nil
}
