package executor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ajalab/leakcheck/arch"
	"github.com/ajalab/leakcheck/cex"
	"github.com/ajalab/leakcheck/ir"
	"github.com/ajalab/leakcheck/solver"
	"github.com/ajalab/leakcheck/trace"
)

var errInfeasible = errors.New("infeasible path")

// Step is the attacker-visible state after one executed instruction.
type Step struct {
	// Pos is the position in the trace of the block the step belongs to.
	// Steps of a speculation belong to the successor of the mispredicted branch.
	Pos         int
	Speculative bool
	// Observation includes the lines brought in by speculative accesses,
	// Architectural does not.
	Observation   arch.Observation
	Architectural arch.Observation
}

// AssertionFailure is an assertion that may be violated on a path.
// Instruction is -1 for the unwinding assertion at the end of a path cut by
// the unwind bound.
type AssertionFailure struct {
	Block       int
	Instruction int
	Model       *solver.Model
}

// PathResult is the outcome of executing one path.
type PathResult struct {
	ID        int
	Trace     *trace.Trace
	Condition *solver.PathCondition
	// Model satisfies Condition. It is nil unless the path is feasible.
	Model *solver.Model
	Final *arch.State
	// ArchCache is the final cache without the lines brought in speculatively.
	ArchCache *arch.Cache
	Steps     []Step
	// TransientAddresses are the symbolic addresses accessed speculatively.
	TransientAddresses []ir.Expression
	// Events lists the effects and assignments in execution order.
	Events           []cex.Event
	Failures         []AssertionFailure
	Feasible         bool
	Abandoned        error
	SpeculativeSteps int
}

// stepsFrom returns the index of the first step at or after position pos.
func (r *PathResult) stepsFrom(pos int) int {
	for i, s := range r.Steps {
		if s.Pos >= pos {
			return i
		}
	}
	return len(r.Steps)
}

// stepAt returns the i-th step, or the last step when the path is shorter.
func (r *PathResult) stepAt(i int) Step {
	if i >= len(r.Steps) {
		return r.Steps[len(r.Steps)-1]
	}
	return r.Steps[i]
}

// frame is the register and memory view of an execution, architectural or transient.
type frame struct {
	regs        map[ir.Variable]ir.Expression
	memory      *arch.Memory
	speculative bool
}

func (f *frame) clone() *frame {
	regs := make(map[ir.Variable]ir.Expression, len(f.regs))
	for v, x := range f.regs {
		regs[v] = x
	}
	return &frame{regs: regs, memory: f.memory.Clone(), speculative: true}
}

// subst rewrites e over the inputs of the path. Variables never assigned are inputs.
func (f *frame) subst(e ir.Expression) ir.Expression {
	return ir.Substitute(e, func(v ir.Variable) (ir.Expression, bool) {
		x, ok := f.regs[v]
		return x, ok
	})
}

// run executes one path.
type run struct {
	e      *Executor
	state  *arch.State
	shadow *arch.Cache
	arch   *frame
	pc     *solver.PathCondition
	model  *solver.Model
	pos    int
	specs  []*trace.Speculation
	result *PathResult
}

func (e *Executor) newRun(id int) *run {
	s := e.options.initialState(e.params)
	r := &run{
		e:      e,
		state:  s,
		shadow: s.Cache.Clone(),
		arch:   &frame{regs: make(map[ir.Variable]ir.Expression), memory: s.Memory},
		pc:     &solver.PathCondition{},
		model:  solver.NewModel(),
		result: &PathResult{ID: id},
	}
	r.observe(false)
	return r
}

// execute runs p to its end. Infeasibility and failures end the path early
// and are recorded in the result.
func (r *run) execute(ctx context.Context, p path) *PathResult {
	g := r.e.program.Graph()
	entry, _ := g.Entry()

	err := r.block(ctx, entry)
	for i := 0; err == nil && i < len(p.edges); i++ {
		err = r.transition(ctx, p.edges[i])
		if err == nil {
			r.pos++
			err = r.block(ctx, p.edges[i].Tail)
		}
	}
	if err == nil {
		err = r.check(ctx)
	}
	if err == nil && r.e.options.UnwindingGuard == UnwindAssertion {
		err = r.unwinding(ctx, p.cut)
	}

	res := r.result
	res.Trace = trace.NewTrace(entry, p.edges[:r.pos], p.complete && r.pos == len(p.edges))
	for _, s := range r.specs {
		res.Trace.AddSpeculation(s)
	}
	res.Condition = r.pc
	res.Final = r.state
	res.ArchCache = r.shadow
	switch {
	case err == nil:
		res.Feasible = true
		res.Model = r.model
	case errors.Is(err, errInfeasible):
	default:
		res.Abandoned = err
	}
	return res
}

func (r *run) observe(speculative bool) {
	r.result.Steps = append(r.result.Steps, Step{
		Pos:           r.pos,
		Speculative:   speculative,
		Observation:   r.state.Observation(),
		Architectural: r.shadow.Observation(),
	})
}

func (r *run) emit(ev cex.Event) {
	r.result.Events = append(r.result.Events, ev)
}

// check solves the path condition and keeps the model.
func (r *run) check(ctx context.Context) error {
	m, err := r.e.pool.Solve(ctx, r.pc.Assertions())
	if solver.IsUnsat(err) {
		return errInfeasible
	}
	if err != nil {
		return err
	}
	r.model = m
	return nil
}

func (r *run) block(ctx context.Context, n int) error {
	b := r.e.program.Graph().MustNode(n)
	for i, instr := range b.Instructions() {
		if _, err := r.instruction(ctx, r.arch, n, i, instr); err != nil {
			return err
		}
	}
	return nil
}

// concretize evaluates addr under the latest model. Architectural accesses
// pin a symbolic address to the chosen value in the path condition.
func (r *run) concretize(f *frame, addr ir.Expression) (uint64, error) {
	a := f.subst(addr)
	c, err := r.model.Evaluate(a)
	if err != nil {
		return 0, errors.Wrapf(err, "concretizing %s", a)
	}
	_, constant := a.(ir.Constant)
	switch {
	case f.speculative:
		r.result.TransientAddresses = append(r.result.TransientAddresses, a)
	case !constant:
		r.pc.Assume(ir.Eq(a, c))
	}
	return c.Uint64(), nil
}

func (r *run) fetch(f *frame, n, i int, addr uint64, width uint) {
	size := uint64(width+7) / 8
	r.state.Cache.Fetch(addr, size)
	eff := cex.NewCacheFetch(addr, width)
	if f.speculative {
		eff = eff.Transient()
	} else {
		r.shadow.Fetch(addr, size)
	}
	r.emit(cex.EffectEvent(n, i, eff))
}

func (r *run) assign(f *frame, n, i int, v ir.Variable, x ir.Expression) {
	f.regs[v] = x
	r.emit(cex.AssignmentEvent(n, i, v, x, f.speculative))
}

// instruction executes the i-th instruction of block n and reports whether
// speculation must stop.
func (r *run) instruction(ctx context.Context, f *frame, n, i int, instr ir.Instruction) (bool, error) {
	switch instr.Kind {
	case ir.Assign:
		r.assign(f, n, i, instr.Variable, f.subst(instr.Expr))
	case ir.Assume:
		if f.speculative {
			break
		}
		r.pc.Assume(f.subst(instr.Expr))
		if err := r.check(ctx); err != nil {
			return false, err
		}
	case ir.Assert:
		if f.speculative {
			break
		}
		if err := r.assert(ctx, n, i, f.subst(instr.Expr)); err != nil {
			return false, err
		}
	case ir.LoadInstr:
		addr, err := r.concretize(f, instr.Address)
		if err != nil {
			return false, err
		}
		width := instr.Variable.Sort().Width()
		r.fetch(f, n, i, addr, width)
		r.assign(f, n, i, instr.Variable, f.memory.Load(addr, width))
	case ir.StoreInstr:
		addr, err := r.concretize(f, instr.Address)
		if err != nil {
			return false, err
		}
		value := f.subst(instr.Expr)
		f.memory.Store(addr, value)
		r.fetch(f, n, i, addr, value.Sort().Width())
	case ir.Flush:
		r.state.Cache.Flush()
		eff := cex.NewCacheFlush()
		if f.speculative {
			eff = eff.Transient()
		} else {
			r.shadow.Flush()
		}
		r.emit(cex.EffectEvent(n, i, eff))
	case ir.Barrier:
		if f.speculative {
			return true, nil
		}
	}
	r.observe(f.speculative)
	return false, nil
}

func (r *run) assert(ctx context.Context, n, i int, cond ir.Expression) error {
	m, err := r.e.pool.Solve(ctx, append(r.pc.Assertions(), ir.Not(cond)))
	switch {
	case err == nil:
		r.result.Failures = append(r.result.Failures, AssertionFailure{Block: n, Instruction: i, Model: m})
		r.e.warn(r.result.ID, "assertion may fail", "block", n, "instruction", i)
	case !solver.IsUnsat(err):
		return err
	}
	r.pc.Assume(cond)
	return nil
}

// unwinding records a failure when the path can take one of the edges cut
// by the unwind bound.
func (r *run) unwinding(ctx context.Context, cut []ir.GuardedEdge) error {
	for _, e := range cut {
		assertions := r.pc.Assertions()
		if e.Condition != nil {
			assertions = append(assertions, r.arch.subst(e.Condition))
		}
		m, err := r.e.pool.Solve(ctx, assertions)
		switch {
		case err == nil:
			r.result.Failures = append(r.result.Failures, AssertionFailure{Block: e.Head, Instruction: -1, Model: m})
			r.e.warn(r.result.ID, "unwind bound may be exceeded", "block", e.Head, "successor", e.Tail)
			return nil
		case !solver.IsUnsat(err):
			return err
		}
	}
	return nil
}

// location is the predictor key of the branch leaving block n.
func (r *run) location(n int) uint64 {
	b := r.e.program.Graph().MustNode(n)
	instrs := b.Instructions()
	if len(instrs) > 0 && instrs[len(instrs)-1].Location != 0 {
		return instrs[len(instrs)-1].Location
	}
	return uint64(n)
}

// transition takes e. A guarded edge adds a branch to the path condition,
// which must stay feasible, and may trigger a speculation.
func (r *run) transition(ctx context.Context, e ir.GuardedEdge) error {
	if e.Condition == nil {
		return nil
	}
	b := trace.NewIf(e)
	loc := r.location(e.Head)
	r.pc.AddBranch(solver.Branch{
		Edge:      e.Edge,
		Condition: r.arch.subst(b.Cond()),
		Direction: b.Direction,
		Location:  loc,
	})
	if err := r.check(ctx); err != nil {
		return err
	}

	if r.e.options.SpectrePHT && r.mispredicted(loc, b.Direction) {
		if alt, ok := r.alternative(e, b.Direction); ok {
			if err := r.speculate(ctx, alt); err != nil {
				return err
			}
		}
	}

	r.state.Predictor.Update(loc, b.Direction, uint64(e.Tail))
	r.emit(cex.EffectEvent(e.Head, -1, cex.NewBranchCondition(loc, b.Direction)))
	if b.Direction && r.state.Predictor.BTB() != nil {
		r.emit(cex.EffectEvent(e.Head, -1, cex.NewBranchTarget(loc, uint64(e.Tail))))
	}
	return nil
}

func (r *run) mispredicted(loc uint64, taken bool) bool {
	if r.e.options.Predictor == PredictInverted {
		return true
	}
	return r.state.Predictor.Predict(loc).Taken != taken
}

// alternative returns the edge the branch at the head of e would take in the other direction.
func (r *run) alternative(e ir.GuardedEdge, direction bool) (ir.GuardedEdge, bool) {
	var fallback *ir.GuardedEdge
	for _, o := range r.e.program.Graph().OutgoingEdges(e.Head) {
		if o.Tail == e.Tail {
			continue
		}
		if o.Condition != nil && trace.NewIf(o).Direction != direction {
			return o, true
		}
		if fallback == nil {
			o := o
			fallback = &o
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return ir.GuardedEdge{}, false
}

// speculate executes transiently from the tail of e for at most the
// speculation window. Registers and memory are rolled back afterwards;
// the cache keeps what the transient accesses brought in.
func (r *run) speculate(ctx context.Context, e ir.GuardedEdge) error {
	g := r.e.program.Graph()
	exit, _ := g.Exit()
	window := r.e.options.SpeculationWindow
	f := r.arch.clone()
	pos := r.pos
	r.pos++
	defer func() { r.pos = pos }()

	// Blocks without instructions consume no steps, so the blocks visited
	// are bounded by the window too.
	steps := 0
	n := e.Tail
loop:
	for hops := 0; steps < window && hops <= window; hops++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, instr := range g.MustNode(n).Instructions() {
			if steps == window {
				break loop
			}
			stop, err := r.instruction(ctx, f, n, i, instr)
			if err != nil {
				return err
			}
			if stop {
				break loop
			}
			steps++
		}
		next, ok := r.predictedSuccessor(n)
		if n == exit || !ok {
			break
		}
		n = next
	}

	r.specs = append(r.specs, trace.NewSpeculation(e, steps))
	r.result.SpeculativeSteps += steps
	return nil
}

// predictedSuccessor follows the predictor at a conditional branch and the
// first edge otherwise.
func (r *run) predictedSuccessor(n int) (int, bool) {
	out := r.e.program.Graph().OutgoingEdges(n)
	if len(out) == 0 {
		return 0, false
	}
	taken := r.state.Predictor.Predict(r.location(n)).Taken
	for _, o := range out {
		if o.Condition != nil && trace.NewIf(o).Direction == taken {
			return o.Tail, true
		}
	}
	return out[0].Tail, true
}
