// Package executor explores the paths of a program symbolically against the
// microarchitectural models and reports pairs of paths an attacker can tell apart.
//
// Every path is an independent unit of work: it owns a copy of the models,
// a register store mapping variables to expressions over the inputs, and a
// path condition whose feasibility is checked with the solver at every
// guarded edge. Memory addresses are concretized with the latest model.
// After all paths have run, pairs forking at a conditional branch are
// compared step by step, and every path with speculation is compared with
// its own architectural execution.
package executor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ajalab/leakcheck/arch"
	"github.com/ajalab/leakcheck/cex"
	"github.com/ajalab/leakcheck/ir"
	"github.com/ajalab/leakcheck/log"
	"github.com/ajalab/leakcheck/solver"
	"github.com/ajalab/leakcheck/trace"
)

// Executor explores a program.
type Executor struct {
	program   *ir.Program
	params    arch.Params
	options   Options
	pool      *solver.Pool
	predicate LeakPredicate
	limiter   *rate.Limiter
}

// New returns an executor of p querying s. The leak predicate defaults to DependsOnSecret.
func New(p *ir.Program, params arch.Params, s solver.Solver, opts Options) *Executor {
	return &Executor{
		program:   p,
		params:    params,
		options:   opts,
		pool:      solver.NewPool(s, opts.MaxInFlightQueries),
		predicate: DependsOnSecret,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// SetPredicate replaces the leak predicate.
func (e *Executor) SetPredicate(pred LeakPredicate) {
	e.predicate = pred
}

// Leak is a divergence accepted by the leak predicate.
type Leak struct {
	Divergence     *Divergence
	CounterExample *cex.CounterExample
}

// Stats summarizes an exploration.
type Stats struct {
	Paths             int
	Feasible          int
	Infeasible        int
	Abandoned         int
	Truncated         bool
	Speculations      int
	SpeculativeSteps  int
	AssertionFailures int
	Solver            solver.Stats
	Elapsed           time.Duration
}

// Result is the outcome of Run.
type Result struct {
	Program *ir.Program
	Paths   []*PathResult
	Leaks   []*Leak
	Stats   Stats
}

// Safe reports whether no leak was found.
func (r *Result) Safe() bool {
	return len(r.Leaks) == 0
}

func (e *Executor) warn(path int, msg string, kv ...interface{}) {
	if !e.limiter.Allow() {
		return
	}
	log.Warn.With(append([]interface{}{"path", path}, kv...)...).Print(msg)
}

// Run explores every path and reports the leaks. The program is validated
// before any query reaches the solver. Canceling ctx aborts the outstanding
// paths; a path exceeding its own budget is abandoned alone.
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	if err := e.options.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}
	if err := e.program.Validate(); err != nil {
		return nil, errors.Wrapf(err, "program %s", e.program.Name())
	}
	if e.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.options.Timeout)
		defer cancel()
	}

	paths, truncated := enumerate(e.program.Graph(), e.options.Unwind, e.options.MaxPathLength, e.options.MaxPaths, e.options.UnwindingGuard)
	if truncated {
		log.Warn.With("program", e.program.Name(), "paths", len(paths)).Print("path enumeration truncated")
	}
	log.Info.With("program", e.program.Name(), "paths", len(paths), "workers", e.options.Workers).Print("exploring")

	results := make([]*PathResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.options.Workers)
	for i := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r, err := e.runPath(gctx, i, paths[i])
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "exploration aborted")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "exploration aborted")
	}

	res := &Result{Program: e.program, Paths: results}
	leaks, err := e.detect(results)
	if err != nil {
		return nil, err
	}
	res.Leaks = leaks
	res.Stats = e.stats(results, truncated)
	res.Stats.Elapsed = time.Since(start)
	log.Info.With(
		"paths", res.Stats.Paths,
		"feasible", res.Stats.Feasible,
		"leaks", len(res.Leaks),
		"queries", res.Stats.Solver.Queries,
	).Print("exploration finished")
	return res, nil
}

func (e *Executor) runPath(ctx context.Context, id int, p path) (*PathResult, error) {
	pctx := ctx
	if e.options.PathTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, e.options.PathTimeout)
		defer cancel()
	}
	r := e.newRun(id).execute(pctx, p)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Abandoned != nil {
		e.warn(id, "path abandoned", "reason", r.Abandoned.Error())
	}
	log.Debug.Printf("path %d: %s feasible=%v", id, r.Trace, r.Feasible)
	return r, nil
}

// detect compares every pair of feasible paths in enumeration order and
// builds a counterexample for the first divergence of every fork.
func (e *Executor) detect(results []*PathResult) ([]*Leak, error) {
	var feasible []*PathResult
	for _, r := range results {
		if r.Feasible {
			feasible = append(feasible, r)
		}
	}

	b := cex.NewBuilder(e.program)
	seen := make(map[forkKey]bool)
	var leaks []*Leak
	for i, a := range feasible {
		for _, c := range feasible[i+1:] {
			d := e.diverge(a, c)
			if d == nil {
				continue
			}
			k := forkKey{block: d.Block, a: a.Trace.Blocks()[d.Fork+1], b: c.Trace.Blocks()[d.Fork+1]}
			if seen[k] || !e.predicate(e.program, d) {
				continue
			}
			seen[k] = true
			ce, err := b.Build(e.fork(d), execution(a), execution(c))
			if err != nil {
				return nil, errors.Wrapf(err, "building counterexample for paths %d and %d", a.ID, c.ID)
			}
			leaks = append(leaks, &Leak{Divergence: d, CounterExample: ce})
			log.Info.With("block", d.Block, "step", d.Step, "paths", []int{a.ID, c.ID}).Print("leak found")
			if len(leaks) == e.options.MaxCounterExamples {
				return leaks, nil
			}
		}
	}

	for _, r := range feasible {
		d := e.speculate(r)
		if d == nil {
			continue
		}
		k := forkKey{block: d.Block, a: r.Trace.Blocks()[d.Fork+1], b: -1}
		if seen[k] || !e.predicate(e.program, d) {
			continue
		}
		seen[k] = true
		ce, err := b.Build(e.fork(d), execution(r), architectural(r))
		if err != nil {
			return nil, errors.Wrapf(err, "building counterexample for path %d", r.ID)
		}
		leaks = append(leaks, &Leak{Divergence: d, CounterExample: ce})
		log.Info.With("block", d.Block, "step", d.Step, "path", r.ID).Print("transient leak found")
		if len(leaks) == e.options.MaxCounterExamples {
			break
		}
	}
	return leaks, nil
}

func (e *Executor) fork(d *Divergence) cex.Fork {
	f := cex.Fork{Block: d.Block, Guard: d.Guard, Step: d.Step}
	for i, s := range d.Observations {
		f.Observations[i] = s.Observation
		if e.options.Check == CheckNormal {
			f.Observations[i] = s.Architectural
		}
	}
	return f
}

func execution(r *PathResult) cex.Execution {
	return cex.Execution{
		Trace:  r.Trace,
		Model:  r.Model,
		Cache:  r.Final.Cache,
		Events: r.Events,
	}
}

// architectural returns r without its speculative part.
func architectural(r *PathResult) cex.Execution {
	var events []cex.Event
	for _, ev := range r.Events {
		if !ev.Speculative {
			events = append(events, ev)
		}
	}
	blocks := r.Trace.Blocks()
	return cex.Execution{
		Trace:  trace.NewTrace(blocks[0], r.Trace.Edges(), r.Trace.IsComplete()),
		Model:  r.Model,
		Cache:  r.ArchCache,
		Events: events,
	}
}

func (e *Executor) stats(results []*PathResult, truncated bool) Stats {
	st := Stats{Paths: len(results), Truncated: truncated, Solver: e.pool.Stats()}
	for _, r := range results {
		switch {
		case r.Feasible:
			st.Feasible++
		case r.Abandoned != nil:
			st.Abandoned++
		default:
			st.Infeasible++
		}
		st.Speculations += r.Trace.NumBranches() - len(r.Trace.Ifs())
		st.SpeculativeSteps += r.SpeculativeSteps
		st.AssertionFailures += len(r.Failures)
	}
	return st
}
