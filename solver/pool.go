package solver

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/ajalab/leakcheck/ir"
)

// Pool bounds the number of queries in flight on a Solver.
// Callers block while the bound is reached.
type Pool struct {
	solver Solver
	sem    *semaphore.Weighted

	queries atomic.Int64
	sat     atomic.Int64
	unsat   atomic.Int64
	failed  atomic.Int64
	elapsed atomic.Int64
}

// NewPool returns a pool allowing at most maxInFlight concurrent queries.
func NewPool(s Solver, maxInFlight int) *Pool {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Pool{solver: s, sem: semaphore.NewWeighted(int64(maxInFlight))}
}

// Solve runs a query once a slot is free.
func (p *Pool) Solve(ctx context.Context, assertions []ir.Expression) (*Model, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "waiting for a solver slot")
	}
	defer p.sem.Release(1)

	start := time.Now()
	m, err := p.solver.Solve(ctx, assertions)
	p.elapsed.Add(int64(time.Since(start)))
	p.queries.Add(1)
	switch {
	case err == nil:
		p.sat.Add(1)
	case IsUnsat(err):
		p.unsat.Add(1)
	default:
		p.failed.Add(1)
	}
	return m, err
}

// Stats is a snapshot of the counters of a Pool.
type Stats struct {
	Queries int64
	Sat     int64
	Unsat   int64
	Failed  int64
	Elapsed time.Duration
}

// Stats returns the counters of p.
func (p *Pool) Stats() Stats {
	return Stats{
		Queries: p.queries.Load(),
		Sat:     p.sat.Load(),
		Unsat:   p.unsat.Load(),
		Failed:  p.failed.Load(),
		Elapsed: time.Duration(p.elapsed.Load()),
	}
}
