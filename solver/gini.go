package solver

import (
	"context"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/z"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/ajalab/leakcheck/ir"
	"github.com/ajalab/leakcheck/log"
)

const pollInterval = 5 * time.Millisecond

// GiniSolver bit-blasts assertions into a circuit and decides it with the gini SAT solver.
// Each call to Solve is independent, so a GiniSolver may be shared by goroutines.
type GiniSolver struct {
	// Timeout bounds a single query. Zero means no bound.
	Timeout time.Duration
}

// NewGiniSolver returns a solver with a per-query timeout.
func NewGiniSolver(timeout time.Duration) *GiniSolver {
	return &GiniSolver{Timeout: timeout}
}

// Solve returns a model of the conjunction of assertions.
func (s *GiniSolver) Solve(ctx context.Context, assertions []ir.Expression) (*Model, error) {
	if err := Check(assertions); err != nil {
		return nil, err
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "solver")
	}

	b := newBlaster()
	roots := make([]z.Lit, 0, len(assertions)+1)
	for _, a := range assertions {
		roots = append(roots, b.blastBool(a))
	}
	roots = append(roots, b.consistency())
	root := b.c.Ands(roots...)
	if root == b.c.F {
		return nil, UnsatError{}
	}

	g := gini.New()
	b.c.ToCnf(g)
	g.Assume(root)
	log.Debug.Printf("solver: %d assertions, %d circuit nodes, %d memory reads", len(assertions), b.c.Len(), len(b.reads))

	res, err := wait(ctx, g.GoSolve())
	if err != nil {
		return nil, err
	}
	if res < 0 {
		return nil, UnsatError{}
	}
	return b.model(g), nil
}

func wait(ctx context.Context, gs inter.Solve) (int, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if res, done := gs.Test(); done {
			if res == 0 {
				return 0, errors.New("solver: unknown result")
			}
			return res, nil
		}
		select {
		case <-ctx.Done():
			gs.Stop()
			return 0, errors.Wrap(ctx.Err(), "solver")
		case <-ticker.C:
		}
	}
}

func (b *blaster) value(g inter.Model, x bits) *uint256.Int {
	v := new(uint256.Int)
	for i, l := range x {
		if g.Value(l) {
			v[i/64] |= 1 << (uint(i) % 64)
		}
	}
	return v
}

func (b *blaster) model(g inter.Model) *Model {
	m := NewModel()
	for name, x := range b.vars {
		sort := b.sorts[name]
		if sort.IsBool() {
			m.Set(name, ir.BoolConst(g.Value(x[0])))
			continue
		}
		m.Set(name, ir.BitVectorConst(b.value(g, x), sort.Width()))
	}
	for _, r := range b.reads {
		addr := b.value(g, r.addr)
		m.SetMemory(r.mem.Name(), addr.Uint64(), ir.BitVectorConst(b.value(g, r.value), uint(len(r.value))))
	}
	return m
}
