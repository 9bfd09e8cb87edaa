// Package solver decides the satisfiability of IR path conditions and
// extracts concrete models from satisfiable ones.
package solver

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ajalab/leakcheck/ir"
)

// Solver decides conjunctions of Boolean expressions.
type Solver interface {
	// Solve returns a model of the conjunction of assertions, or UnsatError.
	Solve(ctx context.Context, assertions []ir.Expression) (*Model, error)
}

// UnsatError is an error describing that the assertions were unsatisfied.
type UnsatError struct{}

func (ue UnsatError) Error() string {
	return "unsat"
}

// IsUnsat reports whether err was caused by unsatisfiable assertions.
func IsUnsat(err error) bool {
	var ue UnsatError
	return errors.As(err, &ue)
}

// Check validates every assertion and requires it to be Boolean.
// It runs before any solving work.
func Check(assertions []ir.Expression) error {
	sorts := make(map[string]ir.Sort)
	for i, a := range assertions {
		if err := a.Validate(); err != nil {
			return errors.Wrapf(err, "assertion %d", i)
		}
		if s := a.Sort(); !s.IsBool() {
			return ir.Errorf(ir.SortMismatch, a, "assertion %d is %s, expected Bool", i, s.Describe())
		}
		for _, v := range ir.Variables(a) {
			s, ok := sorts[v.Name()]
			if !ok {
				sorts[v.Name()] = v.Sort()
				continue
			}
			if s != v.Sort() {
				return ir.Errorf(ir.SortMismatch, v, "assertion %d uses %s as %s, previously %s",
					i, v.Name(), v.Sort().Describe(), s.Describe())
			}
		}
	}
	return nil
}
