// Package leakcheck finds microarchitectural leaks in Go functions. A function
// is lifted to a program, simplified, and explored symbolically against
// models of the cache and the branch predictor; pairs of executions an
// attacker can tell apart are reported as counterexamples.
package leakcheck

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/ajalab/leakcheck/config"
	"github.com/ajalab/leakcheck/executor"
	"github.com/ajalab/leakcheck/ir"
	"github.com/ajalab/leakcheck/lift"
	"github.com/ajalab/leakcheck/log"
	"github.com/ajalab/leakcheck/pass"
	"github.com/ajalab/leakcheck/solver"
)

// LoadPackage loads a Go package from a package path or a file path and
// builds it in SSA form.
func LoadPackage(packageName string) (*ssa.Package, error) {
	conf := &packages.Config{
		Mode: packages.LoadAllSyntax,
	}
	query := packageName
	if strings.HasSuffix(packageName, ".go") {
		query = "file=" + packageName
	}
	pkgs, err := packages.Load(conf, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load the target package")
	}
	if len(pkgs) == 0 {
		return nil, errors.New("no packages could be loaded")
	}
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return nil, errors.Errorf("failed to load package %s: %v", pkg.PkgPath, pkg.Errors)
		}
		// It is possible that pkg.IllTyped becomes true but pkg.Errors has no error records.
		if pkg.IllTyped {
			return nil, errors.Errorf("package %s contains type error", pkg.PkgPath)
		}
	}

	prog, ssaPkgs := ssautil.AllPackages(pkgs, ssa.BuilderMode(0))
	for i, ssaPkg := range ssaPkgs {
		if ssaPkg == nil {
			return nil, errors.Errorf("failed to compile package %s into SSA form", pkgs[i])
		}
	}
	prog.Build()
	return ssaPkgs[0], nil
}

// LoadFunction loads the function funcName of a package.
func LoadFunction(packageName, funcName string) (*lift.Function, error) {
	pkg, err := LoadPackage(packageName)
	if err != nil {
		return nil, err
	}
	fn := pkg.Func(funcName)
	if fn == nil {
		return nil, errors.Errorf("function %s is not found in %s", funcName, pkg.Pkg.Path())
	}
	return lift.NewFunction(fn), nil
}

// Analyzer runs the analysis of functions in one environment.
type Analyzer struct {
	config *config.Config
	passes *pass.Pipeline
	memory ir.MemoryPolicy
}

// NewAnalyzer returns an analyzer for the environment c.
func NewAnalyzer(c *config.Config) (*Analyzer, error) {
	if c == nil {
		c = config.Default()
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	memory, err := c.MemoryPolicy()
	if err != nil {
		return nil, err
	}
	return &Analyzer{config: c, passes: pass.ForLevel(level), memory: memory}, nil
}

// Translate lifts fn under the input policy of the environment and
// simplifies the program.
func (a *Analyzer) Translate(fn *lift.Function) (*ir.Program, error) {
	fn.Declare(a.config.Policy.Secret, a.config.Policy.Public)
	p, err := ir.TryTranslateFrom[*ir.Program](fn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to translate %s", fn.Name())
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrapf(err, "program %s", p.Name())
	}
	p.SetMemoryPolicy(a.memory)
	log.Debug.Printf("translated %s:\n%s", fn.Name(), p)
	if err := a.passes.Run(p); err != nil {
		log.Warn.With("program", p.Name(), "reason", err.Error()).Print("simplification skipped")
	}
	return p, nil
}

// Analyze translates fn and explores it.
func (a *Analyzer) Analyze(ctx context.Context, fn *lift.Function) (*executor.Result, error) {
	p, err := a.Translate(fn)
	if err != nil {
		return nil, err
	}
	return a.Explore(ctx, p)
}

// Explore explores a program.
func (a *Analyzer) Explore(ctx context.Context, p *ir.Program) (*executor.Result, error) {
	params, err := a.config.Params()
	if err != nil {
		return nil, err
	}
	opts, err := a.config.Options()
	if err != nil {
		return nil, err
	}
	s := solver.NewGiniSolver(a.config.Solver.QueryTimeout)
	log.Info.With("program", p.Name(), "secrets", p.Secrets()).Print("analyzing")
	return executor.New(p, params, s, opts).Run(ctx)
}
