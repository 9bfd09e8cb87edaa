// Command leakcheck analyses a Go function for cache and branch predictor
// leaks.
//
//	leakcheck [flags] package function
//
// The package is an import path or a .go file. The exit status is 0 when no
// leak is found, 2 when one is found and 1 on errors.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/ajalab/leakcheck"
	"github.com/ajalab/leakcheck/config"
	"github.com/ajalab/leakcheck/executor"
	"github.com/ajalab/leakcheck/log"
	"github.com/ajalab/leakcheck/report"
)

const (
	exitSafe  = 0
	exitError = 1
	exitLeak  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath string
	dumpDir    string
	dotDir     string
	logLevel   string
	noColor    bool
	stats      bool
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	var o options
	fs := flag.NewFlagSet("leakcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "configuration file (YAML)")
	fs.StringVar(&o.dumpDir, "dump", "", "directory receiving a text dump of each counterexample")
	fs.StringVar(&o.dotDir, "dot", "", "directory receiving a DOT rendering of each counterexample")
	fs.StringVar(&o.logLevel, "log", "", "log level, overriding the configuration")
	fs.BoolVar(&o.noColor, "no-color", false, "disable colored output")
	fs.BoolVar(&o.stats, "stats", false, "print exploration statistics")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: leakcheck [flags] package function")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return nil, nil, errors.New("expected a package and a function")
	}
	return &o, fs.Args(), nil
}

func useColors(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, rest, err := parseFlags(args, stderr)
	if err != nil {
		return exitError
	}
	printer := report.NewPrinter(stdout, !o.noColor && useColors(stdout))

	c := config.Default()
	if o.configPath != "" {
		if c, err = config.Load(o.configPath); err != nil {
			printer.Diagnostic(err)
			return exitError
		}
	}
	if o.logLevel != "" {
		c.Log.Level = o.logLevel
	}
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		printer.Diagnostic(err)
		return exitError
	}
	log.SetOutput(stderr, false)
	log.SetLevel(level)

	analyzer, err := leakcheck.NewAnalyzer(c)
	if err != nil {
		printer.Diagnostic(err)
		return exitError
	}
	fn, err := leakcheck.LoadFunction(rest[0], rest[1])
	if err != nil {
		printer.Diagnostic(err)
		return exitError
	}
	res, err := analyzer.Analyze(ctx, fn)
	if err != nil {
		printer.Diagnostic(err)
		return exitError
	}

	if o.stats {
		printer.Stats(counters(res.Stats))
	}
	if res.Safe() {
		printer.Safe(fn.Name())
		return exitSafe
	}
	printer.Unsafe(fn.Name(), len(res.Leaks))
	for _, l := range res.Leaks {
		if err := writeLeak(printer, o, l); err != nil {
			printer.Diagnostic(err)
			return exitError
		}
	}
	return exitLeak
}

type description string

func (d description) String() string { return string(d) }

func writeLeak(printer *report.Printer, o *options, l *executor.Leak) error {
	ce := l.CounterExample
	id := ce.ID().String()
	printer.Leak(id, l.Divergence.Block, l.Divergence.Step, description(ce.Describe()))
	if o.dumpDir != "" {
		path := filepath.Join(o.dumpDir, id+".txt")
		if err := report.DumpToFile(path, ce); err != nil {
			return err
		}
		printer.Written("dump", path)
	}
	if o.dotDir != "" {
		path := filepath.Join(o.dotDir, id+".dot")
		if err := report.RenderToFile(path, ce); err != nil {
			return err
		}
		printer.Written("graph", path)
	}
	return nil
}

func counters(s executor.Stats) map[string]interface{} {
	return map[string]interface{}{
		"paths":             s.Paths,
		"feasible":          s.Feasible,
		"infeasible":        s.Infeasible,
		"abandoned":         s.Abandoned,
		"truncated":         s.Truncated,
		"speculations":      s.Speculations,
		"speculative steps": s.SpeculativeSteps,
		"assertions failed": s.AssertionFailures,
		"queries":           s.Solver.Queries,
		"elapsed":           s.Elapsed,
	}
}
