// Package config reads the environment of an analysis from YAML: the
// microarchitecture to model, the exploration bounds, the input policy and
// the solver resources.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ajalab/leakcheck/arch"
	"github.com/ajalab/leakcheck/executor"
	"github.com/ajalab/leakcheck/ir"
	"github.com/ajalab/leakcheck/log"
	"github.com/ajalab/leakcheck/pass"
)

// Config is the environment of an analysis.
type Config struct {
	// Optimization is the level of the pass pipeline run before the analysis:
	// none, basic or full.
	Optimization string       `yaml:"optimization"`
	Solver       Solver       `yaml:"solver"`
	Analysis     Analysis     `yaml:"analysis"`
	Architecture Architecture `yaml:"architecture"`
	Policy       Policy       `yaml:"policy"`
	Log          Log          `yaml:"log"`
}

// Solver bounds the solving resources.
type Solver struct {
	Workers     int           `yaml:"workers"`
	MaxInFlight int           `yaml:"max_in_flight"`
	Timeout     time.Duration `yaml:"timeout"`
	PathTimeout time.Duration `yaml:"path_timeout"`
	// QueryTimeout bounds a single solver query.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// Analysis bounds the exploration and selects the leaks to report.
type Analysis struct {
	SpectrePHT          bool   `yaml:"spectre_pht"`
	Unwind              int    `yaml:"unwind"`
	UnwindingGuard      string `yaml:"unwinding_guard"`
	MaxPathLength       int    `yaml:"max_path_length"`
	MaxPaths            int    `yaml:"max_paths"`
	StartWithEmptyCache bool   `yaml:"start_with_empty_cache"`
	SpeculationWindow   int    `yaml:"speculation_window"`
	Check               string `yaml:"check"`
	PredictorStrategy   string `yaml:"predictor_strategy"`
	Observe             string `yaml:"observe"`
	MaxCounterExamples  int    `yaml:"max_counterexamples"`
}

// Architecture describes the modeled microarchitecture.
type Architecture struct {
	Cache Cache `yaml:"cache"`
	BTB   BTB   `yaml:"btb"`
	PHT   PHT   `yaml:"pht"`
}

type Cache struct {
	Enabled  bool   `yaml:"enabled"`
	Sets     int    `yaml:"sets"`
	Ways     int    `yaml:"ways"`
	LineSize uint64 `yaml:"line_size"`
	Policy   string `yaml:"policy"`
}

type BTB struct {
	Enabled  bool   `yaml:"enabled"`
	Capacity int    `yaml:"capacity"`
	Policy   string `yaml:"policy"`
}

type PHT struct {
	Enabled     bool `yaml:"enabled"`
	Entries     int  `yaml:"entries"`
	CounterBits uint `yaml:"counter_bits"`
	HistoryBits uint `yaml:"history_bits"`
}

// Policy classifies the inputs of the analysed function by name, and the
// cells of its memory by address.
type Policy struct {
	Secret []string     `yaml:"secret"`
	Public []string     `yaml:"public"`
	Memory MemoryPolicy `yaml:"memory"`
}

// MemoryPolicy classifies memory cells as low (public) or high (secret).
// Cells listed in neither set take the default.
type MemoryPolicy struct {
	Default string   `yaml:"default"`
	Low     []uint64 `yaml:"low"`
	High    []uint64 `yaml:"high"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	opts := executor.DefaultOptions()
	p := arch.DefaultParams()
	return &Config{
		Optimization: pass.Full.String(),
		Solver: Solver{
			Workers:     opts.Workers,
			MaxInFlight: opts.MaxInFlightQueries,
		},
		Analysis: Analysis{
			SpectrePHT:          opts.SpectrePHT,
			Unwind:              opts.Unwind,
			UnwindingGuard:      opts.UnwindingGuard.String(),
			MaxPathLength:       opts.MaxPathLength,
			MaxPaths:            opts.MaxPaths,
			StartWithEmptyCache: opts.StartWithEmptyCache,
			SpeculationWindow:   opts.SpeculationWindow,
			Check:               opts.Check.String(),
			PredictorStrategy:   opts.Predictor.String(),
			Observe:             opts.Observe.String(),
			MaxCounterExamples:  opts.MaxCounterExamples,
		},
		Architecture: Architecture{
			Cache: Cache{Enabled: p.CacheEnabled, Sets: p.CacheSets, Ways: p.CacheWays, LineSize: p.CacheLineSize, Policy: p.CachePolicy.String()},
			BTB:   BTB{Enabled: p.BTBEnabled, Capacity: p.BTBCapacity, Policy: p.BTBPolicy.String()},
			PHT:   PHT{Enabled: p.PHTEnabled, Entries: p.PHTEntries, CounterBits: p.PHTCounterBits, HistoryBits: p.PHTHistoryBits},
		},
		Policy: Policy{Memory: MemoryPolicy{Default: "high"}},
		Log:    Log{Level: log.InfoLevel.String()},
	}
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the configuration")
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "configuration %s", path)
	}
	return c, nil
}

// Parse reads a YAML document over the defaults. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to parse the configuration")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports values the analysis cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.Params(); err != nil {
		return err
	}
	if _, err := c.Options(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log")
	}
	public := make(map[string]bool, len(c.Policy.Public))
	for _, n := range c.Policy.Public {
		public[n] = true
	}
	for _, n := range c.Policy.Secret {
		if public[n] {
			return errors.Errorf("policy: %s is both secret and public", n)
		}
	}
	if _, err := c.MemoryPolicy(); err != nil {
		return err
	}
	if c.Solver.QueryTimeout < 0 {
		return errors.Errorf("solver: negative query timeout %s", c.Solver.QueryTimeout)
	}
	return nil
}

// Params returns the parameters of the modeled microarchitecture.
func (c *Config) Params() (arch.Params, error) {
	a := c.Architecture
	switch {
	case a.Cache.Sets <= 0 || a.Cache.Ways <= 0 || a.Cache.LineSize == 0:
		return arch.Params{}, errors.Errorf("architecture: invalid cache geometry %d sets x %d ways x %d bytes",
			a.Cache.Sets, a.Cache.Ways, a.Cache.LineSize)
	case a.BTB.Capacity <= 0:
		return arch.Params{}, errors.Errorf("architecture: invalid btb capacity %d", a.BTB.Capacity)
	case a.PHT.Entries <= 0 || a.PHT.CounterBits == 0 || a.PHT.CounterBits > 8 || a.PHT.HistoryBits > 64:
		return arch.Params{}, errors.Errorf("architecture: invalid pht of %d entries x %d bits, %d history bits",
			a.PHT.Entries, a.PHT.CounterBits, a.PHT.HistoryBits)
	}
	cp, err := arch.ParsePolicy(a.Cache.Policy)
	if err != nil {
		return arch.Params{}, errors.Wrap(err, "architecture: cache")
	}
	bp, err := arch.ParsePolicy(a.BTB.Policy)
	if err != nil {
		return arch.Params{}, errors.Wrap(err, "architecture: btb")
	}
	return arch.Params{
		CacheEnabled:   a.Cache.Enabled,
		BTBEnabled:     a.BTB.Enabled,
		PHTEnabled:     a.PHT.Enabled,
		CacheSets:      a.Cache.Sets,
		CacheWays:      a.Cache.Ways,
		CacheLineSize:  a.Cache.LineSize,
		CachePolicy:    cp,
		BTBCapacity:    a.BTB.Capacity,
		BTBPolicy:      bp,
		PHTEntries:     a.PHT.Entries,
		PHTCounterBits: a.PHT.CounterBits,
		PHTHistoryBits: a.PHT.HistoryBits,
	}, nil
}

// MemoryPolicy returns the classification of memory cells.
func (c *Config) MemoryPolicy() (ir.MemoryPolicy, error) {
	m := c.Policy.Memory
	var public bool
	switch m.Default {
	case "", "high":
	case "low":
		public = true
	default:
		return ir.MemoryPolicy{}, errors.Errorf("policy: unknown memory default %q", m.Default)
	}
	high := make(map[uint64]bool, len(m.High))
	for _, a := range m.High {
		high[a] = true
	}
	for _, a := range m.Low {
		if high[a] {
			return ir.MemoryPolicy{}, errors.Errorf("policy: memory cell 0x%X is both low and high", a)
		}
	}
	return ir.NewMemoryPolicy(public, m.Low, m.High), nil
}

// Level returns the optimization level.
func (c *Config) Level() (pass.Level, error) {
	l, err := pass.ParseLevel(c.Optimization)
	if err != nil {
		return pass.None, errors.Wrap(err, "optimization")
	}
	return l, nil
}

// Options returns the options of the executor.
func (c *Config) Options() (executor.Options, error) {
	a := c.Analysis
	check, err := executor.ParseCheck(a.Check)
	if err != nil {
		return executor.Options{}, errors.Wrap(err, "analysis")
	}
	strategy, err := executor.ParsePredictorStrategy(a.PredictorStrategy)
	if err != nil {
		return executor.Options{}, errors.Wrap(err, "analysis")
	}
	observe, err := executor.ParseObserve(a.Observe)
	if err != nil {
		return executor.Options{}, errors.Wrap(err, "analysis")
	}
	guard, err := executor.ParseUnwindingGuard(a.UnwindingGuard)
	if err != nil {
		return executor.Options{}, errors.Wrap(err, "analysis")
	}
	opts := executor.Options{
		Workers:             c.Solver.Workers,
		MaxInFlightQueries:  c.Solver.MaxInFlight,
		Unwind:              a.Unwind,
		UnwindingGuard:      guard,
		MaxPathLength:       a.MaxPathLength,
		MaxPaths:            a.MaxPaths,
		SpeculationWindow:   a.SpeculationWindow,
		SpectrePHT:          a.SpectrePHT,
		Predictor:           strategy,
		StartWithEmptyCache: a.StartWithEmptyCache,
		Check:               check,
		Observe:             observe,
		MaxCounterExamples:  a.MaxCounterExamples,
		Timeout:             c.Solver.Timeout,
		PathTimeout:         c.Solver.PathTimeout,
	}
	if err := opts.Validate(); err != nil {
		return executor.Options{}, errors.Wrap(err, "analysis")
	}
	return opts, nil
}
