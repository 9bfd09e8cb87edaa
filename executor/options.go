package executor

import (
	"runtime"
	"time"

	"github.com/pkg/errors"

	"github.com/ajalab/leakcheck/arch"
)

// Check selects which observation differences count as leaks.
type Check int

const (
	// CheckAll reports any difference of the observable cache.
	CheckAll Check = iota
	// CheckNormal reports differences caused by architectural accesses only.
	CheckNormal
	// CheckTransient reports differences that appear only through speculative accesses.
	CheckTransient
)

func (c Check) String() string {
	switch c {
	case CheckNormal:
		return "normal"
	case CheckTransient:
		return "transient"
	}
	return "all"
}

// ParseCheck returns the Check named name. The empty name selects CheckAll.
func ParseCheck(name string) (Check, error) {
	switch name {
	case "", "all", "all_leaks":
		return CheckAll, nil
	case "normal", "only_normal_leaks":
		return CheckNormal, nil
	case "transient", "only_transient_leaks":
		return CheckTransient, nil
	}
	return CheckAll, errors.Errorf("unknown check %q", name)
}

func (c Check) differs(a, b Step) bool {
	switch c {
	case CheckNormal:
		return !a.Architectural.Equal(b.Architectural)
	case CheckTransient:
		return !a.Observation.Equal(b.Observation) && a.Architectural.Equal(b.Architectural)
	}
	return !a.Observation.Equal(b.Observation)
}

// PredictorStrategy decides when a conditional branch is mispredicted.
type PredictorStrategy int

const (
	// PredictByTable consults the pattern history table of the path.
	PredictByTable PredictorStrategy = iota
	// PredictInverted mispredicts every conditional branch.
	PredictInverted
)

func (s PredictorStrategy) String() string {
	if s == PredictInverted {
		return "invert_condition"
	}
	return "pht"
}

// ParsePredictorStrategy returns the strategy named name. The empty name selects PredictByTable.
func ParsePredictorStrategy(name string) (PredictorStrategy, error) {
	switch name {
	case "", "pht":
		return PredictByTable, nil
	case "invert_condition":
		return PredictInverted, nil
	}
	return PredictByTable, errors.Errorf("unknown predictor strategy %q", name)
}

// Observe selects the points at which the attacker observes the cache.
type Observe int

const (
	// ObserveSequential observes after every step.
	ObserveSequential Observe = iota
	// ObserveFinal observes the final state only.
	ObserveFinal
)

func (o Observe) String() string {
	if o == ObserveFinal {
		return "final"
	}
	return "sequential"
}

// ParseObserve returns the Observe named name. The empty name selects ObserveSequential.
func ParseObserve(name string) (Observe, error) {
	switch name {
	case "", "sequential":
		return ObserveSequential, nil
	case "final":
		return ObserveFinal, nil
	}
	return ObserveSequential, errors.Errorf("unknown observation mode %q", name)
}

// UnwindingGuard decides what a path cut by the unwind bound means.
type UnwindingGuard int

const (
	// UnwindAssumption assumes the program never iterates beyond the bound:
	// the cut path is explored up to the bound and nothing else is reported.
	UnwindAssumption UnwindingGuard = iota
	// UnwindAssertion also records an assertion failure on every feasible cut
	// path, so that an insufficient bound is reported.
	UnwindAssertion
)

func (u UnwindingGuard) String() string {
	if u == UnwindAssertion {
		return "assertion"
	}
	return "assumption"
}

// ParseUnwindingGuard returns the guard named name. The empty name selects UnwindAssumption.
func ParseUnwindingGuard(name string) (UnwindingGuard, error) {
	switch name {
	case "", "assumption":
		return UnwindAssumption, nil
	case "assertion":
		return UnwindAssertion, nil
	}
	return UnwindAssumption, errors.Errorf("unknown unwinding guard %q", name)
}

// Options controls an exploration.
type Options struct {
	// Workers is the number of paths executed concurrently.
	Workers int
	// MaxInFlightQueries bounds the solver queries in flight across workers.
	MaxInFlightQueries int
	// Unwind is the number of times a block may appear on one path.
	Unwind         int
	UnwindingGuard UnwindingGuard
	// MaxPathLength is the number of blocks after which a path is cut.
	MaxPathLength int
	// MaxPaths bounds the number of enumerated paths.
	MaxPaths int
	// SpeculationWindow is the number of instructions executed on a mispredicted branch.
	SpeculationWindow int
	SpectrePHT        bool
	Predictor         PredictorStrategy
	// StartWithEmptyCache starts every path with an empty cache instead of one
	// filled with unrelated lines.
	StartWithEmptyCache bool
	Check               Check
	Observe             Observe
	MaxCounterExamples  int
	// Timeout bounds the whole exploration and PathTimeout a single path. Zero means no bound.
	Timeout     time.Duration
	PathTimeout time.Duration
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	n := runtime.NumCPU()
	return Options{
		Workers:             n,
		MaxInFlightQueries:  n,
		Unwind:              2,
		UnwindingGuard:      UnwindAssumption,
		MaxPathLength:       256,
		MaxPaths:            4096,
		SpeculationWindow:   8,
		SpectrePHT:          true,
		Predictor:           PredictByTable,
		StartWithEmptyCache: true,
		Check:               CheckAll,
		Observe:             ObserveSequential,
		MaxCounterExamples:  4,
	}
}

// Validate reports options the executor cannot run with.
func (o Options) Validate() error {
	switch {
	case o.Workers <= 0:
		return errors.Errorf("workers must be positive, got %d", o.Workers)
	case o.MaxInFlightQueries <= 0:
		return errors.Errorf("max in-flight queries must be positive, got %d", o.MaxInFlightQueries)
	case o.Unwind <= 0:
		return errors.Errorf("unwind must be positive, got %d", o.Unwind)
	case o.MaxPathLength <= 0:
		return errors.Errorf("max path length must be positive, got %d", o.MaxPathLength)
	case o.MaxPaths <= 0:
		return errors.Errorf("max paths must be positive, got %d", o.MaxPaths)
	case o.SpeculationWindow < 0:
		return errors.Errorf("speculation window must not be negative, got %d", o.SpeculationWindow)
	case o.MaxCounterExamples <= 0:
		return errors.Errorf("max counterexamples must be positive, got %d", o.MaxCounterExamples)
	}
	return nil
}

func (o Options) initialState(p arch.Params) *arch.State {
	s := arch.NewState(p)
	if !o.StartWithEmptyCache {
		s.Cache.Prefill()
	}
	return s
}
