package arch

import (
	"fmt"

	"github.com/ajalab/leakcheck/ir"
)

// Params fixes the geometry and policies of the models of a State.
type Params struct {
	// CacheEnabled, BTBEnabled and PHTEnabled switch the models on. A disabled
	// cache holds nothing, so every access misses and nothing is observable.
	// Without a PHT every branch is predicted not taken; without a BTB no
	// target is recorded.
	CacheEnabled   bool
	BTBEnabled     bool
	PHTEnabled     bool
	CacheSets      int
	CacheWays      int
	CacheLineSize  uint64
	CachePolicy    Policy
	BTBCapacity    int
	BTBPolicy      Policy
	PHTEntries     int
	PHTCounterBits uint
	PHTHistoryBits uint
}

// DefaultParams returns a small configuration: 8 sets of 2 ways of 64-byte lines,
// a 16-entry BTB and a 256-entry PHT of 2-bit counters over 4 history bits.
func DefaultParams() Params {
	return Params{
		CacheEnabled:   true,
		BTBEnabled:     true,
		PHTEnabled:     true,
		CacheSets:      8,
		CacheWays:      2,
		CacheLineSize:  64,
		CachePolicy:    LRU,
		BTBCapacity:    16,
		BTBPolicy:      LRU,
		PHTEntries:     256,
		PHTCounterBits: 2,
		PHTHistoryBits: 4,
	}
}

// MemoryVariable is the base memory every program reads from.
var MemoryVariable = ir.MemoryVar("mem")

// State bundles the models owned by one execution path.
type State struct {
	Cache     *Cache
	Predictor *Predictor
	Memory    *Memory
}

// NewState returns a cold state.
func NewState(p Params) *State {
	c := NewCache(p.CacheSets, p.CacheWays, p.CacheLineSize, p.CachePolicy)
	if !p.CacheEnabled {
		c.Disable()
	}
	var (
		pht *PatternHistoryTable
		btb *BranchTargetBuffer
	)
	if p.PHTEnabled {
		pht = NewPatternHistoryTable(p.PHTEntries, p.PHTCounterBits, p.PHTHistoryBits)
	}
	if p.BTBEnabled {
		btb = NewBranchTargetBuffer(p.BTBCapacity, p.BTBPolicy)
	}
	return &State{
		Cache:     c,
		Predictor: NewPredictor(pht, btb),
		Memory:    NewMemory(MemoryVariable),
	}
}

// Clone returns an independent copy of s.
func (s *State) Clone() *State {
	return &State{
		Cache:     s.Cache.Clone(),
		Predictor: s.Predictor.Clone(),
		Memory:    s.Memory.Clone(),
	}
}

// Observation returns the observable part of s: the cached lines.
func (s *State) Observation() Observation {
	return s.Cache.Observation()
}

// Observation is a snapshot of the attacker-visible cache state.
type Observation struct {
	Lines    []uint64
	lineSize uint64
}

// Equal reports whether o and p observe the same lines.
func (o Observation) Equal(p Observation) bool {
	if len(o.Lines) != len(p.Lines) {
		return false
	}
	for i := range o.Lines {
		if o.Lines[i] != p.Lines[i] {
			return false
		}
	}
	return true
}

// Addresses returns the first address of every observed line.
func (o Observation) Addresses() []uint64 {
	addrs := make([]uint64, len(o.Lines))
	for i, l := range o.Lines {
		addrs[i] = l * o.lineSize
	}
	return addrs
}

func (o Observation) String() string {
	s := "{"
	for i, a := range o.Addresses() {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("0x%X", a)
	}
	return s + "}"
}
