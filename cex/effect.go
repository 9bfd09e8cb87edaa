package cex

import (
	"fmt"

	"github.com/ajalab/leakcheck/ir"
)

// EffectKind is the kind of a microarchitectural Effect.
type EffectKind int

const (
	// CacheFetch is a memory access bringing a line into the cache.
	CacheFetch EffectKind = iota + 1
	// CacheFlush empties the cache.
	CacheFlush
	// BranchCondition is a taken/not-taken outcome tracked by the pattern history table.
	BranchCondition
	// BranchTarget is a target tracked by the branch target buffer.
	BranchTarget
)

// Effect is a concrete microarchitectural side effect of an instruction or a branch.
type Effect struct {
	Kind     EffectKind
	Address  uint64
	Width    uint
	Location uint64
	Taken    bool
	Target   uint64
	// Speculative is set for effects of instructions executed transiently.
	Speculative bool
}

// NewCacheFetch returns the effect of a width-bit access at addr.
func NewCacheFetch(addr uint64, width uint) Effect {
	return Effect{Kind: CacheFetch, Address: addr, Width: width}
}

// NewCacheFlush returns the effect of a cache flush.
func NewCacheFlush() Effect {
	return Effect{Kind: CacheFlush}
}

// NewBranchCondition returns the effect of the branch at loc resolving to taken.
func NewBranchCondition(loc uint64, taken bool) Effect {
	return Effect{Kind: BranchCondition, Location: loc, Taken: taken}
}

// NewBranchTarget returns the effect of the branch at loc jumping to target.
func NewBranchTarget(loc, target uint64) Effect {
	return Effect{Kind: BranchTarget, Location: loc, Target: target}
}

// Transient returns a copy of e marked as speculative.
func (e Effect) Transient() Effect {
	e.Speculative = true
	return e
}

func (e Effect) String() string {
	var s string
	switch e.Kind {
	case CacheFetch:
		s = fmt.Sprintf("cache_fetch(0x%X, %d)", e.Address, e.Width)
	case CacheFlush:
		s = "cache_flush"
	case BranchCondition:
		s = fmt.Sprintf("branch_condition(0x%X, %v)", e.Location, e.Taken)
	case BranchTarget:
		s = fmt.Sprintf("branch_target(0x%X, 0x%X)", e.Location, e.Target)
	default:
		s = fmt.Sprintf("effect(%d)", int(e.Kind))
	}
	if e.Speculative {
		s = "transient " + s
	}
	return s
}

// Assignment binds a variable to the symbolic value it received on a path.
type Assignment struct {
	Target ir.Variable
	Value  ir.Expression
}

// Event is something one instruction did on one execution path.
// Exactly one of Effect and Assignment is set.
type Event struct {
	Block int
	// Instruction is the index of the instruction in Block, or -1 for the branch leaving it.
	Instruction int
	Speculative bool
	Effect      *Effect
	Assignment  *Assignment
}

// EffectEvent returns an event carrying e.
func EffectEvent(block, instr int, e Effect) Event {
	return Event{Block: block, Instruction: instr, Speculative: e.Speculative, Effect: &e}
}

// AssignmentEvent returns an event binding v to x.
func AssignmentEvent(block, instr int, v ir.Variable, x ir.Expression, speculative bool) Event {
	return Event{Block: block, Instruction: instr, Speculative: speculative, Assignment: &Assignment{Target: v, Value: x}}
}
