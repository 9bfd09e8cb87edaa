package arch

import (
	"fmt"
	"sort"
)

// BranchTargetBuffer maps branch locations to their last taken targets.
type BranchTargetBuffer struct {
	entries ways[uint64, uint64]
}

// NewBranchTargetBuffer returns an empty buffer. It panics if capacity is not positive.
func NewBranchTargetBuffer(capacity int, policy Policy) *BranchTargetBuffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("arch: invalid branch target buffer capacity %d", capacity))
	}
	return &BranchTargetBuffer{entries: newWays[uint64, uint64](capacity, policy)}
}

// Predict returns the target recorded for pc.
func (b *BranchTargetBuffer) Predict(pc uint64) (uint64, bool) {
	return b.entries.lookup(pc)
}

// Update records target for pc, evicting an entry when the buffer is full.
func (b *BranchTargetBuffer) Update(pc, target uint64) {
	b.entries.access(pc, target)
}

// Len returns the number of recorded branches.
func (b *BranchTargetBuffer) Len() int {
	return len(b.entries.entries)
}

// Clone returns an independent copy of b.
func (b *BranchTargetBuffer) Clone() *BranchTargetBuffer {
	return &BranchTargetBuffer{entries: b.entries.clone()}
}

func (b *BranchTargetBuffer) String() string {
	es := make([]entry[uint64, uint64], len(b.entries.entries))
	copy(es, b.entries.entries)
	sort.Slice(es, func(i, j int) bool { return es[i].key < es[j].key })
	s := "{"
	for i, e := range es {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("0x%X: 0x%X", e.key, e.value)
	}
	return s + "}"
}

// PHTKey indexes a pattern history table.
type PHTKey struct {
	PC      uint64
	History uint64
}

// PatternHistoryTable is a table of saturating counters indexed by
// the branch location xor the global history (gshare).
// Counters start weakly not-taken.
type PatternHistoryTable struct {
	counters    []uint8
	counterBits uint
	historyBits uint
}

// NewPatternHistoryTable returns a table of entries counters of counterBits bits each,
// hashing historyBits bits of history. It panics on invalid parameters.
func NewPatternHistoryTable(entries int, counterBits, historyBits uint) *PatternHistoryTable {
	if entries <= 0 || counterBits == 0 || counterBits > 8 || historyBits > 64 {
		panic(fmt.Sprintf("arch: invalid pattern history table %d entries x %d bits, %d history bits",
			entries, counterBits, historyBits))
	}
	t := &PatternHistoryTable{
		counters:    make([]uint8, entries),
		counterBits: counterBits,
		historyBits: historyBits,
	}
	for i := range t.counters {
		t.counters[i] = t.threshold() - 1
	}
	return t
}

// Max returns the largest counter value.
func (t *PatternHistoryTable) Max() uint8 {
	return uint8(1<<t.counterBits - 1)
}

func (t *PatternHistoryTable) threshold() uint8 {
	return uint8(1 << (t.counterBits - 1))
}

// HistoryBits returns the number of history bits taken into the index.
func (t *PatternHistoryTable) HistoryBits() uint {
	return t.historyBits
}

func (t *PatternHistoryTable) index(key PHTKey) int {
	h := key.History
	if t.historyBits < 64 {
		h &= 1<<t.historyBits - 1
	}
	return int((key.PC ^ h) % uint64(len(t.counters)))
}

// Counter returns the counter for key.
func (t *PatternHistoryTable) Counter(key PHTKey) uint8 {
	return t.counters[t.index(key)]
}

// Predict reports whether the branch at key is predicted taken.
func (t *PatternHistoryTable) Predict(key PHTKey) bool {
	return t.Counter(key) >= t.threshold()
}

// Update moves the counter for key one step towards the outcome, saturating at both ends.
func (t *PatternHistoryTable) Update(key PHTKey, taken bool) {
	i := t.index(key)
	switch {
	case taken && t.counters[i] < t.Max():
		t.counters[i]++
	case !taken && t.counters[i] > 0:
		t.counters[i]--
	}
}

// Clone returns an independent copy of t.
func (t *PatternHistoryTable) Clone() *PatternHistoryTable {
	c := *t
	c.counters = make([]uint8, len(t.counters))
	copy(c.counters, t.counters)
	return &c
}

// Prediction is the decision of a Predictor for a branch.
type Prediction struct {
	Taken     bool
	Target    uint64
	HasTarget bool
}

// Predictor combines a pattern history table over the global branch
// history with a branch target buffer. Either may be nil: without a table
// every branch is predicted not taken and no history is kept, without a
// buffer no target is predicted.
type Predictor struct {
	pht     *PatternHistoryTable
	btb     *BranchTargetBuffer
	history uint64
}

// NewPredictor returns a predictor with an empty history.
func NewPredictor(pht *PatternHistoryTable, btb *BranchTargetBuffer) *Predictor {
	return &Predictor{pht: pht, btb: btb}
}

// PHT returns the pattern history table, or nil.
func (p *Predictor) PHT() *PatternHistoryTable {
	return p.pht
}

// BTB returns the branch target buffer, or nil.
func (p *Predictor) BTB() *BranchTargetBuffer {
	return p.btb
}

// History returns the global branch history, most recent outcome in bit 0.
func (p *Predictor) History() uint64 {
	return p.history
}

func (p *Predictor) key(pc uint64) PHTKey {
	return PHTKey{PC: pc, History: p.history}
}

// Predict returns the predicted direction and target of the branch at pc.
func (p *Predictor) Predict(pc uint64) Prediction {
	var pred Prediction
	if p.pht != nil {
		pred.Taken = p.pht.Predict(p.key(pc))
	}
	if pred.Taken && p.btb != nil {
		pred.Target, pred.HasTarget = p.btb.Predict(pc)
	}
	return pred
}

// Update trains the predictor with the resolved outcome of the branch at pc.
func (p *Predictor) Update(pc uint64, taken bool, target uint64) {
	if taken && p.btb != nil {
		p.btb.Update(pc, target)
	}
	if p.pht == nil {
		return
	}
	p.pht.Update(p.key(pc), taken)
	p.history <<= 1
	if taken {
		p.history |= 1
	}
	if bits := p.pht.historyBits; bits < 64 {
		p.history &= 1<<bits - 1
	}
}

// Clone returns an independent copy of p.
func (p *Predictor) Clone() *Predictor {
	c := &Predictor{history: p.history}
	if p.pht != nil {
		c.pht = p.pht.Clone()
	}
	if p.btb != nil {
		c.btb = p.btb.Clone()
	}
	return c
}
