package arch

import (
	"fmt"
	"math"
	"sort"

	"github.com/ajalab/leakcheck/report"
)

// Cache is a set-associative cache of lines. An address maps to the line
// addr / lineSize, which is placed in the set line % sets. Each set holds at
// most ways lines and evicts by the replacement policy.
//
// Only the presence of lines is modeled; values live in Memory.
type Cache struct {
	sets     []ways[uint64, struct{}]
	lineSize uint64
	policy   Policy
	disabled bool
}

// NewCache returns an empty cache. It panics if a parameter is not positive.
func NewCache(sets, assoc int, lineSize uint64, policy Policy) *Cache {
	if sets <= 0 || assoc <= 0 || lineSize == 0 {
		panic(fmt.Sprintf("arch: invalid cache geometry %d sets x %d ways x %d bytes", sets, assoc, lineSize))
	}
	c := &Cache{
		sets:     make([]ways[uint64, struct{}], sets),
		lineSize: lineSize,
		policy:   policy,
	}
	for i := range c.sets {
		c.sets[i] = newWays[uint64, struct{}](assoc, policy)
	}
	return c
}

// Capacity returns the number of lines the cache can hold.
func (c *Cache) Capacity() int {
	return len(c.sets) * c.sets[0].capacity
}

// LineSize returns the size of a line in bytes.
func (c *Cache) LineSize() uint64 {
	return c.lineSize
}

// Policy returns the replacement policy.
func (c *Cache) Policy() Policy {
	return c.policy
}

// Line returns the line containing addr.
func (c *Cache) Line(addr uint64) uint64 {
	return addr / c.lineSize
}

func (c *Cache) set(line uint64) *ways[uint64, struct{}] {
	return &c.sets[line%uint64(len(c.sets))]
}

// Disable empties c and turns every later access into a miss that fills nothing.
func (c *Cache) Disable() {
	c.Flush()
	c.disabled = true
}

// Enabled reports whether c holds lines.
func (c *Cache) Enabled() bool {
	return !c.disabled
}

func (c *Cache) access(addr uint64) bool {
	if c.disabled {
		return false
	}
	line := c.Line(addr)
	hit, _, _ := c.set(line).access(line, struct{}{})
	return hit
}

// Read accesses addr and reports whether it hit. A miss fills the line.
func (c *Cache) Read(addr uint64) bool {
	return c.access(addr)
}

// Write accesses addr with write-allocate and reports whether it hit.
func (c *Cache) Write(addr uint64) bool {
	return c.access(addr)
}

// Fetch accesses every line overlapping [addr, addr+size) in address order and
// reports whether all of them hit. A range running past the top of the address
// space stops at the last line.
func (c *Cache) Fetch(addr, size uint64) bool {
	if size == 0 {
		size = 1
	}
	end := addr + size - 1
	if end < addr {
		end = math.MaxUint64
	}
	hit := true
	first, last := c.Line(addr), c.Line(end)
	for line := first; ; line++ {
		if !c.access(line * c.lineSize) {
			hit = false
		}
		if line == last {
			break
		}
	}
	return hit
}

// Contains reports whether addr is cached without touching recency.
func (c *Cache) Contains(addr uint64) bool {
	line := c.Line(addr)
	_, ok := c.set(line).lookup(line)
	return ok
}

// Evict removes the line containing addr and reports whether it was cached.
func (c *Cache) Evict(addr uint64) bool {
	line := c.Line(addr)
	return c.set(line).remove(line)
}

// Flush empties the cache.
func (c *Cache) Flush() {
	for i := range c.sets {
		c.sets[i].clear()
	}
}

// Prefill fills every way of every set with a placeholder line taken from the
// top of the address space, so that the first access to any real line misses
// and evicts a placeholder.
func (c *Cache) Prefill() {
	if c.disabled {
		return
	}
	n := uint64(len(c.sets))
	top := ^uint64(0) / c.lineSize
	top -= top % n
	for i := range c.sets {
		s := &c.sets[i]
		s.clear()
		for w := 0; w < s.capacity; w++ {
			s.access(top-uint64(w+1)*n+uint64(i), struct{}{})
		}
	}
}

// Observation returns a snapshot of the cached lines.
func (c *Cache) Observation() Observation {
	return Observation{Lines: c.Lines(), lineSize: c.lineSize}
}

// Lines returns the cached lines in ascending order.
func (c *Cache) Lines() []uint64 {
	var lines []uint64
	for _, s := range c.sets {
		for _, e := range s.entries {
			lines = append(lines, e.key)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i] < lines[j] })
	return lines
}

// Ranges returns the cached addresses as compacted ranges.
func (c *Cache) Ranges() []report.Range {
	rs := report.CompactRanges(c.Lines())
	for i := range rs {
		rs[i].Start *= c.lineSize
		rs[i].End = (rs[i].End+1)*c.lineSize - 1
	}
	return rs
}

// Equal reports whether c and o hold the same lines. Recency is not observable.
func (c *Cache) Equal(o *Cache) bool {
	a, b := c.Lines(), o.Lines()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of c.
func (c *Cache) Clone() *Cache {
	cc := &Cache{
		sets:     make([]ways[uint64, struct{}], len(c.sets)),
		lineSize: c.lineSize,
		policy:   c.policy,
		disabled: c.disabled,
	}
	for i, s := range c.sets {
		cc.sets[i] = s.clone()
	}
	return cc
}

func (c *Cache) String() string {
	return report.FormatRanges(c.Ranges())
}
