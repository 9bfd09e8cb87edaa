package arch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ajalab/leakcheck/ir"
)

// AddressWidth is the width of memory addresses.
const AddressWidth = 64

// Memory holds the values stored at concrete addresses on top of a symbolic
// base memory.
//
// Each address is a cell holding a whole value of the width it was stored
// with. Cells do not overlap: a load at an address reads the cell stored at
// exactly that address, resized to the load width, or the base memory if
// nothing was stored there. A store of 8 bytes at a followed by a load at a+4
// reads the base, and a narrower load at a truncates the stored value. Byte
// granular aliasing is not modeled.
type Memory struct {
	base  ir.Variable
	cells map[uint64]ir.Expression
}

// NewMemory returns a memory whose unwritten cells read from base.
// It panics if base is not memory-sorted.
func NewMemory(base ir.Variable) *Memory {
	if !base.Sort().IsMemory() {
		panic(fmt.Sprintf("arch: %s is not a memory", base.Name()))
	}
	return &Memory{base: base, cells: make(map[uint64]ir.Expression)}
}

// Base returns the base memory variable.
func (m *Memory) Base() ir.Variable {
	return m.base
}

// Load returns the width-bit value at addr.
func (m *Memory) Load(addr uint64, width uint) ir.Expression {
	if v, ok := m.cells[addr]; ok {
		return ir.Resize(width, v)
	}
	return ir.Load(m.base, ir.BitVector64(addr, AddressWidth), width)
}

// Store writes value at addr.
func (m *Memory) Store(addr uint64, value ir.Expression) {
	m.cells[addr] = value
}

// Addresses returns the written addresses in ascending order.
func (m *Memory) Addresses() []uint64 {
	addrs := make([]uint64, 0, len(m.cells))
	for a := range m.cells {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Expression returns the memory as a chain of stores over the base.
func (m *Memory) Expression() ir.Expression {
	var e ir.Expression = m.base
	for _, a := range m.Addresses() {
		e = ir.Store(e, ir.BitVector64(a, AddressWidth), m.cells[a])
	}
	return e
}

// Clone returns an independent copy of m. Stored expressions are shared.
func (m *Memory) Clone() *Memory {
	c := &Memory{base: m.base, cells: make(map[uint64]ir.Expression, len(m.cells))}
	for a, v := range m.cells {
		c.cells[a] = v
	}
	return c
}

func (m *Memory) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, a := range m.Addresses() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "0x%X: %s", a, m.cells[a])
	}
	sb.WriteString("]")
	return sb.String()
}
