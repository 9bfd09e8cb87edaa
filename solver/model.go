package solver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ajalab/leakcheck/ir"
)

// Model is a concrete assignment of variables and base memory cells.
// Variables absent from the model evaluate to zero.
type Model struct {
	values map[string]ir.Constant
	memory map[string]map[uint64]ir.Constant
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		values: make(map[string]ir.Constant),
		memory: make(map[string]map[uint64]ir.Constant),
	}
}

// Set assigns c to the variable name.
func (m *Model) Set(name string, c ir.Constant) {
	m.values[name] = c
}

// SetMemory assigns c to the cell addr of the base memory name.
// A narrower value never replaces a wider one.
func (m *Model) SetMemory(name string, addr uint64, c ir.Constant) {
	cells, ok := m.memory[name]
	if !ok {
		cells = make(map[uint64]ir.Constant)
		m.memory[name] = cells
	}
	if old, ok := cells[addr]; ok && old.Width() >= c.Width() {
		return
	}
	cells[addr] = c
}

// Lookup returns the value of the variable name.
func (m *Model) Lookup(name string) (ir.Constant, bool) {
	c, ok := m.values[name]
	return c, ok
}

// Value returns the value of v if its sort matches.
func (m *Model) Value(v ir.Variable) (ir.Constant, bool) {
	c, ok := m.values[v.Name()]
	if !ok || c.Sort() != v.Sort() {
		return ir.Constant{}, false
	}
	return c, true
}

// ReadMemory returns the width-bit value of the cell addr of mem.
func (m *Model) ReadMemory(mem ir.Variable, addr uint64, width uint) (ir.Constant, bool) {
	c, ok := m.memory[mem.Name()][addr]
	if !ok {
		return ir.Constant{}, false
	}
	return c.Resize(width), true
}

// Evaluate evaluates e under m.
func (m *Model) Evaluate(e ir.Expression) (ir.Constant, error) {
	return ir.Eval(e, m)
}

// Variables returns the names of the assigned variables in sorted order.
func (m *Model) Variables() []string {
	names := make([]string, 0, len(m.values))
	for name := range m.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cells returns the assigned cells of the base memory name in ascending order.
func (m *Model) Cells(name string) []uint64 {
	addrs := make([]uint64, 0, len(m.memory[name]))
	for a := range m.memory[name] {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Restrict returns the model limited to the variables names.
func (m *Model) Restrict(names []string) *Model {
	r := NewModel()
	for _, name := range names {
		if c, ok := m.values[name]; ok {
			r.values[name] = c
		}
	}
	r.memory = m.memory
	return r
}

func (m *Model) String() string {
	var sb strings.Builder
	for i, name := range m.Variables() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s = %s", name, m.values[name])
	}
	mems := make([]string, 0, len(m.memory))
	for name := range m.memory {
		mems = append(mems, name)
	}
	sort.Strings(mems)
	for _, name := range mems {
		for _, a := range m.Cells(name) {
			if sb.Len() > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s[0x%X] = %s", name, a, m.memory[name][a])
		}
	}
	return sb.String()
}
