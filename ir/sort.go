package ir

import "fmt"

// MaxWidth is the largest supported bit-vector width.
const MaxWidth = 256

// SortKind is the tag of a Sort.
type SortKind int

const (
	// BoolKind tags the Boolean sort.
	BoolKind SortKind = iota
	// BitVectorKind tags fixed-width bit-vector sorts.
	BitVectorKind
	// MemoryKind tags the memory sort (address to bit-vector mapping).
	MemoryKind
)

// Sort is the type of a symbolic value.
// Sorts are comparable with ==.
type Sort struct {
	kind  SortKind
	width uint
}

// BoolSort returns the Boolean sort.
func BoolSort() Sort {
	return Sort{kind: BoolKind}
}

// BitVectorSort returns the bit-vector sort of the given width.
// It panics unless 0 < width <= MaxWidth.
func BitVectorSort(width uint) Sort {
	if width == 0 || width > MaxWidth {
		panic(fmt.Sprintf("ir: invalid bit-vector width %d", width))
	}
	return Sort{kind: BitVectorKind, width: width}
}

// MemorySort returns the memory sort.
func MemorySort() Sort {
	return Sort{kind: MemoryKind}
}

// Kind returns the tag of s.
func (s Sort) Kind() SortKind {
	return s.kind
}

// Width returns the width of a bit-vector sort and 0 otherwise.
func (s Sort) Width() uint {
	return s.width
}

// IsBool reports whether s is the Boolean sort.
func (s Sort) IsBool() bool {
	return s.kind == BoolKind
}

// IsBitVector reports whether s is a bit-vector sort.
func (s Sort) IsBitVector() bool {
	return s.kind == BitVectorKind
}

// IsMemory reports whether s is the memory sort.
func (s Sort) IsMemory() bool {
	return s.kind == MemoryKind
}

// String renders s for display. Memory renders as Bool since it is
// only reasoned about through Boolean assertions over its reads and writes.
// Use Describe where the two must be told apart.
func (s Sort) String() string {
	switch s.kind {
	case BitVectorKind:
		return fmt.Sprintf("BitVec<%d>", s.width)
	case MemoryKind:
		return "Bool"
	}
	return "Bool"
}

// Describe renders s keeping the memory tag distinct.
func (s Sort) Describe() string {
	if s.kind == MemoryKind {
		return "Memory"
	}
	return s.String()
}
