package testdata

import "github.com/ajalab/leakcheck/symbol"

// Leak reads the table only when the secret holds.
func Leak(secret bool, table []uint8) uint8 {
	symbol.Secret(secret)
	if secret {
		return table[0]
	}
	return 0
}

// Safe reads the same entry on both branches.
func Safe(secret bool, table []uint8) uint8 {
	symbol.Secret(secret)
	v := table[0]
	if secret {
		return v + 1
	}
	return v
}

// Bounds is the bounds check bypass gadget: a mispredicted check lets the
// out-of-bounds value of a select a line of table.
func Bounds(i uint64, a []uint8, table []uint8) uint8 {
	symbol.Public(i)
	if i < uint64(len(a)) {
		return table[uint64(a[i])*64]
	}
	return 0
}

// Fenced is Bounds with a speculation barrier after the check.
func Fenced(i uint64, a []uint8, table []uint8) uint8 {
	symbol.Public(i)
	if i < uint64(len(a)) {
		symbol.Barrier()
		return table[uint64(a[i])*64]
	}
	return 0
}
