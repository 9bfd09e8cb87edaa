package testdata

// BranchLessThan is a test case for checking < operator.
func BranchLessThan(x int32, table []uint8) uint8 {
	if x < 5 {
		return table[0]
	}
	return table[64]
}

// BranchAnd is a test case for checking && condition.
func BranchAnd(x int32, table []uint8) uint8 {
	if 0 < x && x < 5 {
		return table[0]
	}
	return 0
}

// BranchMultiple is a test case for checking consecutive if statements.
func BranchMultiple(x int32, table []uint8) uint8 {
	if x < 5 {
		return table[0]
	} else if 5 <= x && x < 10 {
		return table[64]
	}
	return table[128]
}

// LoopSum is a test case for phi nodes.
func LoopSum(n uint8, table []uint8) uint8 {
	s := uint8(0)
	for i := uint8(0); i < n; i++ {
		s += table[i]
	}
	return s
}
