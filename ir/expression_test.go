package ir

import (
	"fmt"
	"testing"

	"github.com/holiman/uint256"
)

func TestNewBitVector(t *testing.T) {
	testCases := []struct {
		value uint64
		width uint
		ok    bool
	}{
		{0, 1, true},
		{1, 1, true},
		{2, 1, false},
		{255, 8, true},
		{256, 8, false},
		{1 << 63, 64, true},
		{0, 0, false},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			c, err := NewBitVector(uint256.NewInt(tc.value), tc.width)
			if !tc.ok {
				if !IsKind(err, SortMismatch) {
					t.Fatalf("expected a sort mismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBitVector: %v", err)
			}
			if c.Sort() != BitVectorSort(tc.width) {
				t.Errorf("expected sort %s, actual %s", BitVectorSort(tc.width), c.Sort())
			}
			if c.Uint64() != tc.value {
				t.Errorf("expected value %d, actual %d", tc.value, c.Uint64())
			}
		})
	}
}

func TestNewBitVectorWide(t *testing.T) {
	v := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	if _, err := NewBitVector(v, 200); err == nil {
		t.Fatal("2^200 must not fit in BitVec<200>")
	}
	c, err := NewBitVector(v, 201)
	if err != nil {
		t.Fatalf("NewBitVector: %v", err)
	}
	if c.Value().BitLen() != 201 {
		t.Errorf("expected a 201-bit value, actual %d bits", c.Value().BitLen())
	}
}

func TestBitVectorConstPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a value that does not fit")
		}
	}()
	BitVector64(16, 4)
}

func TestDisplay(t *testing.T) {
	x := BitVectorVar("x", 8)
	testCases := []struct {
		v        fmt.Stringer
		expected string
	}{
		{True, "$true:Bool"},
		{False, "$false:Bool"},
		{BitVector64(42, 8), "0x2A:BitVec<8>"},
		{BitVector64(0, 64), "0x0:BitVec<64>"},
		{x, "x:BitVec<8>"},
		{MemoryVar("mem"), "mem:Bool"},
		{Add(x, BitVector64(1, 8)), "(bvadd x:BitVec<8> 0x1:BitVec<8>)"},
		{ZeroExtend(16, x), "(zero_extend 16 x:BitVec<8>)"},
		{Edge{Head: 10, Tail: 255}, "(0xA->0xFF)"},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			if s := tc.v.String(); s != tc.expected {
				t.Errorf("expected %q, actual %q", tc.expected, s)
			}
		})
	}
}

func TestMemorySortStaysDistinct(t *testing.T) {
	if MemorySort() == BoolSort() {
		t.Fatal("Memory and Bool must be distinct sorts")
	}
	if MemorySort().String() != "Bool" {
		t.Errorf("Memory renders as %q", MemorySort().String())
	}
	if MemorySort().Describe() != "Memory" {
		t.Errorf("Memory is described as %q", MemorySort().Describe())
	}

	// A memory used where a Bool is expected is still a sort mismatch.
	e := Not(MemoryVar("mem"))
	if err := e.Validate(); !IsKind(err, SortMismatch) {
		t.Fatalf("expected a sort mismatch, got %v", err)
	}
}

func TestSort(t *testing.T) {
	x := BitVectorVar("x", 32)
	b := BoolVar("b")
	mem := MemoryVar("mem")
	testCases := []struct {
		e        Expression
		expected Sort
	}{
		{x, BitVectorSort(32)},
		{b, BoolSort()},
		{Add(x, x), BitVectorSort(32)},
		{ULt(x, x), BoolSort()},
		{Eq(x, x), BoolSort()},
		{Ite(b, x, x), BitVectorSort(32)},
		{ZeroExtend(64, x), BitVectorSort(64)},
		{Extract(7, 0, x), BitVectorSort(8)},
		{Concat(x, x), BitVectorSort(64)},
		{Load(mem, x, 8), BitVectorSort(8)},
		{Store(mem, x, x), MemorySort()},
		// ill-typed trees still have a sort
		{Not(x), BoolSort()},
		{Add(b, x), BoolSort()},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			s1, s2 := tc.e.Sort(), tc.e.Sort()
			if s1 != s2 {
				t.Fatalf("Sort is not stable: %s, %s", s1, s2)
			}
			if s1 != tc.expected {
				t.Errorf("expected %s, actual %s", tc.expected.Describe(), s1.Describe())
			}
		})
	}
}

func TestValidateExpression(t *testing.T) {
	x := BitVectorVar("x", 8)
	y := BitVectorVar("y", 16)
	b := BoolVar("b")
	mem := MemoryVar("mem")
	testCases := []struct {
		e  Expression
		ok bool
	}{
		{And(b, Not(b)), true},
		{Ite(b, x, Add(x, BitVector64(1, 8))), true},
		{Load(Store(mem, y, x), y, 8), true},
		{Not(x), false},
		{And(b, x), false},
		{Imply(x, b), false},
		{Add(x, y), false},
		{Ite(x, b, b), false},
		{Ite(b, x, y), false},
		{Eq(mem, mem), false},
		{ZeroExtend(4+4, y), false},
		{Extract(8, 0, x), false},
		{Load(b, x, 8), false},
		{Store(mem, b, x), false},
		{Eq(Not(x), b), false},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			err := tc.e.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate(%s): %v", tc.e, err)
			}
			if !tc.ok && !IsKind(err, SortMismatch) {
				t.Fatalf("Validate(%s): expected a sort mismatch, got %v", tc.e, err)
			}
		})
	}
}

func TestEval(t *testing.T) {
	x := BitVectorVar("x", 8)
	b := BoolVar("b")
	mem := MemoryVar("mem")
	val := MapValuation{
		"x": BitVector64(0xF0, 8),
		"b": True,
	}
	testCases := []struct {
		e        Expression
		expected Constant
	}{
		{Add(x, BitVector64(0x20, 8)), BitVector64(0x10, 8)},
		{Sub(BitVector64(0, 8), BitVector64(1, 8)), BitVector64(0xFF, 8)},
		{Mul(x, BitVector64(2, 8)), BitVector64(0xE0, 8)},
		{UDiv(x, BitVector64(0, 8)), BitVector64(0xFF, 8)},
		{URem(x, BitVector64(0, 8)), BitVector64(0xF0, 8)},
		{URem(x, BitVector64(7, 8)), BitVector64(0xF0%7, 8)},
		{BVNot(x), BitVector64(0x0F, 8)},
		{Neg(BitVector64(1, 8)), BitVector64(0xFF, 8)},
		{Shl(x, BitVector64(1, 8)), BitVector64(0xE0, 8)},
		{Shl(x, BitVector64(8, 8)), BitVector64(0, 8)},
		{LShr(x, BitVector64(4, 8)), BitVector64(0x0F, 8)},
		{AShr(x, BitVector64(4, 8)), BitVector64(0xFF, 8)},
		{AShr(x, BitVector64(9, 8)), BitVector64(0xFF, 8)},
		{ULt(BitVector64(1, 8), x), True},
		{SLt(BitVector64(1, 8), x), False},
		{ZeroExtend(16, x), BitVector64(0xF0, 16)},
		{SignExtend(16, x), BitVector64(0xFFF0, 16)},
		{Extract(7, 4, x), BitVector64(0xF, 4)},
		{Concat(x, BitVector64(1, 8)), BitVector64(0xF001, 16)},
		{Ite(b, x, BitVector64(0, 8)), BitVector64(0xF0, 8)},
		{Imply(b, False), False},
		{Xor(b, True), False},
		{Neq(x, BitVector64(0, 8)), True},
		{Load(Store(Store(mem, BitVector64(1, 64), x), BitVector64(2, 64), BitVector64(7, 8)), BitVector64(1, 64), 8), BitVector64(0xF0, 8)},
		{Load(mem, BitVector64(3, 64), 8), BitVector64(0, 8)},
		{BoolToBitVector(64, b), BitVector64(1, 64)},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			c, err := Eval(tc.e, val)
			if err != nil {
				t.Fatalf("Eval(%s): %v", tc.e, err)
			}
			if c != tc.expected {
				t.Errorf("Eval(%s): expected %s, actual %s", tc.e, tc.expected, c)
			}
		})
	}
}

func TestEvalRejectsIllTyped(t *testing.T) {
	if _, err := Eval(Not(BitVectorVar("x", 8)), MapValuation{}); !IsKind(err, SortMismatch) {
		t.Fatalf("expected a sort mismatch, got %v", err)
	}
	if _, err := Eval(MemoryVar("mem"), MapValuation{}); !IsKind(err, SortMismatch) {
		t.Fatalf("expected a sort mismatch, got %v", err)
	}
}

func TestIdenticalAndHash(t *testing.T) {
	x := BitVectorVar("x", 8)
	e1 := Add(x, BitVector64(1, 8))
	e2 := Add(BitVectorVar("x", 8), BitVector64(1, 8))
	e3 := Add(x, BitVector64(2, 8))

	if !Identical(e1, e2) || e1.Hash() != e2.Hash() {
		t.Errorf("%s and %s must be identical", e1, e2)
	}
	if Identical(e1, e3) {
		t.Errorf("%s and %s must differ", e1, e3)
	}
	if Identical(BoolVar("m"), MemoryVar("m")) {
		t.Error("variables of different sorts must differ")
	}
}

func TestSubstituteAndVariables(t *testing.T) {
	x := BitVectorVar("x", 8)
	y := BitVectorVar("y", 8)
	e := Add(Mul(x, y), x)

	vars := Variables(e)
	if len(vars) != 2 || vars[0] != x || vars[1] != y {
		t.Fatalf("unexpected variables %v", vars)
	}

	s := Substitute(e, func(v Variable) (Expression, bool) {
		if v == x {
			return BitVector64(3, 8), true
		}
		return nil, false
	})
	c, err := Eval(s, MapValuation{"y": BitVector64(2, 8)})
	if err != nil {
		t.Fatal(err)
	}
	if c.Uint64() != 9 {
		t.Errorf("expected 9, actual %s", c)
	}

	same := Substitute(e, func(Variable) (Expression, bool) { return nil, false })
	if same != e {
		t.Error("substitution without replacements must return the same tree")
	}
}
