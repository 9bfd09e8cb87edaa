package ir

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Constant is a Boolean or bit-vector literal.
// A bit-vector constant's value always fits within its width.
type Constant struct {
	sort  Sort
	b     bool
	value uint256.Int
}

var (
	// True is the Boolean constant true.
	True = BoolConst(true)
	// False is the Boolean constant false.
	False = BoolConst(false)
)

// BoolConst returns a Boolean constant.
func BoolConst(b bool) Constant {
	return Constant{sort: BoolSort(), b: b}
}

// BitVector64 returns a bit-vector constant of the given width.
// It panics if v does not fit in width bits.
func BitVector64(v uint64, width uint) Constant {
	return BitVectorConst(uint256.NewInt(v), width)
}

// BitVectorConst returns a bit-vector constant of the given width.
// It panics if v does not fit in width bits.
func BitVectorConst(v *uint256.Int, width uint) Constant {
	c, err := NewBitVector(v, width)
	if err != nil {
		panic(err.Error())
	}
	return c
}

// NewBitVector returns a bit-vector constant, or a SortMismatch error
// if the width is out of range or v does not fit in width bits.
// Lifters and configuration loaders use it for external input.
func NewBitVector(v *uint256.Int, width uint) (Constant, error) {
	if width == 0 || width > MaxWidth {
		return Constant{}, Errorf(SortMismatch, nil, "invalid bit-vector width %d", width)
	}
	if uint(v.BitLen()) > width {
		return Constant{}, Errorf(SortMismatch, nil, "value 0x%s does not fit in BitVec<%d>", hexDigits(v), width)
	}
	return Constant{sort: BitVectorSort(width), value: *v}, nil
}

// ZeroConst returns the zero value of sort s. Memory has no constant value.
func ZeroConst(s Sort) Constant {
	if s.IsBitVector() {
		return Constant{sort: s}
	}
	return False
}

func mask(width uint) *uint256.Int {
	m := new(uint256.Int).SetAllOne()
	if width >= MaxWidth {
		return m
	}
	return m.Rsh(m, MaxWidth-width)
}

func hexDigits(v *uint256.Int) string {
	return strings.ToUpper(strings.TrimPrefix(v.Hex(), "0x"))
}

// Sort returns Bool or BitVector(width) matching the tag.
func (c Constant) Sort() Sort {
	if c.sort.kind == BitVectorKind {
		return c.sort
	}
	return BoolSort()
}

// Bool returns the value of a Boolean constant.
func (c Constant) Bool() bool {
	return c.b
}

// Value returns a copy of the value of a bit-vector constant.
func (c Constant) Value() *uint256.Int {
	v := c.value
	return &v
}

// Uint64 returns the low 64 bits of a bit-vector constant.
func (c Constant) Uint64() uint64 {
	return c.value.Uint64()
}

// Width returns the width of a bit-vector constant and 0 for Booleans.
func (c Constant) Width() uint {
	return c.sort.width
}

// IsZero reports whether c is false or a zero bit-vector.
func (c Constant) IsZero() bool {
	if c.sort.IsBitVector() {
		return c.value.IsZero()
	}
	return !c.b
}

// Signed returns the two's complement interpretation of c sign-extended to 256 bits.
func (c Constant) Signed() *uint256.Int {
	v := c.value
	w := c.sort.width
	if w < MaxWidth && c.signBit() {
		ext := new(uint256.Int).Not(mask(w))
		v.Or(&v, ext)
	}
	return &v
}

func (c Constant) signBit() bool {
	w := c.sort.width
	if w == 0 {
		return false
	}
	bit := new(uint256.Int).Rsh(&c.value, w-1)
	return bit.Uint64()&1 == 1
}

// ZeroExtend returns c widened to width with zero bits.
func (c Constant) ZeroExtend(width uint) Constant {
	return Constant{sort: BitVectorSort(width), value: c.value}
}

// SignExtend returns c widened to width replicating its sign bit.
func (c Constant) SignExtend(width uint) Constant {
	v := c.Signed()
	v.And(v, mask(width))
	return Constant{sort: BitVectorSort(width), value: *v}
}

// Truncate returns the low width bits of c.
func (c Constant) Truncate(width uint) Constant {
	v := new(uint256.Int).And(&c.value, mask(width))
	return Constant{sort: BitVectorSort(width), value: *v}
}

// Resize zero-extends or truncates c to width.
func (c Constant) Resize(width uint) Constant {
	if width >= c.sort.width {
		return c.ZeroExtend(width)
	}
	return c.Truncate(width)
}

func (c Constant) String() string {
	if c.sort.IsBitVector() {
		return fmt.Sprintf("0x%s:%s", hexDigits(&c.value), c.sort)
	}
	return fmt.Sprintf("$%t:%s", c.b, BoolSort())
}

// Validate always succeeds: constants are well-formed by construction.
func (c Constant) Validate() error {
	return nil
}

// Operands returns nil.
func (c Constant) Operands() []Expression {
	return nil
}

// Hash returns a structural hash of c.
func (c Constant) Hash() uint64 {
	h := newHasher(tagConstant)
	h.writeSort(c.Sort())
	if c.sort.IsBitVector() {
		b := c.value.Bytes32()
		h.write(b[:])
	} else {
		h.writeBool(c.b)
	}
	return h.sum()
}

func (Constant) expression() {}
