package ir

import "fmt"

// Variable is a named symbolic value of a fixed sort.
// Two variables are distinct if their names differ; name uniqueness
// is up to the owning program.
type Variable struct {
	name string
	sort Sort
}

// NewVariable returns a variable.
func NewVariable(name string, sort Sort) Variable {
	return Variable{name: name, sort: sort}
}

// BoolVar returns a Boolean variable.
func BoolVar(name string) Variable {
	return Variable{name: name, sort: BoolSort()}
}

// BitVectorVar returns a bit-vector variable of the given width.
func BitVectorVar(name string, width uint) Variable {
	return Variable{name: name, sort: BitVectorSort(width)}
}

// MemoryVar returns a memory variable.
func MemoryVar(name string) Variable {
	return Variable{name: name, sort: MemorySort()}
}

// Name returns the name of v.
func (v Variable) Name() string {
	return v.name
}

// Sort returns the sort of v.
func (v Variable) Sort() Sort {
	return v.sort
}

func (v Variable) String() string {
	return fmt.Sprintf("%s:%s", v.name, v.sort)
}

// Validate always succeeds.
func (v Variable) Validate() error {
	return nil
}

// Operands returns nil.
func (v Variable) Operands() []Expression {
	return nil
}

// Hash returns a structural hash of v.
func (v Variable) Hash() uint64 {
	h := newHasher(tagVariable)
	h.writeSort(v.sort)
	h.write([]byte(v.name))
	return h.sum()
}

func (Variable) expression() {}
