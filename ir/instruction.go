package ir

import "fmt"

// InstructionKind is the kind of an Instruction.
type InstructionKind int

const (
	// Assign binds an expression to a variable.
	Assign InstructionKind = iota + 1
	// Assume restricts the executions to those satisfying a condition.
	Assume
	// Assert requires a condition to hold on every execution.
	Assert
	// LoadInstr reads memory into a variable through the cache.
	LoadInstr
	// StoreInstr writes a value to memory through the cache.
	StoreInstr
	// Barrier stops speculative execution.
	Barrier
	// Flush empties the cache.
	Flush
	// Skip does nothing.
	Skip
)

// Instruction is a single step of a block.
type Instruction struct {
	Kind     InstructionKind
	Variable Variable
	// Expr is the assigned expression, the condition, or the stored value.
	Expr    Expression
	Address Expression
	// Location is an optional source address used for effects and predictor keys.
	Location uint64
}

// NewAssign returns `v := e`.
func NewAssign(v Variable, e Expression) Instruction {
	return Instruction{Kind: Assign, Variable: v, Expr: e}
}

// NewAssume returns `assume cond`.
func NewAssume(cond Expression) Instruction {
	return Instruction{Kind: Assume, Expr: cond}
}

// NewAssert returns `assert cond`.
func NewAssert(cond Expression) Instruction {
	return Instruction{Kind: Assert, Expr: cond}
}

// NewLoad returns `v := load addr`.
func NewLoad(v Variable, addr Expression) Instruction {
	return Instruction{Kind: LoadInstr, Variable: v, Address: addr}
}

// NewStore returns `store addr, value`.
func NewStore(addr, value Expression) Instruction {
	return Instruction{Kind: StoreInstr, Address: addr, Expr: value}
}

// NewBarrier returns a speculation barrier.
func NewBarrier() Instruction {
	return Instruction{Kind: Barrier}
}

// NewFlush returns a cache flush.
func NewFlush() Instruction {
	return Instruction{Kind: Flush}
}

// NewSkip returns a no-op.
func NewSkip() Instruction {
	return Instruction{Kind: Skip}
}

// At returns a copy of instr located at loc.
func (instr Instruction) At(loc uint64) Instruction {
	instr.Location = loc
	return instr
}

func (instr Instruction) String() string {
	switch instr.Kind {
	case Assign:
		return fmt.Sprintf("%s := %s", instr.Variable, instr.Expr)
	case Assume:
		return fmt.Sprintf("assume %s", instr.Expr)
	case Assert:
		return fmt.Sprintf("assert %s", instr.Expr)
	case LoadInstr:
		return fmt.Sprintf("%s := load %s", instr.Variable, instr.Address)
	case StoreInstr:
		return fmt.Sprintf("store %s, %s", instr.Address, instr.Expr)
	case Barrier:
		return "barrier"
	case Flush:
		return "flush"
	case Skip:
		return "skip"
	}
	return fmt.Sprintf("Instruction(%d)", int(instr.Kind))
}

// Expressions returns the expressions read by instr.
func (instr Instruction) Expressions() []Expression {
	var es []Expression
	if instr.Address != nil {
		es = append(es, instr.Address)
	}
	if instr.Expr != nil {
		es = append(es, instr.Expr)
	}
	return es
}

// Validate checks the expressions of instr and their sorts.
func (instr Instruction) Validate() error {
	for _, e := range instr.Expressions() {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	switch instr.Kind {
	case Assign:
		if instr.Expr == nil {
			return Errorf(SortMismatch, instr, "missing expression")
		}
		if instr.Variable.Sort() != instr.Expr.Sort() {
			return Errorf(SortMismatch, instr, "cannot assign %s to %s",
				instr.Expr.Sort().Describe(), instr.Variable.Sort().Describe())
		}
	case Assume, Assert:
		if instr.Expr == nil || !instr.Expr.Sort().IsBool() {
			return Errorf(SortMismatch, instr, "condition must be Bool")
		}
	case LoadInstr:
		if instr.Address == nil || !instr.Address.Sort().IsBitVector() {
			return Errorf(SortMismatch, instr, "address must be a bit-vector")
		}
		if !instr.Variable.Sort().IsBitVector() {
			return Errorf(SortMismatch, instr, "loaded variable must be a bit-vector")
		}
	case StoreInstr:
		if instr.Address == nil || !instr.Address.Sort().IsBitVector() {
			return Errorf(SortMismatch, instr, "address must be a bit-vector")
		}
		if instr.Expr == nil || !instr.Expr.Sort().IsBitVector() {
			return Errorf(SortMismatch, instr, "stored value must be a bit-vector")
		}
	case Barrier, Flush, Skip:
	default:
		return Errorf(SortMismatch, instr, "unknown instruction")
	}
	return nil
}
