package ir

import "strings"

// Block is a basic block: a label and a straight-line list of instructions.
// Its position in a graph is given by the graph's node index.
type Block struct {
	label        string
	instructions []Instruction
}

// NewBlock returns a block.
func NewBlock(label string, instrs ...Instruction) *Block {
	return &Block{label: label, instructions: instrs}
}

// Label returns the label of b.
func (b *Block) Label() string {
	return b.label
}

// Instructions returns the instructions of b.
func (b *Block) Instructions() []Instruction {
	return b.instructions
}

// Append appends instructions to b.
func (b *Block) Append(instrs ...Instruction) {
	b.instructions = append(b.instructions, instrs...)
}

// SetInstructions replaces the instructions of b.
func (b *Block) SetInstructions(instrs []Instruction) {
	b.instructions = instrs
}

// Clone returns a copy of b. Expressions are immutable and shared.
func (b *Block) Clone() *Block {
	instrs := make([]Instruction, len(b.instructions))
	copy(instrs, b.instructions)
	return &Block{label: b.label, instructions: instrs}
}

// Validate validates each instruction, stopping at the first failure.
func (b *Block) Validate() error {
	for _, instr := range b.instructions {
		if err := instr.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Block) String() string {
	var sb strings.Builder
	sb.WriteString(b.label)
	for _, instr := range b.instructions {
		sb.WriteString("\n  ")
		sb.WriteString(instr.String())
	}
	return sb.String()
}
