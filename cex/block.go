package cex

import (
	"fmt"
	"strings"

	"github.com/ajalab/leakcheck/ir"
)

// Binding is a concrete value a variable received.
type Binding struct {
	Target ir.Variable
	Value  ir.Constant
}

func (b Binding) String() string {
	return fmt.Sprintf("%s = %s", b.Target.Name(), b.Value)
}

// InstructionAnnotation is what one composition did at an instruction.
type InstructionAnnotation struct {
	Assignments []Binding
	Effects     []Effect
}

// AnnotatedInstruction is an instruction with per-composition annotations.
type AnnotatedInstruction struct {
	instruction ir.Instruction
	annotations [2]*InstructionAnnotation
}

// NewAnnotatedInstruction returns instr without annotations.
func NewAnnotatedInstruction(instr ir.Instruction) *AnnotatedInstruction {
	return &AnnotatedInstruction{instruction: instr}
}

// Instruction returns the annotated instruction.
func (ai *AnnotatedInstruction) Instruction() ir.Instruction {
	return ai.instruction
}

// Annotation returns the annotation of c, if any.
func (ai *AnnotatedInstruction) Annotation(c Composition) (*InstructionAnnotation, bool) {
	a := ai.annotations[c]
	return a, a != nil
}

// MutableAnnotation returns the annotation of c, creating it if needed.
func (ai *AnnotatedInstruction) MutableAnnotation(c Composition) *InstructionAnnotation {
	if ai.annotations[c] == nil {
		ai.annotations[c] = &InstructionAnnotation{}
	}
	return ai.annotations[c]
}

func (ai *AnnotatedInstruction) clone() *AnnotatedInstruction {
	c := &AnnotatedInstruction{instruction: ai.instruction}
	for i, a := range ai.annotations {
		if a == nil {
			continue
		}
		c.annotations[i] = &InstructionAnnotation{
			Assignments: append([]Binding(nil), a.Assignments...),
			Effects:     append([]Effect(nil), a.Effects...),
		}
	}
	return c
}

func (ai *AnnotatedInstruction) String() string {
	var sb strings.Builder
	sb.WriteString(ai.instruction.String())
	sb.WriteByte('\n')
	for _, c := range Compositions {
		a := ai.annotations[c]
		if a == nil {
			continue
		}
		for _, b := range a.Assignments {
			fmt.Fprintf(&sb, " - %s@ %s\n", c, b)
		}
		for _, e := range a.Effects {
			fmt.Fprintf(&sb, " - %s# %s\n", c, e)
		}
	}
	return sb.String()
}

// BlockAnnotation is how one composition went through a block.
type BlockAnnotation struct {
	Executed bool
	// Transient is set when the block was entered speculatively.
	Transient bool
	// Effects are the effects of the branch leaving the block.
	Effects []Effect
}

// AnnotatedBlock is a block of the program with per-composition annotations.
type AnnotatedBlock struct {
	index        int
	label        string
	instructions []*AnnotatedInstruction
	annotations  [2]BlockAnnotation
}

// NewAnnotatedBlock returns the block b at index without annotations.
func NewAnnotatedBlock(index int, b *ir.Block) *AnnotatedBlock {
	ab := &AnnotatedBlock{index: index, label: b.Label()}
	for _, instr := range b.Instructions() {
		ab.instructions = append(ab.instructions, NewAnnotatedInstruction(instr))
	}
	return ab
}

// Index returns the index of the block in the program.
func (ab *AnnotatedBlock) Index() int {
	return ab.index
}

// Label returns the label of the block.
func (ab *AnnotatedBlock) Label() string {
	return ab.label
}

// Instructions returns the annotated instructions.
func (ab *AnnotatedBlock) Instructions() []*AnnotatedInstruction {
	return ab.instructions
}

// Instruction returns the i-th annotated instruction.
func (ab *AnnotatedBlock) Instruction(i int) (*AnnotatedInstruction, bool) {
	if i < 0 || i >= len(ab.instructions) {
		return nil, false
	}
	return ab.instructions[i], true
}

// Annotation returns the annotation of c.
func (ab *AnnotatedBlock) Annotation(c Composition) *BlockAnnotation {
	return &ab.annotations[c]
}

// Executed reports whether any composition executed the block architecturally.
func (ab *AnnotatedBlock) Executed() bool {
	return ab.annotations[A].Executed || ab.annotations[B].Executed
}

// IsTransient reports whether the block was only entered speculatively.
func (ab *AnnotatedBlock) IsTransient() bool {
	return !ab.Executed() && (ab.annotations[A].Transient || ab.annotations[B].Transient)
}

func (ab *AnnotatedBlock) clone() *AnnotatedBlock {
	c := &AnnotatedBlock{index: ab.index, label: ab.label, annotations: ab.annotations}
	for i := range c.annotations {
		c.annotations[i].Effects = append([]Effect(nil), ab.annotations[i].Effects...)
	}
	for _, ai := range ab.instructions {
		c.instructions = append(c.instructions, ai.clone())
	}
	return c
}

func (ab *AnnotatedBlock) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[ Block: 0x%X", ab.index)
	if ab.label != "" {
		fmt.Fprintf(&sb, " %s", ab.label)
	}
	if ab.IsTransient() {
		sb.WriteString(", Transient")
	}
	sb.WriteString(" ]\n")
	for _, ai := range ab.instructions {
		sb.WriteString(ai.String())
	}
	for _, c := range Compositions {
		for _, e := range ab.annotations[c].Effects {
			fmt.Fprintf(&sb, " - %s# %s\n", c, e)
		}
	}
	return sb.String()
}
