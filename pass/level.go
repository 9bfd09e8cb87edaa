package pass

import (
	"github.com/pkg/errors"
)

// Level selects the passes applied to a program before exploration.
type Level int

const (
	// None applies no pass.
	None Level = iota
	// Basic removes copies and redundant instructions.
	Basic
	// Full also folds and propagates constants, simplifies expressions and
	// removes dead assignments and unreachable blocks.
	Full
)

func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case Basic:
		return "basic"
	}
	return "full"
}

// ParseLevel returns the level named name. The empty name selects Full.
func ParseLevel(name string) (Level, error) {
	switch name {
	case "none":
		return None, nil
	case "basic":
		return Basic, nil
	case "", "full":
		return Full, nil
	}
	return Full, errors.Errorf("unknown optimization level %q", name)
}

// ForLevel returns the pipeline of level l.
func ForLevel(l Level) *Pipeline {
	switch l {
	case None:
		return NewPipeline().Repeat(0)
	case Basic:
		return NewPipeline(
			&CopyPropagation{},
			&RedundantInstructionElimination{},
		).Repeat(3)
	}
	return NewPipeline(
		&ConstantFolding{},
		&ConstantPropagation{},
		&CopyPropagation{},
		&ExpressionSimplification{},
		&RedundantInstructionElimination{},
		&DeadCodeElimination{},
		&PruneUnreachable{},
	).Repeat(5)
}
