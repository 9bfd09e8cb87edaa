// Package pass contains transformation passes over ir.Program.
package pass

import (
	"github.com/pkg/errors"

	"github.com/ajalab/leakcheck/ir"
	"github.com/ajalab/leakcheck/log"
)

// Pass is a transformation over programs.
type Pass = ir.Transform[*ir.Program]

// Pipeline runs passes in order. Each pass runs on the program in place;
// when a pass fails or leaves an invalid program, the program is restored
// from the snapshot taken before the pass and the pipeline stops.
//
// The sequence is repeated up to the number of rounds of the pipeline, and
// stops early after a round that leaves the program unchanged.
type Pipeline struct {
	passes []Pass
	rounds int
}

// NewPipeline returns a pipeline running passes once.
func NewPipeline(passes ...Pass) *Pipeline {
	return &Pipeline{passes: passes, rounds: 1}
}

// Repeat sets the maximum number of rounds.
func (pl *Pipeline) Repeat(rounds int) *Pipeline {
	pl.rounds = rounds
	return pl
}

// Default returns the pipeline of the full optimization level.
func Default() *Pipeline {
	return ForLevel(Full)
}

// Run applies passes to p with a one-off pipeline.
func Run(p *ir.Program, passes ...Pass) error {
	return NewPipeline(passes...).Run(p)
}

// Passes returns the passes of the pipeline.
func (pl *Pipeline) Passes() []Pass {
	return pl.passes
}

// Rounds returns the maximum number of rounds.
func (pl *Pipeline) Rounds() int {
	return pl.rounds
}

// Run applies the passes to p.
func (pl *Pipeline) Run(p *ir.Program) error {
	for round := 0; round < pl.rounds; round++ {
		before := p.String()
		if err := pl.runOnce(p); err != nil {
			return err
		}
		if p.String() == before {
			log.Debug.Printf("pipeline reached a fixed point after %d rounds", round+1)
			break
		}
	}
	return nil
}

func (pl *Pipeline) runOnce(p *ir.Program) error {
	for _, ps := range pl.passes {
		snapshot := p.Clone()
		log.Debug.Printf("pass %s: %s", ps.Name(), ps.Description())
		err := ps.Transform(p)
		if err == nil {
			err = p.Validate()
		}
		if err != nil {
			p.Restore(snapshot)
			if _, ok := ir.KindOf(err); !ok {
				err = ir.WrapErrorf(err, ir.TransformError, nil, "pass %s", ps.Name())
			}
			return errors.Wrapf(err, "pass %s failed", ps.Name())
		}
	}
	return nil
}
