package compiler

import (
	"fmt"

	"github.com/pverheul/tactus/asm"
)

// markerStrategy raises the marker bit of the sequencer's digital channel
// for the duration of the pulse. The on and off masks come from the module:
// RF modules keep their output switch bits asserted at all times, so "off"
// is not necessarily zero.
type markerStrategy struct {
	op  OpInfo
	on  int
	off int
}

func (s *markerStrategy) registerData(*Table) error { return nil }

func (s *markerStrategy) emit(p *asm.Program) error {
	p.Emit(asm.OpSetMrk, fmt.Sprintf("%d", s.on), fmt.Sprintf("setting marker bits for %s", s.op.Name))
	p.Emit(asm.OpUpdParam, fmt.Sprintf("%d", asm.MinOperationTimeNS), "")
	p.AddElapsed(asm.MinOperationTimeNS)
	if err := p.AutoWait(s.op.DurationNS() - asm.MinOperationTimeNS); err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	p.Emit(asm.OpSetMrk, fmt.Sprintf("%d", s.off), "restoring default marker bits")
	return nil
}
