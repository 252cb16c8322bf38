package compiler

import (
	"fmt"

	"github.com/pverheul/tactus/asm"
)

// phaseShiftStrategy advances the NCO phase of the sequencer's clock. The
// shift is staged and latched by the next real-time instruction, so it
// consumes no time of its own.
type phaseShiftStrategy struct {
	op OpInfo
}

func (s *phaseShiftStrategy) registerData(*Table) error { return nil }

func (s *phaseShiftStrategy) emit(p *asm.Program) error {
	degrees := s.op.Pulse.PhaseShift
	if degrees == 0 {
		return nil
	}
	p.Emit(asm.OpSetNcoPhDelta, fmt.Sprintf("%d", asm.NcoPhaseImmediate(degrees)),
		fmt.Sprintf("increment nco phase by %.2f deg", degrees))
	return nil
}

// resetPhaseStrategy realigns the NCO phase with its origin.
type resetPhaseStrategy struct{}

func (s *resetPhaseStrategy) registerData(*Table) error { return nil }

func (s *resetPhaseStrategy) emit(p *asm.Program) error {
	p.Emit(asm.OpResetPh, "", "")
	return nil
}

// setFrequencyStrategy retunes the NCO so the sequencer's clock lands on
// its new frequency. The modulation frequency absorbs the difference
// between the old and new clock frequency while the LO stays fixed.
type setFrequencyStrategy struct {
	op OpInfo
}

func (s *setFrequencyStrategy) registerData(*Table) error { return nil }

func (s *setFrequencyStrategy) emit(p *asm.Program) error {
	info := s.op.Pulse
	if info.ClockFreqNew == nil || info.ClockFreqOld == nil {
		return fmt.Errorf("%s: the frequency change for clock %s was not resolved against the schedule's resources", s.op, info.Clock)
	}
	if info.IntermFreqOld == nil {
		return fmt.Errorf("%s: cannot change the frequency of clock %s, the sequencer has no modulation frequency set", s.op, info.Clock)
	}
	modFreq := *info.IntermFreqOld + *info.ClockFreqNew - *info.ClockFreqOld
	steps, err := asm.NcoFrequencyImmediate(modFreq)
	if err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	p.Emit(asm.OpSetNcoFreq, fmt.Sprintf("%d", steps), fmt.Sprintf("set NCO frequency to %.2f Hz", modFreq))
	p.Emit(asm.OpUpdParam, fmt.Sprintf("%d", asm.NcoSetFrequencyWaitNS), "updating to apply NCO frequency change")
	p.AddElapsed(asm.NcoSetFrequencyWaitNS)
	return nil
}

// idleStrategy covers operations that shape time but emit nothing. The gap
// they leave is bridged by the generated waits between operations.
type idleStrategy struct{}

func (s *idleStrategy) registerData(*Table) error { return nil }

func (s *idleStrategy) emit(*asm.Program) error { return nil }
