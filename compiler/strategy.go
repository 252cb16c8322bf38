package compiler

import (
	"fmt"

	"github.com/pverheul/tactus/asm"
	"github.com/pverheul/tactus/schedule"
)

// opStrategy is how one operation info contributes to a sequencer program:
// sampled data registration first, instruction emission second.
// Registration is idempotent through the table's content addressing.
type opStrategy interface {
	registerData(table *Table) error
	emit(p *asm.Program) error
}

// strategyEnv is the per-sequencer context strategies are built against.
type strategyEnv struct {
	mode IOMode
	// instructionGenerated enables synthesizing reserved shapes from
	// instructions instead of sampled memory.
	instructionGenerated bool
	// markerOn and markerOff bracket a marker pulse on the sequencer's
	// digital channel.
	markerOn  int
	markerOff int
	// binRegisters maps acquisition channels in append mode to their
	// preallocated bin index registers.
	binRegisters map[int]string
}

// newOpStrategy classifies an operation info and builds its strategy.
// Acquisitions go first, then the instruction-only pulse kinds, then
// sampled pulses, which may fall into a synthesized reserved shape.
func newOpStrategy(op OpInfo, env strategyEnv) (opStrategy, error) {
	if op.IsAcquisition() {
		return newAcquisitionStrategy(op, env)
	}
	info := op.Pulse
	if info == nil {
		return nil, fmt.Errorf("%s carries neither pulse nor acquisition data", op)
	}
	switch info.Kind {
	case schedule.KindOffset:
		return &offsetStrategy{op: op}, nil
	case schedule.KindParameterUpdate:
		return &updateParamStrategy{}, nil
	case schedule.KindPhaseShift:
		return &phaseShiftStrategy{op: op}, nil
	case schedule.KindResetPhase:
		return &resetPhaseStrategy{}, nil
	case schedule.KindSetFrequency:
		return &setFrequencyStrategy{op: op}, nil
	case schedule.KindIdle:
		return &idleStrategy{}, nil
	case schedule.KindMarker:
		return &markerStrategy{op: op, on: env.markerOn, off: env.markerOff}, nil
	case schedule.KindPulse:
		if env.instructionGenerated {
			switch reservedShapeFor(info) {
			case shapeStitchedSquare:
				return &stitchedSquareStrategy{op: op, mode: env.mode}, nil
			case shapeStaircase:
				return newStaircaseStrategy(op, env.mode)
			}
		}
		return &genericPulseStrategy{op: op, mode: env.mode}, nil
	}
	return nil, fmt.Errorf("%s has an unrecognized kind %q", op, info.Kind)
}

// offsetStrategy stages new DC offsets on both AWG paths. The values take
// effect at the next parameter update or play.
type offsetStrategy struct {
	op OpInfo
}

func (s *offsetStrategy) registerData(*Table) error { return nil }

func (s *offsetStrategy) emit(p *asm.Program) error {
	info := s.op.Pulse
	path0, err := asm.OffsetImmediate(info.OffsetPath0)
	if err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	path1, err := asm.OffsetImmediate(info.OffsetPath1)
	if err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	p.Emit(asm.OpSetAwgOffs, fmt.Sprintf("%d,%d", path0, path1), fmt.Sprintf("setting offset for %s", s.op.Name))
	return nil
}

// updateParamStrategy latches staged offsets and gains, occupying one grid
// slot of real time.
type updateParamStrategy struct{}

func (s *updateParamStrategy) registerData(*Table) error { return nil }

func (s *updateParamStrategy) emit(p *asm.Program) error {
	p.Emit(asm.OpUpdParam, fmt.Sprintf("%d", asm.MinOperationTimeNS), "")
	p.AddElapsed(asm.MinOperationTimeNS)
	return nil
}

// ensureRealData rejects complex-valued samples on sequencers whose
// channel drives a single analog path.
func ensureRealData(op OpInfo, data []complex128, mode IOMode) error {
	if mode == IOModeComplex {
		return nil
	}
	for _, v := range data {
		if imag(v) != 0 {
			return fmt.Errorf("complex valued %s detected but the sequencer is not expecting complex input; this can be caused by attempting to play complex valued waveforms on an output marked as real", op)
		}
	}
	return nil
}

// coalesceIndices renders the two waveform slots of a play instruction,
// falling back to the present slot when a path has no data of its own.
func coalesceIndices(idx0, idx1 *int) (int, int) {
	i0, i1 := 0, 0
	switch {
	case idx0 != nil && idx1 != nil:
		i0, i1 = *idx0, *idx1
	case idx0 != nil:
		i0, i1 = *idx0, *idx0
	case idx1 != nil:
		i0, i1 = *idx1, *idx1
	}
	return i0, i1
}

// emitGain stages the per-path gains a play instruction runs under.
func emitGain(p *asm.Program, op OpInfo, ampPath0, ampPath1 float64) error {
	gain0, err := asm.GainImmediate(ampPath0)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	gain1, err := asm.GainImmediate(ampPath1)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p.Emit(asm.OpSetAwgGain, fmt.Sprintf("%d,%d", gain0, gain1), fmt.Sprintf("setting gain for %s", op.Name))
	return nil
}

func realSamples(data []complex128) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = real(v)
	}
	return out
}

func imagSamples(data []complex128) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = imag(v)
	}
	return out
}
