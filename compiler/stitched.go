package compiler

import (
	"fmt"

	"github.com/pverheul/tactus/asm"
)

// stitchedSquareStrategy synthesizes long flat pulses by replaying one
// stitching window held in waveform memory. The gain carries the pulse
// amplitude, so every square pulse on a sequencer shares the same window
// data regardless of its amplitude or sign.
type stitchedSquareStrategy struct {
	op   OpInfo
	mode IOMode

	ampPath0 float64
	ampPath1 float64
	index0   *int
	index1   *int
}

func (s *stitchedSquareStrategy) registerData(table *Table) error {
	data, ampReal, ampImag, err := synthesizeSquare(s.op)
	if err != nil {
		return err
	}
	if err := ensureRealData(s.op, data, s.mode); err != nil {
		return err
	}
	switch s.mode {
	case IOModeComplex:
		idx0, err := table.Register(realSamples(data))
		if err != nil {
			return fmt.Errorf("%s: %w", s.op, err)
		}
		idx1, err := table.Register(imagSamples(data))
		if err != nil {
			return fmt.Errorf("%s: %w", s.op, err)
		}
		s.index0, s.index1 = &idx0, &idx1
		s.ampPath0, s.ampPath1 = ampReal, ampImag
	case IOModeReal:
		idx0, err := table.Register(realSamples(data))
		if err != nil {
			return fmt.Errorf("%s: %w", s.op, err)
		}
		s.index0 = &idx0
		s.ampPath0, s.ampPath1 = ampReal, ampImag
	case IOModeImag:
		idx1, err := table.Register(realSamples(data))
		if err != nil {
			return fmt.Errorf("%s: %w", s.op, err)
		}
		s.index1 = &idx1
		s.ampPath0, s.ampPath1 = ampImag, ampReal
	default:
		return fmt.Errorf("%s cannot play on a %s channel", s.op, s.mode)
	}
	return nil
}

func (s *stitchedSquareStrategy) emit(p *asm.Program) error {
	durNS := s.op.DurationNS()
	repetitions := durNS / asm.StitchingDurationNS
	remainder := durNS % asm.StitchingDurationNS

	if err := emitGain(p, s.op, s.ampPath0, s.ampPath1); err != nil {
		return err
	}
	idx0, idx1 := coalesceIndices(s.index0, s.index1)
	playWindow := func(ns int) {
		p.Emit(asm.OpPlay, fmt.Sprintf("%d,%d,%d", idx0, idx1, ns), "")
		p.AddElapsed(ns)
	}
	switch {
	case repetitions > 1:
		err := p.Loop(p.NextLabel("stitch"), repetitions, func() error {
			playWindow(asm.StitchingDurationNS)
			return nil
		})
		if err != nil {
			return fmt.Errorf("%s: %w", s.op, err)
		}
	case repetitions == 1:
		playWindow(asm.StitchingDurationNS)
	}
	if remainder > 0 {
		playWindow(remainder)
	}
	// a loop ending exactly on the pulse boundary needs no gain reset
	if repetitions <= 1 || remainder > 0 {
		p.Emit(asm.OpSetAwgGain, "0,0", "set to 0 at end of pulse")
	}
	return nil
}
