package compiler

import (
	"fmt"

	"github.com/pverheul/tactus/asm"
	"github.com/pverheul/tactus/waveform"
)

// genericPulseStrategy plays a literally sampled waveform: normalize the
// samples, park the per-path peaks in a gain instruction, then start
// playback. Playback occupies one grid slot; the waveform keeps running
// while later instructions execute.
type genericPulseStrategy struct {
	op   OpInfo
	mode IOMode

	ampPath0 float64
	ampPath1 float64
	index0   *int
	index1   *int
}

func (s *genericPulseStrategy) registerData(table *Table) error {
	info := s.op.Pulse
	axis := waveform.TimeAxis(info.Duration, asm.SamplingRate)
	data, err := waveform.Generate(info.WfFunc, axis, info.Params)
	if err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	if err := ensureRealData(s.op, data, s.mode); err != nil {
		return err
	}
	normalized, ampReal, ampImag := waveform.Normalize(data)

	switch s.mode {
	case IOModeComplex:
		idx0, err := table.Register(realSamples(normalized))
		if err != nil {
			return fmt.Errorf("%s: %w", s.op, err)
		}
		idx1, err := table.Register(imagSamples(normalized))
		if err != nil {
			return fmt.Errorf("%s: %w", s.op, err)
		}
		s.index0, s.index1 = &idx0, &idx1
		s.ampPath0, s.ampPath1 = ampReal, ampImag
	case IOModeReal:
		idx0, err := table.Register(realSamples(normalized))
		if err != nil {
			return fmt.Errorf("%s: %w", s.op, err)
		}
		s.index0 = &idx0
		s.ampPath0, s.ampPath1 = ampReal, ampImag
	case IOModeImag:
		idx1, err := table.Register(realSamples(normalized))
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

func (s *genericPulseStrategy) emit(p *asm.Program) error {
	if err := emitGain(p, s.op, s.ampPath0, s.ampPath1); err != nil {
		return err
	}
	idx0, idx1 := coalesceIndices(s.index0, s.index1)
	p.Emit(asm.OpPlay, fmt.Sprintf("%d,%d,%d", idx0, idx1, asm.GridTimeNS),
		fmt.Sprintf("play %s (%d ns)", s.op.Name, s.op.DurationNS()))
	p.AddElapsed(asm.GridTimeNS)
	return nil
}
