package compiler

import (
	"fmt"

	"github.com/pverheul/tactus/asm"
)

// staircaseStrategy synthesizes a stepped ramp from register arithmetic
// instead of sampled memory. One register walks the offset from the start
// level towards the final level while a loop replays it once per step.
type staircaseStrategy struct {
	op       OpInfo
	mode     IOMode
	startAmp float64
	stepAmp  float64
	steps    int
}

func newStaircaseStrategy(op OpInfo, mode IOMode) (opStrategy, error) {
	switch mode {
	case IOModeComplex, IOModeReal, IOModeImag:
	default:
		return nil, fmt.Errorf("%s cannot play on a %s channel", op, mode)
	}
	start, final, steps, err := staircaseParams(op)
	if err != nil {
		return nil, err
	}
	stepAmp := 0.0
	if steps > 1 {
		stepAmp = (final - start) / float64(steps-1)
	}
	return &staircaseStrategy{op: op, mode: mode, startAmp: start, stepAmp: stepAmp, steps: steps}, nil
}

func (s *staircaseStrategy) registerData(*Table) error { return nil }

func (s *staircaseStrategy) emit(p *asm.Program) error {
	durNS := s.op.DurationNS()
	if durNS%s.steps != 0 {
		return fmt.Errorf("%s: duration of %d ns does not divide into %d equal steps", s.op, durNS, s.steps)
	}
	stepNS := durNS / s.steps
	if stepNS < asm.MinOperationTimeNS {
		return fmt.Errorf("%s: steps of %d ns undercut the minimum operation time of %d ns", s.op, stepNS, asm.MinOperationTimeNS)
	}
	startImm, err := asm.OffsetImmediate(s.startAmp)
	if err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	offsetReg, err := p.Registers().Allocate()
	if err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	zeroReg, err := p.Registers().Allocate()
	if err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}

	full := asm.AmplitudeDelta(1)
	p.Emit(asm.OpSetAwgGain, fmt.Sprintf("%d,%d", full, full), "set gain to known value")
	p.Emit(asm.OpMove, fmt.Sprintf("%d,%s", asm.UnsignedImmediate(startImm), offsetReg), "keeps track of the offsets")
	p.Emit(asm.OpMove, fmt.Sprintf("0,%s", zeroReg), "zero for unused output path")
	p.EmitBlank()

	offsArgs := offsetReg + "," + zeroReg
	if s.mode == IOModeImag {
		offsArgs = zeroReg + "," + offsetReg
	}
	stepImm := asm.AmplitudeDelta(s.stepAmp)
	err = p.Loop(p.NextLabel("ramp"), s.steps, func() error {
		p.Emit(asm.OpSetAwgOffs, offsArgs, "")
		p.Emit(asm.OpUpdParam, fmt.Sprintf("%d", asm.MinOperationTimeNS), "")
		p.AddElapsed(asm.MinOperationTimeNS)
		switch {
		case stepImm > 0:
			p.Emit(asm.OpAdd, fmt.Sprintf("%s,%d,%s", offsetReg, stepImm, offsetReg), fmt.Sprintf("next incr offs by %d", stepImm))
		case stepImm < 0:
			p.Emit(asm.OpSub, fmt.Sprintf("%s,%d,%s", offsetReg, -stepImm, offsetReg), fmt.Sprintf("next decr offs by %d", -stepImm))
		}
		return p.AutoWait(stepNS - asm.MinOperationTimeNS)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	p.Emit(asm.OpSetAwgOffs, "0,0", "return offset to 0 after staircase")
	p.EmitBlank()

	if err := p.Registers().Free(zeroReg); err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	if err := p.Registers().Free(offsetReg); err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	return nil
}
