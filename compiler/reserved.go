package compiler

import (
	"fmt"

	"github.com/pverheul/tactus/asm"
	"github.com/pverheul/tactus/schedule"
	"github.com/pverheul/tactus/waveform"
)

// reservedShape names a waveform the assembler can synthesize from
// instructions instead of sampled memory.
type reservedShape int

const (
	shapeNone reservedShape = iota
	shapeStitchedSquare
	shapeStaircase
)

// reservedShapeFor recognizes synthesizable pulses. Only baseband pulses
// qualify: modulated shapes need their literal samples.
func reservedShapeFor(info *schedule.PulseInfo) reservedShape {
	if info.Kind != schedule.KindPulse || info.Clock != schedule.BasebandClockName {
		return shapeNone
	}
	switch info.WfFunc {
	case waveform.FuncSquare:
		return shapeStitchedSquare
	case waveform.FuncStaircase:
		return shapeStaircase
	}
	return shapeNone
}

// synthesizeSquare samples one full stitching window of a square pulse and
// returns the normalized window with the per-path amplitudes the gain
// instructions must apply. The window keeps a positive net sum so the
// stitching loop plays identical data regardless of pulse sign.
func synthesizeSquare(op OpInfo) ([]complex128, float64, float64, error) {
	amp, err := op.Pulse.Params.Complex("amp")
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	window := make([]complex128, asm.StitchingDurationNS)
	for i := range window {
		window[i] = amp
	}
	data, ampReal, ampImag := waveform.Normalize(window)
	var sum float64
	for _, v := range data {
		sum += real(v)
	}
	if sum < 0 {
		for i := range data {
			data[i] = -data[i]
		}
		ampReal, ampImag = -ampReal, -ampImag
	}
	return data, ampReal, ampImag, nil
}

// staircaseParams extracts and validates the plateau description of a
// staircase pulse.
func staircaseParams(op OpInfo) (startAmp, finalAmp float64, numSteps int, err error) {
	info := op.Pulse
	startAmp, err = info.Params.Float("start_amp")
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	finalAmp, err = info.Params.Float("final_amp")
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	numSteps, err = info.Params.Int("num_steps")
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if numSteps < 1 {
		return 0, 0, 0, fmt.Errorf("%s: a staircase needs at least one step, got %d", op, numSteps)
	}
	return startAmp, finalAmp, numSteps, nil
}
