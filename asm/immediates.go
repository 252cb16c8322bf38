package asm

import (
	"fmt"
	"math"
)

// awgImmediateMax is the largest magnitude of the signed 16 bit fixed-point
// scale used by gain and offset immediates. A normalized amplitude of 1.0
// maps to this value.
const awgImmediateMax = 1<<15 - 1

// GainImmediate converts a normalized amplitude in [-1, 1] to the signed
// fixed-point immediate expected by set_awg_gain.
func GainImmediate(amplitude float64) (int, error) {
	return awgImmediate(amplitude, "gain")
}

// OffsetImmediate converts a normalized offset in [-1, 1] to the signed
// fixed-point immediate expected by set_awg_offs.
func OffsetImmediate(offset float64) (int, error) {
	return awgImmediate(offset, "offset")
}

func awgImmediate(value float64, param string) (int, error) {
	if math.IsNaN(value) || value < -1 || value > 1 {
		return 0, fmt.Errorf("%s %v outside the normalized range [-1.0, 1.0]", param, value)
	}
	return int(math.Round(value * awgImmediateMax)), nil
}

// NcoPhaseImmediate converts a phase in degrees to NCO phase steps, wrapping
// into a single positive turn.
func NcoPhaseImmediate(degrees float64) int {
	steps := math.Round(degrees / 360 * NcoPhaseSteps)
	wrapped := math.Mod(steps, NcoPhaseSteps)
	if wrapped < 0 {
		wrapped += NcoPhaseSteps
	}
	return int(wrapped)
}

// NcoFrequencyImmediate converts a frequency in hertz to set_freq steps.
func NcoFrequencyImmediate(hz float64) (int, error) {
	if math.IsNaN(hz) || hz < -NcoFreqLimitHz || hz > NcoFreqLimitHz {
		return 0, fmt.Errorf("NCO frequency %v Hz outside the range [-%.0f, %.0f] Hz", hz, float64(NcoFreqLimitHz), float64(NcoFreqLimitHz))
	}
	return int(math.Round(hz * NcoFreqStepsPerHz)), nil
}

// AmplitudeDelta converts a normalized amplitude difference to the signed
// fixed-point scale of the gain and offset immediates. The delta is not
// range checked: add and sub may walk a register by more than a full scale
// in a single step.
func AmplitudeDelta(amplitude float64) int {
	return int(math.Round(amplitude * awgImmediateMax))
}

// UnsignedImmediate renders a possibly negative immediate the way the
// sequencer's 32 bit registers store it.
func UnsignedImmediate(value int) uint32 {
	return uint32(int64(value))
}
