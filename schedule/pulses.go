package schedule

import (
	"errors"
	"fmt"
	"math"

	"github.com/pverheul/tactus/asm"
	"github.com/pverheul/tactus/waveform"
)

// PulseOption configures a pulse or acquisition constructor.
type PulseOption func(*pulseConfig)

type pulseConfig struct {
	t0 float64
}

// At delays the constructed info by t0 seconds relative to the start of
// the operation.
func At(t0 float64) PulseOption {
	return func(c *pulseConfig) { c.t0 = t0 }
}

func applyPulseOptions(opts []PulseOption) pulseConfig {
	var cfg pulseConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// SquarePulse is a constant-amplitude pulse on the given port.
func SquarePulse(amp complex128, duration float64, port, clock string, opts ...PulseOption) Operation {
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "SquarePulse",
		Pulses: []PulseInfo{{
			Kind:     KindPulse,
			WfFunc:   waveform.FuncSquare,
			Params:   waveform.Params{"amp": amp},
			Port:     port,
			Clock:    clock,
			T0:       cfg.t0,
			Duration: duration,
		}},
	}
}

// RampPulse ramps linearly from offset to offset+amp over its duration.
func RampPulse(amp, offset, duration float64, port, clock string, opts ...PulseOption) Operation {
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "RampPulse",
		Pulses: []PulseInfo{{
			Kind:     KindPulse,
			WfFunc:   waveform.FuncRamp,
			Params:   waveform.Params{"amp": amp, "offset": offset},
			Port:     port,
			Clock:    clock,
			T0:       cfg.t0,
			Duration: duration,
		}},
	}
}

// StaircasePulse steps from startAmp to finalAmp in numSteps equal
// plateaus.
func StaircasePulse(startAmp, finalAmp float64, numSteps int, duration float64, port, clock string, opts ...PulseOption) Operation {
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "StaircasePulse",
		Pulses: []PulseInfo{{
			Kind:   KindPulse,
			WfFunc: waveform.FuncStaircase,
			Params: waveform.Params{
				"start_amp": startAmp,
				"final_amp": finalAmp,
				"num_steps": numSteps,
			},
			Port:     port,
			Clock:    clock,
			T0:       cfg.t0,
			Duration: duration,
		}},
	}
}

// SoftSquarePulse is a square pulse smoothed with a Hann window.
func SoftSquarePulse(amp complex128, duration float64, port, clock string, opts ...PulseOption) Operation {
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "SoftSquarePulse",
		Pulses: []PulseInfo{{
			Kind:     KindPulse,
			WfFunc:   waveform.FuncSoftSquare,
			Params:   waveform.Params{"amp": amp},
			Port:     port,
			Clock:    clock,
			T0:       cfg.t0,
			Duration: duration,
		}},
	}
}

// DRAGPulse is a gaussian pulse with a derivative component on the
// quadrature path, used for single-qubit gates on transmon systems. The
// gaussian spans nrSigma standard deviations within the duration; phase is
// in degrees.
func DRAGPulse(gAmp, dAmp, phase, nrSigma, duration float64, port, clock string, opts ...PulseOption) Operation {
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "DRAG",
		Pulses: []PulseInfo{{
			Kind:   KindPulse,
			WfFunc: waveform.FuncDrag,
			Params: waveform.Params{
				"G_amp":    gAmp,
				"D_amp":    dAmp,
				"phase":    phase,
				"nr_sigma": nrSigma,
				"duration": duration,
			},
			Port:     port,
			Clock:    clock,
			T0:       cfg.t0,
			Duration: duration,
		}},
	}
}

// ChirpPulse is a sinusoid sweeping linearly from startFreq to endFreq.
// The sweep frequencies are baked into the samples and are independent of
// the clock frequency.
func ChirpPulse(amp, startFreq, endFreq, duration float64, port, clock string, opts ...PulseOption) Operation {
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "ChirpPulse",
		Pulses: []PulseInfo{{
			Kind:   KindPulse,
			WfFunc: waveform.FuncChirp,
			Params: waveform.Params{
				"amp":        amp,
				"start_freq": startFreq,
				"end_freq":   endFreq,
			},
			Port:     port,
			Clock:    clock,
			T0:       cfg.t0,
			Duration: duration,
		}},
	}
}

// IdlePulse reserves time without producing any output.
func IdlePulse(duration float64) Operation {
	return Operation{
		Name: "Idle",
		Pulses: []PulseInfo{{
			Kind:     KindIdle,
			Clock:    BasebandClockName,
			Duration: duration,
		}},
	}
}

// VoltageOffset moves the DC offset of the two AWG paths driving the
// port. The offset takes effect at the next parameter update or play and
// stays until changed again.
func VoltageOffset(path0, path1 float64, port, clock string, opts ...PulseOption) Operation {
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "VoltageOffset",
		Pulses: []PulseInfo{{
			Kind:        KindOffset,
			Port:        port,
			Clock:       clock,
			T0:          cfg.t0,
			OffsetPath0: path0,
			OffsetPath1: path1,
		}},
	}
}

// UpdateParameters latches any staged offsets and gains on the sequencer
// driving the port. It occupies one hardware grid slot.
func UpdateParameters(port, clock string, opts ...PulseOption) Operation {
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "UpdateParameters",
		Pulses: []PulseInfo{{
			Kind:     KindParameterUpdate,
			Port:     port,
			Clock:    clock,
			T0:       cfg.t0,
			Duration: asm.MinOperationTimeNS * 1e-9,
		}},
	}
}

// MarkerPulse raises the marker output associated with the port for the
// given duration.
func MarkerPulse(duration float64, port string, opts ...PulseOption) Operation {
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "MarkerPulse",
		Pulses: []PulseInfo{{
			Kind:     KindMarker,
			Port:     port,
			Clock:    DigitalClockName,
			T0:       cfg.t0,
			Duration: duration,
		}},
	}
}

// ShiftClockPhase increments the phase of every NCO tracking the clock by
// the given number of degrees. It takes no time on the hardware.
func ShiftClockPhase(phaseDeg float64, clock string, opts ...PulseOption) Operation {
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "ShiftClockPhase",
		Pulses: []PulseInfo{{
			Kind:       KindPhaseShift,
			Clock:      clock,
			T0:         cfg.t0,
			PhaseShift: phaseDeg,
		}},
	}
}

// ResetClockPhase zeroes the phase of every NCO tracking the clock.
func ResetClockPhase(clock string, opts ...PulseOption) Operation {
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "ResetClockPhase",
		Pulses: []PulseInfo{{
			Kind:  KindResetPhase,
			Clock: clock,
			T0:    cfg.t0,
		}},
	}
}

// SetClockFrequency retunes the clock to freqHz. Every NCO tracking the
// clock is moved by the difference between the new and the old frequency;
// the operation reserves the hardware settling time.
func SetClockFrequency(clock string, freqHz float64, opts ...PulseOption) Operation {
	cfg := applyPulseOptions(opts)
	freq := freqHz
	return Operation{
		Name: "SetClockFrequency",
		Pulses: []PulseInfo{{
			Kind:         KindSetFrequency,
			Clock:        clock,
			T0:           cfg.t0,
			Duration:     asm.NcoSetFrequencyWaitNS * 1e-9,
			ClockFreqNew: &freq,
		}},
	}
}

// DecomposeLongSquarePulse splits a long square pulse into a train of
// pulses no longer than durationMax, for hardware whose waveform memory
// cannot hold the whole pulse. When singleDuration is set the remainder
// chunk is stretched to durationMax as well, so all returned pulses share
// one duration.
func DecomposeLongSquarePulse(amp complex128, duration, durationMax float64, singleDuration bool, port, clock string, opts ...PulseOption) ([]Operation, error) {
	if duration < 0 {
		return nil, fmt.Errorf("cannot decompose a negative duration (%g s)", duration)
	}
	if durationMax <= 0 || durationMax > duration {
		return nil, fmt.Errorf("chunk duration %g s must lie in (0, %g]", durationMax, duration)
	}
	numPulses := int(duration / durationMax)
	remainder := math.Mod(duration, durationMax)
	pulses := make([]Operation, 0, numPulses+1)
	for i := 0; i < numPulses; i++ {
		pulses = append(pulses, SquarePulse(amp, durationMax, port, clock, opts...))
	}
	if remainder != 0 {
		if singleDuration {
			remainder = durationMax
		}
		pulses = append(pulses, SquarePulse(amp, remainder, port, clock, opts...))
	}
	return pulses, nil
}

// DCCompensationPulse builds a square pulse that cancels the net charge
// accumulated by the baseband pulses on the given port. Exactly one of amp
// and duration must be nonzero: the other is derived from the summed pulse
// area, and the sign of amp is adjusted to oppose it. Modulated pulses are
// ignored.
func DCCompensationPulse(pulses []Operation, samplingRate float64, port string, amp, duration float64, opts ...PulseOption) (Operation, error) {
	if len(pulses) == 0 {
		return Operation{}, errors.New("cannot compensate an empty pulse list")
	}
	if samplingRate <= 0 {
		return Operation{}, fmt.Errorf("sampling rate must be positive, got %g", samplingRate)
	}
	if amp != 0 && duration != 0 {
		return Operation{}, errors.New("either amp or duration may be specified, not both")
	}
	if amp == 0 && duration == 0 {
		return Operation{}, errors.New("one of amp or duration must be specified")
	}

	var area float64
	for _, op := range pulses {
		for _, info := range op.Pulses {
			if info.Kind != KindPulse || info.Port != port || info.Clock != BasebandClockName {
				continue
			}
			data, err := waveform.Generate(info.WfFunc, waveform.TimeAxis(info.Duration, samplingRate), info.Params)
			if err != nil {
				return Operation{}, fmt.Errorf("sample %s for compensation: %w", info.WfFunc, err)
			}
			area += real(waveform.Area(data, samplingRate))
		}
	}

	var cAmp, cDuration float64
	if duration != 0 {
		if duration < 0 {
			return Operation{}, fmt.Errorf("compensation duration must be positive, got %g s", duration)
		}
		cDuration = duration
		cAmp = -area / cDuration
	} else {
		if area > 0 {
			cAmp = -math.Abs(amp)
		} else {
			cAmp = math.Abs(amp)
		}
		cDuration = math.Abs(area / cAmp)
	}

	op := SquarePulse(complex(cAmp, 0), cDuration, port, BasebandClockName, opts...)
	op.Name = "DCCompensationPulse"
	return op, nil
}
