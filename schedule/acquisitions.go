package schedule

import (
	"fmt"

	"github.com/pverheul/tactus/waveform"
)

func validBinMode(m BinMode) bool {
	return m == BinModeAverage || m == BinModeAppend
}

// Trace records the raw input signal for the given duration.
func Trace(duration float64, port, clock string, channel, index int, binMode BinMode, opts ...PulseOption) (Operation, error) {
	if !validBinMode(binMode) {
		return Operation{}, fmt.Errorf("unknown bin mode %q", binMode)
	}
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "Trace",
		Acquisitions: []AcquisitionInfo{{
			Protocol: ProtocolTrace,
			Port:     port,
			Clock:    clock,
			T0:       cfg.t0,
			Duration: duration,
			Channel:  channel,
			Index:    index,
			BinMode:  binMode,
		}},
	}, nil
}

// squareWeights builds the unit I and Q integration windows shared by the
// single-sideband protocols.
func squareWeights(duration, t0 float64, port, clock string) []PulseInfo {
	weights := make([]PulseInfo, 2)
	for i, amp := range []complex128{1, 1i} {
		weights[i] = PulseInfo{
			Kind:     KindPulse,
			WfFunc:   waveform.FuncSquare,
			Params:   waveform.Params{"amp": amp},
			Port:     port,
			Clock:    clock,
			T0:       t0,
			Duration: duration,
		}
	}
	return weights
}

// SSBIntegrationComplex integrates the demodulated input over a square
// window and stores one complex value per acquisition.
func SSBIntegrationComplex(duration float64, port, clock string, channel, index int, binMode BinMode, opts ...PulseOption) (Operation, error) {
	if !validBinMode(binMode) {
		return Operation{}, fmt.Errorf("unknown bin mode %q", binMode)
	}
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "SSBIntegrationComplex",
		Acquisitions: []AcquisitionInfo{{
			Protocol:  ProtocolSSBIntegrationComplex,
			Port:      port,
			Clock:     clock,
			T0:        cfg.t0,
			Duration:  duration,
			Channel:   channel,
			Index:     index,
			BinMode:   binMode,
			Waveforms: squareWeights(duration, cfg.t0, port, clock),
		}},
	}, nil
}

// ThresholdedAcquisition integrates like SSBIntegrationComplex and reduces
// the result to a bit: the integrated value is rotated by rotation degrees
// and compared against threshold.
func ThresholdedAcquisition(duration float64, port, clock string, channel, index int, binMode BinMode, threshold, rotation float64, opts ...PulseOption) (Operation, error) {
	if !validBinMode(binMode) {
		return Operation{}, fmt.Errorf("unknown bin mode %q", binMode)
	}
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "ThresholdedAcquisition",
		Acquisitions: []AcquisitionInfo{{
			Protocol:  ProtocolThresholdedAcquisition,
			Port:      port,
			Clock:     clock,
			T0:        cfg.t0,
			Duration:  duration,
			Channel:   channel,
			Index:     index,
			BinMode:   binMode,
			Waveforms: squareWeights(duration, cfg.t0, port, clock),
			Threshold: threshold,
			Rotation:  rotation,
		}},
	}, nil
}

// WeightedIntegratedComplex integrates the input against two caller
// supplied weight waveforms. The weights are pulse infos describing a
// sampled shape; their port, clock and start time are overwritten to
// match the acquisition, and a zero weight duration defaults to the
// acquisition duration.
func WeightedIntegratedComplex(weightA, weightB PulseInfo, duration float64, port, clock string, channel, index int, binMode BinMode, opts ...PulseOption) (Operation, error) {
	if !validBinMode(binMode) {
		return Operation{}, fmt.Errorf("unknown bin mode %q", binMode)
	}
	cfg := applyPulseOptions(opts)
	weights := []PulseInfo{weightA, weightB}
	for i := range weights {
		weights[i].Kind = KindPulse
		weights[i].Port = port
		weights[i].Clock = clock
		weights[i].T0 = cfg.t0
		if weights[i].Duration == 0 {
			weights[i].Duration = duration
		}
	}
	return Operation{
		Name: "WeightedIntegratedComplex",
		Acquisitions: []AcquisitionInfo{{
			Protocol:  ProtocolWeightedIntegratedComplex,
			Port:      port,
			Clock:     clock,
			T0:        cfg.t0,
			Duration:  duration,
			Channel:   channel,
			Index:     index,
			BinMode:   binMode,
			Waveforms: weights,
		}},
	}, nil
}

// NumericalWeightedIntegrationComplex is WeightedIntegratedComplex with
// the weights given as sample arrays. The samples are interpolated to the
// hardware sample rate during compilation; the acquisition duration
// follows from the sample count and weightsSamplingRate.
func NumericalWeightedIntegrationComplex(weightsA, weightsB []complex128, weightsSamplingRate float64, port, clock string, channel, index int, binMode BinMode, opts ...PulseOption) (Operation, error) {
	if weightsSamplingRate <= 0 {
		return Operation{}, fmt.Errorf("weights sampling rate must be positive, got %g", weightsSamplingRate)
	}
	if len(weightsA) == 0 || len(weightsA) != len(weightsB) {
		return Operation{}, fmt.Errorf("weight arrays must be equally sized and not empty, got %d and %d samples", len(weightsA), len(weightsB))
	}
	tSamples := make([]float64, len(weightsA))
	for i := range tSamples {
		tSamples[i] = float64(i) / weightsSamplingRate
	}
	duration := float64(len(tSamples)) / weightsSamplingRate
	weight := func(samples []complex128) PulseInfo {
		return PulseInfo{
			WfFunc:   waveform.FuncInterpolated,
			Params:   waveform.Params{"samples": samples, "t_samples": tSamples},
			Duration: duration,
		}
	}
	op, err := WeightedIntegratedComplex(weight(weightsA), weight(weightsB), duration, port, clock, channel, index, binMode, opts...)
	if err != nil {
		return Operation{}, err
	}
	op.Name = "NumericalWeightedIntegrationComplex"
	return op, nil
}

// TriggerCount counts input trigger events during the acquisition window.
// Average bin mode accumulates a distribution over repetitions and only
// supports acquisition index zero.
func TriggerCount(duration float64, port, clock string, channel, index int, binMode BinMode, opts ...PulseOption) (Operation, error) {
	if !validBinMode(binMode) {
		return Operation{}, fmt.Errorf("unknown bin mode %q", binMode)
	}
	if binMode == BinModeAverage && index != 0 {
		return Operation{}, fmt.Errorf("trigger counting with bin mode %s requires acquisition index 0, got %d", BinModeAverage, index)
	}
	cfg := applyPulseOptions(opts)
	return Operation{
		Name: "TriggerCount",
		Acquisitions: []AcquisitionInfo{{
			Protocol: ProtocolTriggerCount,
			Port:     port,
			Clock:    clock,
			T0:       cfg.t0,
			Duration: duration,
			Channel:  channel,
			Index:    index,
			BinMode:  binMode,
		}},
	}, nil
}
