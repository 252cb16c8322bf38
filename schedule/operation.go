package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pverheul/tactus/waveform"
)

// InfoKind tags the variant of a PulseInfo. The set is closed: compilation
// dispatches on it with an exhaustive switch, so schedules built from other
// sources must stick to these values.
type InfoKind string

const (
	// KindPulse is a sampled waveform played on an output.
	KindPulse InfoKind = "pulse"
	// KindIdle reserves time without producing output.
	KindIdle InfoKind = "idle"
	// KindOffset moves the DC offset of both AWG paths.
	KindOffset InfoKind = "offset"
	// KindParameterUpdate latches previously staged offsets and gains.
	KindParameterUpdate InfoKind = "parameter_update"
	// KindPhaseShift increments the NCO phase of the addressed clock.
	KindPhaseShift InfoKind = "phase_shift"
	// KindResetPhase zeroes the NCO phase of the addressed clock.
	KindResetPhase InfoKind = "reset_phase"
	// KindSetFrequency retunes the NCO of the addressed clock.
	KindSetFrequency InfoKind = "set_frequency"
	// KindMarker raises a marker output for the duration of the info.
	KindMarker InfoKind = "marker"
)

// Clock names every schedule starts out with.
const (
	BasebandClockName = "cl0.baseband"
	DigitalClockName  = "digital"
)

// PulseInfo describes one timed hardware action of an operation. Which
// fields are meaningful depends on Kind: sampled pulses carry WfFunc and
// Params, offsets carry the two path values, NCO actions carry their own
// fields. T0 is relative to the start of the owning operation.
type PulseInfo struct {
	Kind     InfoKind        `json:"kind"`
	WfFunc   string          `json:"wf_func,omitempty"`
	Params   waveform.Params `json:"params,omitempty"`
	Port     string          `json:"port,omitempty"`
	Clock    string          `json:"clock,omitempty"`
	T0       float64         `json:"t0"`
	Duration float64         `json:"duration"`

	OffsetPath0 float64 `json:"offset_path_0,omitempty"`
	OffsetPath1 float64 `json:"offset_path_1,omitempty"`

	PhaseShift float64 `json:"phase_shift,omitempty"`

	// ClockFreqNew is set by SetClockFrequency. The old clock and
	// intermodulation frequencies are resolved during compilation and
	// filled in on a copy of the info.
	ClockFreqNew  *float64 `json:"clock_freq_new,omitempty"`
	ClockFreqOld  *float64 `json:"clock_freq_old,omitempty"`
	IntermFreqOld *float64 `json:"interm_freq_old,omitempty"`
}

// BinMode selects how repeated acquisitions on the same channel are stored.
type BinMode string

const (
	// BinModeAverage accumulates every repetition into one running average.
	BinModeAverage BinMode = "average"
	// BinModeAppend stores every repetition in its own bin.
	BinModeAppend BinMode = "append"
)

// Acquisition protocols understood by the compiler.
const (
	ProtocolTrace                     = "Trace"
	ProtocolSSBIntegrationComplex     = "SSBIntegrationComplex"
	ProtocolThresholdedAcquisition    = "ThresholdedAcquisition"
	ProtocolWeightedIntegratedComplex = "WeightedIntegratedComplex"
	ProtocolTriggerCount              = "TriggerCount"
)

// AcquisitionInfo describes one timed measurement of an operation. Weighted
// protocols carry their integration weights as pulse infos in Waveforms.
type AcquisitionInfo struct {
	Protocol  string      `json:"protocol"`
	Port      string      `json:"port"`
	Clock     string      `json:"clock"`
	T0        float64     `json:"t0"`
	Duration  float64     `json:"duration"`
	Channel   int         `json:"acq_channel"`
	Index     int         `json:"acq_index"`
	BinMode   BinMode     `json:"bin_mode"`
	Waveforms []PulseInfo `json:"waveforms,omitempty"`
	Threshold float64     `json:"acq_threshold,omitempty"`
	Rotation  float64     `json:"acq_rotation,omitempty"`
}

// Operation is a reusable unit of schedule content: a named bundle of pulse
// and acquisition infos with their relative timings. Operations are value
// types; adding one to a schedule stores it under its content hash, so two
// structurally identical operations share storage.
type Operation struct {
	Name         string            `json:"name"`
	Pulses       []PulseInfo       `json:"pulses,omitempty"`
	Acquisitions []AcquisitionInfo `json:"acquisitions,omitempty"`
}

// Duration returns the time from the start of the operation to the end of
// its latest info.
func (op Operation) Duration() float64 {
	var end float64
	for _, p := range op.Pulses {
		if t := p.T0 + p.Duration; t > end {
			end = t
		}
	}
	for _, a := range op.Acquisitions {
		if t := a.T0 + a.Duration; t > end {
			end = t
		}
	}
	return end
}

// HasAcquisitions reports whether the operation records any measurement.
func (op Operation) HasAcquisitions() bool {
	return len(op.Acquisitions) > 0
}

// hashDomain separates operation hashes from any other SHA-256 use. The
// version suffix leaves room for changing the canonical encoding later.
const hashDomain = "tactus/operation/v1"

// Hash returns the content address of the operation: a SHA-256 over the
// domain prefix, a null separator and the canonical JSON encoding. Maps
// marshal with sorted keys, so the digest is stable across processes.
func (op Operation) Hash() (string, error) {
	payload, err := json.Marshal(op)
	if err != nil {
		return "", fmt.Errorf("hash operation %s: %w", op.Name, err)
	}
	h := sha256.New()
	h.Write([]byte(hashDomain))
	h.Write([]byte{0x00})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MustHash is Hash for operations known to encode cleanly, such as those
// built by the constructors in this package. It panics on encoding errors.
func (op Operation) MustHash() string {
	id, err := op.Hash()
	if err != nil {
		panic(err)
	}
	return id
}
