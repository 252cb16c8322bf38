package compiler

import (
	"fmt"
	"math"

	"github.com/pverheul/tactus/asm"
	"github.com/pverheul/tactus/schedule"
)

// OpInfo is one pulse or acquisition with its absolute schedule time, the
// unit the per-sequencer assembler works on. Exactly one of Pulse and
// Acquisition is set.
type OpInfo struct {
	// Name of the operation the info came from, used in comments and
	// diagnostics.
	Name string
	// Timing is the absolute start time in seconds, including the info's
	// own t0 within its operation.
	Timing float64

	Pulse       *schedule.PulseInfo
	Acquisition *schedule.AcquisitionInfo
}

// IsAcquisition reports whether the info records a measurement.
func (o OpInfo) IsAcquisition() bool { return o.Acquisition != nil }

// Duration returns the scheduled duration in seconds.
func (o OpInfo) Duration() float64 {
	if o.Acquisition != nil {
		return o.Acquisition.Duration
	}
	if o.Pulse != nil {
		return o.Pulse.Duration
	}
	return 0
}

// StartNS returns the absolute start time in integer nanoseconds.
func (o OpInfo) StartNS() int {
	return int(math.Round(o.Timing * asm.SamplingRate))
}

// DurationNS returns the duration in integer nanoseconds.
func (o OpInfo) DurationNS() int {
	return int(math.Round(o.Duration() * asm.SamplingRate))
}

// EndNS returns the absolute end time in integer nanoseconds.
func (o OpInfo) EndNS() int { return o.StartNS() + o.DurationNS() }

func (o OpInfo) String() string {
	label := "Pulse"
	if o.IsAcquisition() {
		label = "Acquisition"
	}
	return fmt.Sprintf("%s %q (t0=%v, duration=%v)", label, o.Name, o.Timing, o.Duration())
}
